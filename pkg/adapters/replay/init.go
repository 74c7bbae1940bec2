package replay

import (
	"log/slog"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
)

func init() {
	adapter.Register(adapter.Info{
		Name:        "replay",
		Description: "sessions recorded in the journal",
	}, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
