package memory

import (
	"log/slog"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
)

func init() {
	adapter.Register(adapter.Info{
		Name:        "memory",
		Description: "in-process tables seeded from a JSON file",
	}, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
