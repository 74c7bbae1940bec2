package rethinkdb

import (
	"log/slog"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
)

func init() {
	adapter.Register(adapter.Info{
		Name:        "rethinkdb",
		Description: "RethinkDB server over the JSON wire protocol",
		Network:     true,
	}, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
