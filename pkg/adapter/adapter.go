// Package adapter provides the transport contract for change-feed queries.
//
// An adapter is a core.Conn that knows how to open itself from a config.
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves from init().
package adapter

import (
	"context"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// Adapter defines the interface that all transports must implement.
type Adapter interface {
	core.Conn

	// Connect establishes the session using the provided config.
	Connect(ctx context.Context, cfg Config) error
}

// Installer is implemented by adapters that need server-side setup before
// feeds can be watched (for example notification triggers).
type Installer interface {
	// Install prepares the named tables to publish changes.
	Install(ctx context.Context, tables []string) error
}
