// Package postgres serves change feeds from PostgreSQL.
//
// Row changes are captured by a trigger that publishes
// {"old_val":...,"new_val":...} documents with pg_notify. Feeds LISTEN on the
// table's channel and apply filter semantics on the client side.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/changefeed/pkg/adapters/postgres"
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
)

// DefaultPort is the PostgreSQL server port.
const DefaultPort = 5432

func init() {
	adapter.Register(adapter.Info{
		Name:        "postgres",
		Description: "PostgreSQL tables through LISTEN/NOTIFY triggers",
		Network:     true,
	}, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}

// buildPostgresDSN constructs a PostgreSQL connection string.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	if cfg.Timeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", max(1, int(cfg.Timeout.Seconds())))
	}

	return dsn
}
