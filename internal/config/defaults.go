package config

import (
	"time"

	"github.com/leapstack-labs/changefeed/pkg/adapters/postgres"
	"github.com/leapstack-labs/changefeed/pkg/adapters/rethinkdb"
)

// Default configuration values.
const (
	DefaultAdapter     = "memory"
	DefaultHost        = "localhost"
	DefaultDatabase    = "test"
	DefaultTimeout     = 20 * time.Second
	DefaultJournalPath = ".changefeed/journal.db"
)

// ApplyTargetDefaults fills unset target fields based on the transport type.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	if t.Type == "" {
		t.Type = DefaultAdapter
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultTimeout
	}

	switch t.Type {
	case "rethinkdb":
		if t.Host == "" {
			t.Host = DefaultHost
		}
		if t.Port == 0 {
			t.Port = rethinkdb.DefaultPort
		}
		if t.User == "" {
			t.User = "admin"
		}
		if t.Database == "" {
			t.Database = DefaultDatabase
		}
	case "postgres":
		if t.Host == "" {
			t.Host = DefaultHost
		}
		if t.Port == 0 {
			t.Port = postgres.DefaultPort
		}
	case "memory":
		if t.Database == "" {
			t.Database = DefaultDatabase
		}
	}
}
