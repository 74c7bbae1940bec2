// Package main provides the changefeed CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/changefeed/internal/cli"

	// Transports register themselves via init()
	_ "github.com/leapstack-labs/changefeed/pkg/adapters/memory"
	_ "github.com/leapstack-labs/changefeed/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/changefeed/pkg/adapters/replay"
	_ "github.com/leapstack-labs/changefeed/pkg/adapters/rethinkdb"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
