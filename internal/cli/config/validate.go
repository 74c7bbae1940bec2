package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.OutputFormat != "" && !slices.Contains(output.Modes, c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (want one of %v)", c.OutputFormat, output.Modes)
	}
	if c.Target == nil {
		return fmt.Errorf("target is required")
	}
	if err := c.Target.Validate(); err != nil {
		return fmt.Errorf("invalid target configuration: %w", err)
	}
	return nil
}

// ValidateSchemaFile checks that the configured schema file exists.
func (c *Config) ValidateSchemaFile() error {
	if c.SchemaFile == "" {
		return nil
	}
	if _, err := os.Stat(c.SchemaFile); os.IsNotExist(err) {
		return fmt.Errorf("schema file does not exist: %s\nHint: Create it or use --schema to specify a different path", c.SchemaFile)
	}
	return nil
}
