// Package config provides configuration management for the changefeed CLI.
//
// The connection target type lives in internal/config and is re-exported
// here so commands only import this package.
package config

import (
	"strings"

	intconfig "github.com/leapstack-labs/changefeed/internal/config"
)

// TargetConfig is an alias for the shared target configuration.
type TargetConfig = intconfig.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	Target       *TargetConfig        `koanf:"target"`
	JournalPath  string               `koanf:"journal_path"`
	SchemaFile   string               `koanf:"schema_file"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	Target *TargetConfig `koanf:"target"`
}

// Default configuration values.
const (
	DefaultJournalFile = intconfig.DefaultJournalPath
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// keyAliases maps short flag and environment names onto config keys.
var keyAliases = map[string]string{
	"adapter":  "target.type",
	"host":     "target.host",
	"port":     "target.port",
	"database": "target.database",
	"user":     "target.user",
	"password": "target.password",
	"timeout":  "target.timeout",
	"path":     "target.path",
	"session":  "target.options.session",
	"journal":  "journal_path",
	"schema":   "schema_file",
}

// configKey maps a flag or environment variable name to its config key.
func configKey(name string) string {
	key := strings.ReplaceAll(strings.ToLower(name), "-", "_")
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	return key
}
