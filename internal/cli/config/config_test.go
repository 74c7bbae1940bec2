package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/changefeed/pkg/adapters/memory"
	_ "github.com/leapstack-labs/changefeed/pkg/adapters/replay"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changefeed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("adapter", "", "")
	flags.String("host", "", "")
	flags.Int("port", 0, "")
	flags.Duration("timeout", 0, "")
	flags.String("journal", "", "")
	flags.String("schema", "", "")
	flags.String("session", "", "")
	flags.String("output", "", "")
	return flags
}

func TestConfigKey(t *testing.T) {
	tests := map[string]string{
		"adapter":      "target.type",
		"HOST":         "target.host",
		"session":      "target.options.session",
		"journal":      "journal_path",
		"JOURNAL_PATH": "journal_path",
		"schema":       "schema_file",
		"verbose":      "verbose",
		"schema-file":  "schema_file",
	}
	for in, want := range tests {
		assert.Equal(t, want, configKey(in), "configKey(%q)", in)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "verbose: false\n")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Target.Type)
	assert.Equal(t, "test", cfg.Target.Database)
	assert.Equal(t, 20*time.Second, cfg.Target.Timeout)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), DefaultJournalFile), cfg.JournalPath)
	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_FileValues(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, `target:
  type: rethinkdb
  host: rdb.internal
  password: ${RDB_PASSWORD}
  timeout: 5s
schema_file: schema.yaml
output: json
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "rethinkdb", cfg.Target.Type)
	assert.Equal(t, "rdb.internal", cfg.Target.Host)
	assert.Equal(t, 28015, cfg.Target.Port)
	assert.Equal(t, "admin", cfg.Target.User)
	assert.Equal(t, "${RDB_PASSWORD}", cfg.Target.Password, "secrets resolve at connect time")
	assert.Equal(t, 5*time.Second, cfg.Target.Timeout)
	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), "schema.yaml"), cfg.SchemaFile)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestLoadConfig_Precedence(t *testing.T) {
	cfgPath := writeConfig(t, `target:
  type: rethinkdb
  host: from_file
`)

	t.Run("env over file", func(t *testing.T) {
		ResetConfig()
		t.Setenv("CHANGEFEED_HOST", "from_env")
		cfg, err := LoadConfig(cfgPath, nil)
		require.NoError(t, err)
		assert.Equal(t, "from_env", cfg.Target.Host)
	})

	t.Run("flag over env", func(t *testing.T) {
		ResetConfig()
		t.Setenv("CHANGEFEED_HOST", "from_env")
		flags := newFlags()
		require.NoError(t, flags.Set("host", "from_flag"))
		cfg, err := LoadConfig(cfgPath, flags)
		require.NoError(t, err)
		assert.Equal(t, "from_flag", cfg.Target.Host)
	})

	t.Run("unset flag falls back to env", func(t *testing.T) {
		ResetConfig()
		t.Setenv("CHANGEFEED_HOST", "from_env")
		cfg, err := LoadConfig(cfgPath, newFlags())
		require.NoError(t, err)
		assert.Equal(t, "from_env", cfg.Target.Host)
	})

	t.Run("typed env values", func(t *testing.T) {
		ResetConfig()
		t.Setenv("CHANGEFEED_PORT", "29015")
		t.Setenv("CHANGEFEED_TIMEOUT", "750ms")
		cfg, err := LoadConfig(cfgPath, nil)
		require.NoError(t, err)
		assert.Equal(t, 29015, cfg.Target.Port)
		assert.Equal(t, 750*time.Millisecond, cfg.Target.Timeout)
	})
}

func TestLoadConfig_Flags(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "output: text\n")
	cwd, err := os.Getwd()
	require.NoError(t, err)

	flags := newFlags()
	require.NoError(t, flags.Set("adapter", "replay"))
	require.NoError(t, flags.Set("journal", "rec/journal.db"))
	require.NoError(t, flags.Set("session", "abc"))
	require.NoError(t, flags.Set("timeout", "3s"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "replay", cfg.Target.Type)
	assert.Equal(t, filepath.Join(cwd, "rec/journal.db"), cfg.JournalPath, "flag paths resolve against the working directory")
	assert.Equal(t, cfg.JournalPath, cfg.Target.Path, "replay reads the journal by default")
	assert.Equal(t, "abc", cfg.Target.Options["session"])
	assert.Equal(t, 3*time.Second, cfg.Target.Timeout)
}

func TestLoadConfigWithTarget_Environments(t *testing.T) {
	cfgPath := writeConfig(t, `target:
  type: rethinkdb
  host: localhost
environment: dev
environments:
  dev:
    target:
      database: devdb
  prod:
    target:
      host: rdb.prod
      port: 38015
      password: keyring:prod-rdb
`)

	t.Run("configured environment", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "devdb", cfg.Target.Database)
		assert.Equal(t, "localhost", cfg.Target.Host)
	})

	t.Run("override", func(t *testing.T) {
		ResetConfig()
		cfg, err := LoadConfigWithTarget(cfgPath, "prod", nil)
		require.NoError(t, err)
		assert.Equal(t, "rethinkdb", cfg.Target.Type)
		assert.Equal(t, "rdb.prod", cfg.Target.Host)
		assert.Equal(t, 38015, cfg.Target.Port)
		assert.Equal(t, "keyring:prod-rdb", cfg.Target.Password)
		assert.Equal(t, "test", cfg.Target.Database)
	})

	t.Run("unknown override", func(t *testing.T) {
		ResetConfig()
		_, err := LoadConfigWithTarget(cfgPath, "staging", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `environment "staging" is not defined`)
	})
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown adapter", content: "target:\n  type: mongo\n", wantErr: "unknown adapter type"},
		{name: "bad output", content: "output: yaml\n", wantErr: "invalid output format"},
		{name: "bad yaml", content: "target: [\n", wantErr: "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSchemaFile(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.ValidateSchemaFile())

	cfg.SchemaFile = filepath.Join(t.TempDir(), "missing.yaml")
	assert.ErrorContains(t, cfg.ValidateSchemaFile(), "schema file does not exist")
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	logger := slog.New(slog.DiscardHandler)
	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}
