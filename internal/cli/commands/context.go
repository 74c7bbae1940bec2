package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/changefeed/internal/cli/config"
	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/internal/secret"
	"github.com/leapstack-labs/changefeed/internal/state"
	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
// Nothing is connected until Connect is called.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	mode := output.Mode(cfg.OutputFormat)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}
}

// getConfig returns the current configuration, or defaults when the root
// command did not load one (commands run directly in tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{
			Target:       &config.TargetConfig{Type: "memory", Database: "test"},
			JournalPath:  config.DefaultJournalFile,
			OutputFormat: config.DefaultOutput,
		}
	}
	return cfg
}

// Open connects the configured adapter.
func (c *CommandContext) Open(ctx context.Context) (adapter.Adapter, error) {
	acfg, err := c.Cfg.Target.AdapterConfig(secret.NewResolver())
	if err != nil {
		return nil, err
	}

	adp, err := adapter.Open(ctx, acfg, c.Logger)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("connected",
		slog.String("adapter", acfg.Type),
		slog.String("address", c.Cfg.Target.Address()),
		slog.String("user", acfg.Username),
		slog.String("password", secret.MaskValue(acfg.Password)))
	return adp, nil
}

// Connect opens the configured target. When record is set, the connection
// journals every query it runs. The returned cleanup closes everything
// Connect opened.
func (c *CommandContext) Connect(ctx context.Context, record bool) (core.Conn, func(), error) {
	adp, err := c.Open(ctx)
	if err != nil {
		return nil, nil, err
	}

	if !record {
		return adp, func() { _ = adp.Close() }, nil
	}

	store, err := c.OpenJournal()
	if err != nil {
		_ = adp.Close()
		return nil, nil, err
	}
	conn := state.NewRecordingConn(adp, store, c.Cfg.Target.Type, c.Logger)
	return conn, func() {
		_ = conn.Close()
		_ = store.Close()
	}, nil
}

// OpenJournal opens the session journal, creating its directory.
func (c *CommandContext) OpenJournal() (*state.SQLiteStore, error) {
	dir := filepath.Dir(c.Cfg.JournalPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	store := state.NewSQLiteStore()
	if err := store.Open(c.Cfg.JournalPath); err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return store, nil
}
