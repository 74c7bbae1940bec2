package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/pkg/adapter"
)

// SetupOutput is the JSON output for the setup command.
type SetupOutput struct {
	Adapter string   `json:"adapter"`
	Tables  []string `json:"tables"`
}

// NewSetupCommand creates the setup command.
func NewSetupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup <table>...",
		Short: "Prepare tables to publish changes",
		Long: `Install whatever the target needs on the server before its tables can be
watched. For postgres this is a notify trigger per table; tables may be
given as schema.table.

Targets that publish changes natively need no setup.`,
		Example: `  # Install triggers on two postgres tables
  changefeed setup users audit.events --adapter postgres --host db.local`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, args)
		},
	}
	return cmd
}

func runSetup(cmd *cobra.Command, tables []string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	typ := cmdCtx.Cfg.Target.Type

	adp, err := cmdCtx.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = adp.Close() }()

	installer, ok := adp.(adapter.Installer)
	if !ok {
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(SetupOutput{Adapter: typ, Tables: []string{}})
		}
		r.Muted(fmt.Sprintf("%s publishes changes natively; nothing to set up", typ))
		return nil
	}

	if err := installer.Install(cmd.Context(), tables); err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(SetupOutput{Adapter: typ, Tables: tables})
	}
	for _, t := range tables {
		r.Success(fmt.Sprintf("%s ready", t))
	}
	return nil
}
