package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/changefeed/internal/cli/config"
	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/internal/secret"
)

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	ConfigFile string        `json:"config_file,omitempty"`
	Target     TargetSummary `json:"target"`
	Checks     []HealthCheck `json:"checks"`
	Healthy    bool          `json:"healthy"`
}

// TargetSummary describes the resolved target. Credentials are masked.
type TargetSummary struct {
	Type     string `json:"type"`
	Address  string `json:"address,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// HealthCheck is one check result.
type HealthCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "warning", "error"
	Detail string `json:"detail,omitempty"`
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	var skipConnect bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, schema, journal and connectivity",
		Long: `Report the resolved target (with credentials masked) and check that the
schema file loads, the journal opens, and the target accepts a connection.`,
		Example: `  # Check the default target
  changefeed doctor

  # Check the prod environment without connecting
  changefeed doctor -t prod --no-connect`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, skipConnect)
		},
	}
	cmd.Flags().BoolVar(&skipConnect, "no-connect", false, "Skip the connection check")
	return cmd
}

func runDoctor(cmd *cobra.Command, skipConnect bool) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	cfg := cmdCtx.Cfg

	out := &DoctorOutput{
		ConfigFile: config.GetConfigFileUsed(),
		Target: TargetSummary{
			Type:     cfg.Target.Type,
			Address:  secret.Mask(cfg.Target.Address()),
			Database: cfg.Target.Database,
			User:     cfg.Target.User,
			Password: secret.MaskValue(cfg.Target.Password),
		},
	}

	out.Checks = append(out.Checks, checkSchema(cfg))
	out.Checks = append(out.Checks, checkJournal(ctx, cmdCtx))
	if skipConnect {
		out.Checks = append(out.Checks, HealthCheck{Name: "connection", Status: "warning", Detail: "skipped"})
	} else {
		out.Checks = append(out.Checks, checkConnection(ctx, cmdCtx))
	}

	out.Healthy = true
	for _, c := range out.Checks {
		if c.Status == "error" {
			out.Healthy = false
		}
	}

	var err error
	switch r.EffectiveMode() {
	case output.ModeJSON:
		err = r.JSON(out)
	default:
		renderDoctor(r, out)
	}
	if err != nil {
		return err
	}
	if !out.Healthy {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func checkSchema(cfg *config.Config) HealthCheck {
	if cfg.SchemaFile == "" {
		return HealthCheck{Name: "schema", Status: "pass", Detail: "none configured"}
	}
	reg, err := loadSchema(cfg)
	if err != nil {
		return HealthCheck{Name: "schema", Status: "error", Detail: err.Error()}
	}
	return HealthCheck{Name: "schema", Status: "pass", Detail: fmt.Sprintf("%d tables", len(reg.Names()))}
}

func checkJournal(ctx context.Context, cmdCtx *CommandContext) HealthCheck {
	store, err := cmdCtx.OpenJournal()
	if err != nil {
		return HealthCheck{Name: "journal", Status: "warning", Detail: err.Error()}
	}
	defer func() { _ = store.Close() }()
	current, latest, err := store.SchemaVersion(ctx)
	if err != nil {
		return HealthCheck{Name: "journal", Status: "warning", Detail: err.Error()}
	}
	if current < latest {
		return HealthCheck{Name: "journal", Status: "warning",
			Detail: fmt.Sprintf("%s (schema v%d, v%d available)", store.Path(), current, latest)}
	}
	return HealthCheck{Name: "journal", Status: "pass", Detail: fmt.Sprintf("%s (schema v%d)", store.Path(), current)}
}

func checkConnection(ctx context.Context, cmdCtx *CommandContext) HealthCheck {
	start := time.Now()
	adp, err := cmdCtx.Open(ctx)
	if err != nil {
		return HealthCheck{Name: "connection", Status: "error", Detail: secret.Mask(err.Error())}
	}
	_ = adp.Close()
	return HealthCheck{Name: "connection", Status: "pass", Detail: time.Since(start).Round(time.Millisecond).String()}
}

func renderDoctor(r *output.Renderer, out *DoctorOutput) {
	r.Header(1, "Target")
	if out.ConfigFile != "" {
		r.Println(output.FormatKeyValue("Config", out.ConfigFile))
	}
	r.Println(output.FormatKeyValue("Type", out.Target.Type))
	if out.Target.Address != "" {
		r.Println(output.FormatKeyValue("Address", out.Target.Address))
	}
	if out.Target.Database != "" {
		r.Println(output.FormatKeyValue("Database", out.Target.Database))
	}
	if out.Target.User != "" {
		r.Println(output.FormatKeyValue("User", out.Target.User))
	}
	if out.Target.Password != "" {
		r.Println(output.FormatKeyValue("Password", out.Target.Password))
	}
	r.Println()

	r.Header(2, "Checks")
	for _, c := range out.Checks {
		r.StatusLine(c.Name, c.Status, c.Detail)
	}
}
