package commands

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/pkg/adapter"
)

// BuildInfo is the JSON form of the version command.
type BuildInfo struct {
	Version    string   `json:"version"`
	Commit     string   `json:"commit"`
	Built      string   `json:"built"`
	Go         string   `json:"go"`
	Transports []string `json:"transports"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the changefeed version, build metadata and compiled-in transports.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := BuildInfo{
				Version:    version,
				Commit:     commit,
				Built:      date,
				Go:         runtime.Version(),
				Transports: adapter.ListAdapters(),
			}

			r := NewCommandContext(cmd).Renderer
			if asJSON {
				r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeJSON)
			}
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(info)
			}

			r.Printf("changefeed v%s\n", info.Version)
			r.Printf("commit %s, built %s with %s\n", info.Commit, info.Built, info.Go)
			if len(info.Transports) > 0 {
				r.Printf("transports: %s\n", strings.Join(info.Transports, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")
	return cmd
}
