package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/pkg/format"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	Query    QueryOptions
	WireOnly bool
}

// RenderOutput is the JSON output for the render command.
type RenderOutput struct {
	Query string          `json:"query"`
	Wire  json.RawMessage `json:"wire"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Show a query and its wire form without running it",
		Long: `Build a query from flags or a script and print it, along with the exact
message that would be sent to the server. Nothing is connected.`,
		Example: `  # Print the wire form of a filtered change query
  changefeed render --table test --has-field test --type-of test=NUMBER --option include_types=true

  # Only the wire message, for piping
  changefeed render --script queries/users.star --wire-only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, opts)
		},
	}

	opts.Query.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.Query.Read, "read", false, "Render a plain read instead of a change query")
	cmd.Flags().BoolVar(&opts.WireOnly, "wire-only", false, "Print only the wire message")

	return cmd
}

func runRender(cmd *cobra.Command, opts *RenderOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	registry, err := loadSchema(cmdCtx.Cfg)
	if err != nil {
		return err
	}
	built, err := opts.Query.Build(registry, cmdCtx.Logger)
	if err != nil {
		return err
	}
	node, err := built.Term.Build()
	if err != nil {
		return err
	}

	var wireOpts []wire.Option
	if fields := built.Term.Fields(); fields != nil {
		wireOpts = append(wireOpts, wire.WithFields(fields))
	}
	if len(built.RunOptions) > 0 {
		wireOpts = append(wireOpts, wire.WithGlobalOptions(built.RunOptions))
	}
	q, err := wire.Serialize(node, wireOpts...)
	if err != nil {
		return err
	}

	if opts.WireOnly {
		r.Println(q.String())
		return nil
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(RenderOutput{Query: format.Inline(node), Wire: json.RawMessage(q)})
	case output.ModeMarkdown:
		r.Header(1, "Query")
		r.Println("```")
		r.Println(format.Format(node))
		r.Println("```")
		r.Println()
		r.Header(2, "Wire")
		r.Println("```json")
		r.Println(q.String())
		r.Println("```")
	default:
		r.Header(1, "Query")
		r.Println(format.Format(node))
		r.Println()
		r.Header(2, fmt.Sprintf("Wire (%d bytes)", len(q)))
		r.Println(q.String())
	}
	return nil
}
