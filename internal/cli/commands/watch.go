package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
	"github.com/leapstack-labs/changefeed/pkg/changefeed"
	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Query  QueryOptions
	Limit  int
	Record bool
}

// errLimitReached stops the drain once --limit events were printed.
var errLimitReached = errors.New("limit reached")

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream changes from a table",
		Long: `Subscribe to a table's change feed and print every change as it arrives.

The query comes from flags (--table, --has-field, --type-of, --option) or
from a Starlark script (--script). The feed runs until the server ends it,
--limit events were printed, or the command is interrupted.

Documents that do not decode are reported and the feed continues.`,
		Example: `  # Watch documents whose "test" field is a number
  changefeed watch --table test --has-field test --type-of test=NUMBER --option include_types=true

  # Watch from a script and record the session
  changefeed watch --script queries/users.star --var min_age=18 --record

  # Stop after the initial values
  changefeed watch --table users --option include_initial=true --limit 10 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	opts.Query.AddFlags(cmd.Flags())
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Stop after this many events (0 for no limit)")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "Record the session in the journal")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	logger := cmdCtx.Logger

	registry, err := loadSchema(cmdCtx.Cfg)
	if err != nil {
		return err
	}
	built, err := opts.Query.Build(registry, logger)
	if err != nil {
		return err
	}
	node, err := built.Term.Build()
	if err != nil {
		return err
	}
	if _, ok := node.(*core.Changes); !ok {
		return fmt.Errorf("watch needs a changes() query; use render to inspect other queries")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, cleanup, err := cmdCtx.Connect(ctx, opts.Record)
	if err != nil {
		return err
	}
	defer cleanup()

	feedOpts := []changefeed.Option{changefeed.WithLogger(logger)}
	if len(built.RunOptions) > 0 {
		feedOpts = append(feedOpts, changefeed.WithWireOptions(wire.WithGlobalOptions(built.RunOptions)))
	}
	if built.Schema != nil {
		decodeOpt, err := built.Schema.DecodeOption()
		if err != nil {
			return err
		}
		feedOpts = append(feedOpts, changefeed.WithDecodeOptions(decodeOpt))
	}

	feed, err := changefeed.Watch[any](ctx, conn, built.Term, feedOpts...)
	if err != nil {
		return err
	}
	logger.Info("watching", slog.String("query", built.Term.Node().Type().String()))

	printer := &eventPrinter{r: r, json: r.EffectiveMode() == output.ModeJSON}
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	// Interrupts end the feed through Close, so the pending pull returns
	// ErrEnd and the drain finishes cleanly.
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-done:
		}
		return feed.Close()
	})
	g.Go(func() error {
		defer close(done)
		n := 0
		return feed.Drain(context.Background(), func(ev changefeed.Event[any]) error {
			if err := printer.print(ev); err != nil {
				return err
			}
			n++
			if opts.Limit > 0 && n >= opts.Limit {
				return errLimitReached
			}
			return nil
		})
	})

	err = g.Wait()
	if errors.Is(err, errLimitReached) {
		return nil
	}
	return err
}

// eventPrinter writes feed events in the renderer's mode.
type eventPrinter struct {
	r    *output.Renderer
	json bool
}

// eventJSON is one line of JSON output.
type eventJSON struct {
	Action string `json:"action"`
	Type   string `json:"type,omitempty"`
	OldVal any    `json:"old_val,omitempty"`
	NewVal any    `json:"new_val,omitempty"`
	Raw    string `json:"raw,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (p *eventPrinter) print(ev changefeed.Event[any]) error {
	if p.json {
		return p.printJSON(ev)
	}

	styles := p.r.Styles()
	if ev.IsFailure() {
		p.r.Println(styles.Failure.Render(fmt.Sprintf("Got unexpected change: %s", ev.Failure.Raw)))
		p.r.Printf("\t=> %v\n", ev.Failure.Reason)
		return nil
	}

	c := ev.Change
	action := c.Action()
	switch action {
	case core.ActionAdd, core.ActionInitial:
		p.r.Println(styles.Add.Render(fmt.Sprintf("%s action received", action)))
		p.r.Printf("\t=> %s\n", compact(c.NewVal))
	case core.ActionRemove:
		p.r.Println(styles.Remove.Render(fmt.Sprintf("%s action received", action)))
		p.r.Printf("\t=> %s\n", compact(c.OldVal))
	case core.ActionChange:
		p.r.Println(styles.Change.Render(fmt.Sprintf("%s action received", action)))
		p.r.Printf("\t=> from %s to %s\n", compact(c.OldVal), compact(c.NewVal))
	case core.ActionUnsupported:
		p.r.Println(styles.Warning.Render(fmt.Sprintf("Unsupported change type: %s", c.Type())))
	default:
		p.r.Println(styles.Warning.Render("Invalid change type"))
	}
	return nil
}

func (p *eventPrinter) printJSON(ev changefeed.Event[any]) error {
	var out eventJSON
	if ev.IsFailure() {
		out = eventJSON{Action: "failure", Raw: string(ev.Failure.Raw), Error: ev.Failure.Reason.Error()}
	} else {
		c := ev.Change
		out = eventJSON{Action: c.Action().String(), Type: c.Type()}
		if c.OldVal != nil {
			out.OldVal = *c.OldVal
		}
		if c.NewVal != nil {
			out.NewVal = *c.NewVal
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	p.r.Println(string(data))
	return nil
}

// compact renders a document value as one-line JSON.
func compact(v *any) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(*v)
	if err != nil {
		return fmt.Sprintf("%v", *v)
	}
	return string(data)
}
