package adapter

import (
	"fmt"

	"github.com/leapstack-labs/changefeed/internal/eval"
	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

// DefaultQueueSize bounds undelivered changes per feed when the query does
// not set changefeed_queue_size.
const DefaultQueueSize = 100000

// FeedPlan is a start query decoded for transports that evaluate feeds on
// the client side.
type FeedPlan struct {
	DB     string
	Table  string
	Filter eval.ChangeFilter
	// Changes holds the feed options; nil for a one-shot read.
	Changes core.Options
	Global  core.Options
}

// IsFeed reports whether the query subscribes to changes.
func (p *FeedPlan) IsFeed() bool { return p.Changes != nil }

// Option reads a changes option with its default.
func (p *FeedPlan) Option(name string) bool {
	return p.Changes.Bool(name, core.ChangesOptions)
}

// QueueSize returns the buffer bound for the feed.
func (p *FeedPlan) QueueSize() int {
	if n, ok := p.Changes["changefeed_queue_size"].(float64); ok && n >= 1 {
		return int(n)
	}
	return DefaultQueueSize
}

// Key returns the qualified table name "db.table".
func (p *FeedPlan) Key() string { return p.DB + "." + p.Table }

// PlanFeed decodes a start query. Queries the emulation cannot serve are
// rejected the way the server rejects them: as server errors.
func PlanFeed(q core.WireQuery, defaultDB string) (*FeedPlan, error) {
	kind, err := wire.Kind(q)
	if err != nil {
		return nil, err
	}
	if kind != wire.QueryStart {
		return nil, core.NewServerError("run", fmt.Sprintf("unexpected %s query", kind))
	}

	term, global, err := wire.Parse(q)
	if err != nil {
		return nil, err
	}

	plan := &FeedPlan{Global: global}
	source := term
	if c, ok := term.(*core.Changes); ok {
		plan.Changes = c.Options.Clone()
		plan.Filter = eval.NewChangeFilter(c)
		source = c.Source
	} else {
		plan.Filter = eval.NewChangeFilter(&core.Changes{Source: term})
	}
	if !core.IsCollection(source) {
		return nil, core.NewServerError("run", fmt.Sprintf("cannot evaluate %s as a sequence", source.Type()))
	}

	table := core.RootTable(source)
	plan.Table = table.Name
	switch {
	case table.DB != nil:
		plan.DB = table.DB.Name
	case global["db"] != nil:
		plan.DB, _ = global["db"].(string)
	default:
		plan.DB = defaultDB
	}
	if plan.DB == "" {
		plan.DB = "test"
	}
	return plan, nil
}
