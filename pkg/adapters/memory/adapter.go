// Package memory provides an in-process transport. Tables live in memory,
// writes are published to every open feed, and filtered change semantics
// are evaluated on the client side. It serves tests, examples and the
// CLI's demo mode.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Adapter implements adapter.Adapter over in-memory tables.
type Adapter struct {
	logger *slog.Logger

	mu        sync.Mutex
	defaultDB string
	tables    map[string][]map[string]any // "db.table" -> rows
	subs      map[string]map[*subscription]struct{}
	queries   []core.WireQuery
	closed    bool
}

type subscription struct {
	plan   *adapter.FeedPlan
	cursor *adapter.ChanCursor
}

// New creates an empty in-memory adapter.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		logger:    logger,
		defaultDB: "test",
		tables:    make(map[string][]map[string]any),
		subs:      make(map[string]map[*subscription]struct{}),
	}
}

// Connect sets the default database and, when cfg.Path is set, loads
// initial table contents from a JSON file of the form
// {"table": [{...}, ...]} or {"db.table": [...]}.
func (a *Adapter) Connect(_ context.Context, cfg adapter.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cfg.Database != "" {
		a.defaultDB = cfg.Database
	}
	a.closed = false
	if cfg.Path == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed map[string][]map[string]any
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", cfg.Path, err)
	}
	for name, rows := range seed {
		key := a.key(name)
		a.tables[key] = append(a.tables[key], rows...)
	}
	a.logger.Debug("seeded memory tables", slog.Int("tables", len(seed)), slog.String("path", cfg.Path))
	return nil
}

// key qualifies a table name with the default database.
func (a *Adapter) key(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return a.defaultDB + "." + name
}

// Run implements core.Conn.
func (a *Adapter) Run(ctx context.Context, q core.WireQuery) (core.Cursor, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, core.NewTransportError("run", fmt.Errorf("connection closed"))
	}
	a.queries = append(a.queries, append(core.WireQuery(nil), q...))
	defaultDB := a.defaultDB
	a.mu.Unlock()

	plan, err := adapter.PlanFeed(q, defaultDB)
	if err != nil {
		return nil, err
	}

	if !plan.IsFeed() {
		return a.read(ctx, plan)
	}
	return a.subscribe(plan)
}

func (a *Adapter) read(ctx context.Context, plan *adapter.FeedPlan) (core.Cursor, error) {
	a.mu.Lock()
	rows := append([]map[string]any(nil), a.tables[plan.Key()]...)
	a.mu.Unlock()

	cur := adapter.NewChanCursor(len(rows), nil)
	for _, row := range rows {
		_, ok, err := plan.Filter.Initial(row)
		if err != nil {
			a.logger.Warn("predicate failed", slog.String("table", plan.Key()), slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		msg, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		if err := cur.Push(ctx, msg); err != nil {
			return nil, err
		}
	}
	cur.Finish()
	return cur, nil
}

func (a *Adapter) subscribe(plan *adapter.FeedPlan) (core.Cursor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub := &subscription{plan: plan}
	sub.cursor = adapter.NewChanCursor(plan.QueueSize(), func() { a.unsubscribe(plan.Key(), sub) })

	var initial [][]byte
	if plan.Option("include_states") {
		initial = append(initial, []byte(`{"state":"initializing"}`))
	}
	if plan.Option("include_initial") {
		for _, row := range a.tables[plan.Key()] {
			doc, ok, err := plan.Filter.Initial(row)
			if err != nil || !ok {
				continue
			}
			msg, err := json.Marshal(doc)
			if err != nil {
				return nil, err
			}
			initial = append(initial, msg)
		}
	}
	if plan.Option("include_states") {
		initial = append(initial, []byte(`{"state":"ready"}`))
	}
	for _, msg := range initial {
		if !sub.cursor.Offer(msg) {
			return nil, core.NewServerError("run", "changefeed queue overflow while sending initial values")
		}
	}

	if a.subs[plan.Key()] == nil {
		a.subs[plan.Key()] = make(map[*subscription]struct{})
	}
	a.subs[plan.Key()][sub] = struct{}{}
	a.logger.Debug("feed opened", slog.String("table", plan.Key()))
	return sub.cursor, nil
}

func (a *Adapter) unsubscribe(key string, sub *subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if set, ok := a.subs[key]; ok {
		delete(set, sub)
	}
	a.logger.Debug("feed closed", slog.String("table", key))
}

// Close ends every open feed and rejects further queries.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for _, set := range a.subs {
		for sub := range set {
			sub.cursor.Finish()
		}
	}
	a.subs = make(map[string]map[*subscription]struct{})
	return nil
}

// Queries returns every wire query run so far.
func (a *Adapter) Queries() []core.WireQuery {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.WireQuery(nil), a.queries...)
}

// Subscribers returns the number of open feeds on table.
func (a *Adapter) Subscribers(table string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs[a.key(table)])
}
