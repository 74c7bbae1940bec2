package memory

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/changefeed/internal/eval"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Insert appends a row and publishes it as an add.
func (a *Adapter) Insert(table string, row map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.key(table)
	a.tables[key] = append(a.tables[key], row)
	return a.publishLocked(key, nil, row)
}

// Replace swaps the row whose "id" equals id and publishes the change.
func (a *Adapter) Replace(table string, id any, row map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.key(table)
	i := a.indexLocked(key, id)
	if i < 0 {
		return fmt.Errorf("no row with id %v in %s", id, key)
	}
	old := a.tables[key][i]
	a.tables[key][i] = row
	return a.publishLocked(key, old, row)
}

// Delete removes the row whose "id" equals id and publishes it as a remove.
func (a *Adapter) Delete(table string, id any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.key(table)
	i := a.indexLocked(key, id)
	if i < 0 {
		return fmt.Errorf("no row with id %v in %s", id, key)
	}
	old := a.tables[key][i]
	a.tables[key] = append(a.tables[key][:i], a.tables[key][i+1:]...)
	return a.publishLocked(key, old, nil)
}

// Inject sends raw bytes to every feed on table, bypassing filtering.
// Tests use it to simulate malformed server documents.
func (a *Adapter) Inject(table string, raw []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for sub := range a.subs[a.key(table)] {
		if !sub.cursor.Offer(append([]byte(nil), raw...)) {
			a.logger.Warn("feed queue full, dropping injected message", slog.String("table", a.key(table)))
		}
	}
}

// EndFeeds closes every feed on table cleanly, as a server does when the
// table is dropped.
func (a *Adapter) EndFeeds(table string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.key(table)
	for sub := range a.subs[key] {
		a.endLocked(key, sub, nil)
	}
}

// FailFeeds ends every feed on table with err.
func (a *Adapter) FailFeeds(table string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.key(table)
	for sub := range a.subs[key] {
		a.endLocked(key, sub, err)
	}
}

// endLocked finishes sub's cursor and drops the subscription, so later
// writes are never queued behind the end of the feed.
func (a *Adapter) endLocked(key string, sub *subscription, err error) {
	if err != nil {
		sub.cursor.Fail(err)
	} else {
		sub.cursor.Finish()
	}
	delete(a.subs[key], sub)
}

func (a *Adapter) indexLocked(key string, id any) int {
	for i, row := range a.tables[key] {
		if eval.Compare(row["id"], id) == 0 {
			return i
		}
	}
	return -1
}

func (a *Adapter) publishLocked(key string, oldVal, newVal map[string]any) error {
	var oldAny, newAny any
	if oldVal != nil {
		oldAny = oldVal
	}
	if newVal != nil {
		newAny = newVal
	}

	for sub := range a.subs[key] {
		doc, ok, err := sub.plan.Filter.Apply(oldAny, newAny)
		if err != nil {
			a.logger.Warn("predicate failed", slog.String("table", key), slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		msg, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode change: %w", err)
		}
		if !sub.cursor.Offer(msg) {
			a.endLocked(key, sub, core.NewServerError("changes",
				fmt.Sprintf("changefeed queue size %d exceeded", sub.plan.QueueSize())))
		}
	}
	return nil
}
