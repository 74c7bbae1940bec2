package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// notification is the payload published by the change trigger.
type notification struct {
	OldVal any `json:"old_val"`
	NewVal any `json:"new_val"`
}

// feed pumps notifications of one LISTEN connection into a cursor.
type feed struct {
	a      *Adapter
	plan   *adapter.FeedPlan
	l      listener
	cursor *adapter.ChanCursor

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func (a *Adapter) subscribe(ctx context.Context, schema string, plan *adapter.FeedPlan) (core.Cursor, error) {
	l, err := a.dial(ctx)
	if err != nil {
		return nil, core.NewTransportError("listen", err)
	}
	channel := channelFor(schema, plan.Table)
	if err := l.Listen(ctx, channel); err != nil {
		_ = l.Close(context.Background())
		return nil, core.NewTransportError("listen", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	f := &feed{a: a, plan: plan, l: l, cancel: cancel, done: make(chan struct{})}
	f.cursor = adapter.NewChanCursor(plan.QueueSize(), f.stop)

	if plan.Option("include_states") {
		f.cursor.Offer([]byte(`{"state":"initializing"}`))
	}
	if plan.Option("include_initial") {
		if err := a.snapshot(ctx, schema, plan, f.cursor, true); err != nil {
			cancel()
			_ = l.Close(context.Background())
			return nil, err
		}
	}
	if plan.Option("include_states") {
		f.cursor.Offer([]byte(`{"state":"ready"}`))
	}

	a.mu.Lock()
	a.feeds[f] = struct{}{}
	a.mu.Unlock()

	a.Logger.Debug("feed opened", slog.String("channel", channel))
	go f.loop(loopCtx)
	return f.cursor, nil
}

func (f *feed) loop(ctx context.Context) {
	defer close(f.done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.l.Close(closeCtx)
	}()

	for {
		n, err := f.l.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.cursor.Finish()
				return
			}
			f.cursor.Fail(core.NewTransportError("listen", err))
			return
		}
		msg, ok, err := f.translate([]byte(n.Payload))
		if err != nil {
			f.a.Logger.Warn("dropping notification", slog.String("channel", n.Channel), slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		if !f.cursor.Offer(msg) {
			f.cursor.Fail(core.NewServerError("changes",
				fmt.Sprintf("changefeed queue size %d exceeded", f.plan.QueueSize())))
			return
		}
	}
}

// translate filters one trigger payload into a change document. A payload
// that is not a notification object is passed through untouched for the
// decoder to classify.
func (f *feed) translate(payload []byte) ([]byte, bool, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return payload, true, nil
	}
	doc, ok, err := f.plan.Filter.Apply(n.OldVal, n.NewVal)
	if err != nil || !ok {
		return nil, false, err
	}
	msg, err := json.Marshal(doc)
	return msg, err == nil, err
}

// stop ends the LISTEN loop. It runs when the consumer closes the cursor
// or the adapter closes.
func (f *feed) stop() {
	f.stopOnce.Do(func() {
		f.cancel()
		<-f.done
		f.a.mu.Lock()
		delete(f.a.feeds, f)
		f.a.mu.Unlock()
		f.a.Logger.Debug("feed closed", slog.String("table", f.plan.Key()))
	})
}
