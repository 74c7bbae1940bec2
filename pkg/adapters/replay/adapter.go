// Package replay serves a journaled session back as if it came from the
// server. It lets a recorded feed, including its malformed documents, be
// decoded again offline.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/changefeed/internal/state"
	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Adapter implements adapter.Adapter over a session journal.
type Adapter struct {
	logger  *slog.Logger
	store   *state.SQLiteStore
	session *state.Session
}

// New creates an unconnected replay adapter.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// Connect opens the journal at cfg.Path and selects the session named by
// cfg.Options["session"], or the latest one.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("replay requires a journal path")
	}
	store := state.NewSQLiteStore()
	if err := store.Open(cfg.Path); err != nil {
		return err
	}

	var (
		sess *state.Session
		err  error
	)
	if id := cfg.Options["session"]; id != "" && id != "latest" {
		sess, err = store.GetSession(ctx, id)
	} else {
		sess, err = store.LatestSession(ctx)
	}
	if err != nil {
		_ = store.Close()
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no session to replay in %s: %w", cfg.Path, err)
		}
		return err
	}

	a.store = store
	a.session = sess
	a.logger.Debug("replaying session", slog.String("session", sess.ID), slog.Int("messages", sess.Messages))
	return nil
}

// Session returns the session being replayed.
func (a *Adapter) Session() *state.Session { return a.session }

// Run replays the session's messages. A query that differs from the
// recorded one is served anyway, with a warning.
func (a *Adapter) Run(ctx context.Context, q core.WireQuery) (core.Cursor, error) {
	if a.session == nil {
		return nil, &core.Error{Kind: core.KindTransport, Code: core.CodeClosed, Op: "run", Msg: "no session loaded"}
	}
	if q.String() != a.session.Query {
		a.logger.Warn("query differs from recorded session",
			slog.String("session", a.session.ID),
			slog.String("recorded", a.session.Query))
	}

	msgs, err := a.store.Messages(ctx, a.session.ID)
	if err != nil {
		return nil, core.NewTransportError("run", err)
	}

	cur := adapter.NewChanCursor(len(msgs), nil)
	for _, m := range msgs {
		cur.Offer(m.Raw)
	}
	if a.session.Status == state.SessionFailed {
		cur.Fail(core.NewTransportError("replay", errors.New(a.session.Error)))
	} else {
		cur.Finish()
	}
	return cur, nil
}

// Close closes the journal.
func (a *Adapter) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	a.session = nil
	return err
}
