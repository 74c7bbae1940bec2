package state

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// RecordingConn journals every query run through it. Journal write
// failures are logged; they never interrupt the feed.
type RecordingConn struct {
	conn    core.Conn
	store   Store
	adapter string
	logger  *slog.Logger
}

var _ core.Conn = (*RecordingConn)(nil)

// NewRecordingConn wraps conn. adapter names the transport in the journal.
func NewRecordingConn(conn core.Conn, store Store, adapter string, logger *slog.Logger) *RecordingConn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RecordingConn{conn: conn, store: store, adapter: adapter, logger: logger}
}

// Run starts a session, then runs q on the wrapped connection. When the
// session cannot be created the query runs unrecorded.
func (r *RecordingConn) Run(ctx context.Context, q core.WireQuery) (core.Cursor, error) {
	sess, err := r.store.CreateSession(ctx, r.adapter, q.String())
	if err != nil {
		r.logger.Warn("journal unavailable, running unrecorded", slog.Any("error", err))
		return r.conn.Run(ctx, q)
	}
	cur, err := r.conn.Run(ctx, q)
	if err != nil {
		r.complete(sess.ID, err)
		return nil, err
	}
	r.logger.Debug("recording session", slog.String("session", sess.ID))
	return &recordingCursor{Cursor: cur, conn: r, session: sess.ID}, nil
}

// Close closes the wrapped connection.
func (r *RecordingConn) Close() error { return r.conn.Close() }

func (r *RecordingConn) complete(id string, err error) {
	status, msg := SessionCompleted, ""
	if err != nil {
		status, msg = SessionFailed, err.Error()
	}
	if cerr := r.store.CompleteSession(context.Background(), id, status, msg); cerr != nil {
		r.logger.Warn("failed to complete session", slog.String("session", id), slog.Any("error", cerr))
	}
}

type recordingCursor struct {
	core.Cursor
	conn    *RecordingConn
	session string

	mu   sync.Mutex
	seq  int
	done bool
}

func (c *recordingCursor) Next(ctx context.Context) ([]byte, error) {
	msg, err := c.Cursor.Next(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return msg, err
	}
	switch {
	case err == nil:
		c.seq++
		if aerr := c.conn.store.AppendMessage(context.Background(), c.session, c.seq, msg); aerr != nil {
			c.conn.logger.Warn("failed to journal message", slog.String("session", c.session), slog.Any("error", aerr))
		}
	case err == io.EOF: //nolint:errorlint // cursors end with the bare sentinel
		c.done = true
		c.conn.complete(c.session, nil)
	case ctx.Err() != nil:
		// The caller gave up on this pull; the session goes on.
	default:
		c.done = true
		c.conn.complete(c.session, err)
	}
	return msg, err
}

func (c *recordingCursor) Close() error {
	err := c.Cursor.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		c.conn.complete(c.session, nil)
	}
	return err
}
