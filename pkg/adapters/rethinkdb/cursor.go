package rethinkdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

// cursor walks the batches of one query token. Next is called by a single
// consumer; Close and the connection's read loop may run concurrently.
type cursor struct {
	a     *Adapter
	token uint64

	responses chan *wire.Response
	aborted   chan struct{}
	done      chan struct{}

	abortMu  sync.Mutex
	abortErr error

	// consumer state
	buf         []json.RawMessage
	outstanding bool
	err         error

	finished  atomic.Bool // no further batches will arrive
	closeOnce sync.Once
	abortOnce sync.Once
}

func newCursor(a *Adapter, token uint64) *cursor {
	return &cursor{
		a:         a,
		token:     token,
		responses: make(chan *wire.Response, 1),
		aborted:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// deliver hands a response to the consumer. At most one request per token
// is in flight, so the buffered slot is free unless the cursor was closed.
func (c *cursor) deliver(r *wire.Response) {
	select {
	case c.responses <- r:
	case <-c.done:
	}
}

func (c *cursor) fail(err error) {
	c.abortOnce.Do(func() {
		c.abortMu.Lock()
		c.abortErr = err
		c.abortMu.Unlock()
		close(c.aborted)
	})
}

// Next implements core.Cursor.
func (c *cursor) Next(ctx context.Context) ([]byte, error) {
	for {
		if len(c.buf) > 0 {
			msg := c.buf[0]
			c.buf = c.buf[1:]
			return msg, nil
		}
		if c.finished.Load() {
			if c.err != nil {
				return nil, c.err
			}
			return nil, io.EOF
		}
		if err := c.fill(ctx); err != nil {
			return nil, err
		}
	}
}

// fill requests and applies the next batch.
func (c *cursor) fill(ctx context.Context) error {
	if !c.outstanding {
		if err := c.a.send(c.token, []byte(wire.ContinueQuery())); err != nil {
			return err
		}
		c.outstanding = true
	}

	select {
	case r := <-c.responses:
		c.outstanding = false
		c.apply(r)
		return nil
	case <-c.aborted:
		c.abortMu.Lock()
		defer c.abortMu.Unlock()
		return c.abortErr
	case <-c.done:
		return io.EOF
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *cursor) apply(r *wire.Response) {
	switch {
	case r.Type == wire.SuccessPartial:
		c.buf = append(c.buf, r.Results...)
	case r.Type == wire.SuccessSequence:
		c.buf = append(c.buf, r.Results...)
		c.end(nil)
	case r.Type == wire.SuccessAtom:
		c.buf = append(c.buf, unwrapAtom(r.Results)...)
		c.end(nil)
	case r.Type.IsError():
		c.end(core.NewServerError("query", fmt.Sprintf("%s: %s", r.Type, r.ErrorMessage())))
	default:
		c.end(core.NewServerError("query", fmt.Sprintf("unexpected response %s", r.Type)))
	}
}

// unwrapAtom spreads an atom holding an array into its elements, the way
// drivers present a fully materialized sequence.
func unwrapAtom(results []json.RawMessage) []json.RawMessage {
	if len(results) != 1 {
		return results
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(results[0], &elems); err != nil {
		return results
	}
	return elems
}

func (c *cursor) end(err error) {
	c.err = err
	c.finished.Store(true)
	c.a.forget(c.token)
}

// Close implements core.Cursor. A query still streaming is stopped on the
// server.
func (c *cursor) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.finished.Load() {
			return
		}
		c.a.forget(c.token)
		if sendErr := c.a.send(c.token, []byte(wire.StopQuery())); sendErr != nil {
			c.a.logger.Debug("stop failed", slog.Uint64("token", c.token), slog.Any("error", sendErr))
		}
	})
	return nil
}
