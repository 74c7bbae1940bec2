package adapter

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrCursorClosed is returned by Push after the consumer closed the cursor.
var ErrCursorClosed = errors.New("cursor closed")

// ChanCursor is a core.Cursor fed by a producer goroutine. Transports that
// emulate the server push encoded change documents into it.
type ChanCursor struct {
	msgs   chan []byte
	done   chan struct{} // closed by Close
	finish chan struct{} // closed by Finish or Fail

	mu       sync.Mutex
	err      error
	finished bool
	onClose  func()

	closeOnce sync.Once
}

// NewChanCursor creates a cursor buffering up to size undelivered messages.
// onClose, if set, runs once when the consumer closes the cursor.
func NewChanCursor(size int, onClose func()) *ChanCursor {
	return &ChanCursor{
		msgs:    make(chan []byte, size),
		done:    make(chan struct{}),
		finish:  make(chan struct{}),
		onClose: onClose,
	}
}

// Push delivers a message, blocking while the buffer is full.
func (c *ChanCursor) Push(ctx context.Context, msg []byte) error {
	select {
	case c.msgs <- msg:
		return nil
	case <-c.done:
		return ErrCursorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Offer delivers a message without blocking. It reports false when the
// buffer is full, or the cursor is closed or already finished.
func (c *ChanCursor) Offer(msg []byte) bool {
	select {
	case <-c.done:
		return false
	case <-c.finish:
		return false
	default:
	}
	select {
	case c.msgs <- msg:
		return true
	default:
		return false
	}
}

// Finish ends the stream cleanly once buffered messages are consumed.
func (c *ChanCursor) Finish() { c.end(nil) }

// Fail ends the stream with err once buffered messages are consumed.
func (c *ChanCursor) Fail(err error) { c.end(err) }

func (c *ChanCursor) end(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	c.err = err
	close(c.finish)
}

// Done is closed when the consumer closes the cursor.
func (c *ChanCursor) Done() <-chan struct{} { return c.done }

// Next implements core.Cursor.
func (c *ChanCursor) Next(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	default:
	}

	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.finish:
		// Drain what was pushed before Finish.
		select {
		case m := <-c.msgs:
			return m, nil
		default:
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil {
			return nil, c.err
		}
		return nil, io.EOF
	case <-c.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements core.Cursor. It is idempotent.
func (c *ChanCursor) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}
