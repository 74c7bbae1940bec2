// Package changefeed adapts a decoded response stream into a lazily
// consumed sequence of change events.
//
// A Feed yields, in order, one Event per inbound message: a Change for
// documents that decoded, or a DecodeFailure for those that did not. The
// sequence ends with ErrEnd when the server closes the stream, or with the
// transport error, reported exactly once, when the connection fails.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/decode"
)

var (
	// ErrEnd is returned once the feed has terminated.
	ErrEnd = errors.New("changefeed: end of stream")
	// ErrConcurrentPull is returned when a pull overlaps another one.
	ErrConcurrentPull = errors.New("changefeed: concurrent pull")
)

// DecodeFailure marks a message that did not decode. The feed continues.
type DecodeFailure struct {
	Raw    []byte
	Reason error
}

func (f *DecodeFailure) Error() string {
	return fmt.Sprintf("undecodable change (%d bytes): %v", len(f.Raw), f.Reason)
}

func (f *DecodeFailure) Unwrap() error { return f.Reason }

// Event is either a Change or a Failure, never both.
type Event[T any] struct {
	Change  *core.Change[T]
	Failure *DecodeFailure
}

// IsFailure reports whether the event is a decode failure.
func (e Event[T]) IsFailure() bool { return e.Failure != nil }

type result[T any] struct {
	doc core.Document[core.Change[T]]
	err error
}

// Feed is a single-consumer sequence of change events.
type Feed[T any] struct {
	stream *decode.Stream[core.Change[T]]
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	results chan result[T]
	closed  chan struct{}

	busy atomic.Bool

	mu        sync.Mutex // guards started and isClosed
	started   bool
	isClosed  bool
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup

	// finished and terminal are touched only by the puller holding busy.
	finished bool
	terminal error
}

// ToChangeStream wraps a decoded stream. The feed owns the stream from now
// on and closes it on Close.
func ToChangeStream[T any](stream *decode.Stream[core.Change[T]], opts ...Option) *Feed[T] {
	cfg := newConfig(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed[T]{
		stream:  stream,
		logger:  cfg.logger,
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan result[T]),
		closed:  make(chan struct{}),
	}
}

func (f *Feed[T]) start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.isClosed {
		return
	}
	f.started = true
	f.wg.Add(1)
	go f.pump()
}

// pump pulls documents on behalf of the consumer. The hand-off channel is
// unbuffered, so at most one message is read ahead of the consumer.
func (f *Feed[T]) pump() {
	defer f.wg.Done()
	for {
		doc, err := f.stream.Next(f.ctx)
		select {
		case f.results <- result[T]{doc: doc, err: err}:
		case <-f.closed:
			return
		}
		if err != nil || doc.IsEnd() {
			return
		}
	}
}

// Next blocks until the next event. It returns ErrEnd after the stream
// ended or the feed was closed, and the transport error once if the
// connection failed (ErrEnd thereafter). Cancelling ctx abandons this pull
// only; the feed stays usable.
func (f *Feed[T]) Next(ctx context.Context) (Event[T], error) {
	if !f.busy.CompareAndSwap(false, true) {
		return Event[T]{}, ErrConcurrentPull
	}
	defer f.busy.Store(false)

	if f.finished {
		return Event[T]{}, f.terminal
	}
	f.start()

	select {
	case r := <-f.results:
		return f.deliver(r)
	case <-f.closed:
		return f.finish(ErrEnd)
	case <-ctx.Done():
		return Event[T]{}, ctx.Err()
	}
}

// TryNext returns the next event if one is ready, without blocking.
// ok is false when nothing has arrived yet.
func (f *Feed[T]) TryNext() (ev Event[T], ok bool, err error) {
	if !f.busy.CompareAndSwap(false, true) {
		return Event[T]{}, false, ErrConcurrentPull
	}
	defer f.busy.Store(false)

	if f.finished {
		return Event[T]{}, true, f.terminal
	}
	f.start()

	select {
	case r := <-f.results:
		ev, err = f.deliver(r)
		return ev, true, err
	case <-f.closed:
		ev, err = f.finish(ErrEnd)
		return ev, true, err
	default:
		return Event[T]{}, false, nil
	}
}

func (f *Feed[T]) deliver(r result[T]) (Event[T], error) {
	if r.err != nil {
		f.logger.Debug("feed failed", "error", r.err)
		f.finished = true
		f.terminal = ErrEnd
		return Event[T]{}, r.err
	}

	switch r.doc.Kind() {
	case core.DocExpected:
		c, _ := r.doc.Value()
		if c.Action() == core.ActionUnsupported {
			f.logger.Debug("unsupported result type", "type", c.Type())
		}
		return Event[T]{Change: &c}, nil
	case core.DocUnexpected:
		raw, _ := r.doc.Raw()
		return Event[T]{Failure: &DecodeFailure{Raw: raw, Reason: r.doc.Reason()}}, nil
	default:
		return f.finish(ErrEnd)
	}
}

func (f *Feed[T]) finish(err error) (Event[T], error) {
	f.finished = true
	f.terminal = err
	return Event[T]{}, err
}

// Drain consumes the feed until it ends, calling fn for every event.
// It returns nil on a clean end, the transport error on failure, or the
// first error returned by fn.
func (f *Feed[T]) Drain(ctx context.Context, fn func(Event[T]) error) error {
	for {
		ev, err := f.Next(ctx)
		if errors.Is(err, ErrEnd) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// All ranges over the feed. A failure is yielded once as a non-nil error
// and ends the iteration; a clean end stops it without an error.
func (f *Feed[T]) All(ctx context.Context) iter.Seq2[Event[T], error] {
	return func(yield func(Event[T], error) bool) {
		for {
			ev, err := f.Next(ctx)
			if errors.Is(err, ErrEnd) {
				return
			}
			if err != nil {
				yield(Event[T]{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Close releases the transport subscription. It may be called at any
// time, from any goroutine, including while a Next is blocked, and any
// number of times; the underlying stream is closed exactly once.
func (f *Feed[T]) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.isClosed = true
		close(f.closed)
		f.mu.Unlock()

		f.closeErr = f.stream.Close()
		f.cancel()
		f.wg.Wait()
		f.logger.Debug("feed closed")
	})
	return f.closeErr
}
