package decode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// State is the lifecycle position of a Stream.
type State int32

// Stream states. Open moves to Ended or Failed; both are terminal.
const (
	StateOpen State = iota
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Stream decodes the responses of one cursor into documents.
type Stream[T any] struct {
	cursor  core.Cursor
	decoder *Decoder[T]
	logger  *slog.Logger

	mu    sync.Mutex
	state atomic.Int32
	err   error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	expected   atomic.Int64
	unexpected atomic.Int64
}

// NewStream wraps cursor. A nil decoder uses New[T]() defaults.
func NewStream[T any](cursor core.Cursor, decoder *Decoder[T], logger *slog.Logger) *Stream[T] {
	if decoder == nil {
		decoder = MustNew[T]()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stream[T]{
		cursor:  cursor,
		decoder: decoder,
		logger:  logger,
	}
}

// Next blocks until the next document. It returns End once the cursor is
// exhausted or the stream was closed, and an error once the transport fails.
// Both outcomes are sticky: later calls return them again without touching
// the cursor. A pull abandoned through ctx returns ctx.Err() and leaves the
// stream open.
func (s *Stream[T]) Next(ctx context.Context) (core.Document[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch State(s.state.Load()) {
	case StateEnded:
		return core.End[T](), nil
	case StateFailed:
		return core.Document[T]{}, s.err
	}
	if s.closed.Load() {
		s.finish(StateEnded, nil)
		return core.End[T](), nil
	}

	raw, err := s.cursor.Next(ctx)
	if err != nil {
		// A transport error wrapping io.EOF is a dropped connection, not End.
		if err == io.EOF || s.closed.Load() { //nolint:errorlint // cursors end with the bare sentinel
			s.finish(StateEnded, nil)
			return core.End[T](), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return core.Document[T]{}, ctxErr
		}
		s.finish(StateFailed, classify(err))
		return core.Document[T]{}, s.err
	}

	doc := s.decoder.Decode(raw)
	if doc.Kind() == core.DocUnexpected {
		s.unexpected.Add(1)
		s.logger.Debug("unexpected document", "reason", doc.Reason(), "bytes", len(raw))
	} else {
		s.expected.Add(1)
	}
	return doc, nil
}

// classify wraps errors that are not already classified as transport
// failures.
func classify(err error) error {
	var cerr *core.Error
	if errors.As(err, &cerr) {
		return err
	}
	return core.NewTransportError("next", err)
}

func (s *Stream[T]) finish(state State, err error) {
	s.err = err
	s.state.Store(int32(state))
	if err != nil {
		s.logger.Debug("stream failed", "error", err)
	} else {
		s.logger.Debug("stream ended",
			"expected", s.expected.Load(),
			"unexpected", s.unexpected.Load())
	}
}

// State reports the current lifecycle state.
func (s *Stream[T]) State() State { return State(s.state.Load()) }

// Err returns the transport failure once the stream has failed.
func (s *Stream[T]) Err() error {
	if s.State() != StateFailed {
		return nil
	}
	return s.err
}

// Counts returns how many Expected and Unexpected documents were produced.
func (s *Stream[T]) Counts() (expected, unexpected int64) {
	return s.expected.Load(), s.unexpected.Load()
}

// Close releases the cursor. It is safe to call concurrently with a blocked
// Next, which then returns End. Only the first call reaches the cursor.
func (s *Stream[T]) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.cursor.Close()
	})
	return s.closeErr
}
