package core

import (
	"context"
	"time"
)

// WireQuery is a serialized query ready for transmission.
type WireQuery []byte

// String returns the query text.
func (q WireQuery) String() string { return string(q) }

// Conn is a live transport session. The caller owns it; the changefeed
// core only runs queries on it and never reconnects or retries.
type Conn interface {
	// Run submits exactly one query and returns the cursor over its responses.
	Run(ctx context.Context, q WireQuery) (Cursor, error)

	// Close ends the session and releases its resources.
	Close() error
}

// Cursor delivers the response documents of one query in order.
//
// Next blocks until a document arrives and returns io.EOF when the server
// closes the stream. Close may be called concurrently with a blocked Next
// and must unblock it; calling Close more than once is a no-op.
type Cursor interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// AdapterConfig holds configuration for opening a transport.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Timeout  time.Duration
	Options  map[string]string
}
