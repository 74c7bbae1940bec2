// Package state keeps a journal of change-feed sessions in SQLite.
// Every raw message a transport delivers is appended in order, so a
// session can be inspected later or replayed through the decoder.
package state

import (
	"context"
	"time"
)

// SessionStatus is the lifecycle position of a recorded session.
type SessionStatus string

// SessionStatus constants.
const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session is one recorded query execution.
type Session struct {
	ID          string
	Adapter     string
	Query       string
	Status      SessionStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	// Messages is filled by ListSessions and GetSession.
	Messages int
}

// Message is one raw server document of a session.
type Message struct {
	SessionID  string
	Seq        int
	Raw        []byte
	ReceivedAt time.Time
}

// Store is the journal contract.
type Store interface {
	CreateSession(ctx context.Context, adapter, query string) (*Session, error)
	AppendMessage(ctx context.Context, sessionID string, seq int, raw []byte) error
	CompleteSession(ctx context.Context, id string, status SessionStatus, errMsg string) error
	GetSession(ctx context.Context, id string) (*Session, error)
	LatestSession(ctx context.Context) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}
