// Package rethinkdb is the network transport: it speaks the V1_0 wire
// protocol to a RethinkDB-compatible server and multiplexes queries over
// one connection by token.
package rethinkdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

// DefaultPort is the client driver port.
const DefaultPort = 28015

// Adapter implements adapter.Adapter over TCP.
type Adapter struct {
	logger *slog.Logger
	nonce  func() string

	conn   net.Conn
	reader *bufio.Reader
	wmu    sync.Mutex // serializes frame writes

	mu       sync.Mutex
	cursors  map[uint64]*cursor
	closed   bool
	closeErr error
	dead     error // set once the read loop has stopped

	nextToken atomic.Uint64
	readDone  chan struct{}
}

// New creates an unconnected adapter.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		logger:  logger,
		nonce:   randomNonce,
		cursors: make(map[uint64]*cursor),
	}
}

// Connect dials cfg.Host:cfg.Port and authenticates as cfg.Username.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	user := cfg.Username
	if user == "" {
		user = "admin"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}

	a.logger.Debug("connecting", slog.String("addr", addr), slog.String("user", user))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return core.NewTransportError("connect", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	version, err := handshake(conn, user, cfg.Password, a.nonce())
	if err != nil {
		_ = conn.Close()
		var cerr *core.Error
		if errors.As(err, &cerr) {
			return err
		}
		return core.NewTransportError("handshake", err)
	}
	_ = conn.SetDeadline(time.Time{})

	a.logger.Info("connected", slog.String("addr", addr), slog.String("server_version", version))
	a.conn = conn
	a.reader = bufio.NewReader(conn)
	a.readDone = make(chan struct{})
	go a.readLoop()
	return nil
}

// Run sends a START query and waits for its first response. Server errors
// in that response are returned here; later ones surface from the cursor.
func (a *Adapter) Run(ctx context.Context, q core.WireQuery) (core.Cursor, error) {
	a.mu.Lock()
	if a.conn == nil || a.closed {
		a.mu.Unlock()
		return nil, &core.Error{Kind: core.KindTransport, Code: core.CodeClosed, Op: "run", Msg: "connection is not open"}
	}
	if a.dead != nil {
		err := a.dead
		a.mu.Unlock()
		return nil, err
	}
	token := a.nextToken.Add(1)
	cur := newCursor(a, token)
	a.cursors[token] = cur
	a.mu.Unlock()

	if err := a.send(token, []byte(q)); err != nil {
		a.forget(token)
		return nil, err
	}
	cur.outstanding = true

	if err := cur.fill(ctx); err != nil {
		_ = cur.Close()
		return nil, err
	}
	if cur.finished.Load() && cur.err != nil {
		return nil, cur.err
	}
	return cur, nil
}

func (a *Adapter) send(token uint64, payload []byte) error {
	a.wmu.Lock()
	defer a.wmu.Unlock()
	if err := writeFrame(a.conn, token, payload); err != nil {
		return core.NewTransportError("write", err)
	}
	return nil
}

func (a *Adapter) forget(token uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cursors, token)
}

// readLoop dispatches responses to cursors until the connection fails.
func (a *Adapter) readLoop() {
	defer close(a.readDone)
	for {
		token, payload, err := readFrame(a.reader)
		if err != nil {
			a.abort(err)
			return
		}
		resp, err := wire.DecodeResponse(payload)
		if err != nil {
			a.abort(err)
			return
		}

		a.mu.Lock()
		cur := a.cursors[token]
		a.mu.Unlock()
		if cur == nil {
			a.logger.Debug("response for unknown token", slog.Uint64("token", token), slog.String("type", resp.Type.String()))
			continue
		}
		cur.deliver(resp)
	}
}

// abort fails every open cursor and marks the connection dead, so later
// queries fail at Run. After Close the cause is reported as a closed
// connection. A peer close mid-session is unexpected: it never reads as a
// clean end of stream.
func (a *Adapter) abort(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	var cause error
	if a.closed {
		cause = &core.Error{Kind: core.KindTransport, Code: core.CodeClosed, Op: "read", Msg: "connection closed"}
	} else {
		var cerr *core.Error
		if errors.As(err, &cerr) {
			cause = err
		} else {
			cause = core.NewTransportError("read", err)
		}
		a.logger.Warn("connection failed", slog.Any("error", err))
	}
	a.dead = cause
	for token, cur := range a.cursors {
		cur.fail(cause)
		delete(a.cursors, token)
	}
}

// Close shuts the connection. Open cursors fail with a closed-connection
// transport error.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed || a.conn == nil {
		a.closed = true
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.closeErr = a.conn.Close()
	a.mu.Unlock()

	<-a.readDone
	if a.closeErr != nil {
		return fmt.Errorf("failed to close connection: %w", a.closeErr)
	}
	return nil
}
