package rethinkdb

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/internal/testutil"
	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/query"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

const (
	clientNonce = "rOprNGfwEbeRWgbNEkqO"
	serverFirst = "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	clientProof = "p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ="
	serverFinal = "v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="
)

type frame struct {
	token uint64
	body  string
}

// fakeServer accepts one connection, authenticates it with the RFC 7677
// credentials and answers queries from a script.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	received []frame
	conn     net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{t: t, ln: ln}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeServer) frames() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame(nil), s.received...)
}

func (s *fakeServer) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *fakeServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	br := bufio.NewReader(conn)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil || binary.LittleEndian.Uint32(magic[:]) != magicV1_0 {
		return
	}
	_, _ = conn.Write([]byte(`{"success":true,"min_protocol_version":0,"max_protocol_version":0,"server_version":"2.4.4"}` + "\x00"))

	var first authRequest
	if err := readHandshake(br, &first); err != nil || first.Authentication != "n,,n=user,r="+clientNonce {
		return
	}
	_ = writeHandshake(conn, authResponse{Success: true, Authentication: serverFirst})

	var final authRequest
	if err := readHandshake(br, &final); err != nil {
		return
	}
	if !strings.HasSuffix(final.Authentication, ","+clientProof) {
		_ = writeHandshake(conn, authResponse{Error: "Wrong password", ErrorCode: 12})
		return
	}
	_ = writeHandshake(conn, authResponse{Success: true, Authentication: serverFinal})

	continues := make(map[uint64]int)
	for {
		token, body, err := readFrame(br)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, frame{token, string(body)})
		s.mu.Unlock()

		var reply []byte
		switch {
		case string(body) == "[3]":
			reply, _ = wire.EncodeResponse(wire.SuccessSequence, nil)
		case string(body) == "[2]":
			continues[token]++
			if continues[token] > 1 {
				continue // feed idles until stopped
			}
			reply, _ = wire.EncodeResponse(wire.SuccessPartial,
				[]json.RawMessage{json.RawMessage(`{"old_val":{"id":1},"new_val":null}`)}, wire.NoteSequenceFeed)
		case strings.Contains(string(body), `"missing"`):
			reply, _ = json.Marshal(map[string]any{"t": 18, "r": []string{"Table `test.missing` does not exist."}, "e": 4100000})
		case strings.HasPrefix(string(body), "[1,[152,"):
			reply, _ = wire.EncodeResponse(wire.SuccessPartial,
				[]json.RawMessage{json.RawMessage(`{"old_val":null,"new_val":{"id":1}}`)}, wire.NoteSequenceFeed)
		default:
			reply, _ = wire.EncodeResponse(wire.SuccessSequence,
				[]json.RawMessage{json.RawMessage(`{"id":1}`), json.RawMessage(`{"id":2}`)})
		}
		if err := writeFrame(conn, token, reply); err != nil {
			return
		}
	}
}

func connect(t *testing.T, s *fakeServer, password string) (*Adapter, error) {
	t.Helper()
	a := New(testutil.NewTestLogger(t))
	a.nonce = func() string { return clientNonce }
	err := a.Connect(context.Background(), adapter.Config{
		Host:     "127.0.0.1",
		Port:     s.port(),
		Username: "user",
		Password: password,
		Timeout:  5 * time.Second,
	})
	if err == nil {
		t.Cleanup(func() { _ = a.Close() })
	}
	return a, err
}

func mustQuery(t *testing.T, q query.Term) core.WireQuery {
	t.Helper()
	node, err := q.Build()
	require.NoError(t, err)
	return wire.MustSerialize(node)
}

func TestAdapter_FeedContinueAndStop(t *testing.T) {
	s := newFakeServer(t)
	a, err := connect(t, s, "pencil")
	require.NoError(t, err)

	ctx := context.Background()
	cur, err := a.Run(ctx, mustQuery(t, query.Table("test").Changes()))
	require.NoError(t, err)

	msg, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"old_val":null,"new_val":{"id":1}}`, string(msg))

	msg, err = cur.Next(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"old_val":{"id":1},"new_val":null}`, string(msg))

	blocked := make(chan error, 1)
	go func() {
		_, err := cur.Next(ctx)
		blocked <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}

	require.Eventually(t, func() bool {
		fs := s.frames()
		return len(fs) > 0 && fs[len(fs)-1].body == "[3]"
	}, time.Second, 5*time.Millisecond)

	var bodies []string
	for _, f := range s.frames() {
		assert.Equal(t, uint64(1), f.token)
		bodies = append(bodies, f.body)
	}
	assert.Equal(t, []string{`[1,[152,[[15,["test"]]]],{}]`, "[2]", "[2]", "[3]"}, bodies)
}

func TestAdapter_SequenceRead(t *testing.T) {
	s := newFakeServer(t)
	a, err := connect(t, s, "pencil")
	require.NoError(t, err)

	ctx := context.Background()
	cur, err := a.Run(ctx, mustQuery(t, query.Table("test")))
	require.NoError(t, err)

	var ids []string
	for {
		msg, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		ids = append(ids, string(msg))
	}
	assert.Equal(t, []string{`{"id":1}`, `{"id":2}`}, ids)
	require.NoError(t, cur.Close())

	assert.Len(t, s.frames(), 1, "a finished query is not stopped")
}

func TestAdapter_ServerErrorFromRun(t *testing.T) {
	s := newFakeServer(t)
	a, err := connect(t, s, "pencil")
	require.NoError(t, err)

	_, err = a.Run(context.Background(), mustQuery(t, query.Table("missing").Changes()))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrServer)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestAdapter_ConnectionLossFailsCursor(t *testing.T) {
	s := newFakeServer(t)
	a, err := connect(t, s, "pencil")
	require.NoError(t, err)

	ctx := context.Background()
	cur, err := a.Run(ctx, mustQuery(t, query.Table("test").Changes()))
	require.NoError(t, err)
	_, err = cur.Next(ctx)
	require.NoError(t, err)
	_, err = cur.Next(ctx)
	require.NoError(t, err)

	s.drop()
	_, err = cur.Next(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.NotErrorIs(t, err, io.EOF, "a peer close must not read as the end of the feed")
}

func TestAdapter_RunAfterConnectionLoss(t *testing.T) {
	s := newFakeServer(t)
	a, err := connect(t, s, "pencil")
	require.NoError(t, err)

	_, err = a.Run(context.Background(), mustQuery(t, query.Table("test").Changes()))
	require.NoError(t, err)

	s.drop()
	select {
	case <-a.readDone:
	case <-time.After(time.Second):
		t.Fatal("read loop did not stop after the peer closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	_, err = a.Run(ctx, mustQuery(t, query.Table("test").Changes()))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "Run must fail fast on a dead connection")
}

func TestAdapter_WrongPassword(t *testing.T) {
	s := newFakeServer(t)
	_, err := connect(t, s, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrServer)
	assert.Contains(t, err.Error(), "Wrong password")
}

func TestAdapter_RunBeforeConnect(t *testing.T) {
	a := New(nil)
	_, err := a.Run(context.Background(), wire.ContinueQuery())
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.NoError(t, a.Close())
}

func TestFrame_RoundTrip(t *testing.T) {
	pr, pw := net.Pipe()
	defer pr.Close()
	go func() {
		_ = writeFrame(pw, 7, []byte(`[2]`))
		_ = pw.Close()
	}()

	token, body, err := readFrame(pr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), token)
	assert.Equal(t, "[2]", string(body))
}
