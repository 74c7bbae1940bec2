package adapter

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// stubAdapter records lifecycle calls.
type stubAdapter struct {
	connectErr error
	connected  bool
	closed     bool
}

func (s *stubAdapter) Connect(context.Context, Config) error {
	s.connected = s.connectErr == nil
	return s.connectErr
}

func (s *stubAdapter) Run(context.Context, core.WireQuery) (core.Cursor, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAdapter) Close() error {
	s.closed = true
	return nil
}

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{
		Type:      "fake_db",
		Available: []string{"memory", "rethinkdb"},
	}

	msg := err.Error()
	assert.Contains(t, msg, `"fake_db"`)
	assert.Contains(t, msg, "[memory rethinkdb]")
	assert.Contains(t, msg, "changefeed.yaml")
}

func TestRegister(t *testing.T) {
	Register(Info{Name: "Stub_Register", Description: "stub", Network: true},
		func(_ *slog.Logger) Adapter { return &stubAdapter{} })

	info, factory, ok := Lookup("STUB_REGISTER")
	require.True(t, ok, "lookup is case-insensitive")
	require.NotNil(t, factory)
	assert.Equal(t, Info{Name: "stub_register", Description: "stub", Network: true}, info)
	assert.True(t, IsRegistered("stub_register"))
	assert.Contains(t, ListAdapters(), "stub_register")
}

func TestRegister_Panics(t *testing.T) {
	Register(Info{Name: "stub_twice"}, func(_ *slog.Logger) Adapter { return &stubAdapter{} })

	tests := []struct {
		name    string
		info    Info
		factory Factory
	}{
		{"duplicate name", Info{Name: "stub_twice"}, func(_ *slog.Logger) Adapter { return &stubAdapter{} }},
		{"empty name", Info{}, func(_ *slog.Logger) Adapter { return &stubAdapter{} }},
		{"nil factory", Info{Name: "stub_nil"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { Register(tt.info, tt.factory) })
		})
	}
}

func TestTransports_Sorted(t *testing.T) {
	Register(Info{Name: "stub_b"}, func(_ *slog.Logger) Adapter { return &stubAdapter{} })
	Register(Info{Name: "stub_a"}, func(_ *slog.Logger) Adapter { return &stubAdapter{} })

	names := ListAdapters()
	assert.IsIncreasing(t, names)
	assert.Len(t, Transports(), len(names))
}

func TestNewAdapter_EmptyType(t *testing.T) {
	_, err := NewAdapter(Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, "adapter type not specified", err.Error())
}

func TestOpen(t *testing.T) {
	var last *stubAdapter
	Register(Info{Name: "stub_open"}, func(_ *slog.Logger) Adapter {
		last = &stubAdapter{}
		return last
	})
	failing := &stubAdapter{connectErr: errors.New("refused")}
	Register(Info{Name: "stub_refused"}, func(_ *slog.Logger) Adapter { return failing })

	t.Run("connects", func(t *testing.T) {
		adp, err := Open(context.Background(), Config{Type: "stub_open"}, nil)
		require.NoError(t, err)
		assert.Same(t, last, adp)
		assert.True(t, last.connected)
		assert.False(t, last.closed)
	})

	t.Run("closes on connect failure", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Type: "stub_refused"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to stub_refused: refused")
		assert.True(t, failing.closed)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Type: "stub_missing"}, nil)
		var unknown *UnknownAdapterError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "stub_missing", unknown.Type)
	})
}
