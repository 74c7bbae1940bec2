package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockConn(t *testing.T) (*SQLConn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &SQLConn{DB: db, Cfg: Config{Type: "postgres"}}, mock
}

func TestSQLConn_NotConnected(t *testing.T) {
	c := &SQLConn{}
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Exec(context.Background(), "SELECT 1"), ErrNotConnected)
	assert.ErrorIs(t, c.ExecTx(context.Background(), "SELECT 1"), ErrNotConnected)
	assert.NoError(t, c.CloseDB())
}

func TestSQLConn_Exec(t *testing.T) {
	c, mock := newMockConn(t)
	mock.ExpectExec("SELECT pg_notify").WithArgs("changefeed_public_users", "{}").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)

	require.NoError(t, c.Exec(context.Background(), "SELECT pg_notify($1, $2)", "changefeed_public_users", "{}"))

	err := c.Exec(context.Background(), "INVALID SQL")
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "failed to execute SQL")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConn_ExecTx(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		c, mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectExec("DROP TRIGGER").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE TRIGGER").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		require.NoError(t, c.ExecTx(context.Background(),
			"DROP TRIGGER IF EXISTS changefeed_users ON public.users",
			"CREATE TRIGGER changefeed_users AFTER INSERT ON public.users"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		c, mock := newMockConn(t)
		mock.ExpectBegin()
		mock.ExpectExec("DROP TRIGGER").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE TRIGGER").WillReturnError(assert.AnError)
		mock.ExpectRollback()

		err := c.ExecTx(context.Background(), "DROP TRIGGER x", "CREATE TRIGGER x")
		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "statement 2 of 2")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLConn_CloseDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	c := &SQLConn{DB: db}
	require.NoError(t, c.CloseDB())
	assert.False(t, c.Connected())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"users", true},
		{"_t1", true},
		{"1users", false},
		{"users; DROP TABLE x", false},
		{"", false},
		{"public.users", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidIdentifier(tt.in), "ValidIdentifier(%q)", tt.in)
	}
}

func TestQualifiedName(t *testing.T) {
	name, err := QualifiedName("audit", "events")
	require.NoError(t, err)
	assert.Equal(t, "audit.events", name)

	_, err = QualifiedName("public", "x; DROP TABLE y")
	assert.ErrorContains(t, err, "invalid table name")
}
