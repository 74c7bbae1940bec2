package secret

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestResolve(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: "db", Data: []byte("s3cret")}})
	r := NewResolverWith(NewKeyringStore(ring), env(map[string]string{"PGHOST": "db.internal", "EMPTY": ""}))

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr string
	}{
		{name: "literal", value: "plain", want: "plain"},
		{name: "empty", value: "", want: ""},
		{name: "braced var", value: "${PGHOST}:5432", want: "db.internal:5432"},
		{name: "bare var", value: "$PGHOST", want: "db.internal"},
		{name: "empty var is set", value: "x${EMPTY}y", want: "xy"},
		{name: "missing var", value: "${NOPE}", wantErr: "NOPE is not set"},
		{name: "keyring", value: "keyring:db", want: "s3cret"},
		{name: "keyring missing item", value: "keyring:other", wantErr: "secret not found"},
		{name: "keyring without name", value: "keyring:", wantErr: "no item name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_KeyringOpenedLazily(t *testing.T) {
	opened := 0
	r := &Resolver{
		open: func() (Store, error) {
			opened++
			return nil, errors.New("no keyring backend")
		},
		lookupEnv: env(nil),
	}

	_, err := r.Resolve("literal")
	require.NoError(t, err)
	assert.Equal(t, 0, opened)

	_, err = r.Resolve("keyring:a")
	assert.ErrorContains(t, err, "no keyring backend")
	_, err = r.Resolve("keyring:b")
	assert.Error(t, err)
	assert.Equal(t, 1, opened)
}

func TestKeyringStore_SetGet(t *testing.T) {
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))

	_, err := store.Get("token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set("token", "abc"))
	got, err := store.Get("token")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestMask(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "url with password", input: "postgres://admin:hunter2@db:5432/app", want: "postgres://admin:***@db:5432/app"},
		{name: "url without password", input: "postgres://admin@db/app", want: "postgres://admin@db/app"},
		{name: "key value", input: "host=db user=admin password=hunter2 dbname=app", want: "host=db user=admin password=*** dbname=app"},
		{name: "query parameter", input: "postgres://db/app?password=hunter2&sslmode=disable", want: "postgres://db/app?password=***&sslmode=disable"},
		{name: "nothing to mask", input: "localhost:28015", want: "localhost:28015"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Mask(tt.input))
		})
	}
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", MaskValue(""))
	assert.Equal(t, "***", MaskValue("pencil"))
}
