package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/decode"
	"github.com/leapstack-labs/changefeed/pkg/query"
)

const registryYAML = `
tables:
  test:
    fields:
      id: STRING
      test: NUMBER
      at: PTYPE<TIME>
      extra: ANY
    required: [id]
  audit.events:
    fields:
      kind: STRING
    strict: true
`

func loadRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o644))
	r, err := Load(path)
	require.NoError(t, err)
	return r
}

func TestLoad(t *testing.T) {
	r := loadRegistry(t)
	assert.Equal(t, []string{"audit.events", "test"}, r.Names())

	tbl, ok := r.Table("test")
	require.True(t, ok)
	assert.Equal(t, "test", tbl.Name)
	assert.Equal(t, []string{"at", "extra", "id", "test"}, tbl.FieldNames())

	ft, ok := tbl.ResolveField("test")
	require.True(t, ok)
	assert.Equal(t, core.TypeNumber, ft)
	_, ok = tbl.ResolveField("missing")
	assert.False(t, ok)
}

func TestRegistry_Table(t *testing.T) {
	r := loadRegistry(t)
	tests := []struct {
		lookup string
		want   string
	}{
		{"test", "test"},
		{"app.test", "test"},
		{"events", "audit.events"},
		{"audit.events", "audit.events"},
		{"nothing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.lookup, func(t *testing.T) {
			tbl, ok := r.Table(tt.lookup)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, tbl.Name)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"bad type", "tables:\n  t:\n    fields:\n      a: DECIMAL\n", "unknown type"},
		{"undeclared required", "tables:\n  t:\n    fields:\n      a: STRING\n    required: [b]\n", "not declared"},
		{"bad yaml", "tables: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestTable_BuildTimeChecks(t *testing.T) {
	tbl, _ := loadRegistry(t).Table("test")

	_, err := query.TableWithSchema("test", tbl).Filter(query.Row.Field("nope").Eq(1)).Build()
	assert.ErrorIs(t, err, core.ErrBuild)

	_, err = query.TableWithSchema("test", tbl).Filter(query.Row.Field("test").TypeOf().Eq("STRING")).Build()
	assert.ErrorIs(t, err, core.ErrBuild)

	_, err = query.TableWithSchema("test", tbl).
		Filter(query.Row.HasFields("test").And(query.Row.Field("test").TypeOf().Eq("NUMBER"))).
		Changes().Build()
	assert.NoError(t, err)
}

type row struct {
	ID   string  `json:"id"`
	Test float64 `json:"test"`
}

func TestTable_DecodeOption(t *testing.T) {
	tbl, _ := loadRegistry(t).Table("test")
	opt, err := tbl.DecodeOption()
	require.NoError(t, err)
	dec, err := decode.NewChangeDecoder[row](opt)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		kind core.DocumentKind
	}{
		{"valid add", `{"old_val":null,"new_val":{"id":"a","test":1}}`, core.DocExpected},
		{"time field", `{"old_val":null,"new_val":{"id":"a","at":{"$reql_type$":"TIME","epoch_time":0}}}`, core.DocExpected},
		{"wrong field type", `{"old_val":null,"new_val":{"id":"a","test":"x"}}`, core.DocUnexpected},
		{"missing required", `{"old_val":{"test":1},"new_val":null}`, core.DocUnexpected},
		{"bad time", `{"old_val":null,"new_val":{"id":"a","at":"yesterday"}}`, core.DocUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, dec.Decode([]byte(tt.raw)).Kind())
		})
	}
}

func TestTable_StrictSchema(t *testing.T) {
	tbl, _ := loadRegistry(t).Table("audit.events")
	opt, err := tbl.DecodeOption()
	require.NoError(t, err)
	dec, err := decode.NewChangeDecoder[map[string]any](opt)
	require.NoError(t, err)

	assert.Equal(t, core.DocExpected, dec.Decode([]byte(`{"new_val":{"kind":"login"}}`)).Kind())
	assert.Equal(t, core.DocUnexpected, dec.Decode([]byte(`{"new_val":{"kind":"login","who":"x"}}`)).Kind())
}
