package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/internal/cli/config"
	"github.com/leapstack-labs/changefeed/internal/cli/testutil"
	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/schema"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

const scenarioWire = `[1,[152,[[39,[[15,["test"]],[69,[[2,[1]],[67,[[32,[[13,[]],"test"]],[17,[[52,[[31,[[13,[]],"test"]]]],"NUMBER"]]]]]]]]],{"include_types":true}],{}]`

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"10", int64(10)},
		{"-3", int64(-3)},
		{"1.5", 1.5},
		{"soft", "soft"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestQueryOptions_Build(t *testing.T) {
	tests := []struct {
		name string
		opts QueryOptions
		want string
	}{
		{
			name: "filtered change query",
			opts: QueryOptions{
				Table:     "test",
				HasFields: []string{"test"},
				TypeOf:    []string{"test=NUMBER"},
				Changes:   []string{"include_types=true"},
			},
			want: scenarioWire,
		},
		{
			name: "plain changes",
			opts: QueryOptions{Table: "users"},
			want: `[1,[152,[[15,["users"]]]],{}]`,
		},
		{
			name: "qualified table",
			opts: QueryOptions{DB: "app", Table: "users"},
			want: `[1,[152,[[15,[[14,["app"]],"users"]]]],{}]`,
		},
		{
			name: "read",
			opts: QueryOptions{Table: "users", Read: true},
			want: `[1,[15,["users"]],{}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			built, err := tt.opts.Build(nil, nil)
			require.NoError(t, err)
			node, err := built.Term.Build()
			require.NoError(t, err)
			q, err := wire.Serialize(node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
		})
	}
}

func TestQueryOptions_RunOptions(t *testing.T) {
	opts := QueryOptions{Table: "t", RunOptions: []string{"durability=soft", "profile=true"}}

	built, err := opts.Build(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, core.Options{"durability": "soft", "profile": true}, built.RunOptions)
}

func TestQueryOptions_Schema(t *testing.T) {
	reg, err := schema.Parse([]byte("tables:\n  app.users:\n    fields:\n      age: NUMBER\n"))
	require.NoError(t, err)

	t.Run("declared table is bound", func(t *testing.T) {
		opts := QueryOptions{DB: "app", Table: "users", TypeOf: []string{"age=NUMBER"}}
		built, err := opts.Build(reg, nil)
		require.NoError(t, err)
		require.NotNil(t, built.Schema)
		assert.Equal(t, "app.users", built.Schema.Name)
	})

	t.Run("undeclared table is unchecked", func(t *testing.T) {
		opts := QueryOptions{Table: "events", HasFields: []string{"anything"}}
		built, err := opts.Build(reg, nil)
		require.NoError(t, err)
		assert.Nil(t, built.Schema)
	})
}

func TestQueryOptions_Script(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.star")
	src := `query = r.table("test").filter(lambda d: d("age").ge(min_age)).changes()
options = {"durability": "soft", "profile": False}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	opts := QueryOptions{Script: path, Vars: []string{"min_age=18"}, RunOptions: []string{"profile=true"}}
	built, err := opts.Build(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, core.Options{"durability": "soft", "profile": true}, built.RunOptions)
	node, err := built.Term.Build()
	require.NoError(t, err)
	_, ok := node.(*core.Changes)
	assert.True(t, ok)
}

func TestQueryOptions_ScriptVarErrors(t *testing.T) {
	opts := QueryOptions{Script: "missing.star", Vars: []string{"novalue"}}
	_, err := opts.Build(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")

	opts = QueryOptions{Script: filepath.Join(t.TempDir(), "missing.star")}
	_, err = opts.Build(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read script")
}

func TestRender_WireOnly(t *testing.T) {
	setupProject(t, "target:\n  type: memory\n", nil)

	out, _, err := runCommand(t, NewRenderCommand(),
		"--table", "test",
		"--has-field", "test",
		"--type-of", "test=NUMBER",
		"--option", "include_types=true",
		"--wire-only")
	require.NoError(t, err)
	assert.Equal(t, scenarioWire+"\n", out)
}

func TestRender_Markdown(t *testing.T) {
	setupProject(t, "output: markdown\n", nil)

	out, _, err := runCommand(t, NewRenderCommand(), "--table", "test", "--has-field", "test")
	require.NoError(t, err)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "# Query")
	assert.Contains(t, out, "## Wire")
	assert.Contains(t, out, `[1,[152,[[39,`)
}

func TestRender_JSON(t *testing.T) {
	setupProject(t, "output: json\n", nil)

	out, _, err := runCommand(t, NewRenderCommand(), "--table", "test", "--run-option", "durability=soft")
	require.NoError(t, err)
	assert.Contains(t, out, `"wire": [`)
	assert.Contains(t, out, `"durability": "soft"`)
}

func TestRender_SchemaRejectsUnknownField(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	_, err := config.LoadConfig(filepath.Join(dir, "changefeed.yaml"), nil)
	require.NoError(t, err)

	_, _, err = runCommand(t, NewRenderCommand(), "--table", "test", "--has-field", "tset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tset")
}

func TestWatch_SchemaReportsMismatch(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	_, err := config.LoadConfig(filepath.Join(dir, "changefeed.yaml"), nil)
	require.NoError(t, err)

	out, _, err := runCommand(t, NewWatchCommand(),
		"--table", "test",
		"--option", "include_initial=true",
		"--option", "include_types=true",
		"-n", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "initial action received", lines[0])
	assert.Contains(t, out, "Got unexpected change:")
	assert.Contains(t, out, `"five"`)
}
