package eval

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/query"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

func doc(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func predicate(t *testing.T, q query.Term) core.Term {
	t.Helper()
	node, err := query.Table("t").Filter(q).Build()
	require.NoError(t, err)
	return node.(*core.Filter).Predicate
}

func TestMatch(t *testing.T) {
	numberTest := query.Row.HasFields("test").And(query.Row.Field("test").TypeOf().Eq("NUMBER"))

	tests := []struct {
		name string
		pred query.Term
		doc  string
		want bool
	}{
		{"number field", numberTest, `{"test":1}`, true},
		{"string field", numberTest, `{"test":"x"}`, false},
		{"missing field", numberTest, `{"other":1}`, false},
		{"null field", numberTest, `{"test":null}`, false},
		{"missing field in comparison", query.Row.Field("n").Gt(3), `{}`, false},
		{"gt", query.Row.Field("n").Gt(3), `{"n":4}`, true},
		{"le", query.Row.Field("n").Le(3), `{"n":3}`, true},
		{"ne", query.Row.Field("s").Ne("a"), `{"s":"b"}`, true},
		{"or", query.Row.Field("a").Eq(1).Or(query.Row.Field("b").Eq(2)), `{"a":0,"b":2}`, true},
		{"not", query.Row.HasFields("x").Not(), `{"y":1}`, true},
		{"array equality", query.Row.Field("tags").Eq([]any{"a", "b"}), `{"tags":["a","b"]}`, true},
		{"object equality", query.Row.Field("o").Eq(map[string]any{"k": 1}), `{"o":{"k":1}}`, true},
		{"nested field", query.Row.Field("o").Field("k").Eq(1), `{"o":{"k":1}}`, true},
		{"time ptype", query.Row.Field("at").TypeOf().Eq("PTYPE<TIME>"), `{"at":{"$reql_type$":"TIME","epoch_time":1}}`, true},
		{"cross type ordering", query.Row.Field("v").Lt("a"), `{"v":1}`, true},
		{"constant", query.Expr(true), `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(predicate(t, tt.pred), doc(t, tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_FuncPredicate(t *testing.T) {
	node, err := query.Table("t").FilterFunc(func(d query.Term) query.Term {
		return d.Field("n").Ge(10)
	}).Build()
	require.NoError(t, err)
	pred := node.(*core.Filter).Predicate

	ok, err := Match(pred, doc(t, `{"n":10}`))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatch_AfterWireRoundTrip(t *testing.T) {
	node, err := query.Table("test").
		Filter(query.Row.HasFields("test").And(query.Row.Field("test").TypeOf().Eq("NUMBER"))).
		Changes().Build()
	require.NoError(t, err)

	parsed, _, err := wire.Parse(wire.MustSerialize(node))
	require.NoError(t, err)
	f := NewChangeFilter(parsed.(*core.Changes))
	require.Len(t, f.Predicates, 1)

	ok, err := f.match(doc(t, `{"test":5}`))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatch_Errors(t *testing.T) {
	_, err := Match(predicate(t, query.Row.Field("n").Field("x").Eq(1)), doc(t, `{"n":3}`))
	require.Error(t, err)

	_, err = Match(predicate(t, query.Row.Field("n").Not()), doc(t, `{"n":3}`))
	require.Error(t, err)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		l, r any
		want int
	}{
		{1.0, 2.0, -1},
		{2, 2.0, 0},
		{"b", "a", 1},
		{false, true, -1},
		{nil, nil, 0},
		{[]any{1.0}, []any{1.0, 2.0}, -1},
		{[]any{}, true, -1},
		{true, nil, -1},
		{nil, 1.0, -1},
		{1.0, map[string]any{}, -1},
		{map[string]any{}, "s", -1},
		{map[string]any{"a": 1.0}, map[string]any{"a": 2.0}, -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Compare(tt.l, tt.r), "Compare(%v, %v)", tt.l, tt.r)
	}
}

func TestChangeFilter_Apply(t *testing.T) {
	node, err := query.Table("test").
		Filter(query.Row.Field("test").TypeOf().Eq("NUMBER")).
		Changes(core.Options{"include_types": true}).Build()
	require.NoError(t, err)
	f := NewChangeFilter(node.(*core.Changes))

	tests := []struct {
		name     string
		oldVal   string
		newVal   string
		wantOK   bool
		wantType string
		hasOld   bool
		hasNew   bool
	}{
		{"insert matching", `null`, `{"test":1}`, true, "add", false, true},
		{"insert not matching", `null`, `{"test":"x"}`, false, "", false, false},
		{"delete matching", `{"test":1}`, `null`, true, "remove", true, false},
		{"update both match", `{"test":1}`, `{"test":2}`, true, "change", true, true},
		{"update leaves filter", `{"test":1}`, `{"test":"x"}`, true, "remove", true, false},
		{"update enters filter", `{"test":"x"}`, `{"test":1}`, true, "add", false, true},
		{"update outside filter", `{"test":"x"}`, `{"test":"y"}`, false, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok, err := f.Apply(doc(t, tt.oldVal), doc(t, tt.newVal))
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantType, out["type"])
			assert.Equal(t, tt.hasOld, out["old_val"] != nil)
			assert.Equal(t, tt.hasNew, out["new_val"] != nil)
		})
	}
}

func TestChangeFilter_StackedFilters(t *testing.T) {
	node, err := query.Table("t").
		Filter(query.Row.HasFields("a")).
		Filter(query.Row.Field("a").Gt(1)).
		Changes().Build()
	require.NoError(t, err)
	f := NewChangeFilter(node.(*core.Changes))
	require.Len(t, f.Predicates, 2)

	_, ok, err := f.Apply(nil, doc(t, `{"a":1}`))
	require.NoError(t, err)
	assert.False(t, ok)

	out, ok, err := f.Apply(nil, doc(t, `{"a":2}`))
	require.NoError(t, err)
	assert.True(t, ok)
	_, typed := out["type"]
	assert.False(t, typed, "type is only set with include_types")
}

func TestChangeFilter_Initial(t *testing.T) {
	f := ChangeFilter{IncludeTypes: true}
	out, ok, err := f.Initial(doc(t, `{"a":1}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.ResultInitial, out["type"])
}
