package wire

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/query"
)

type fieldMap map[string]core.FieldType

func (m fieldMap) ResolveField(name string) (core.FieldType, bool) {
	t, ok := m[name]
	return t, ok
}

func numberFeed() query.Term {
	return query.Table("test").
		Filter(query.Row.HasFields("test").And(query.Row.Field("test").TypeOf().Eq("NUMBER"))).
		Changes(core.Options{"include_types": true})
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		name string
		term query.Term
		opts []Option
		want string
	}{
		{
			name: "table",
			term: query.Table("test"),
			want: `[1,[15,["test"]],{}]`,
		},
		{
			name: "qualified table changes",
			term: query.DB("app").Table("users").Changes(),
			want: `[1,[152,[[15,[[14,["app"]],"users"]]]],{}]`,
		},
		{
			name: "implicit row filter",
			term: numberFeed(),
			want: `[1,[152,[[39,[[15,["test"]],[69,[[2,[1]],[67,[[32,[[13,[]],"test"]],[17,[[52,[[31,[[13,[]],"test"]]]],"NUMBER"]]]]]]]]],{"include_types":true}],{}]`,
		},
		{
			name: "function filter",
			term: query.Table("t").FilterFunc(func(doc query.Term) query.Term { return doc.Field("n").Ge(3) }),
			want: `[1,[39,[[15,["t"]],[69,[[2,[1]],[22,[[31,[[10,[1]],"n"]],3]]]]]],{}]`,
		},
		{
			name: "constant filter is not wrapped",
			term: query.Table("t").Filter(query.Expr(true)),
			want: `[1,[39,[[15,["t"]],true]],{}]`,
		},
		{
			name: "array and object literals",
			term: query.Table("t").Filter(query.Row.Field("tags").Eq([]any{"a", 1, nil}).Or(query.Row.Field("o").Eq(map[string]any{"z": 1, "a": false}))),
			want: `[1,[39,[[15,["t"]],[69,[[2,[1]],[66,[[17,[[31,[[13,[]],"tags"]],[2,["a",1,null]]]],[17,[[31,[[13,[]],"o"]],{"a":false,"z":1}]]]]]]]],{}]`,
		},
		{
			name: "negation",
			term: query.Table("t").Filter(query.Row.HasFields("x").Not()),
			want: `[1,[39,[[15,["t"]],[69,[[2,[1]],[23,[[32,[[13,[]],"x"]]]]]]]],{}]`,
		},
		{
			name: "global options",
			term: query.Table("t"),
			opts: []Option{WithGlobalOptions(core.Options{"db": "test", "read_mode": "majority"})},
			want: `[1,[15,["t"]],{"db":[14,["test"]],"read_mode":"majority"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := tt.term.Build()
			require.NoError(t, err)
			got, err := Serialize(node, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestSerialize_Deterministic(t *testing.T) {
	a, err := numberFeed().WithArgs(core.Options{"squash": 1, "include_initial": true, "include_states": false}).Build()
	require.NoError(t, err)
	b, err := numberFeed().WithArgs(core.Options{"include_states": false, "include_initial": true, "squash": 1}).Build()
	require.NoError(t, err)

	first := MustSerialize(a)
	for range 20 {
		assert.Equal(t, first, MustSerialize(a), "same tree must serialize identically")
		assert.Equal(t, first, MustSerialize(b), "equal trees must serialize identically")
	}
}

func TestSerialize_Errors(t *testing.T) {
	tests := []struct {
		name string
		term core.Term
		opts []Option
		code string
	}{
		{
			name: "unknown changes option",
			term: &core.Changes{Source: &core.Table{Name: "t"}, Options: core.Options{"include_typez": true}},
			code: core.CodeUnknownOption,
		},
		{
			name: "wrong option type",
			term: &core.Changes{Source: &core.Table{Name: "t"}, Options: core.Options{"include_types": "yes"}},
			code: core.CodeInvalidOption,
		},
		{
			name: "unknown run option",
			term: &core.Table{Name: "t"},
			opts: []Option{WithGlobalOptions(core.Options{"timeout": 3})},
			code: core.CodeUnknownOption,
		},
		{
			name: "read mode outside allowed set",
			term: &core.Table{Name: "t"},
			opts: []Option{WithGlobalOptions(core.Options{"read_mode": "eventual"})},
			code: core.CodeInvalidOption,
		},
		{
			name: "empty field name",
			term: &core.Filter{Source: &core.Table{Name: "t"}, Predicate: &core.FieldAccess{Source: &core.ImplicitVar{}}},
			code: core.CodeUnknownField,
		},
		{
			name: "field outside registry",
			term: &core.Filter{Source: &core.Table{Name: "t"}, Predicate: &core.HasFields{Source: &core.ImplicitVar{}, Fields: []string{"missing"}}},
			opts: []Option{WithFields(fieldMap{"test": core.TypeNumber})},
			code: core.CodeUnknownField,
		},
		{
			name: "missing child",
			term: &core.Filter{Source: &core.Table{Name: "t"}},
			code: core.CodeInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Serialize(tt.term, tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrSerialization)
			var cerr *core.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.code, cerr.Code)
		})
	}
}

func TestSerialize_RegistryAcceptsDeclaredFields(t *testing.T) {
	node, err := numberFeed().Build()
	require.NoError(t, err)
	_, err = Serialize(node, WithFields(fieldMap{"test": core.TypeNumber}))
	require.NoError(t, err)
}

func TestParse_RoundTrip(t *testing.T) {
	terms := []query.Term{
		numberFeed(),
		query.DB("app").Table("users").Filter(query.Row.Field("age").Gt(18).And(query.Row.Field("name").Ne("root"))).Changes(core.Options{"squash": 0.5}),
		query.Table("t").FilterFunc(func(doc query.Term) query.Term { return doc.Field("tags").Eq([]any{"a", map[string]any{"k": true}}) }),
	}

	for _, term := range terms {
		node, err := term.Build()
		require.NoError(t, err)
		q := MustSerialize(node, WithGlobalOptions(core.Options{"db": "test"}))

		parsed, global, err := Parse(q)
		require.NoError(t, err)
		assert.Equal(t, "test", global["db"])

		again, err := Serialize(parsed, WithGlobalOptions(global))
		require.NoError(t, err)
		assert.Equal(t, q.String(), again.String())
	}
}

func TestParse_ImplicitPredicateBecomesFunc(t *testing.T) {
	node, err := numberFeed().Build()
	require.NoError(t, err)

	parsed, _, err := Parse(MustSerialize(node))
	require.NoError(t, err)

	changes := parsed.(*core.Changes)
	assert.Equal(t, true, changes.Options["include_types"])
	filter := changes.Source.(*core.Filter)
	fn, ok := filter.Predicate.(*core.Func)
	require.True(t, ok)
	assert.Equal(t, []int{1}, fn.Params)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `{`},
		{"continue", `[2]`},
		{"unknown term", `[1,[999,[]],{}]`},
		{"bad arity", `[1,[39,[[15,["t"]]]],{}]`},
		{"table name not string", `[1,[15,[3]],{}]`},
		{"func params not array", `[1,[69,[1,true]],{}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(Query(tt.in))
			require.Error(t, err)
			var cerr *core.Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, core.CodeProtocol, cerr.Code)
		})
	}
}

func TestKind(t *testing.T) {
	k, err := Kind(ContinueQuery())
	require.NoError(t, err)
	assert.Equal(t, QueryContinue, k)

	k, err = Kind(StopQuery())
	require.NoError(t, err)
	assert.Equal(t, QueryStop, k)

	_, err = Kind(Query(`[]`))
	require.Error(t, err)
}

func TestResponse(t *testing.T) {
	payload, err := EncodeResponse(SuccessPartial, []json.RawMessage{json.RawMessage(`{"new_val":1}`)}, NoteSequenceFeed)
	require.NoError(t, err)

	resp, err := DecodeResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, SuccessPartial, resp.Type)
	assert.True(t, resp.HasNote(NoteSequenceFeed))
	require.Len(t, resp.Results, 1)
	assert.JSONEq(t, `{"new_val":1}`, string(resp.Results[0]))

	resp, err = DecodeResponse([]byte(`{"t":18,"r":["Table 'x' does not exist."],"b":[]}`))
	require.NoError(t, err)
	assert.True(t, resp.Type.IsError())
	assert.Equal(t, "Table 'x' does not exist.", resp.ErrorMessage())

	_, err = DecodeResponse([]byte(`{"r":[]}`))
	require.Error(t, err)
}
