// Package wire encodes query trees in the server's JSON protocol and decodes
// them back.
//
// A start query is [1, <term>, <global optargs>]. A term is
// [type, [args...], {optargs}]; datums are plain JSON values and arrays are
// wrapped in MAKE_ARRAY. Encoding is deterministic: object keys are sorted,
// so structurally equal trees always produce identical bytes.
package wire

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Query is a serialized message ready for transmission.
type Query = core.WireQuery

// QueryType is the first element of every client message.
type QueryType int

// Query types.
const (
	QueryStart       QueryType = 1
	QueryContinue    QueryType = 2
	QueryStop        QueryType = 3
	QueryNoreplyWait QueryType = 4
	QueryServerInfo  QueryType = 5
)

// implicitParameter is the parameter id bound to the implicit row.
const implicitParameter = 1

func (t QueryType) String() string {
	switch t {
	case QueryStart:
		return "START"
	case QueryContinue:
		return "CONTINUE"
	case QueryStop:
		return "STOP"
	case QueryNoreplyWait:
		return "NOREPLY_WAIT"
	case QueryServerInfo:
		return "SERVER_INFO"
	}
	return fmt.Sprintf("QueryType(%d)", int(t))
}

// Option configures Serialize.
type Option func(*serializer)

// WithFields checks every document field reference against fields.
func WithFields(fields core.FieldResolver) Option {
	return func(s *serializer) { s.fields = fields }
}

// WithGlobalOptions attaches run options (db, read_mode, ...) to the query.
func WithGlobalOptions(opts core.Options) Option {
	return func(s *serializer) { s.global = s.global.Merge(opts) }
}

type serializer struct {
	fields core.FieldResolver
	global core.Options
}

// Serialize encodes a query tree as a start message.
func Serialize(t core.Term, opts ...Option) (Query, error) {
	s := &serializer{global: core.Options{}}
	for _, o := range opts {
		o(s)
	}

	term, err := s.encode(t)
	if err != nil {
		return nil, err
	}
	global, err := s.encodeGlobal()
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal([]any{QueryStart, term, global})
	if err != nil {
		return nil, core.NewSerializationError(core.CodeInvalidValue, err.Error())
	}
	return Query(out), nil
}

// MustSerialize is Serialize for trees known to be valid. It panics on error.
func MustSerialize(t core.Term, opts ...Option) Query {
	q, err := Serialize(t, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

// ContinueQuery asks the server for the next batch of a partial sequence.
func ContinueQuery() Query { return Query(fmt.Sprintf("[%d]", QueryContinue)) }

// StopQuery ends a running query and releases its server-side cursor.
func StopQuery() Query { return Query(fmt.Sprintf("[%d]", QueryStop)) }

func (s *serializer) encodeGlobal() (map[string]any, error) {
	out := make(map[string]any, len(s.global))
	for _, name := range core.SortedKeys(s.global) {
		v := s.global[name]
		spec, ok := core.RunOptions[name]
		if !ok {
			return nil, core.NewSerializationError(core.CodeUnknownOption,
				fmt.Sprintf("unrecognized run option %q", name))
		}
		if err := spec.Check(v); err != nil {
			return nil, core.NewSerializationError(core.CodeInvalidOption, err.Error())
		}
		if name == "db" {
			db, _ := v.(string)
			if db == "" {
				return nil, core.NewSerializationError(core.CodeInvalidOption, "option \"db\": database name is empty")
			}
			out[name] = []any{core.TermDB, []any{db}}
			continue
		}
		out[name] = v
	}
	return out, nil
}

func (s *serializer) encode(t core.Term) (any, error) {
	switch n := t.(type) {
	case nil:
		return nil, core.NewSerializationError(core.CodeInvalidValue, "missing term")
	case *core.Literal:
		return s.encodeLiteral(n)
	case *core.Database:
		if n.Name == "" {
			return nil, core.NewSerializationError(core.CodeInvalidValue, "database name is empty")
		}
		return []any{core.TermDB, []any{n.Name}}, nil
	case *core.Table:
		if n.Name == "" {
			return nil, core.NewSerializationError(core.CodeInvalidValue, "table name is empty")
		}
		if n.DB == nil {
			return []any{core.TermTable, []any{n.Name}}, nil
		}
		db, err := s.encode(n.DB)
		if err != nil {
			return nil, err
		}
		return []any{core.TermTable, []any{db, n.Name}}, nil
	case *core.Filter:
		src, err := s.encode(n.Source)
		if err != nil {
			return nil, err
		}
		pred, err := s.encodePredicate(n.Predicate)
		if err != nil {
			return nil, err
		}
		return []any{core.TermFilter, []any{src, pred}}, nil
	case *core.Changes:
		src, err := s.encode(n.Source)
		if err != nil {
			return nil, err
		}
		if err := checkOptions(n.Options); err != nil {
			return nil, err
		}
		if len(n.Options) == 0 {
			return []any{core.TermChanges, []any{src}}, nil
		}
		return []any{core.TermChanges, []any{src}, map[string]any(n.Options.Clone())}, nil
	case *core.FieldAccess:
		if err := s.checkField(n.Source, n.Field); err != nil {
			return nil, err
		}
		src, err := s.encode(n.Source)
		if err != nil {
			return nil, err
		}
		return []any{core.TermGetField, []any{src, n.Field}}, nil
	case *core.HasFields:
		args := make([]any, 0, len(n.Fields)+1)
		src, err := s.encode(n.Source)
		if err != nil {
			return nil, err
		}
		args = append(args, src)
		for _, f := range n.Fields {
			if err := s.checkField(n.Source, f); err != nil {
				return nil, err
			}
			args = append(args, f)
		}
		return []any{core.TermHasFields, args}, nil
	case *core.TypeOf:
		x, err := s.encode(n.Expr)
		if err != nil {
			return nil, err
		}
		return []any{core.TermTypeOf, []any{x}}, nil
	case *core.Comparison:
		return s.encodeCall(n.Type(), n.Left, n.Right)
	case *core.Logical:
		if len(n.Args) == 0 {
			return nil, core.NewSerializationError(core.CodeInvalidValue, n.Type().String()+" without arguments")
		}
		return s.encodeCall(n.Type(), n.Args...)
	case *core.Not:
		return s.encodeCall(core.TermNot, n.Expr)
	case *core.ImplicitVar:
		return []any{core.TermImplicitVar, []any{}}, nil
	case *core.Var:
		return []any{core.TermVar, []any{n.ID}}, nil
	case *core.Func:
		return s.encodeFunc(n.Params, n.Body)
	}
	return nil, core.NewSerializationError(core.CodeInvalidValue, fmt.Sprintf("unsupported term %T", t))
}

func (s *serializer) encodeCall(tt core.TermType, args ...core.Term) (any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := s.encode(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return []any{tt, out}, nil
}

func (s *serializer) encodeFunc(params []int, body core.Term) (any, error) {
	b, err := s.encode(body)
	if err != nil {
		return nil, err
	}
	ps := make([]any, len(params))
	for i, p := range params {
		ps[i] = p
	}
	return []any{core.TermFunc, []any{[]any{core.TermMakeArray, ps}, b}}, nil
}

// encodePredicate wraps a predicate that uses the implicit row in a
// one-parameter function, as the server expects for filter arguments.
func (s *serializer) encodePredicate(pred core.Term) (any, error) {
	if _, ok := pred.(*core.Func); ok || !usesImplicitVar(pred) {
		return s.encode(pred)
	}
	return s.encodeFunc([]int{implicitParameter}, pred)
}

func usesImplicitVar(t core.Term) bool {
	found := false
	core.Walk(t, func(n core.Term) bool {
		if _, ok := n.(*core.ImplicitVar); ok {
			found = true
		}
		return !found
	})
	return found
}

func (s *serializer) encodeLiteral(l *core.Literal) (any, error) {
	switch l.Kind {
	case core.LiteralNull:
		return nil, nil
	case core.LiteralBool:
		return l.Bool, nil
	case core.LiteralNumber:
		if math.IsNaN(l.Number) || math.IsInf(l.Number, 0) {
			return nil, core.NewSerializationError(core.CodeInvalidValue, fmt.Sprintf("non-finite number %v", l.Number))
		}
		return l.Number, nil
	case core.LiteralString:
		return l.String, nil
	case core.LiteralArray:
		elems := make([]any, len(l.Elems))
		for i, e := range l.Elems {
			v, err := s.encode(e)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return []any{core.TermMakeArray, elems}, nil
	case core.LiteralObject:
		obj := make(map[string]any, len(l.Fields))
		for k, e := range l.Fields {
			v, err := s.encode(e)
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil
	}
	return nil, core.NewSerializationError(core.CodeInvalidValue, fmt.Sprintf("unknown literal kind %d", l.Kind))
}

func (s *serializer) checkField(src core.Term, name string) error {
	if name == "" {
		return core.NewSerializationError(core.CodeUnknownField, "field name is empty")
	}
	if s.fields == nil {
		return nil
	}
	switch src.(type) {
	case *core.ImplicitVar, *core.Var:
	default:
		return nil
	}
	if _, ok := s.fields.ResolveField(name); !ok {
		return core.NewSerializationError(core.CodeUnknownField, fmt.Sprintf("field %q cannot be resolved", name))
	}
	return nil
}

func checkOptions(opts core.Options) error {
	for _, name := range core.SortedKeys(opts) {
		spec, ok := core.ChangesOptions[name]
		if !ok {
			return core.NewSerializationError(core.CodeUnknownOption,
				fmt.Sprintf("unrecognized changes option %q", name))
		}
		if err := spec.Check(opts[name]); err != nil {
			return core.NewSerializationError(core.CodeInvalidOption, err.Error())
		}
	}
	return nil
}
