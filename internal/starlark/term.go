package starlark

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/changefeed/pkg/format"
	"github.com/leapstack-labs/changefeed/pkg/query"
)

// Term exposes a query.Term to scripts. Methods mirror the builder:
//
//	r.table("users").filter(r.row("age").gt(18)).changes(include_types=True)
//
// Calling a term with a field name is shorthand for field().
type Term struct {
	t query.Term
}

var (
	_ starlark.Value    = (*Term)(nil)
	_ starlark.HasAttrs = (*Term)(nil)
	_ starlark.Callable = (*Term)(nil)
)

// Query returns the wrapped builder.
func (v *Term) Query() query.Term { return v.t }

func (v *Term) String() string {
	if err := v.t.Err(); err != nil {
		return fmt.Sprintf("<term error: %v>", err)
	}
	if v.t.Node() == nil {
		return "<empty term>"
	}
	return format.Inline(v.t.Node())
}

func (v *Term) Type() string          { return "term" }
func (v *Term) Freeze()               {}
func (v *Term) Truth() starlark.Bool  { return starlark.True }
func (v *Term) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: term") }
func (v *Term) Name() string          { return "term" }

// CallInternal implements row("field").
func (v *Term) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs("term", args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return wrap(v.t.Field(name))
}

type method func(thread *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var termMethods = map[string]method{
	"table":      termTable,
	"filter":     termFilter,
	"changes":    termChanges,
	"with_args":  termWithArgs,
	"field":      termField,
	"has_fields": termHasFields,
	"type_of":    termTypeOf,
	"eq":         compare(query.Term.Eq),
	"ne":         compare(query.Term.Ne),
	"lt":         compare(query.Term.Lt),
	"le":         compare(query.Term.Le),
	"gt":         compare(query.Term.Gt),
	"ge":         compare(query.Term.Ge),
	"and_":       logical(query.Term.And),
	"or_":        logical(query.Term.Or),
	"not_":       termNot,
}

// Attr returns a bound method, or nil for unknown names.
func (v *Term) Attr(name string) (starlark.Value, error) {
	m, ok := termMethods[name]
	if !ok {
		return nil, nil
	}
	recv := v.t
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return m(thread, recv, name, args, kwargs)
	}), nil
}

// AttrNames lists the available methods.
func (v *Term) AttrNames() []string {
	names := make([]string, 0, len(termMethods))
	for name := range termMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wrap surfaces a build error at the call site, where the script
// traceback points at the offending line.
func wrap(t query.Term) (starlark.Value, error) {
	if err := t.Err(); err != nil {
		return nil, err
	}
	return &Term{t: t}, nil
}

func termTable(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var table string
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &table); err != nil {
		return nil, err
	}
	return wrap(recv.Table(table))
}

func termFilter(thread *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pred starlark.Value
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &pred); err != nil {
		return nil, err
	}

	switch p := pred.(type) {
	case *Term:
		return wrap(recv.Filter(p.t))
	case starlark.Callable:
		var callErr error
		out := recv.FilterFunc(func(doc query.Term) query.Term {
			res, err := starlark.Call(thread, p, starlark.Tuple{&Term{t: doc}}, nil)
			if err != nil {
				callErr = err
				return doc
			}
			body, err := liftValue(res)
			if err != nil {
				callErr = fmt.Errorf("%s: function result: %w", name, err)
				return doc
			}
			return body
		})
		if callErr != nil {
			return nil, callErr
		}
		return wrap(out)
	}
	t, err := liftValue(pred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return wrap(recv.Filter(t))
}

func termChanges(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", name)
	}
	opts, err := toOptions(kwargs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return wrap(recv.Changes(opts))
}

func termWithArgs(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", name)
	}
	opts, err := toOptions(kwargs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return wrap(recv.WithArgs(opts))
}

func termField(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var field string
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &field); err != nil {
		return nil, err
	}
	return wrap(recv.Field(field))
}

func termHasFields(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", name)
	}
	fields := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d must be a string, got %s", name, i+1, a.Type())
		}
		fields[i] = s
	}
	return wrap(recv.HasFields(fields...))
}

func termTypeOf(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 0); err != nil {
		return nil, err
	}
	return wrap(recv.TypeOf())
}

func termNot(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 0); err != nil {
		return nil, err
	}
	return wrap(recv.Not())
}

func compare(op func(query.Term, any) query.Term) method {
	return func(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var rhs starlark.Value
		if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &rhs); err != nil {
			return nil, err
		}
		arg, err := liftValue(rhs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return wrap(op(recv, arg))
	}
}

func logical(op func(query.Term, ...query.Term) query.Term) method {
	return func(_ *starlark.Thread, recv query.Term, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", name)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: at least one operand is required", name)
		}
		others := make([]query.Term, len(args))
		for i, a := range args {
			t, err := liftValue(a)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			others[i] = t
		}
		return wrap(op(recv, others...))
	}
}

// liftValue turns a script value into a term.
func liftValue(v starlark.Value) (query.Term, error) {
	if t, ok := v.(*Term); ok {
		return t.t, nil
	}
	gv, err := ToGo(v)
	if err != nil {
		return query.Term{}, err
	}
	return query.Expr(gv), nil
}
