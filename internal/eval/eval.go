// Package eval evaluates filter predicates against JSON documents on the
// client side. Transports that cannot push predicates to the server
// (postgres notifications, in-memory feeds, replays) use it to emulate the
// server's filtered change semantics.
package eval

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// ErrNonExistence is returned when a predicate reads a missing field.
// Filters treat it as false, like the server's default filter behavior.
var ErrNonExistence = errors.New("no such attribute")

type env struct {
	row  any
	vars map[int]any
}

// Match reports whether pred holds for doc. Errors reading missing fields
// count as false; other evaluation errors are returned.
func Match(pred core.Term, doc any) (bool, error) {
	v, err := Apply(pred, doc)
	if errors.Is(err, ErrNonExistence) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Apply evaluates a predicate with doc bound as the implicit row and, if
// the predicate is a function, as its single argument.
func Apply(pred core.Term, doc any) (any, error) {
	e := &env{row: doc, vars: map[int]any{}}
	if fn, ok := pred.(*core.Func); ok {
		if len(fn.Params) != 1 {
			return nil, fmt.Errorf("expected a function of 1 argument, got %d", len(fn.Params))
		}
		e.vars[fn.Params[0]] = doc
		return e.eval(fn.Body)
	}
	return e.eval(pred)
}

// Truthy follows the server's rule: only false and null are falsy.
func Truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	}
	return true
}

func (e *env) eval(t core.Term) (any, error) {
	switch n := t.(type) {
	case *core.Literal:
		return e.literal(n)
	case *core.ImplicitVar:
		return e.row, nil
	case *core.Var:
		v, ok := e.vars[n.ID]
		if !ok {
			return nil, fmt.Errorf("unbound variable %d", n.ID)
		}
		return v, nil
	case *core.Func:
		return nil, errors.New("nested functions are not supported")
	case *core.FieldAccess:
		src, err := e.eval(n.Source)
		if err != nil {
			return nil, err
		}
		obj, ok := src.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot read field %q of %s", n.Field, TypeName(src))
		}
		v, ok := obj[n.Field]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrNonExistence, n.Field)
		}
		return v, nil
	case *core.HasFields:
		src, err := e.eval(n.Source)
		if err != nil {
			return nil, err
		}
		obj, ok := src.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot call has_fields on %s", TypeName(src))
		}
		for _, f := range n.Fields {
			if v, ok := obj[f]; !ok || v == nil {
				return false, nil
			}
		}
		return true, nil
	case *core.TypeOf:
		v, err := e.eval(n.Expr)
		if err != nil {
			return nil, err
		}
		return TypeName(v), nil
	case *core.Comparison:
		l, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return compareOp(n.Op, l, r), nil
	case *core.Logical:
		return e.logical(n)
	case *core.Not:
		v, err := e.eval(n.Expr)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("not expects BOOL, got %s", TypeName(v))
		}
		return !b, nil
	case nil:
		return nil, errors.New("missing term")
	}
	return nil, fmt.Errorf("%s cannot be evaluated against a single document", t.Type())
}

// logical returns the deciding operand the way the server does: and yields
// the first falsy value or the last one, or yields the first truthy value
// or the last one.
func (e *env) logical(n *core.Logical) (any, error) {
	var last any = n.Op == core.OpAnd
	for _, a := range n.Args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		last = v
		if n.Op == core.OpAnd && !Truthy(v) {
			return v, nil
		}
		if n.Op == core.OpOr && Truthy(v) {
			return v, nil
		}
	}
	return last, nil
}

func (e *env) literal(l *core.Literal) (any, error) {
	switch l.Kind {
	case core.LiteralNull:
		return nil, nil
	case core.LiteralBool:
		return l.Bool, nil
	case core.LiteralNumber:
		return l.Number, nil
	case core.LiteralString:
		return l.String, nil
	case core.LiteralArray:
		out := make([]any, len(l.Elems))
		for i, el := range l.Elems {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case core.LiteralObject:
		out := make(map[string]any, len(l.Fields))
		for k, el := range l.Fields {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown literal kind %d", l.Kind)
}

// TypeName returns the server type name of a decoded JSON value.
func TypeName(v any) string {
	switch val := v.(type) {
	case nil:
		return string(core.TypeNull)
	case bool:
		return string(core.TypeBool)
	case string:
		return string(core.TypeString)
	case []any:
		return string(core.TypeArray)
	case map[string]any:
		if pt, ok := val["$reql_type$"].(string); ok {
			return "PTYPE<" + pt + ">"
		}
		return string(core.TypeObject)
	}
	if _, ok := toFloat(v); ok {
		return string(core.TypeNumber)
	}
	return fmt.Sprintf("UNKNOWN<%T>", v)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func compareOp(op core.CompareOp, l, r any) bool {
	c := Compare(l, r)
	switch op {
	case core.OpEq:
		return c == 0
	case core.OpNe:
		return c != 0
	case core.OpLt:
		return c < 0
	case core.OpLe:
		return c <= 0
	case core.OpGt:
		return c > 0
	case core.OpGe:
		return c >= 0
	}
	return false
}

// Compare orders two values. Values of different types order by type name,
// arrays compare element-wise, objects by their sorted key/value pairs.
func Compare(l, r any) int {
	lt, rt := TypeName(l), TypeName(r)
	if lt != rt {
		return cmp.Compare(lt, rt)
	}
	switch lv := l.(type) {
	case nil:
		return 0
	case bool:
		rb := r.(bool)
		switch {
		case lv == rb:
			return 0
		case !lv:
			return -1
		default:
			return 1
		}
	case string:
		return cmp.Compare(lv, r.(string))
	case []any:
		return compareArrays(lv, r.([]any))
	case map[string]any:
		return compareObjects(lv, r.(map[string]any))
	}
	lf, _ := toFloat(l)
	rf, _ := toFloat(r)
	switch {
	case lf == rf || (math.IsNaN(lf) && math.IsNaN(rf)):
		return 0
	case lf < rf:
		return -1
	default:
		return 1
	}
}

func compareArrays(l, r []any) int {
	for i := 0; i < len(l) && i < len(r); i++ {
		if c := Compare(l[i], r[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(l), len(r))
}

func compareObjects(l, r map[string]any) int {
	lk, rk := slices.Sorted(maps.Keys(l)), slices.Sorted(maps.Keys(r))
	for i := 0; i < len(lk) && i < len(rk); i++ {
		if c := cmp.Compare(lk[i], rk[i]); c != 0 {
			return c
		}
		if c := Compare(l[lk[i]], r[rk[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(lk), len(rk))
}
