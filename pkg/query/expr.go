package query

import (
	"fmt"
	"math"
	"reflect"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Expr lifts a Go value into a literal term. Terms pass through unchanged.
// Supported: nil, bool, integer and float kinds, string, slices and
// string-keyed maps of those.
func Expr(v any) Term {
	switch t := v.(type) {
	case Term:
		return t
	case core.Term:
		return Term{node: t}
	}
	lit, err := literal(v)
	if err != nil {
		return failed(err)
	}
	return Term{node: lit}
}

// Field reads a top-level field of the document.
func (t Term) Field(name string) Term {
	if t.err != nil {
		return t
	}
	if name == "" {
		return failed(core.NewBuildError(core.CodeUnknownField, "field", "field name is empty"))
	}
	if core.IsCollection(t.node) {
		return failed(typeError("field", "field() applies to a single document, got %s", describe(t.node)))
	}
	return Term{node: &core.FieldAccess{Source: t.node, Field: name}}
}

// HasFields tests that every named field is present.
func (t Term) HasFields(names ...string) Term {
	if t.err != nil {
		return t
	}
	if len(names) == 0 {
		return failed(core.NewBuildError(core.CodeInvalidValue, "has_fields", "at least one field is required"))
	}
	for _, n := range names {
		if n == "" {
			return failed(core.NewBuildError(core.CodeUnknownField, "has_fields", "field name is empty"))
		}
	}
	if core.IsCollection(t.node) {
		return failed(typeError("has_fields", "has_fields() applies to a single document, got %s", describe(t.node)))
	}
	fields := append([]string(nil), names...)
	return Term{node: &core.HasFields{Source: t.node, Fields: fields}}
}

// TypeOf yields the type name of the receiver.
func (t Term) TypeOf() Term {
	if t.err != nil {
		return t
	}
	return Term{node: &core.TypeOf{Expr: t.node}}
}

// Eq compares for equality.
func (t Term) Eq(v any) Term { return t.compare(core.OpEq, v) }

// Ne compares for inequality.
func (t Term) Ne(v any) Term { return t.compare(core.OpNe, v) }

// Lt is less-than.
func (t Term) Lt(v any) Term { return t.compare(core.OpLt, v) }

// Le is less-or-equal.
func (t Term) Le(v any) Term { return t.compare(core.OpLe, v) }

// Gt is greater-than.
func (t Term) Gt(v any) Term { return t.compare(core.OpGt, v) }

// Ge is greater-or-equal.
func (t Term) Ge(v any) Term { return t.compare(core.OpGe, v) }

func (t Term) compare(op core.CompareOp, v any) Term {
	if t.err != nil {
		return t
	}
	rhs := Expr(v)
	if rhs.err != nil {
		return rhs
	}
	if err := t.checkTypeName(op, rhs.node); err != nil {
		return failed(err)
	}
	return Term{node: &core.Comparison{Op: op, Left: t.node, Right: rhs.node}}
}

// checkTypeName rejects type_of(x) == "NUMBR" style typos at build time.
func (t Term) checkTypeName(op core.CompareOp, rhs core.Term) error {
	if _, ok := t.node.(*core.TypeOf); !ok {
		return nil
	}
	if op != core.OpEq && op != core.OpNe {
		return nil
	}
	lit, ok := rhs.(*core.Literal)
	if !ok || lit.Kind != core.LiteralString {
		return nil
	}
	if !core.ValidFieldType(lit.String) {
		return typeError(op.String(), "unknown type name %q", lit.String)
	}
	return nil
}

// And is true when the receiver and every other term hold.
func (t Term) And(others ...Term) Term { return t.logical(core.OpAnd, others) }

// Or is true when any of the receiver and others holds.
func (t Term) Or(others ...Term) Term { return t.logical(core.OpOr, others) }

func (t Term) logical(op core.LogicalOp, others []Term) Term {
	if t.err != nil {
		return t
	}
	args := []core.Term{t.node}
	for _, o := range others {
		if o.err != nil {
			return o
		}
		args = append(args, o.node)
	}
	return Term{node: &core.Logical{Op: op, Args: args}}
}

// Not negates the receiver.
func (t Term) Not() Term {
	if t.err != nil {
		return t
	}
	return Term{node: &core.Not{Expr: t.node}}
}

func literal(v any) (*core.Literal, error) {
	switch val := v.(type) {
	case nil:
		return &core.Literal{Kind: core.LiteralNull}, nil
	case bool:
		return &core.Literal{Kind: core.LiteralBool, Bool: val}, nil
	case string:
		return &core.Literal{Kind: core.LiteralString, String: val}, nil
	case core.FieldType:
		return &core.Literal{Kind: core.LiteralString, String: string(val)}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &core.Literal{Kind: core.LiteralNumber, Number: float64(rv.Int())}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &core.Literal{Kind: core.LiteralNumber, Number: float64(rv.Uint())}, nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, core.NewBuildError(core.CodeInvalidValue, "expr", fmt.Sprintf("non-finite number %v", f))
		}
		return &core.Literal{Kind: core.LiteralNumber, Number: f}, nil
	case reflect.Slice, reflect.Array:
		elems := make([]core.Term, rv.Len())
		for i := range elems {
			e := Expr(rv.Index(i).Interface())
			if e.err != nil {
				return nil, e.err
			}
			elems[i] = e.node
		}
		return &core.Literal{Kind: core.LiteralArray, Elems: elems}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, core.NewBuildError(core.CodeInvalidValue, "expr", fmt.Sprintf("object keys must be strings, got %s", rv.Type().Key()))
		}
		fields := make(map[string]core.Term, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			e := Expr(iter.Value().Interface())
			if e.err != nil {
				return nil, e.err
			}
			fields[iter.Key().String()] = e.node
		}
		return &core.Literal{Kind: core.LiteralObject, Fields: fields}, nil
	}
	return nil, core.NewBuildError(core.CodeInvalidValue, "expr", fmt.Sprintf("cannot convert %T to a query value", v))
}
