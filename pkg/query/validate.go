package query

import (
	"fmt"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

func typeError(op, format string, args ...any) *core.Error {
	return core.NewBuildError(core.CodeTypeError, op, fmt.Sprintf(format, args...))
}

// describe names a node the way error messages refer to it.
func describe(n core.Term) string {
	switch v := n.(type) {
	case nil:
		return "nothing"
	case *core.Database:
		return fmt.Sprintf("db(%q)", v.Name)
	case *core.Table:
		return fmt.Sprintf("table(%q)", v.Name)
	case *core.Literal:
		return "a literal"
	default:
		return n.Type().String()
	}
}

// validatePredicate checks that pred can be evaluated against a single
// document: no collection terms inside, every variable bound, one-parameter
// functions only, and (when fields are declared) every field known and every
// type_of comparison consistent with the declaration.
func validatePredicate(op string, pred core.Term, fields core.FieldResolver) error {
	if fn, ok := pred.(*core.Func); ok && len(fn.Params) != 1 {
		return typeError(op, "predicate function must take exactly one argument, got %d", len(fn.Params))
	}
	v := &predicateValidator{op: op, fields: fields, bound: map[int]bool{}}
	return v.visit(pred)
}

type predicateValidator struct {
	op     string
	fields core.FieldResolver
	bound  map[int]bool
}

func (v *predicateValidator) visit(n core.Term) error {
	switch node := n.(type) {
	case *core.Database, *core.Table, *core.Filter, *core.Changes:
		return typeError(v.op, "predicate cannot contain %s", describe(n))
	case *core.Func:
		for _, p := range node.Params {
			v.bound[p] = true
		}
		err := v.visit(node.Body)
		for _, p := range node.Params {
			delete(v.bound, p)
		}
		return err
	case *core.Var:
		if !v.bound[node.ID] {
			return typeError(v.op, "variable %d is not bound by an enclosing function", node.ID)
		}
		return nil
	case *core.FieldAccess:
		if err := v.checkField(node.Source, node.Field); err != nil {
			return err
		}
	case *core.HasFields:
		for _, f := range node.Fields {
			if err := v.checkField(node.Source, f); err != nil {
				return err
			}
		}
	case *core.Comparison:
		if err := v.checkTypeComparison(node); err != nil {
			return err
		}
	}
	for _, c := range n.Children() {
		if err := v.visit(c); err != nil {
			return err
		}
	}
	return nil
}

func isDocumentRoot(n core.Term) bool {
	switch n.(type) {
	case *core.ImplicitVar, *core.Var:
		return true
	}
	return false
}

func (v *predicateValidator) checkField(src core.Term, name string) error {
	if v.fields == nil || !isDocumentRoot(src) {
		return nil
	}
	if _, ok := v.fields.ResolveField(name); !ok {
		return core.NewBuildError(core.CodeUnknownField, v.op, fmt.Sprintf("field %q is not declared", name))
	}
	return nil
}

// checkTypeComparison validates type_of(doc("f")) == "T" against the declared type of f.
func (v *predicateValidator) checkTypeComparison(c *core.Comparison) error {
	if v.fields == nil || (c.Op != core.OpEq && c.Op != core.OpNe) {
		return nil
	}
	typeOf, lit := c.Left, c.Right
	if _, ok := typeOf.(*core.TypeOf); !ok {
		typeOf, lit = c.Right, c.Left
	}
	to, ok := typeOf.(*core.TypeOf)
	if !ok {
		return nil
	}
	name, ok := lit.(*core.Literal)
	if !ok || name.Kind != core.LiteralString {
		return nil
	}
	if !core.ValidFieldType(name.String) {
		return typeError(v.op, "unknown type name %q", name.String)
	}
	fa, ok := to.Expr.(*core.FieldAccess)
	if !ok || !isDocumentRoot(fa.Source) {
		return nil
	}
	declared, ok := v.fields.ResolveField(fa.Field)
	if !ok || declared == core.TypeAny {
		return nil
	}
	if c.Op == core.OpEq && string(declared) != name.String {
		return typeError(v.op, "field %q is declared %s and can never be %s", fa.Field, declared, name.String)
	}
	return nil
}
