// Package query builds immutable change-feed query trees.
//
// Every method returns a new Term wrapping its receiver and never mutates
// it, so partially built queries can be shared and extended freely:
//
//	feed := query.DB("test").Table("test").
//		Filter(query.Row.HasFields("test").And(query.Row.Field("test").TypeOf().Eq("NUMBER"))).
//		Changes(core.Options{"include_types": true})
//
// Structural mistakes (Changes on a non-collection, an unknown type name in a
// type_of comparison, ...) do not panic. The first one is carried along the
// chain and returned by Build, before any connection is involved.
package query

import (
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Term is a query under construction.
type Term struct {
	node   core.Term
	err    error
	fields core.FieldResolver
}

// Row is the implicit document of the enclosing Filter.
var Row = Term{node: &core.ImplicitVar{}}

// DB selects a database.
func DB(name string) Term {
	if name == "" {
		return failed(core.NewBuildError(core.CodeInvalidValue, "db", "database name is empty"))
	}
	return Term{node: &core.Database{Name: name}}
}

// Table scans a table of the connection's default database.
func Table(name string) Term {
	return Term{}.table(nil, name, nil)
}

// TableWithSchema scans a table whose fields are declared in fields.
// Predicates over it are checked against the declaration at build time.
func TableWithSchema(name string, fields core.FieldResolver) Term {
	return Term{}.table(nil, name, fields)
}

// Table scans a table of the receiver database.
func (t Term) Table(name string) Term {
	if t.err != nil {
		return t
	}
	db, ok := t.node.(*core.Database)
	if !ok {
		return failed(typeError("table", "table() requires a database, got %s", describe(t.node)))
	}
	return t.table(db, name, nil)
}

// TableWithSchema is Table with declared fields.
func (t Term) TableWithSchema(name string, fields core.FieldResolver) Term {
	if t.err != nil {
		return t
	}
	db, ok := t.node.(*core.Database)
	if !ok {
		return failed(typeError("table", "table() requires a database, got %s", describe(t.node)))
	}
	return t.table(db, name, fields)
}

func (t Term) table(db *core.Database, name string, fields core.FieldResolver) Term {
	if name == "" {
		return failed(core.NewBuildError(core.CodeInvalidValue, "table", "table name is empty"))
	}
	return Term{node: &core.Table{DB: db, Name: name}, fields: fields}
}

// Filter keeps documents for which pred holds. pred must be built from Row
// (or be a constant); use FilterFunc for an explicit parameter.
func (t Term) Filter(pred Term) Term {
	if t.err != nil {
		return t
	}
	if pred.err != nil {
		return failed(pred.err)
	}
	if !core.IsCollection(t.node) {
		return failed(typeError("filter", "filter() requires a table or filtered table, got %s", describe(t.node)))
	}
	if err := validatePredicate("filter", pred.node, t.fields); err != nil {
		return failed(err)
	}
	return Term{node: &core.Filter{Source: t.node, Predicate: pred.node}, fields: t.fields}
}

// FilterFunc builds the predicate by calling fn once with a variable
// standing for the document. fn runs at build time only; the resulting
// tree, not the closure, is what gets serialized.
func (t Term) FilterFunc(fn func(doc Term) Term) Term {
	if t.err != nil {
		return t
	}
	id := nextVarID(t.node)
	body := fn(Term{node: &core.Var{ID: id}})
	if body.err != nil {
		return failed(body.err)
	}
	pred := Term{node: &core.Func{Params: []int{id}, Body: body.node}}
	return t.Filter(pred)
}

// Changes subscribes to modifications of a table or filtered table.
// Options are merged left to right; unknown names are rejected when serialized.
func (t Term) Changes(opts ...core.Options) Term {
	if t.err != nil {
		return t
	}
	if !core.IsCollection(t.node) {
		return failed(typeError("changes", "changes() requires a table or filtered table, got %s", describe(t.node)))
	}
	merged := core.Options{}
	for _, o := range opts {
		merged = merged.Merge(o)
	}
	return Term{node: &core.Changes{Source: t.node, Options: merged}, fields: t.fields}
}

// WithArgs merges options into a Changes term.
func (t Term) WithArgs(opts core.Options) Term {
	if t.err != nil {
		return t
	}
	c, ok := t.node.(*core.Changes)
	if !ok {
		return failed(typeError("with_args", "with_args() applies to changes(), got %s", describe(t.node)))
	}
	return Term{node: &core.Changes{Source: c.Source, Options: c.Options.Merge(opts)}, fields: t.fields}
}

// Build returns the finished tree or the first build error.
func (t Term) Build() (core.Term, error) {
	if t.err != nil {
		return nil, t.err
	}
	if t.node == nil {
		return nil, core.NewBuildError(core.CodeInvalidValue, "build", "empty query")
	}
	return t.node, nil
}

// Err returns the first build error, if any.
func (t Term) Err() error { return t.err }

// Node returns the underlying tree node (nil after an error).
func (t Term) Node() core.Term { return t.node }

// Fields returns the field declarations attached at the table root.
func (t Term) Fields() core.FieldResolver { return t.fields }

// Wrap lifts an already built node back into a builder.
func Wrap(node core.Term) Term { return Term{node: node} }

func failed(err error) Term { return Term{err: err} }

// nextVarID picks a parameter id not used anywhere in the receiver tree,
// so nested functions never capture each other's variables.
func nextVarID(t core.Term) int {
	maxID := 0
	core.Walk(t, func(n core.Term) bool {
		switch v := n.(type) {
		case *core.Var:
			if v.ID > maxID {
				maxID = v.ID
			}
		case *core.Func:
			for _, p := range v.Params {
				if p > maxID {
					maxID = p
				}
			}
		}
		return true
	})
	return maxID + 1
}
