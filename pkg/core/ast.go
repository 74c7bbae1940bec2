package core

// TermType identifies a term on the wire.
// Values match the server's protocol term numbers.
type TermType int

// TermType constants used by the query builder and serializer.
const (
	TermDatum       TermType = 1
	TermMakeArray   TermType = 2
	TermMakeObj     TermType = 3
	TermVar         TermType = 10
	TermImplicitVar TermType = 13
	TermDB          TermType = 14
	TermTable       TermType = 15
	TermEq          TermType = 17
	TermNe          TermType = 18
	TermLt          TermType = 19
	TermLe          TermType = 20
	TermGt          TermType = 21
	TermGe          TermType = 22
	TermNot         TermType = 23
	TermGetField    TermType = 31
	TermHasFields   TermType = 32
	TermFilter      TermType = 39
	TermTypeOf      TermType = 52
	TermOr          TermType = 66
	TermAnd         TermType = 67
	TermFunc        TermType = 69
	TermChanges     TermType = 152
)

var termNames = map[TermType]string{
	TermDatum:       "DATUM",
	TermMakeArray:   "MAKE_ARRAY",
	TermMakeObj:     "MAKE_OBJ",
	TermVar:         "VAR",
	TermImplicitVar: "IMPLICIT_VAR",
	TermDB:          "DB",
	TermTable:       "TABLE",
	TermEq:          "EQ",
	TermNe:          "NE",
	TermLt:          "LT",
	TermLe:          "LE",
	TermGt:          "GT",
	TermGe:          "GE",
	TermNot:         "NOT",
	TermGetField:    "GET_FIELD",
	TermHasFields:   "HAS_FIELDS",
	TermFilter:      "FILTER",
	TermTypeOf:      "TYPE_OF",
	TermOr:          "OR",
	TermAnd:         "AND",
	TermFunc:        "FUNC",
	TermChanges:     "CHANGES",
}

// String returns the protocol name of the term type.
func (t TermType) String() string {
	if name, ok := termNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Node is the base interface for all query tree nodes.
type Node interface {
	// Type returns the wire term type of the node.
	Type() TermType
	// Children returns the direct sub-terms in argument order.
	Children() []Term
}

// Term is a marker interface for query terms.
// Terms are immutable once built; builders return new nodes instead of mutating.
type Term interface {
	Node
	termNode() // Marker method to distinguish terms
}

// Walk visits t and every descendant in depth-first, pre-order.
// Returning false from fn stops the descent into that node's children.
func Walk(t Term, fn func(Term) bool) {
	if t == nil || !fn(t) {
		return
	}
	for _, c := range t.Children() {
		Walk(c, fn)
	}
}

// IsCollection reports whether t produces a stream of documents
// that a changefeed can subscribe to: a table scan or a filter over one.
func IsCollection(t Term) bool {
	switch n := t.(type) {
	case *Table:
		return true
	case *Filter:
		return IsCollection(n.Source)
	default:
		return false
	}
}

// RootTable returns the table a collection term scans, or nil.
func RootTable(t Term) *Table {
	for t != nil {
		switch n := t.(type) {
		case *Table:
			return n
		case *Filter:
			t = n.Source
		case *Changes:
			t = n.Source
		default:
			return nil
		}
	}
	return nil
}
