package core

// ---------- Collection Terms ----------

// Database selects a database by name.
type Database struct {
	Name string
}

func (*Database) termNode() {}

// Type implements Node.
func (*Database) Type() TermType { return TermDB }

// Children implements Node.
func (*Database) Children() []Term { return nil }

// Table is a table scan, optionally qualified by a database.
type Table struct {
	DB   *Database // nil uses the connection's default database
	Name string
}

func (*Table) termNode() {}

// Type implements Node.
func (*Table) Type() TermType { return TermTable }

// Children implements Node.
func (t *Table) Children() []Term {
	if t.DB != nil {
		return []Term{t.DB}
	}
	return nil
}

// Filter keeps documents of Source for which Predicate holds.
// Predicate is either a Func of one parameter or a tree using ImplicitVar.
type Filter struct {
	Source    Term
	Predicate Term
}

func (*Filter) termNode() {}

// Type implements Node.
func (*Filter) Type() TermType { return TermFilter }

// Children implements Node.
func (f *Filter) Children() []Term { return []Term{f.Source, f.Predicate} }

// Changes subscribes to modifications of Source.
type Changes struct {
	Source  Term
	Options Options
}

func (*Changes) termNode() {}

// Type implements Node.
func (*Changes) Type() TermType { return TermChanges }

// Children implements Node.
func (c *Changes) Children() []Term { return []Term{c.Source} }

// ---------- Expression Terms ----------

// FieldAccess reads a top-level field of the document produced by Source.
type FieldAccess struct {
	Source Term
	Field  string
}

func (*FieldAccess) termNode() {}

// Type implements Node.
func (*FieldAccess) Type() TermType { return TermGetField }

// Children implements Node.
func (f *FieldAccess) Children() []Term { return []Term{f.Source} }

// HasFields tests whether the document produced by Source carries every field.
type HasFields struct {
	Source Term
	Fields []string
}

func (*HasFields) termNode() {}

// Type implements Node.
func (*HasFields) Type() TermType { return TermHasFields }

// Children implements Node.
func (h *HasFields) Children() []Term { return []Term{h.Source} }

// TypeOf yields the type name of Expr ("NUMBER", "STRING", ...).
type TypeOf struct {
	Expr Term
}

func (*TypeOf) termNode() {}

// Type implements Node.
func (*TypeOf) Type() TermType { return TermTypeOf }

// Children implements Node.
func (t *TypeOf) Children() []Term { return []Term{t.Expr} }

// LiteralType represents the type of a literal.
type LiteralType int

// LiteralType constants for datum kinds.
const (
	LiteralNull LiteralType = iota
	LiteralBool
	LiteralNumber
	LiteralString
	LiteralArray
	LiteralObject
)

// Literal is a constant value. Array and object literals hold Terms
// in Elems/Fields so nested expressions keep their structure.
type Literal struct {
	Kind   LiteralType
	Bool   bool
	Number float64
	String string
	Elems  []Term
	Fields map[string]Term
}

func (*Literal) termNode() {}

// Type implements Node.
func (l *Literal) Type() TermType {
	switch l.Kind {
	case LiteralArray:
		return TermMakeArray
	case LiteralObject:
		return TermMakeObj
	default:
		return TermDatum
	}
}

// Children implements Node.
func (l *Literal) Children() []Term {
	switch l.Kind {
	case LiteralArray:
		return l.Elems
	case LiteralObject:
		out := make([]Term, 0, len(l.Fields))
		for _, k := range SortedKeys(l.Fields) {
			out = append(out, l.Fields[k])
		}
		return out
	default:
		return nil
	}
}

// CompareOp is a comparison operator.
type CompareOp TermType

// Comparison operators.
const (
	OpEq = CompareOp(TermEq)
	OpNe = CompareOp(TermNe)
	OpLt = CompareOp(TermLt)
	OpLe = CompareOp(TermLe)
	OpGt = CompareOp(TermGt)
	OpGe = CompareOp(TermGe)
)

// String returns the builder method name of the operator.
func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpLt:
		return "lt"
	case OpLe:
		return "le"
	case OpGt:
		return "gt"
	case OpGe:
		return "ge"
	}
	return "?"
}

// Comparison compares two expressions.
type Comparison struct {
	Op    CompareOp
	Left  Term
	Right Term
}

func (*Comparison) termNode() {}

// Type implements Node.
func (c *Comparison) Type() TermType { return TermType(c.Op) }

// Children implements Node.
func (c *Comparison) Children() []Term { return []Term{c.Left, c.Right} }

// LogicalOp is a boolean connective.
type LogicalOp TermType

// Logical operators.
const (
	OpAnd = LogicalOp(TermAnd)
	OpOr  = LogicalOp(TermOr)
)

// Logical combines boolean expressions.
type Logical struct {
	Op   LogicalOp
	Args []Term
}

func (*Logical) termNode() {}

// Type implements Node.
func (l *Logical) Type() TermType { return TermType(l.Op) }

// Children implements Node.
func (l *Logical) Children() []Term { return l.Args }

// Not negates a boolean expression.
type Not struct {
	Expr Term
}

func (*Not) termNode() {}

// Type implements Node.
func (*Not) Type() TermType { return TermNot }

// Children implements Node.
func (n *Not) Children() []Term { return []Term{n.Expr} }

// ---------- Variables ----------

// ImplicitVar is the implicit row of the enclosing filter.
type ImplicitVar struct{}

func (*ImplicitVar) termNode() {}

// Type implements Node.
func (*ImplicitVar) Type() TermType { return TermImplicitVar }

// Children implements Node.
func (*ImplicitVar) Children() []Term { return nil }

// Var references a Func parameter by id.
type Var struct {
	ID int
}

func (*Var) termNode() {}

// Type implements Node.
func (*Var) Type() TermType { return TermVar }

// Children implements Node.
func (*Var) Children() []Term { return nil }

// Func is a predicate function built at query construction time.
type Func struct {
	Params []int
	Body   Term
}

func (*Func) termNode() {}

// Type implements Node.
func (*Func) Type() TermType { return TermFunc }

// Children implements Node.
func (f *Func) Children() []Term { return []Term{f.Body} }
