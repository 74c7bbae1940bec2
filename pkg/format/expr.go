package format

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

func (p *printer) formatTerm(t core.Term) {
	switch n := t.(type) {
	case *core.Database:
		p.write("r.db(" + strconv.Quote(n.Name) + ")")
	case *core.Table:
		if n.DB != nil {
			p.formatTerm(n.DB)
			p.write(".table(" + strconv.Quote(n.Name) + ")")
			return
		}
		p.write("r.table(" + strconv.Quote(n.Name) + ")")
	case *core.Filter:
		p.formatTerm(n.Source)
		p.chainCall("filter", func() { p.formatExpr(n.Predicate) })
	case *core.Changes:
		p.formatTerm(n.Source)
		p.chainCall("changes", func() {
			if len(n.Options) > 0 {
				p.formatOptions(n.Options)
			}
		})
	default:
		p.formatExpr(t)
	}
}

func (p *printer) chainCall(method string, args func()) {
	p.chainBreak()
	p.write("." + method + "(")
	args()
	p.write(")")
}

// formatReceiver prints t in method-receiver position, lifting bare
// literals with r.expr.
func (p *printer) formatReceiver(t core.Term) {
	if _, ok := t.(*core.Literal); ok {
		p.write("r.expr(")
		p.formatExpr(t)
		p.write(")")
		return
	}
	p.formatExpr(t)
}

func (p *printer) formatExpr(t core.Term) {
	switch n := t.(type) {
	case nil:
		p.write("<nil>")
	case *core.Literal:
		p.formatLiteral(n)
	case *core.ImplicitVar:
		p.write("r.row")
	case *core.Var:
		p.write(varName(n.ID))
	case *core.Func:
		p.write("function(")
		p.writeList(len(n.Params), func(i int) { p.write(varName(n.Params[i])) })
		p.write(") { return ")
		p.formatExpr(n.Body)
		p.write("; }")
	case *core.FieldAccess:
		p.formatReceiver(n.Source)
		p.write("(" + strconv.Quote(n.Field) + ")")
	case *core.HasFields:
		p.formatReceiver(n.Source)
		p.write(".hasFields(")
		p.writeList(len(n.Fields), func(i int) { p.write(strconv.Quote(n.Fields[i])) })
		p.write(")")
	case *core.TypeOf:
		p.formatReceiver(n.Expr)
		p.write(".typeOf()")
	case *core.Comparison:
		p.formatReceiver(n.Left)
		p.write("." + n.Op.String() + "(")
		p.formatExpr(n.Right)
		p.write(")")
	case *core.Logical:
		if len(n.Args) == 0 {
			return
		}
		method := "and"
		if n.Op == core.OpOr {
			method = "or"
		}
		p.formatReceiver(n.Args[0])
		p.write("." + method + "(")
		rest := n.Args[1:]
		p.writeList(len(rest), func(i int) { p.formatExpr(rest[i]) })
		p.write(")")
	case *core.Not:
		p.formatReceiver(n.Expr)
		p.write(".not()")
	case *core.Database, *core.Table, *core.Filter, *core.Changes:
		inner := newPrinter(false)
		inner.formatTerm(t)
		p.write(inner.String())
	default:
		p.write(fmt.Sprintf("<%s>", t.Type()))
	}
}

func (p *printer) formatLiteral(l *core.Literal) {
	switch l.Kind {
	case core.LiteralNull:
		p.write("null")
	case core.LiteralBool:
		p.write(strconv.FormatBool(l.Bool))
	case core.LiteralNumber:
		p.write(strconv.FormatFloat(l.Number, 'g', -1, 64))
	case core.LiteralString:
		p.write(strconv.Quote(l.String))
	case core.LiteralArray:
		p.write("[")
		p.writeList(len(l.Elems), func(i int) { p.formatExpr(l.Elems[i]) })
		p.write("]")
	case core.LiteralObject:
		keys := core.SortedKeys(l.Fields)
		p.write("{")
		p.writeList(len(keys), func(i int) {
			p.write(strconv.Quote(keys[i]) + ": ")
			p.formatExpr(l.Fields[keys[i]])
		})
		p.write("}")
	}
}

func (p *printer) formatOptions(opts core.Options) {
	keys := core.SortedKeys(opts)
	p.write("{")
	p.writeList(len(keys), func(i int) {
		p.write(keys[i] + ": " + formatValue(opts[keys[i]]))
	})
	p.write("}")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func varName(id int) string {
	return "var_" + strconv.Itoa(id)
}
