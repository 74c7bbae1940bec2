package wire

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Kind returns the type of a client message without decoding its term.
func Kind(q Query) (QueryType, error) {
	var head []json.RawMessage
	if err := json.Unmarshal(q, &head); err != nil {
		return 0, protocolError("query is not a JSON array: %v", err)
	}
	if len(head) == 0 {
		return 0, protocolError("empty query")
	}
	var t int
	if err := json.Unmarshal(head[0], &t); err != nil {
		return 0, protocolError("query type is not a number")
	}
	return QueryType(t), nil
}

// Parse decodes a start message back into its term and global options.
// A db global option is returned as its database name.
func Parse(q Query) (core.Term, core.Options, error) {
	var msg []any
	dec := json.NewDecoder(bytes.NewReader(q))
	if err := dec.Decode(&msg); err != nil {
		return nil, nil, protocolError("query is not a JSON array: %v", err)
	}
	if len(msg) < 2 {
		return nil, nil, protocolError("start query needs a term")
	}
	if t, ok := msg[0].(float64); !ok || QueryType(t) != QueryStart {
		return nil, nil, protocolError("not a start query: %v", msg[0])
	}

	term, err := parseTerm(msg[1])
	if err != nil {
		return nil, nil, err
	}

	global := core.Options{}
	if len(msg) > 2 && msg[2] != nil {
		raw, ok := msg[2].(map[string]any)
		if !ok {
			return nil, nil, protocolError("global options must be an object")
		}
		for k, v := range raw {
			if k == "db" {
				db, err := parseTerm(v)
				if err != nil {
					return nil, nil, err
				}
				d, ok := db.(*core.Database)
				if !ok {
					return nil, nil, protocolError("db option must be a DB term")
				}
				global[k] = d.Name
				continue
			}
			global[k] = v
		}
	}
	return term, global, nil
}

func protocolError(format string, args ...any) *core.Error {
	return core.NewSerializationError(core.CodeProtocol, fmt.Sprintf(format, args...))
}

func parseTerm(v any) (core.Term, error) {
	switch val := v.(type) {
	case nil:
		return &core.Literal{Kind: core.LiteralNull}, nil
	case bool:
		return &core.Literal{Kind: core.LiteralBool, Bool: val}, nil
	case float64:
		return &core.Literal{Kind: core.LiteralNumber, Number: val}, nil
	case string:
		return &core.Literal{Kind: core.LiteralString, String: val}, nil
	case map[string]any:
		fields := make(map[string]core.Term, len(val))
		for k, e := range val {
			t, err := parseTerm(e)
			if err != nil {
				return nil, err
			}
			fields[k] = t
		}
		return &core.Literal{Kind: core.LiteralObject, Fields: fields}, nil
	case []any:
		return parseCall(val)
	}
	return nil, protocolError("unexpected JSON value %T", v)
}

func parseCall(call []any) (core.Term, error) {
	if len(call) == 0 || len(call) > 3 {
		return nil, protocolError("term must have 1 to 3 elements, got %d", len(call))
	}
	num, ok := call[0].(float64)
	if !ok {
		return nil, protocolError("term type is not a number")
	}
	tt := core.TermType(num)

	var args []any
	if len(call) > 1 {
		if args, ok = call[1].([]any); !ok {
			return nil, protocolError("%s arguments must be an array", tt)
		}
	}
	var optargs map[string]any
	if len(call) > 2 {
		if optargs, ok = call[2].(map[string]any); !ok {
			return nil, protocolError("%s optargs must be an object", tt)
		}
	}

	switch tt {
	case core.TermMakeArray:
		elems, err := parseArgs(args)
		if err != nil {
			return nil, err
		}
		return &core.Literal{Kind: core.LiteralArray, Elems: elems}, nil
	case core.TermDB:
		name, err := stringArg(tt, args, 0)
		if err != nil {
			return nil, err
		}
		return &core.Database{Name: name}, nil
	case core.TermTable:
		switch len(args) {
		case 1:
			name, err := stringArg(tt, args, 0)
			if err != nil {
				return nil, err
			}
			return &core.Table{Name: name}, nil
		case 2:
			db, err := parseTerm(args[0])
			if err != nil {
				return nil, err
			}
			d, ok := db.(*core.Database)
			if !ok {
				return nil, protocolError("TABLE expects a DB term, got %s", db.Type())
			}
			name, err := stringArg(tt, args, 1)
			if err != nil {
				return nil, err
			}
			return &core.Table{DB: d, Name: name}, nil
		}
		return nil, arity(tt, args, 2)
	case core.TermFilter:
		parts, err := fixedArgs(tt, args, 2)
		if err != nil {
			return nil, err
		}
		return &core.Filter{Source: parts[0], Predicate: parts[1]}, nil
	case core.TermChanges:
		parts, err := fixedArgs(tt, args, 1)
		if err != nil {
			return nil, err
		}
		opts := core.Options{}
		for k, v := range optargs {
			opts[k] = v
		}
		return &core.Changes{Source: parts[0], Options: opts}, nil
	case core.TermGetField:
		if len(args) != 2 {
			return nil, arity(tt, args, 2)
		}
		src, err := parseTerm(args[0])
		if err != nil {
			return nil, err
		}
		name, err := stringArg(tt, args, 1)
		if err != nil {
			return nil, err
		}
		return &core.FieldAccess{Source: src, Field: name}, nil
	case core.TermHasFields:
		if len(args) < 2 {
			return nil, arity(tt, args, 2)
		}
		src, err := parseTerm(args[0])
		if err != nil {
			return nil, err
		}
		fields := make([]string, 0, len(args)-1)
		for i := 1; i < len(args); i++ {
			f, err := stringArg(tt, args, i)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		return &core.HasFields{Source: src, Fields: fields}, nil
	case core.TermTypeOf:
		parts, err := fixedArgs(tt, args, 1)
		if err != nil {
			return nil, err
		}
		return &core.TypeOf{Expr: parts[0]}, nil
	case core.TermEq, core.TermNe, core.TermLt, core.TermLe, core.TermGt, core.TermGe:
		parts, err := fixedArgs(tt, args, 2)
		if err != nil {
			return nil, err
		}
		return &core.Comparison{Op: core.CompareOp(tt), Left: parts[0], Right: parts[1]}, nil
	case core.TermAnd, core.TermOr:
		parts, err := parseArgs(args)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			return nil, arity(tt, args, 1)
		}
		return &core.Logical{Op: core.LogicalOp(tt), Args: parts}, nil
	case core.TermNot:
		parts, err := fixedArgs(tt, args, 1)
		if err != nil {
			return nil, err
		}
		return &core.Not{Expr: parts[0]}, nil
	case core.TermImplicitVar:
		return &core.ImplicitVar{}, nil
	case core.TermVar:
		if len(args) != 1 {
			return nil, arity(tt, args, 1)
		}
		id, ok := args[0].(float64)
		if !ok {
			return nil, protocolError("VAR id is not a number")
		}
		return &core.Var{ID: int(id)}, nil
	case core.TermFunc:
		return parseFunc(args)
	}
	return nil, protocolError("unsupported term type %d", int(tt))
}

func parseFunc(args []any) (core.Term, error) {
	if len(args) != 2 {
		return nil, arity(core.TermFunc, args, 2)
	}
	params, err := parseTerm(args[0])
	if err != nil {
		return nil, err
	}
	list, ok := params.(*core.Literal)
	if !ok || list.Kind != core.LiteralArray {
		return nil, protocolError("FUNC parameters must be an array")
	}
	ids := make([]int, 0, len(list.Elems))
	for _, e := range list.Elems {
		n, ok := e.(*core.Literal)
		if !ok || n.Kind != core.LiteralNumber {
			return nil, protocolError("FUNC parameter is not a number")
		}
		ids = append(ids, int(n.Number))
	}
	body, err := parseTerm(args[1])
	if err != nil {
		return nil, err
	}
	return &core.Func{Params: ids, Body: body}, nil
}

func parseArgs(args []any) ([]core.Term, error) {
	out := make([]core.Term, len(args))
	for i, a := range args {
		t, err := parseTerm(a)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func fixedArgs(tt core.TermType, args []any, n int) ([]core.Term, error) {
	if len(args) != n {
		return nil, arity(tt, args, n)
	}
	return parseArgs(args)
}

func stringArg(tt core.TermType, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", arity(tt, args, i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", protocolError("%s argument %d must be a string", tt, i)
	}
	return s, nil
}

func arity(tt core.TermType, args []any, want int) error {
	return protocolError("%s expects %d arguments, got %d", tt, want, len(args))
}
