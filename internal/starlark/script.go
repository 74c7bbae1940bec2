// Package starlark loads change-feed queries from Starlark scripts.
//
// A script builds its query through the predeclared r module and assigns it
// to the global "query". An optional "options" dict supplies run options:
//
//	users = r.db("app").table("users")
//	query = users.filter(lambda u: u("age").ge(min_age)).changes(include_types=True)
//	options = {"durability": "soft"}
//
// Variables handed to Load are visible as globals.
package starlark

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/query"
)

// Script is the result of running a query script.
type Script struct {
	Name    string
	Query   query.Term
	Options core.Options
}

// Loader runs query scripts.
type Loader struct {
	logger *slog.Logger
	vars   map[string]any
}

// NewLoader creates a loader. print() output goes to logger at debug level.
// If logger is nil, a discard logger is used.
func NewLoader(logger *slog.Logger, vars map[string]any) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger, vars: vars}
}

// LoadFile reads and runs the script at path.
func (l *Loader) LoadFile(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return l.Load(filepath.Base(path), src)
}

// Load runs src and returns the query it defines.
func (l *Loader) Load(name string, src []byte) (*Script, error) {
	predeclared, err := l.predeclared()
	if err != nil {
		return nil, err
	}

	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			l.logger.Debug(msg, slog.String("script", name))
		},
	}

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, name, src, predeclared)
	if err != nil {
		return nil, err
	}

	q, ok := globals["query"]
	if !ok {
		return nil, fmt.Errorf("%s: script does not define query", name)
	}
	term, ok := q.(*Term)
	if !ok {
		return nil, fmt.Errorf("%s: query must be a term, got %s", name, q.Type())
	}

	script := &Script{Name: name, Query: term.t}
	if o, ok := globals["options"]; ok {
		gv, err := ToGo(o)
		if err != nil {
			return nil, fmt.Errorf("%s: options: %w", name, err)
		}
		m, ok := gv.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: options must be a dict, got %s", name, o.Type())
		}
		script.Options = core.Options(m)
	}
	return script, nil
}

func (l *Loader) predeclared() (starlark.StringDict, error) {
	dict := starlark.StringDict{
		"r": Module(),
	}
	for name, v := range l.vars {
		if _, ok := dict[name]; ok {
			return nil, fmt.Errorf("variable %q conflicts with builtin", name)
		}
		sv, err := GoToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		dict[name] = sv
	}
	return dict, nil
}

// Module returns the r module: db, table, row and expr.
func Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "r",
		Members: starlark.StringDict{
			"db":    starlark.NewBuiltin("db", rDB),
			"table": starlark.NewBuiltin("table", rTable),
			"expr":  starlark.NewBuiltin("expr", rExpr),
			"row":   &Term{t: query.Row},
		},
	}
}

func rDB(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return wrap(query.DB(name))
}

func rTable(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return wrap(query.Table(name))
}

func rExpr(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	t, err := liftValue(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return wrap(t)
}
