package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/leapstack-labs/changefeed/internal/cli/config"
	"github.com/leapstack-labs/changefeed/internal/starlark"
	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/query"
	"github.com/leapstack-labs/changefeed/pkg/schema"
)

// QueryOptions describes a change query given on the command line, either
// through flags or a Starlark script.
type QueryOptions struct {
	Script     string
	Vars       []string
	DB         string
	Table      string
	HasFields  []string
	TypeOf     []string
	Changes    []string
	RunOptions []string
	Read       bool // omit changes() and read the table once
}

// AddFlags registers the query flags on fs.
func (o *QueryOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Script, "script", "", "Starlark script that defines the query")
	fs.StringArrayVar(&o.Vars, "var", nil, "Script variable as key=value (repeatable)")
	fs.StringVar(&o.DB, "db", "", "Database holding the table (default: the target's)")
	fs.StringVar(&o.Table, "table", "", "Table to watch")
	fs.StringArrayVar(&o.HasFields, "has-field", nil, "Only documents with this field (repeatable)")
	fs.StringArrayVar(&o.TypeOf, "type-of", nil, "Only documents whose field has a type, as field=TYPE (repeatable)")
	fs.StringArrayVar(&o.Changes, "option", nil, "changes() option as key=value (repeatable)")
	fs.StringArrayVar(&o.RunOptions, "run-option", nil, "Global query option as key=value (repeatable)")
}

// BuiltQuery is a query ready to serialize.
type BuiltQuery struct {
	Term       query.Term
	RunOptions core.Options
	// Schema is the declared layout of the watched table, if any.
	Schema *schema.Table
}

// Build assembles the query. registry may be nil.
func (o *QueryOptions) Build(registry *schema.Registry, logger *slog.Logger) (*BuiltQuery, error) {
	runOpts, err := parseOptions(o.RunOptions)
	if err != nil {
		return nil, fmt.Errorf("--run-option: %w", err)
	}

	if o.Script != "" {
		if o.Table != "" || len(o.HasFields) > 0 || len(o.TypeOf) > 0 || len(o.Changes) > 0 {
			return nil, fmt.Errorf("--script cannot be combined with --table, --has-field, --type-of or --option")
		}
		return o.buildScript(runOpts, logger)
	}
	if o.Table == "" {
		return nil, fmt.Errorf("either --table or --script is required")
	}

	built := &BuiltQuery{RunOptions: runOpts}
	var src query.Term
	if o.DB != "" {
		src = query.DB(o.DB)
	}
	if registry != nil {
		if t, ok := registry.Table(o.qualifiedTable()); ok {
			built.Schema = t
		}
	}
	switch {
	case built.Schema != nil && o.DB != "":
		src = src.TableWithSchema(o.Table, built.Schema)
	case built.Schema != nil:
		src = query.TableWithSchema(o.Table, built.Schema)
	case o.DB != "":
		src = src.Table(o.Table)
	default:
		src = query.Table(o.Table)
	}

	pred, err := o.predicate()
	if err != nil {
		return nil, err
	}
	if pred != nil {
		src = src.Filter(*pred)
	}

	if !o.Read {
		opts, err := parseOptions(o.Changes)
		if err != nil {
			return nil, fmt.Errorf("--option: %w", err)
		}
		if len(opts) > 0 {
			src = src.Changes(opts)
		} else {
			src = src.Changes()
		}
	} else if len(o.Changes) > 0 {
		return nil, fmt.Errorf("--option applies to change queries; drop --read")
	}

	if err := src.Err(); err != nil {
		return nil, err
	}
	built.Term = src
	return built, nil
}

func (o *QueryOptions) qualifiedTable() string {
	if o.DB == "" {
		return o.Table
	}
	return o.DB + "." + o.Table
}

// predicate joins --has-field and --type-of into one filter, has-field
// checks first, in flag order.
func (o *QueryOptions) predicate() (*query.Term, error) {
	var parts []query.Term
	for _, f := range o.HasFields {
		parts = append(parts, query.Row.HasFields(f))
	}
	for _, spec := range o.TypeOf {
		field, typ, ok := strings.Cut(spec, "=")
		if !ok || field == "" || typ == "" {
			return nil, fmt.Errorf("--type-of %q: expected field=TYPE", spec)
		}
		parts = append(parts, query.Row.Field(field).TypeOf().Eq(typ))
	}
	if len(parts) == 0 {
		return nil, nil
	}
	pred := parts[0]
	if len(parts) > 1 {
		pred = pred.And(parts[1:]...)
	}
	return &pred, nil
}

func (o *QueryOptions) buildScript(runOpts core.Options, logger *slog.Logger) (*BuiltQuery, error) {
	vars := make(map[string]any, len(o.Vars))
	for _, kv := range o.Vars {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--var %q: expected key=value", kv)
		}
		vars[k] = parseValue(v)
	}

	script, err := starlark.NewLoader(logger, vars).LoadFile(o.Script)
	if err != nil {
		return nil, err
	}
	if err := script.Query.Err(); err != nil {
		return nil, err
	}

	// Command-line run options win over the script's.
	merged := make(core.Options, len(script.Options)+len(runOpts))
	for k, v := range script.Options {
		merged[k] = v
	}
	for k, v := range runOpts {
		merged[k] = v
	}
	if len(merged) == 0 {
		merged = nil
	}
	return &BuiltQuery{Term: script.Query, RunOptions: merged}, nil
}

func parseOptions(pairs []string) (core.Options, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	opts := make(core.Options, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q: expected key=value", kv)
		}
		opts[k] = parseValue(v)
	}
	return opts, nil
}

// parseValue reads a flag value as a bool, a number or a string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// loadSchema reads the configured schema file, if any.
func loadSchema(cfg *config.Config) (*schema.Registry, error) {
	if cfg.SchemaFile == "" {
		return nil, nil
	}
	if err := cfg.ValidateSchemaFile(); err != nil {
		return nil, err
	}
	reg, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return reg, nil
}
