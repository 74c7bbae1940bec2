package core

import (
	"fmt"
	"sort"
)

// Options maps option names to values. Values are JSON-compatible
// Go values: bool, float64/int, string.
type Options map[string]any

// Clone returns a shallow copy of o. A nil receiver yields an empty map.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Merge returns a copy of o with every entry of other applied on top.
func (o Options) Merge(other Options) Options {
	out := o.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Bool reads a boolean option, falling back to the spec default.
func (o Options) Bool(name string, specs map[string]OptionSpec) bool {
	if v, ok := o[name].(bool); ok {
		return v
	}
	if spec, ok := specs[name]; ok {
		if b, ok := spec.Default.(bool); ok {
			return b
		}
	}
	return false
}

// OptionKind is the accepted value shape of an option.
type OptionKind int

// OptionKind constants.
const (
	OptionBool OptionKind = iota
	OptionNumber
	OptionString
	OptionBoolOrNumber
)

func (k OptionKind) String() string {
	switch k {
	case OptionBool:
		return "bool"
	case OptionNumber:
		return "number"
	case OptionString:
		return "string"
	case OptionBoolOrNumber:
		return "bool|number"
	}
	return "unknown"
}

// OptionSpec describes a recognized option.
type OptionSpec struct {
	Name        string
	Kind        OptionKind
	Default     any
	Allowed     []string // for string options; empty accepts any string
	Description string
}

// Check validates a value against the spec.
func (s OptionSpec) Check(v any) error {
	switch s.Kind {
	case OptionBool:
		if _, ok := v.(bool); ok {
			return nil
		}
	case OptionNumber:
		if isNumber(v) {
			return nil
		}
	case OptionBoolOrNumber:
		if _, ok := v.(bool); ok {
			return nil
		}
		if isNumber(v) {
			return nil
		}
	case OptionString:
		str, ok := v.(string)
		if !ok {
			break
		}
		if len(s.Allowed) == 0 {
			return nil
		}
		for _, a := range s.Allowed {
			if a == str {
				return nil
			}
		}
		return fmt.Errorf("option %q: value %q not one of %v", s.Name, str, s.Allowed)
	}
	return fmt.Errorf("option %q: expected %s, got %T", s.Name, s.Kind, v)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// ChangesOptions are the options recognized on a Changes term.
var ChangesOptions = map[string]OptionSpec{
	"include_types": {
		Name: "include_types", Kind: OptionBool, Default: false,
		Description: "annotate each change with its result type",
	},
	"include_initial": {
		Name: "include_initial", Kind: OptionBool, Default: false,
		Description: "emit the current contents before live changes",
	},
	"include_states": {
		Name: "include_states", Kind: OptionBool, Default: false,
		Description: "emit feed state documents",
	},
	"include_offsets": {
		Name: "include_offsets", Kind: OptionBool, Default: false,
		Description: "include ordered-limit offsets",
	},
	"squash": {
		Name: "squash", Kind: OptionBoolOrNumber, Default: false,
		Description: "collapse changes within a window (seconds)",
	},
	"changefeed_queue_size": {
		Name: "changefeed_queue_size", Kind: OptionNumber, Default: 100000,
		Description: "server-side buffer size before the feed errors",
	},
}

// RunOptions are the global options recognized on a query.
var RunOptions = map[string]OptionSpec{
	"db": {
		Name: "db", Kind: OptionString, Default: "test",
		Description: "default database for unqualified tables",
	},
	"read_mode": {
		Name: "read_mode", Kind: OptionString, Default: "single",
		Allowed:     []string{"single", "majority", "outdated"},
		Description: "replica read consistency",
	},
	"durability": {
		Name: "durability", Kind: OptionString, Default: "hard",
		Allowed:     []string{"hard", "soft"},
		Description: "write durability",
	},
	"profile": {
		Name: "profile", Kind: OptionBool, Default: false,
		Description: "return a query profile",
	},
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
