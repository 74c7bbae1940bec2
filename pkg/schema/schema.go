// Package schema loads declared table layouts from YAML. A declared table
// lets the query builder reject unknown fields and impossible type checks
// before anything is sent, and lets the decoder validate documents
// against a generated JSON Schema.
//
// File format:
//
//	tables:
//	  test:
//	    fields:
//	      id: STRING
//	      test: NUMBER
//	    required: [id]
//	    strict: false
package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Table is the declared layout of one table's documents.
type Table struct {
	Name     string                    `yaml:"-"`
	Fields   map[string]core.FieldType `yaml:"fields"`
	Required []string                  `yaml:"required"`
	// Strict rejects documents carrying undeclared fields.
	Strict bool `yaml:"strict"`
}

var _ core.FieldResolver = (*Table)(nil)

// ResolveField implements core.FieldResolver.
func (t *Table) ResolveField(name string) (core.FieldType, bool) {
	ft, ok := t.Fields[name]
	return ft, ok
}

// FieldNames returns the declared fields, sorted.
func (t *Table) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry holds every declared table by name. Names may be qualified
// ("db.table").
type Registry struct {
	Tables map[string]*Table `yaml:"tables"`
}

// Load reads a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates registry YAML.
func Parse(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if r.Tables == nil {
		r.Tables = make(map[string]*Table)
	}
	for name, t := range r.Tables {
		if t == nil {
			t = &Table{}
			r.Tables[name] = t
		}
		t.Name = name
		if err := t.validate(); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func (t *Table) validate() error {
	for field, ft := range t.Fields {
		if ft != core.TypeAny && !core.ValidFieldType(string(ft)) {
			return fmt.Errorf("table %s: field %s has unknown type %q", t.Name, field, ft)
		}
	}
	for _, req := range t.Required {
		if _, ok := t.Fields[req]; !ok {
			return fmt.Errorf("table %s: required field %s is not declared", t.Name, req)
		}
	}
	return nil
}

// Table looks up a table by qualified or bare name. A bare lookup also
// matches a qualified declaration when exactly one database declares it.
func (r *Registry) Table(name string) (*Table, bool) {
	if t, ok := r.Tables[name]; ok {
		return t, true
	}
	if strings.Contains(name, ".") {
		_, bare, _ := strings.Cut(name, ".")
		t, ok := r.Tables[bare]
		return t, ok
	}
	var found *Table
	for qualified, t := range r.Tables {
		if _, bare, ok := strings.Cut(qualified, "."); ok && bare == name {
			if found != nil {
				return nil, false
			}
			found = t
		}
	}
	return found, found != nil
}

// Names returns the declared table names, sorted.
func (r *Registry) Names() []string {
	return core.SortedKeys(r.Tables)
}
