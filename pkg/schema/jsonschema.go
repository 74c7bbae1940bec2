package schema

import (
	"github.com/goccy/go-json"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/decode"
)

func fieldSchema(ft core.FieldType) map[string]any {
	switch ft {
	case core.TypeNumber:
		return map[string]any{"type": "number"}
	case core.TypeString:
		return map[string]any{"type": "string"}
	case core.TypeBool:
		return map[string]any{"type": "boolean"}
	case core.TypeNull:
		return map[string]any{"type": "null"}
	case core.TypeObject:
		return map[string]any{"type": "object"}
	case core.TypeArray:
		return map[string]any{"type": "array"}
	case core.TypeTime:
		return pseudoType("TIME")
	case core.TypeBinary:
		return pseudoType("BINARY")
	}
	return map[string]any{}
}

func pseudoType(name string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"$reql_type$": map[string]any{"const": name}},
		"required":   []string{"$reql_type$"},
	}
}

// DocumentSchema returns the JSON Schema of one row.
func (t *Table) DocumentSchema() map[string]any {
	props := make(map[string]any, len(t.Fields))
	for name, ft := range t.Fields {
		props[name] = fieldSchema(ft)
	}
	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": !t.Strict,
	}
	if len(t.Required) > 0 {
		s["required"] = t.Required
	}
	return s
}

// ChangeSchema returns the JSON Schema of a change document on this table.
func (t *Table) ChangeSchema() ([]byte, error) {
	side := map[string]any{"anyOf": []any{map[string]any{"type": "null"}, t.DocumentSchema()}}
	return json.Marshal(map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   t.Name + " change",
		"type":    "object",
		"properties": map[string]any{
			"old_val": side,
			"new_val": side,
			"type":    map[string]any{"type": "string"},
		},
	})
}

// DecodeOption validates decoded changes against the table's schema.
func (t *Table) DecodeOption() (decode.Option, error) {
	s, err := t.ChangeSchema()
	if err != nil {
		return nil, err
	}
	return decode.WithJSONSchema(s), nil
}
