package filter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchemaFor generates a JSON-Schema mirror of defs for an optional
// second-opinion validation pass before the hand-written validator runs.
// Belt-and-suspenders: the hand-written validator in validate.go alone
// must satisfy every invariant in spec.md §8, this is never the sole
// source of truth.
func JSONSchemaFor(defs []Definition) (*jsonschema.Schema, error) {
	props := map[string]any{}
	for _, d := range defs {
		props[d.ID] = schemaProperty(d)
	}

	raw, err := json.Marshal(map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling generated schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	const resourceName = "filters.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("adding generated schema resource: %w", err)
	}
	return compiler.Compile(resourceName)
}

func schemaProperty(d Definition) map[string]any {
	switch d.Type {
	case TypeText:
		prop := map[string]any{"type": "string"}
		if d.MaxLength > 0 {
			prop["maxLength"] = d.MaxLength
		}
		return prop
	case TypeSelect:
		return map[string]any{"type": "string", "enum": optionValues(d.Options)}
	case TypeMultiSelect:
		prop := map[string]any{"type": "array", "items": map[string]any{"enum": optionValues(d.Options)}}
		if d.MaxSelections > 0 {
			prop["maxItems"] = d.MaxSelections
		}
		return prop
	case TypeTriState:
		return map[string]any{"type": "object"}
	case TypeNumberRange:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"min": map[string]any{"type": "number", "minimum": d.Min, "maximum": d.Max},
				"max": map[string]any{"type": "number", "minimum": d.Min, "maximum": d.Max},
			},
		}
	case TypeDateRange:
		return map[string]any{"type": "object"}
	case TypeBoolean:
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{}
	}
}

func optionValues(opts []Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out
}
