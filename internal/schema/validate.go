package schema

import (
	"encoding/json"
	"fmt"
)

// Arguments are tool arguments that passed validation. Only fields declared
// in the tool's schema are retained.
type Arguments struct {
	values map[string]any
}

// String returns a declared string field, or "" when the optional field was
// not supplied.
func (a Arguments) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

// Validate checks raw against the tool's schema. raw is the decoded JSON
// arguments object; nil is treated as an empty object.
func Validate(t *Tool, raw any) (Arguments, error) {
	var reasons []string
	values := make(map[string]any)

	obj, ok := raw.(map[string]any)
	if raw == nil {
		ok = true
	}
	if !ok {
		reasons = append(reasons, fmt.Sprintf("arguments must be an object, got %s", kindOf(raw)))
		return Arguments{}, &ValidationError{Tool: t.Name, Reasons: reasons}
	}

	for _, f := range t.Schema.Fields {
		v, present := obj[f.Name]
		if !present || v == nil {
			if f.Required {
				reasons = append(reasons, fmt.Sprintf("missing required field %q", f.Name))
			}
			continue
		}
		if got := kindOf(v); got != string(f.Node.Kind) {
			reasons = append(reasons, fmt.Sprintf("field %q must be %s, got %s", f.Name, f.Node.Kind, got))
			continue
		}
		values[f.Name] = v
	}

	if len(reasons) > 0 {
		return Arguments{}, &ValidationError{Tool: t.Name, Reasons: reasons}
	}
	return Arguments{values: values}, nil
}

// kindOf names the JSON kind of a decoded value.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
