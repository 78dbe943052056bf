// Package schema builds per-node output contracts: a validator for the model's
// structured response plus the prompt instructions that describe it.
package schema

import (
	"fmt"
)

// fieldSpec pairs an output field with its declared type.
type fieldSpec struct {
	name      string
	fieldType string
}

// Validator checks a raw model response against one node's output contract.
// Built once per node at compile time; pure and safe for concurrent use.
type Validator struct {
	nodeID string
	fields []fieldSpec
}

// BuildValidator constructs the validator for a node. outputs is the node's
// declared output field list in declaration order; types maps each field to
// its type tag (string, number, bool, list).
func BuildValidator(nodeID string, outputs []string, types map[string]string) (*Validator, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("node %q declares no outputs", nodeID)
	}

	fields := make([]fieldSpec, 0, len(outputs))
	for _, name := range outputs {
		t, ok := types[name]
		if !ok {
			return nil, fmt.Errorf("node %q: no type for output field %q", nodeID, name)
		}
		switch t {
		case "string", "number", "bool", "list":
		default:
			return nil, fmt.Errorf("node %q: unsupported output type %q for field %q", nodeID, t, name)
		}
		fields = append(fields, fieldSpec{name: name, fieldType: t})
	}

	return &Validator{nodeID: nodeID, fields: fields}, nil
}

// NodeID returns the node this validator belongs to.
func (v *Validator) NodeID() string {
	return v.nodeID
}

// Fields returns the declared output field names in declaration order.
func (v *Validator) Fields() []string {
	names := make([]string, 0, len(v.fields))
	for _, f := range v.fields {
		names = append(names, f.name)
	}
	return names
}

// Validate extracts JSON from a raw model response and checks it against the
// node's output contract. Every declared field must be present with the right
// type; fields outside the contract are stripped. The returned delta contains
// exactly the declared fields.
func (v *Validator) Validate(raw string) (map[string]interface{}, error) {
	data, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", data)
	}

	delta := make(map[string]interface{}, len(v.fields))
	for _, f := range v.fields {
		value, exists := obj[f.name]
		if !exists {
			return nil, &FieldError{Field: f.name, Reason: "missing"}
		}
		if !matchesType(value, f.fieldType) {
			return nil, &FieldError{
				Field:  f.name,
				Reason: fmt.Sprintf("expected %s, got %T", f.fieldType, value),
			}
		}
		delta[f.name] = value
	}

	return delta, nil
}

// JSONSchema renders the contract as a JSON Schema object for providers with
// native structured-output support.
func (v *Validator) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(v.fields))
	required := make([]interface{}, 0, len(v.fields))
	for _, f := range v.fields {
		properties[f.name] = map[string]interface{}{"type": jsonType(f.fieldType)}
		required = append(required, f.name)
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// matchesType reports whether a JSON-decoded value fits a declared type tag.
func matchesType(value interface{}, fieldType string) bool {
	switch fieldType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "bool":
		_, ok := value.(bool)
		return ok
	case "list":
		_, ok := value.([]interface{})
		return ok
	default:
		return false
	}
}

// jsonType maps a field type tag to its JSON Schema type name.
func jsonType(fieldType string) string {
	switch fieldType {
	case "bool":
		return "boolean"
	case "list":
		return "array"
	default:
		return fieldType
	}
}
