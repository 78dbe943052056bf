// Package state provides the typed run-state record: a schema built once per
// workflow from the declared field list, map-backed records with typed
// accessors, per-field merge policies, and the prompt template resolver.
package state

import (
	"fmt"

	"github.com/tombee/cascade/pkg/flow"
)

// FieldType tags a state field's runtime type.
type FieldType string

const (
	// TypeString is a scalar string field.
	TypeString FieldType = "string"
	// TypeNumber is a scalar numeric field, represented as float64.
	TypeNumber FieldType = "number"
	// TypeBool is a scalar boolean field.
	TypeBool FieldType = "bool"
	// TypeList is a list-of-primitive field.
	TypeList FieldType = "list"
)

// MergePolicy is the per-field rule for combining a base value with a delta.
type MergePolicy string

const (
	// MergeLastWriter overwrites the base value with the delta value.
	// Applied to all scalar fields.
	MergeLastWriter MergePolicy = "last_writer_wins"

	// MergeConcat appends the delta list to the base list. Applied to list
	// fields so concurrent branch writes combine deterministically.
	MergeConcat MergePolicy = "concat"
)

// FieldSpec describes one declared state field.
type FieldSpec struct {
	// Name is the field identifier.
	Name string

	// Type is the runtime type tag.
	Type FieldType

	// Required marks fields the caller must supply at run start.
	Required bool

	// Default is the starting value when the caller omits the field.
	Default interface{}

	// Policy is the merge rule derived from the type.
	Policy MergePolicy

	// Index is the field's stable position in declaration order.
	Index int
}

// Schema is the field-index table built once per workflow. Immutable after
// construction; safe for concurrent use.
type Schema struct {
	fields []FieldSpec
	index  map[string]int
}

// BuildSchema constructs the schema from validated field declarations. Merge
// policies are derived from types: lists concatenate, scalars are
// last-writer-wins.
func BuildSchema(cfg flow.StateConfig) (*Schema, error) {
	s := &Schema{
		fields: make([]FieldSpec, 0, len(cfg.Fields)),
		index:  make(map[string]int, len(cfg.Fields)),
	}

	for i, field := range cfg.Fields {
		if _, exists := s.index[field.Name]; exists {
			return nil, fmt.Errorf("duplicate state field %q", field.Name)
		}

		fieldType := FieldType(field.Type)
		policy := MergeLastWriter
		if fieldType == TypeList {
			policy = MergeConcat
		}

		var def interface{}
		if field.Default != nil {
			coerced, err := coerce(field.Default, fieldType)
			if err != nil {
				return nil, fmt.Errorf("field %q default: %w", field.Name, err)
			}
			def = coerced
		}

		s.index[field.Name] = i
		s.fields = append(s.fields, FieldSpec{
			Name:     field.Name,
			Type:     fieldType,
			Required: field.Required,
			Default:  def,
			Policy:   policy,
			Index:    i,
		})
	}

	return s, nil
}

// Field returns the spec for a field name.
func (s *Schema) Field(name string) (*FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return &s.fields[i], true
}

// Fields returns all field specs in declaration order.
func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of declared fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// coerce normalizes a value to the field type's canonical representation:
// numbers become float64, lists are deep-copied. A value of the wrong type is
// an error.
func coerce(value interface{}, fieldType FieldType) (interface{}, error) {
	switch fieldType {
	case TypeString:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return v, nil
	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return nil, fmt.Errorf("expected number, got %T", value)
	case TypeBool:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return v, nil
	case TypeList:
		v, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", value)
		}
		return deepCopyList(v), nil
	default:
		return nil, fmt.Errorf("unknown field type %q", fieldType)
	}
}

func deepCopyList(list []interface{}) []interface{} {
	out := make([]interface{}, len(list))
	for i, item := range list {
		out[i] = deepCopyValue(item)
	}
	return out
}

func deepCopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []interface{}:
		return deepCopyList(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
