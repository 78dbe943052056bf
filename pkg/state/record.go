package state

import (
	"fmt"
)

// Delta is a node's typed output: field name to new value. Deltas are merged
// into the running record by the orchestrator, never applied by nodes.
type Delta map[string]interface{}

// Record is the mutable typed state threaded through a run. One instance per
// run; nodes receive snapshots and never mutate the live record.
type Record struct {
	schema *Schema
	values map[string]interface{}
}

// NewRecord creates the run's initial record from caller inputs plus declared
// defaults. Unknown input fields, missing required fields, and type mismatches
// are errors.
func (s *Schema) NewRecord(inputs map[string]interface{}) (*Record, error) {
	for name := range inputs {
		if _, ok := s.index[name]; !ok {
			return nil, fmt.Errorf("unknown input field %q", name)
		}
	}

	values := make(map[string]interface{}, len(s.fields))
	for _, field := range s.fields {
		if raw, ok := inputs[field.Name]; ok {
			coerced, err := coerce(raw, field.Type)
			if err != nil {
				return nil, fmt.Errorf("input field %q: %w", field.Name, err)
			}
			values[field.Name] = coerced
			continue
		}
		if field.Required {
			return nil, fmt.Errorf("missing required input field %q", field.Name)
		}
		if field.Default != nil {
			values[field.Name] = deepCopyValue(field.Default)
		}
	}

	return &Record{schema: s, values: values}, nil
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Get returns a field's current value. The second return is false when the
// field has no value yet (and no default).
func (r *Record) Get(name string) (interface{}, bool) {
	v, ok := r.values[name]
	return v, ok
}

// GetString returns a string field's value, or "" when unset.
func (r *Record) GetString(name string) (string, error) {
	return typedGet[string](r, name, TypeString)
}

// GetNumber returns a number field's value, or 0 when unset.
func (r *Record) GetNumber(name string) (float64, error) {
	return typedGet[float64](r, name, TypeNumber)
}

// GetBool returns a bool field's value, or false when unset.
func (r *Record) GetBool(name string) (bool, error) {
	return typedGet[bool](r, name, TypeBool)
}

// GetList returns a copy of a list field's value, or nil when unset.
func (r *Record) GetList(name string) ([]interface{}, error) {
	list, err := typedGet[[]interface{}](r, name, TypeList)
	if err != nil || list == nil {
		return nil, err
	}
	return deepCopyList(list), nil
}

func typedGet[T any](r *Record, name string, want FieldType) (T, error) {
	var zero T
	field, ok := r.schema.Field(name)
	if !ok {
		return zero, fmt.Errorf("unknown state field %q", name)
	}
	if field.Type != want {
		return zero, fmt.Errorf("state field %q is %s, not %s", name, field.Type, want)
	}
	raw, ok := r.values[name]
	if !ok {
		return zero, nil
	}
	return raw.(T), nil
}

// Snapshot returns a deep copy of the record. Snapshots are what node
// executors and fork branches see; mutating one never affects the live
// record.
func (r *Record) Snapshot() *Record {
	values := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		values[k] = deepCopyValue(v)
	}
	return &Record{schema: r.schema, values: values}
}

// Values returns a deep copy of the record's contents, for outcomes and
// predicate environments.
func (r *Record) Values() map[string]interface{} {
	values := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		values[k] = deepCopyValue(v)
	}
	return values
}
