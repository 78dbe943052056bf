package state

import (
	"fmt"
)

// Apply merges a node delta into the record using each field's merge policy:
// scalars are overwritten (last writer wins), lists concatenate in apply
// order. Fork-join branch deltas are applied in branch declaration order, so
// concurrent list writes and scalar conflicts resolve deterministically.
func (r *Record) Apply(delta Delta) error {
	for name, raw := range delta {
		field, ok := r.schema.Field(name)
		if !ok {
			return fmt.Errorf("delta writes unknown state field %q", name)
		}

		value, err := coerce(raw, field.Type)
		if err != nil {
			return fmt.Errorf("delta field %q: %w", name, err)
		}

		switch field.Policy {
		case MergeConcat:
			base, _ := r.values[name].([]interface{})
			r.values[name] = append(base, value.([]interface{})...)
		default:
			r.values[name] = value
		}
	}
	return nil
}

// Accumulate folds a later delta into an accumulated one using the same merge
// policies. Fork branches use this to collect one contribution per branch:
// the branch's list-field appends concatenate while scalar writes keep the
// last value, and the accumulated delta is later applied to the shared record
// at the join barrier.
func (s *Schema) Accumulate(into Delta, delta Delta) error {
	for name, raw := range delta {
		field, ok := s.Field(name)
		if !ok {
			return fmt.Errorf("delta writes unknown state field %q", name)
		}

		value, err := coerce(raw, field.Type)
		if err != nil {
			return fmt.Errorf("delta field %q: %w", name, err)
		}

		switch field.Policy {
		case MergeConcat:
			base, _ := into[name].([]interface{})
			into[name] = append(base, value.([]interface{})...)
		default:
			into[name] = value
		}
	}
	return nil
}
