package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InstructionSuffix renders the schema instruction appended to the node's
// prompt on the first structured-output call.
func (v *Validator) InstructionSuffix() string {
	return fmt.Sprintf("\n\nPlease respond with valid JSON matching this structure:\n%s", v.describe())
}

// CorrectionPrompt renders the message appended after a failed validation
// attempt. Instructions escalate: the first correction restates the schema
// with the failure, later ones demand bare JSON and include an example.
func (v *Validator) CorrectionPrompt(attempt int, lastErr error) string {
	if attempt <= 1 {
		return fmt.Sprintf(
			"Your previous response didn't match the required format (%v). Please respond with valid JSON matching this schema:\n%s\n\nRespond ONLY with the JSON object, no additional text.",
			lastErr, v.describe())
	}
	return fmt.Sprintf(
		"CRITICAL: You must respond with ONLY valid JSON. No explanations, no markdown, just the JSON object.\n\nRequired format:\n%s\n\nExample:\n%s",
		v.describe(), v.example())
}

// describe renders a human-readable description of the contract.
func (v *Validator) describe() string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, f := range v.fields {
		if i > 0 {
			sb.WriteString(",\n")
		}
		fmt.Fprintf(&sb, "  %q: %s (required)", f.name, jsonType(f.fieldType))
	}
	sb.WriteString("\n}")
	return sb.String()
}

// example renders an example JSON document matching the contract.
func (v *Validator) example() string {
	obj := make(map[string]interface{}, len(v.fields))
	for _, f := range v.fields {
		obj[f.name] = exampleValue(f.fieldType)
	}
	jsonBytes, _ := json.MarshalIndent(obj, "", "  ")
	return string(jsonBytes)
}

func exampleValue(fieldType string) interface{} {
	switch fieldType {
	case "string":
		return "example"
	case "number":
		return 42
	case "bool":
		return true
	case "list":
		return []interface{}{"example"}
	default:
		return nil
	}
}
