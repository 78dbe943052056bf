package state

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/tombee/cascade/pkg/errors"
)

// placeholderPattern matches {state.field} references inside prompts.
var placeholderPattern = regexp.MustCompile(`\{state\.([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Resolve substitutes {state.field} placeholders in a prompt with the field's
// current value, string-rendered. Pure: the record is only read.
//
// A placeholder naming an undeclared field returns a TemplateError. The
// validator catches these in the common case; the resolver re-checks because
// prompts are plain strings, not statically analyzed.
func Resolve(prompt string, record *Record) (string, error) {
	var resolveErr error

	resolved := placeholderPattern.ReplaceAllStringFunc(prompt, func(placeholder string) string {
		if resolveErr != nil {
			return placeholder
		}
		field := placeholderPattern.FindStringSubmatch(placeholder)[1]

		if _, declared := record.Schema().Field(field); !declared {
			resolveErr = &errors.TemplateError{Field: field, Placeholder: placeholder}
			return placeholder
		}

		value, ok := record.Get(field)
		if !ok {
			return ""
		}
		return render(value)
	})

	if resolveErr != nil {
		return "", resolveErr
	}
	return resolved, nil
}

// render turns a state value into its prompt representation. Numbers render
// without a trailing ".0" for whole values; lists render as JSON.
func render(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
