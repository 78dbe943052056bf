package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ExtractJSON attempts to extract JSON from a model response that may contain
// extra text, trying the raw text first, then markdown code blocks, then a
// balanced-brace scan.
func ExtractJSON(response string) (interface{}, error) {
	response = strings.TrimSpace(response)

	var data interface{}
	if err := json.Unmarshal([]byte(response), &data); err == nil {
		return data, nil
	}

	if extracted := extractFromCodeBlock(response); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &data); err == nil {
			return data, nil
		}
	}

	if extracted := extractJSONFromText(response); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &data); err == nil {
			return data, nil
		}
	}

	return nil, fmt.Errorf("could not extract valid JSON from response")
}

// extractFromCodeBlock extracts content from markdown code blocks.
func extractFromCodeBlock(text string) string {
	patterns := []string{
		"(?s)```json\\s*\\n(.+?)```",
		"(?s)```\\s*\\n(.+?)```",
	}

	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		if matches := re.FindStringSubmatch(text); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	return ""
}

// extractJSONFromText finds the first balanced JSON object or array in
// arbitrary text.
func extractJSONFromText(text string) string {
	var depth int
	var start int
	var inString bool
	var escape bool
	var foundStart bool

	for i, ch := range text {
		if escape {
			escape = false
			continue
		}

		switch ch {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				if depth == 0 {
					start = i
					foundStart = true
				}
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
				if depth == 0 && foundStart {
					return text[start : i+1]
				}
			}
		}
	}

	return ""
}
