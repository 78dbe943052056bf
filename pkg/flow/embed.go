package flow

import (
	_ "embed"
)

// Embed the config JSON Schema into the binary so structural validation works
// without any filesystem access. The schema also enables IDE autocompletion
// and schema-based tooling.
//
//go:embed flow.schema.json
var configSchema []byte

// ConfigSchema returns the embedded config JSON Schema as raw bytes.
func ConfigSchema() []byte {
	return configSchema
}
