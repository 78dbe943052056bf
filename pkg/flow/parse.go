package flow

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/tombee/cascade/pkg/errors"
)

// Parse parses a YAML config document and runs the structural validation
// phase. The returned Config has defaults applied and node-level loop blocks
// normalized into edges; the graph phase (ValidateGraph) still has to run
// before the document can be compiled.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config document")
	}

	cfg.applyDefaults()

	if err := cfg.validateStructure(); err != nil {
		return nil, err
	}
	cfg.normalizeLoops()

	return &cfg, nil
}

// validateSchema checks the raw document against the embedded JSON Schema.
// The YAML is decoded and re-encoded as JSON because the schema validator
// operates on JSON documents.
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "config document is not valid YAML")
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "config document cannot be represented as JSON")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(configSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return errors.Wrap(err, "schema validation failed")
	}

	if result.Valid() {
		return nil
	}

	violations := make([]*errors.Violation, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		violations = append(violations, &errors.Violation{
			Path:    resultErr.Field(),
			Message: resultErr.Description(),
		})
	}
	return &errors.ConfigValidationError{Phase: "structural", Violations: violations}
}

// validateStructure runs the struct-level checks the JSON Schema cannot
// express: uniqueness, cross-field consistency within a single element, and
// default-value typing. Findings are aggregated so authors see all of them.
func (c *Config) validateStructure() error {
	var merr *multierror.Error

	merr = multierror.Append(merr, c.State.validate()...)

	seen := make(map[string]bool, len(c.Nodes))
	for i := range c.Nodes {
		node := &c.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		if seen[node.ID] {
			merr = multierror.Append(merr, &errors.Violation{
				Path:    path + ".id",
				Message: fmt.Sprintf("duplicate node id %q", node.ID),
			})
		}
		seen[node.ID] = true
		merr = multierror.Append(merr, node.validate(path)...)
	}

	if merr.ErrorOrNil() == nil {
		return nil
	}

	violations := make([]*errors.Violation, 0, merr.Len())
	for _, err := range merr.Errors {
		var v *errors.Violation
		if errors.As(err, &v) {
			violations = append(violations, v)
			continue
		}
		violations = append(violations, &errors.Violation{Path: "config", Message: err.Error()})
	}
	return &errors.ConfigValidationError{Phase: "structural", Violations: violations}
}

func (s *StateConfig) validate() []error {
	var errs []error
	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		field := &s.Fields[i]
		path := fmt.Sprintf("state.fields[%d]", i)
		if seen[field.Name] {
			errs = append(errs, &errors.Violation{
				Path:    path + ".name",
				Message: fmt.Sprintf("duplicate state field %q", field.Name),
			})
		}
		seen[field.Name] = true

		if field.Required && field.Default != nil {
			errs = append(errs, &errors.Violation{
				Path:       path,
				Message:    fmt.Sprintf("field %q is required but declares a default", field.Name),
				Suggestion: "drop the default or the required flag; a defaulted field is never missing",
			})
		}
		if field.Default != nil && !defaultMatchesType(field.Default, field.Type) {
			errs = append(errs, &errors.Violation{
				Path:    path + ".default",
				Message: fmt.Sprintf("default value %v does not match declared type %q", field.Default, field.Type),
			})
		}
	}
	return errs
}

func (n *NodeConfig) validate(path string) []error {
	var errs []error

	declared := make(map[string]bool, len(n.Outputs))
	for _, out := range n.Outputs {
		declared[out] = true
	}
	for field := range n.OutputSchema {
		if !declared[field] {
			errs = append(errs, &errors.Violation{
				Path:       fmt.Sprintf("%s.output_schema.%s", path, field),
				Message:    fmt.Sprintf("output_schema entry %q is not in the node's outputs list", field),
				Suggestion: fmt.Sprintf("add %q to outputs or remove the schema entry", field),
			})
		}
	}

	return errs
}

// defaultMatchesType reports whether a YAML-decoded default value fits a
// declared field type.
func defaultMatchesType(value interface{}, fieldType string) bool {
	switch fieldType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case int, int64, float64:
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

// applyDefaults fills optional settings the document omitted.
func (c *Config) applyDefaults() {
	if c.Flow.Version == "" {
		c.Flow.Version = DefaultVersion
	}
	if c.Settings.LLM.Model == "" {
		c.Settings.LLM.Model = DefaultModel
	}
	if c.Settings.Execution.TimeoutSeconds == 0 {
		c.Settings.Execution.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Settings.Execution.MaxToolIterations == 0 {
		c.Settings.Execution.MaxToolIterations = DefaultMaxToolIterations
	}
}

// normalizeLoops rewrites node-level loop blocks into loop edges so the graph
// phase and the compiler only ever see edge-level loops. A node that declares
// a loop block and also has an outgoing edge keeps both; the conflict is
// reported by the graph phase, not here.
func (c *Config) normalizeLoops() {
	for i := range c.Nodes {
		node := &c.Nodes[i]
		if node.Loop == nil {
			continue
		}
		if c.hasEdgeFrom(node.ID) {
			continue
		}
		c.Edges = append(c.Edges, EdgeConfig{From: node.ID, Loop: node.Loop})
	}
}

func (c *Config) hasEdgeFrom(id string) bool {
	for i := range c.Edges {
		if c.Edges[i].From == id {
			return true
		}
	}
	return false
}
