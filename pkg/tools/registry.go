// Package tools provides a registry for workflow tools.
//
// Tools are discrete functions the model can call during a node's tool phase.
// Each tool has a name, a JSON Schema describing its parameters, and an
// execution function. The registry allows tools to be registered, discovered,
// and executed in a type-safe manner.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/cascade/pkg/errors"
	"github.com/tombee/cascade/pkg/llm"
)

// Tool represents an executable tool that workflow nodes can expose to the
// model.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// Parameters returns a JSON Schema object describing the tool's arguments
	Parameters() map[string]interface{}

	// Execute runs the tool with the given arguments and returns its result
	Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// Registry maintains a collection of registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry pre-populated with the given tools.
// Registration errors (duplicate or empty names) surface immediately.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name is already registered.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, &errors.NotFoundError{
			Resource: "tool",
			ID:       name,
		}
	}

	return tool, nil
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Defs builds the model-facing tool definitions for the named tools.
// Returns an error if any name is not registered.
func (r *Registry) Defs(names []string) ([]llm.ToolDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		tool, exists := r.tools[name]
		if !exists {
			return nil, &errors.NotFoundError{
				Resource: "tool",
				ID:       name,
			}
		}
		defs = append(defs, llm.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}

	return defs, nil
}

// Invoke executes a tool by name with the given arguments. Execution failures
// are wrapped in a ToolExecutionError so callers can distinguish a failing
// tool from an unknown one.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return nil, &errors.ToolExecutionError{
			Tool:  name,
			Cause: err,
		}
	}

	return result, nil
}
