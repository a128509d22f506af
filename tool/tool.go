// Package tool defines the callable tool contracts used by the orchestration
// loop and the registry that holds them.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Parameter describes one tool argument.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean, object, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Result is the outcome of one tool execution. Output is the structured
// payload persisted to the audit trail; Text is what the reasoning engine
// sees on the next iteration.
type Result struct {
	Output     any
	Confidence float64
}

// Text renders the result payload for the reasoning engine.
func (r *Result) Text() string {
	if r == nil || r.Output == nil {
		return "{}"
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(data)
}

// Handler executes a tool with already-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (*Result, error)

// Tool is one external capability with a typed input contract.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Agent       string      `json:"agent,omitempty"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Execute validates args, applies declared defaults, and runs the handler.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	if t.Handler == nil {
		return nil, fmt.Errorf("tool %s has no handler", t.Name)
	}
	prepared, err := t.prepareArgs(args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", t.Name, err)
	}
	return t.Handler(ctx, prepared)
}

func (t *Tool) prepareArgs(args map[string]any) (map[string]any, error) {
	prepared := make(map[string]any, len(args))
	for k, v := range args {
		prepared[k] = v
	}
	for _, p := range t.Parameters {
		if _, ok := prepared[p.Name]; ok {
			continue
		}
		if p.Default != nil {
			prepared[p.Name] = p.Default
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("missing required parameter %q", p.Name)
		}
	}
	return prepared, nil
}

// ToJSONSchema returns the OpenAI function-call schema for the tool.
func (t *Tool) ToJSONSchema() map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	required := make([]string, 0)

	for _, p := range t.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// Registry is a thread-safe collection of tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool; registering the same name twice is an error.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

// List returns all registered tools ordered by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]*Tool, 0, len(r.tools))
	for _, name := range r.sortedNames() {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// ToJSONSchemas returns every tool in function-call schema form, ordered by
// name so successive reasoning calls see a stable tool list.
func (r *Registry) ToJSONSchemas() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.sortedNames() {
		schemas = append(schemas, r.tools[name].ToJSONSchema())
	}
	return schemas
}
