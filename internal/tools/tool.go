package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownTool is returned when no tool is registered under a name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrMissingArgument is returned when a required parameter is absent or empty.
	ErrMissingArgument = errors.New("missing required argument")
)

// Tool is a capability the host agent framework can call.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]ParameterDefinition
	OutputType() string
	Invoke(ctx context.Context, args map[string]string) (string, error)
}

// ParameterDefinition describes one tool parameter.
type ParameterDefinition struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Definition is the serialisable description of a tool.
type Definition struct {
	Name        string                         `json:"name"`
	Description string                         `json:"description"`
	Parameters  map[string]ParameterDefinition `json:"parameters"`
	OutputType  string                         `json:"output_type"`
}

// ToDefinition converts a tool to its definition.
func ToDefinition(tool Tool) Definition {
	return Definition{
		Name:        tool.Name(),
		Description: tool.Description(),
		Parameters:  tool.Parameters(),
		OutputType:  tool.OutputType(),
	}
}

// CheckArguments verifies every required parameter of tool is supplied.
// Empty values count as supplied; the tool decides what they mean.
func CheckArguments(tool Tool, args map[string]string) error {
	names := make([]string, 0)
	for name, def := range tool.Parameters() {
		if _, ok := args[name]; def.Required && !ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return fmt.Errorf("%w: %v", ErrMissingArgument, names)
}

// Registry holds the tools exposed by the service.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool, nil
}

// Definitions lists all registered tools ordered by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ToDefinition(tool))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
