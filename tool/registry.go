package tool

import (
	"fmt"
	"sort"

	"github.com/hupe1980/crewmesh/model"
)

// Registry maps tool names to implementations. It is populated at startup and
// read-only afterwards; lookups are safe for concurrent use once registration
// is complete.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools. Duplicate or empty names are rejected.
func (r *Registry) Register(tools ...Tool) error {
	for _, t := range tools {
		if t == nil {
			return fmt.Errorf("tool is nil")
		}
		name := t.Name()
		if name == "" {
			return fmt.Errorf("tool name is empty")
		}
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool %q already registered", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Subset returns a registry restricted to names. Unknown names are an error
// so misconfigured agents fail at startup.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := &Registry{tools: make(map[string]Tool, len(names))}
	var missing []string
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		if _, dup := sub.tools[name]; dup {
			continue
		}
		sub.tools[name] = t
		sub.order = append(sub.order, name)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown tools: %v", missing)
	}
	return sub, nil
}

// With returns a new registry containing r's tools followed by extra.
func (r *Registry) With(extra ...Tool) (*Registry, error) {
	out, err := NewRegistry(r.Tools()...)
	if err != nil {
		return nil, err
	}
	if err := out.Register(extra...); err != nil {
		return nil, err
	}
	return out, nil
}

// Definitions returns model schemas for every tool in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	tools := r.Tools()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Definition(t))
	}
	return defs
}
