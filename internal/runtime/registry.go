package runtime

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
)

// ParamSpec describes one declared tool parameter. Type is a JSON schema
// primitive: string, integer, number, boolean, object or array.
type ParamSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Items       string // element type for array parameters
}

// ToolDeclaration is the schema a tool exposes to the backend's
// function-calling interface. Name is the unique registry key. ReadOnly
// marks tools whose results are deterministic for identical arguments and
// therefore safe to dedupe within one session.
type ToolDeclaration struct {
	Name        string
	DisplayName string
	Description string
	Parameters  []ParamSpec
	ReadOnly    bool
}

// Schema renders the declaration in the {type:"object", properties, required}
// export shape consumed by function-calling backends.
func (d ToolDeclaration) Schema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Type == "array" && p.Items != "" {
			prop["items"] = map[string]any{"type": p.Items}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"parameters": map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// Registry maps tool names to implementations, preserving insertion order.
// Re-registration under an existing name replaces the prior tool in place.
// A registry is built once per workspace configuration and is effectively
// immutable after setup; the lock covers concurrent reads during dispatch.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register inserts or replaces a tool by its declared name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := strings.TrimSpace(tool.Declaration().Name)
	if name == "" {
		return fmt.Errorf("tool declaration has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	return nil
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns the registered tools in insertion order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Declarations lists every registered tool's declaration in registry order,
// ready for export to the backend.
func (r *Registry) Declarations() []ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Declaration())
	}
	return out
}

// DecodeArguments parses the raw JSON argument payload of a tool call.
// Empty input yields an empty map; non-object payloads are rejected.
func DecodeArguments(raw string) (map[string]any, *ToolError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, toolErrorf(ToolErrInvalidParameters, "arguments are not valid JSON: %v", err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, toolErrorf(ToolErrInvalidParameters, "arguments must be a JSON object")
	}
	return obj, nil
}

// ValidateArguments is the one place dynamic input crosses into typed tool
// logic: the untyped map is checked against the declaration before execute.
// Missing required fields or wrong types fail closed; integer-ish floats are
// normalized to int64 so tools downstream see one integer shape.
func ValidateArguments(decl ToolDeclaration, args map[string]any) (map[string]any, *ToolError) {
	specByName := make(map[string]ParamSpec, len(decl.Parameters))
	for _, p := range decl.Parameters {
		specByName[p.Name] = p
		if p.Required {
			if _, ok := args[p.Name]; !ok {
				return nil, toolErrorf(ToolErrInvalidParameters, "missing required parameter %q", p.Name)
			}
		}
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		spec, ok := specByName[key]
		if !ok {
			return nil, toolErrorf(ToolErrInvalidParameters, "unknown parameter %q for tool %q", key, decl.Name)
		}
		coerced, err := coerceValue(spec, value)
		if err != nil {
			return nil, err
		}
		out[key] = coerced
	}
	return out, nil
}

func coerceValue(spec ParamSpec, value any) (any, *ToolError) {
	switch spec.Type {
	case "string":
		if s, ok := value.(string); ok {
			return s, nil
		}
	case "boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case "integer":
		switch n := value.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if math.Trunc(n) == n {
				return int64(n), nil
			}
		case json.Number:
			if v, err := n.Int64(); err == nil {
				return v, nil
			}
		}
	case "number":
		switch n := value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			if v, err := n.Float64(); err == nil {
				return v, nil
			}
		}
	case "object":
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
	case "array":
		if a, ok := value.([]any); ok {
			return a, nil
		}
	default:
		return nil, toolErrorf(ToolErrInvalidParameters, "parameter %q has unsupported schema type %q", spec.Name, spec.Type)
	}
	return nil, toolErrorf(ToolErrInvalidParameters, "parameter %q expects %s, got %T", spec.Name, spec.Type, value)
}

// Typed argument accessors used by tools after validation.

func stringArg(args map[string]any, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func intArg(args map[string]any, key string) (int, bool) {
	switch n := args[key].(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func boolArg(args map[string]any, key string) (bool, bool) {
	if b, ok := args[key].(bool); ok {
		return b, true
	}
	return false, false
}
