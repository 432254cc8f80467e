package jolt

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Transform is a named chain spec together with the chart it feeds.
type Transform struct {
	Name      string `json:"name" yaml:"name"`
	ChartType string `json:"chartType" yaml:"chartType"`
	Title     string `json:"title" yaml:"title"`
	Spec      any    `json:"spec" yaml:"spec"`

	chainr *Chainr
}

// Apply runs the compiled chain on input.
func (t *Transform) Apply(input any) (any, error) {
	return t.chainr.Transform(input)
}

// Registry holds the named transforms served under /jolt/<name>.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Transform
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Transform)}
}

func shiftStudents(fields map[string]any) any {
	return []any{map[string]any{
		"operation": string(OpShift),
		"spec": map[string]any{
			`Student\[\]`: map[string]any{"*": fields},
		},
	}}
}

// DefaultRegistry returns a registry with the grade, gender and age distributions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := []Transform{
		{Name: "grade-distribution", ChartType: "bar", Title: "学生年级分布",
			Spec: shiftStudents(map[string]any{"grade": "categories[]", "count": "values[]"})},
		{Name: "gender-distribution", ChartType: "pie", Title: "学生性别分布",
			Spec: shiftStudents(map[string]any{
				"gender": []any{"[&1].gender", "[&1].name"},
				"count":  "[&1].value",
			})},
		{Name: "age-distribution", ChartType: "line", Title: "学生年龄分布",
			Spec: shiftStudents(map[string]any{"age": "categories[]", "count": "values[]"})},
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			panic(fmt.Sprintf("builtin transform %s: %v", t.Name, err))
		}
	}
	return r
}

// Register compiles t and adds or replaces it.
func (r *Registry) Register(t Transform) error {
	if t.Name == "" {
		return fmt.Errorf("%w: transform without a name", ErrInvalidSpec)
	}
	spec, err := normalizeSpec(t.Spec)
	if err != nil {
		return fmt.Errorf("transform %s: %w", t.Name, err)
	}
	c, err := NewChainr(spec)
	if err != nil {
		return fmt.Errorf("transform %s: %w", t.Name, err)
	}
	t.Spec, t.chainr = spec, c

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.items[t.Name] = &t
	return nil
}

// Lookup returns the transform registered under name.
func (r *Registry) Lookup(name string) (*Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[name]
	return t, ok
}

// Names lists the transforms in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

type registryFile struct {
	Transforms []Transform `yaml:"transforms"`
}

// LoadFile registers every transform of a YAML file:
//
//	transforms:
//	  - name: class-distribution
//	    chartType: bar
//	    title: 班级分布
//	    spec: [...]
//
// spec may also be a JSON string.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read transforms file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse transforms file %s: %w", path, err)
	}
	for i, t := range f.Transforms {
		if err := r.Register(t); err != nil {
			return i, err
		}
	}
	return len(f.Transforms), nil
}

// normalizeSpec turns YAML or Go literal values into the JSON shapes the
// operations expect.
func normalizeSpec(spec any) (any, error) {
	if s, ok := spec.(string); ok {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		return v, nil
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return v, nil
}
