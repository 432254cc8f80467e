// Package jolt implements the JSON to JSON transforms used to turn query
// results into chart data: shift, default, remove and the modify operations,
// chained in the usual "[{operation, spec}]" format.
package jolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Operation names one step of a chain.
type Operation string

const (
	OpShift           Operation = "shift"
	OpDefault         Operation = "default"
	OpRemove          Operation = "remove"
	OpModifyOverwrite Operation = "modify-overwrite-beta"
	OpModifyDefault   Operation = "modify-default-beta"
)

// ErrInvalidSpec wraps every spec compilation failure.
var ErrInvalidSpec = errors.New("invalid transform spec")

func specErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}

type step struct {
	op    Operation
	spec  map[string]any
	shift *shiftSpec
}

// Chainr runs a list of operations, each on the output of the previous one.
type Chainr struct {
	steps []step
}

// NewChainr compiles a decoded chain spec: a list of {"operation", "spec"} objects.
func NewChainr(spec any) (*Chainr, error) {
	list, ok := spec.([]any)
	if !ok {
		return nil, specErrorf("spec must be a list of operations")
	}
	c := &Chainr{}
	for i, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, specErrorf("operation %d is not an object", i)
		}
		name, _ := entry["operation"].(string)
		body, ok := entry["spec"].(map[string]any)
		if !ok {
			return nil, specErrorf("operation %d (%s) has no spec object", i, name)
		}
		s := step{op: Operation(name), spec: body}
		switch s.op {
		case OpShift:
			compiled, err := compileShift(body)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			s.shift = compiled
		case OpDefault, OpRemove, OpModifyOverwrite, OpModifyDefault:
		default:
			return nil, specErrorf("operation %d: unsupported operation %q", i, name)
		}
		c.steps = append(c.steps, s)
	}
	return c, nil
}

// ParseChainr decodes and compiles a JSON chain spec.
func ParseChainr(data []byte) (*Chainr, error) {
	var spec any
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return NewChainr(spec)
}

// Transform applies every operation in order. input is not modified.
func (c *Chainr) Transform(input any) (any, error) {
	data := deepCopy(input)
	for i, s := range c.steps {
		var err error
		switch s.op {
		case OpShift:
			data, err = s.shift.transform(data)
		case OpDefault:
			data = applyDefault(s.spec, data)
		case OpRemove:
			applyRemove(s.spec, data)
		case OpModifyOverwrite, OpModifyDefault:
			data, err = applyModify(s.spec, data, rootStack(data), s.op == OpModifyOverwrite)
		}
		if err != nil {
			return nil, fmt.Errorf("%s (operation %d): %w", s.op, i, err)
		}
	}
	return data, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = deepCopy(e)
		}
		return l
	}
	return v
}

// keyString is the form a value takes when it is matched or used as a key.
func keyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	}
	return fmt.Sprint(v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// frame is one level of the walk through the input.
type frame struct {
	key   string
	caps  []string // caps[0] is the whole key, then one entry per wildcard
	value any
}

// stack holds the walked levels, innermost first.
type stack []frame

func rootStack(input any) stack {
	return stack{{caps: []string{""}, value: input}}
}

func (s stack) push(f frame) stack {
	out := make(stack, 0, len(s)+1)
	out = append(out, f)
	return append(out, s...)
}

func (s stack) capture(level, group int) (string, error) {
	if level < 0 || level >= len(s) {
		return "", fmt.Errorf("reference to level %d is out of range", level)
	}
	caps := s[level].caps
	if group < 0 || group >= len(caps) {
		return "", fmt.Errorf("level %d has no capture group %d", level, group)
	}
	return caps[group], nil
}

// lookup walks path from the input value seen at level.
func (s stack) lookup(level int, path []string) (any, bool) {
	if level < 0 || level >= len(s) {
		return nil, false
	}
	cur := s[level].value
	for _, p := range path {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[p]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
