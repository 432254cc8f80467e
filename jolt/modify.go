package jolt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// applyModify walks spec over data. A leaf is either a literal, an "@(N,path)"
// lookup, a "=fn(args)" call or ["=fn(args)", fallback]. In overwrite mode
// every matched key is written; otherwise only keys that are missing or null.
func applyModify(spec map[string]any, data any, frames stack, overwrite bool) (any, error) {
	switch d := data.(type) {
	case map[string]any:
		for _, k := range sortedKeys(spec) {
			sv := spec[k]
			if k == "*" {
				for _, key := range sortedKeys(d) {
					if err := modifyKey(d, key, sv, frames, overwrite); err != nil {
						return nil, err
					}
				}
				continue
			}
			for _, alt := range splitPath(k, '|') {
				if err := modifyKey(d, unescape(alt), sv, frames, overwrite); err != nil {
					return nil, err
				}
			}
		}
		return d, nil
	case []any:
		for _, k := range sortedKeys(spec) {
			sv := spec[k]
			if k == "*" {
				for i := range d {
					if err := modifyIndex(d, i, sv, frames, overwrite); err != nil {
						return nil, err
					}
				}
				continue
			}
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(d) {
				continue
			}
			if err := modifyIndex(d, i, sv, frames, overwrite); err != nil {
				return nil, err
			}
		}
		return d, nil
	case nil:
		if len(spec) == 0 {
			return nil, nil
		}
		return applyModify(spec, map[string]any{}, frames, overwrite)
	}
	return data, nil
}

func modifyKey(m map[string]any, key string, sv any, frames stack, overwrite bool) error {
	cur, present := m[key]
	v, write, err := modifyValue(key, cur, present, sv, frames, overwrite)
	if err != nil {
		return err
	}
	if write {
		m[key] = v
	}
	return nil
}

func modifyIndex(l []any, i int, sv any, frames stack, overwrite bool) error {
	v, write, err := modifyValue(strconv.Itoa(i), l[i], true, sv, frames, overwrite)
	if err != nil {
		return err
	}
	if write {
		l[i] = v
	}
	return nil
}

func modifyValue(key string, cur any, present bool, sv any, frames stack, overwrite bool) (any, bool, error) {
	inner := frames.push(frame{key: key, caps: []string{key}, value: cur})
	if child, ok := sv.(map[string]any); ok {
		if !present {
			return nil, false, nil
		}
		v, err := applyModify(child, cur, inner, overwrite)
		return v, true, err
	}
	if !overwrite && present && cur != nil {
		return nil, false, nil
	}
	v, ok, err := evalLeaf(sv, inner)
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

// evalLeaf computes a modify right-hand side. ok is false when nothing should be written.
func evalLeaf(sv any, frames stack) (any, bool, error) {
	switch v := sv.(type) {
	case string:
		switch {
		case strings.HasPrefix(v, "="):
			return call(v[1:], frames)
		case strings.HasPrefix(v, "@("):
			level, path, err := parseLevelRef(v[1:])
			if err != nil {
				return nil, false, specErrorf("%v", err)
			}
			got, ok := frames.lookup(level, lookupPath(path))
			return got, ok, nil
		}
		return v, true, nil
	case []any:
		if len(v) == 0 {
			return []any{}, true, nil
		}
		if fn, ok := v[0].(string); ok && strings.HasPrefix(fn, "=") {
			got, ok, err := call(fn[1:], frames)
			if err != nil {
				return nil, false, err
			}
			if ok {
				return got, true, nil
			}
			if len(v) > 1 {
				return deepCopy(v[1]), true, nil
			}
			return nil, false, nil
		}
		return deepCopy(v), true, nil
	}
	return deepCopy(sv), true, nil
}

type modifyFunc func(args []any) (any, bool)

var modifyFuncs = map[string]modifyFunc{
	"toInteger": toInteger,
	"toLong":    toInteger,
	"toDouble":  toDouble,
	"toString": func(args []any) (any, bool) {
		if len(args) == 0 || args[0] == nil {
			return nil, false
		}
		return keyString(args[0]), true
	},
	"toLower": stringFunc(strings.ToLower),
	"toUpper": stringFunc(strings.ToUpper),
	"trim":    stringFunc(strings.TrimSpace),
	"size": func(args []any) (any, bool) {
		if len(args) == 0 {
			return nil, false
		}
		switch t := args[0].(type) {
		case string:
			return int64(len([]rune(t))), true
		case []any:
			return int64(len(t)), true
		case map[string]any:
			return int64(len(t)), true
		}
		return nil, false
	},
	"concat": func(args []any) (any, bool) {
		var sb strings.Builder
		for _, a := range args {
			if a != nil {
				sb.WriteString(keyString(a))
			}
		}
		return sb.String(), true
	},
	"if": ifFunc,
}

func stringFunc(fn func(string) string) modifyFunc {
	return func(args []any) (any, bool) {
		if len(args) == 0 {
			return nil, false
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, false
		}
		return fn(s), true
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toInteger(args []any) (any, bool) {
	if len(args) == 0 {
		return nil, false
	}
	f, ok := number(args[0])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return int64(f), true
}

func toDouble(args []any) (any, bool) {
	if len(args) == 0 {
		return nil, false
	}
	return number(args[0])
}

// ifFunc is if(a, op, b, then, else) with op "==" or "!=".
func ifFunc(args []any) (any, bool) {
	if len(args) != 5 {
		return nil, false
	}
	equal := keyString(args[0]) == keyString(args[2])
	if fa, ok := number(args[0]); ok {
		if fb, ok := number(args[2]); ok {
			equal = fa == fb
		}
	}
	switch keyString(args[1]) {
	case "==":
	case "!=":
		equal = !equal
	default:
		return nil, false
	}
	if equal {
		return args[3], true
	}
	return args[4], true
}

// call evaluates "fn" or "fn(a,b,...)". Without arguments fn receives the
// current value.
func call(expr string, frames stack) (any, bool, error) {
	name, rest := expr, ""
	if open := strings.IndexByte(expr, '('); open >= 0 {
		if !strings.HasSuffix(expr, ")") {
			return nil, false, specErrorf("malformed function %q", expr)
		}
		name, rest = expr[:open], expr[open+1:len(expr)-1]
	}
	fn, ok := modifyFuncs[strings.TrimSpace(name)]
	if !ok {
		return nil, false, specErrorf("unknown function %q", name)
	}
	var args []any
	if strings.TrimSpace(rest) == "" {
		args = []any{frames[0].value}
	} else {
		for _, raw := range splitPath(rest, ',') {
			a, err := funcArg(strings.TrimSpace(raw), frames)
			if err != nil {
				return nil, false, err
			}
			args = append(args, a)
		}
	}
	v, ok := fn(args)
	return v, ok, nil
}

func funcArg(raw string, frames stack) (any, error) {
	switch {
	case strings.HasPrefix(raw, "@("):
		level, path, err := parseLevelRef(raw[1:])
		if err != nil {
			return nil, specErrorf("%v", err)
		}
		v, _ := frames.lookup(level, lookupPath(path))
		return v, nil
	case raw == "@":
		return frames[0].value, nil
	case len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'':
		return raw[1 : len(raw)-1], nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	if raw == "" {
		return nil, fmt.Errorf("empty function argument")
	}
	return raw, nil
}
