package jolt

import "strconv"

// applyDefault fills keys that are missing or null. A "*" key applies its
// object to every existing child.
func applyDefault(spec map[string]any, data any) any {
	switch d := data.(type) {
	case nil:
		return applyDefault(spec, map[string]any{})
	case map[string]any:
		for _, k := range sortedKeys(spec) {
			sv := spec[k]
			if k == "*" {
				child, ok := sv.(map[string]any)
				if !ok {
					continue
				}
				for key, v := range d {
					if _, isMap := v.(map[string]any); isMap {
						d[key] = applyDefault(child, v)
					} else if _, isList := v.([]any); isList {
						d[key] = applyDefault(child, v)
					}
				}
				continue
			}
			for _, alt := range splitPath(k, '|') {
				key := unescape(alt)
				cur, present := d[key]
				if child, ok := sv.(map[string]any); ok {
					if present && cur != nil {
						d[key] = applyDefault(child, cur)
					} else {
						d[key] = applyDefault(child, nil)
					}
					continue
				}
				if !present || cur == nil {
					d[key] = deepCopy(sv)
				}
			}
		}
		return d
	case []any:
		for _, k := range sortedKeys(spec) {
			child, ok := spec[k].(map[string]any)
			if !ok {
				continue
			}
			if k == "*" {
				for i, v := range d {
					if v != nil {
						d[i] = applyDefault(child, v)
					}
				}
				continue
			}
			if i, err := strconv.Atoi(k); err == nil && i >= 0 && i < len(d) {
				d[i] = applyDefault(child, d[i])
			}
		}
		return d
	}
	return data
}

// applyRemove deletes the keys named by leaf entries of spec.
func applyRemove(spec map[string]any, data any) {
	switch d := data.(type) {
	case map[string]any:
		for _, k := range sortedKeys(spec) {
			child, nested := spec[k].(map[string]any)
			if k == "*" {
				for key, v := range d {
					if nested {
						applyRemove(child, v)
					} else {
						delete(d, key)
					}
				}
				continue
			}
			for _, alt := range splitPath(k, '|') {
				key := unescape(alt)
				if nested {
					applyRemove(child, d[key])
				} else {
					delete(d, key)
				}
			}
		}
	case []any:
		for _, k := range sortedKeys(spec) {
			child, nested := spec[k].(map[string]any)
			if !nested {
				continue
			}
			if k == "*" {
				for _, v := range d {
					applyRemove(child, v)
				}
				continue
			}
			if i, err := strconv.Atoi(k); err == nil && i >= 0 && i < len(d) {
				applyRemove(child, d[i])
			}
		}
	}
}
