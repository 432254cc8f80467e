package query

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// entry is one key/value pair of a request object, in document order.
type entry struct {
	key   string
	value gjson.Result
}

func entries(obj gjson.Result) []entry {
	var out []entry
	obj.ForEach(func(k, v gjson.Result) bool {
		out = append(out, entry{key: k.String(), value: v})
		return true
	})
	return out
}

// scalar converts a JSON scalar into a SQL argument.
func scalar(v gjson.Result) (any, error) {
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.False:
		return int64(0), nil
	case gjson.True:
		return int64(1), nil
	case gjson.String:
		return v.Str, nil
	case gjson.Number:
		if strings.ContainsAny(v.Raw, ".eE") {
			return v.Float(), nil
		}
		return v.Int(), nil
	}
	return nil, invalidf("expected a scalar value, got %s", v.Raw)
}

func scalars(v gjson.Result) ([]any, error) {
	var out []any
	for _, e := range v.Array() {
		s, err := scalar(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// literal parses a value written inside a condition string: a number, or a
// string optionally wrapped in single quotes.
func literal(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func intParam(v gjson.Result, name string) (int, error) {
	if v.Type != gjson.Number {
		return 0, invalidf("%s must be a number", name)
	}
	return int(v.Int()), nil
}

// isTableName reports whether key names a table: it starts with an upper-case
// letter and carries no operator suffix.
func isTableName(key string) bool {
	if key == "" || key[0] < 'A' || key[0] > 'Z' {
		return false
	}
	for _, r := range key {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func isArrayKey(key string) bool {
	return strings.HasSuffix(key, "[]")
}

func isMetaKey(key string) bool {
	switch key {
	case "tag", "version", "format":
		return true
	}
	return strings.HasPrefix(key, "@")
}
