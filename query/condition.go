package query

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"studentparent-server-go/db"
)

// where collects the WHERE clause of one table object.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

var comparePattern = regexp.MustCompile(`^(>=|<=|!=|<>|>|<|=)\s*(\S.*)$`)

func checkColumn(t db.Table, col string) error {
	if !t.HasColumn(col) {
		return invalidf("unknown column %s of %s", col, t.Name)
	}
	return nil
}

// addCondition translates one condition key of a table object:
//
//	col      equal (null means IS NULL)
//	col!     not equal
//	col{}    IN for an array; "[a,b]" inclusive range; ">=14,<=16" comparisons joined with OR
//	col&{}   comparisons joined with AND
//	col|{}   comparisons joined with OR
//	col!{}   NOT IN
//	col$     LIKE
func (w *where) addCondition(t db.Table, key string, v gjson.Result) error {
	switch {
	case strings.HasSuffix(key, "!{}"):
		col := strings.TrimSuffix(key, "!{}")
		if err := checkColumn(t, col); err != nil {
			return err
		}
		values, err := listValue(v)
		if err != nil {
			return err
		}
		return w.in(col, values, true)
	case strings.HasSuffix(key, "&{}"), strings.HasSuffix(key, "|{}"), strings.HasSuffix(key, "{}"):
		joiner := " OR "
		col := strings.TrimSuffix(key, "{}")
		switch {
		case strings.HasSuffix(col, "&"):
			joiner, col = " AND ", strings.TrimSuffix(col, "&")
		case strings.HasSuffix(col, "|"):
			col = strings.TrimSuffix(col, "|")
		}
		if err := checkColumn(t, col); err != nil {
			return err
		}
		if v.IsArray() {
			values, err := scalars(v)
			if err != nil {
				return err
			}
			return w.in(col, values, false)
		}
		if v.Type != gjson.String {
			return invalidf("%s needs an array or a condition string", key)
		}
		if lo, hi, ok := rangeValue(v.Str); ok {
			w.add(quote(col)+" BETWEEN ? AND ?", lo, hi)
			return nil
		}
		return w.compare(col, v.Str, joiner)
	case strings.HasSuffix(key, "$"):
		col := strings.TrimSuffix(key, "$")
		if err := checkColumn(t, col); err != nil {
			return err
		}
		if v.Type != gjson.String {
			return invalidf("%s needs a LIKE pattern", key)
		}
		w.add(quote(col)+" LIKE ?", v.Str)
		return nil
	case strings.HasSuffix(key, "!"):
		col := strings.TrimSuffix(key, "!")
		if err := checkColumn(t, col); err != nil {
			return err
		}
		value, err := scalar(v)
		if err != nil {
			return err
		}
		if value == nil {
			w.add(quote(col) + " IS NOT NULL")
			return nil
		}
		w.add(quote(col)+" != ?", value)
		return nil
	default:
		if err := checkColumn(t, key); err != nil {
			return err
		}
		value, err := scalar(v)
		if err != nil {
			return err
		}
		return w.equal(key, value)
	}
}

// equal adds col = value; a slice value becomes IN.
func (w *where) equal(col string, value any) error {
	switch vv := value.(type) {
	case nil:
		w.add(quote(col) + " IS NULL")
	case []any:
		return w.in(col, vv, false)
	case *Object, []*Object:
		return invalidf("%s cannot be compared with an object", col)
	default:
		w.add(quote(col)+" = ?", vv)
	}
	return nil
}

func (w *where) in(col string, values []any, negate bool) error {
	if len(values) == 0 {
		if negate {
			return nil
		}
		w.add("1 = 0")
		return nil
	}
	op := " IN ("
	if negate {
		op = " NOT IN ("
	}
	w.add(quote(col)+op+strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")+")", values...)
	return nil
}

func (w *where) compare(col, expr, joiner string) error {
	var (
		parts []string
		args  []any
	)
	for _, raw := range splitTopLevel(expr, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		m := comparePattern.FindStringSubmatch(raw)
		if m == nil {
			return invalidf("unsupported condition %q on %s", raw, col)
		}
		op := m[1]
		if op == "<>" {
			op = "!="
		}
		parts = append(parts, quote(col)+" "+op+" ?")
		args = append(args, literal(m[2]))
	}
	if len(parts) == 0 {
		return invalidf("empty condition on %s", col)
	}
	w.add("("+strings.Join(parts, joiner)+")", args...)
	return nil
}

// listValue accepts a JSON array or a string holding one.
func listValue(v gjson.Result) ([]any, error) {
	if v.Type == gjson.String {
		v = gjson.Parse(v.Str)
	}
	if !v.IsArray() {
		return nil, invalidf("expected a list, got %s", v.Raw)
	}
	return scalars(v)
}

// rangeValue reads "[lo,hi]".
func rangeValue(s string) (any, any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, nil, false
	}
	arr := gjson.Parse(s)
	if !arr.IsArray() {
		return nil, nil, false
	}
	bounds := arr.Array()
	if len(bounds) != 2 {
		return nil, nil, false
	}
	lo, err := scalar(bounds[0])
	if err != nil || lo == nil {
		return nil, nil, false
	}
	hi, err := scalar(bounds[1])
	if err != nil || hi == nil {
		return nil, nil, false
	}
	return lo, hi, true
}
