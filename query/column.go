package query

import (
	"regexp"
	"strconv"
	"strings"

	"studentparent-server-go/db"
)

// selectItem is one entry of @column.
type selectItem struct {
	expr      string
	args      []any
	alias     string
	aggregate bool
}

var (
	identPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	funcPattern     = regexp.MustCompile(`(?i)^(count|sum|avg|min|max)\s*\(\s*(.*?)\s*\)$`)
	distinctPattern = regexp.MustCompile(`(?i)^distinct\s+([A-Za-z_][A-Za-z0-9_]*)$`)
	casePattern     = regexp.MustCompile(`(?i)^case\s+when\s+([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(-?\d+|'[^']*')\s+then\s+1(?:\s+else\s+0)?\s+end$`)
	asPattern       = regexp.MustCompile(`(?i)^(.+?)\s+as\s+([A-Za-z_][A-Za-z0-9_]*)$`)
	havingPattern   = regexp.MustCompile(`^(.+?)\s*(>=|<=|!=|<>|>|<|=)\s*(-?\d+(?:\.\d+)?)$`)
)

func quote(ident string) string {
	return `"` + ident + `"`
}

// splitTopLevel splits s on sep outside parentheses and quotes.
func splitTopLevel(s string, sep rune) []string {
	var (
		parts   []string
		depth   int
		inQuote bool
		start   int
	)
	for i, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// parseColumns reads @column. An empty spec selects every column of t.
func parseColumns(t db.Table, spec string) ([]selectItem, error) {
	if strings.TrimSpace(spec) == "" {
		items := make([]selectItem, len(t.Columns))
		for i, c := range t.Columns {
			items[i] = selectItem{expr: quote(c), alias: c}
		}
		return items, nil
	}

	var items []selectItem
	seen := make(map[string]bool)
	for _, raw := range splitTopLevel(spec, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		item, err := parseColumn(t, raw)
		if err != nil {
			return nil, err
		}
		if seen[item.alias] {
			return nil, invalidf("duplicate column %s in @column", item.alias)
		}
		seen[item.alias] = true
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, invalidf("@column of %s is empty", t.Name)
	}
	return items, nil
}

func parseColumn(t db.Table, raw string) (selectItem, error) {
	expr, alias := raw, ""
	if m := asPattern.FindStringSubmatch(raw); m != nil {
		expr, alias = m[1], m[2]
	} else if i := strings.LastIndex(raw, ":"); i >= 0 && i > strings.LastIndex(raw, ")") {
		expr, alias = strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+1:])
		if !identPattern.MatchString(alias) {
			return selectItem{}, invalidf("invalid alias %q in @column", alias)
		}
	}
	item, err := parseExpr(t, strings.TrimSpace(expr))
	if err != nil {
		return selectItem{}, err
	}
	if alias != "" {
		item.alias = alias
	}
	return item, nil
}

// parseExpr accepts a column name or one of the supported aggregate calls.
func parseExpr(t db.Table, expr string) (selectItem, error) {
	if identPattern.MatchString(expr) {
		if !t.HasColumn(expr) {
			return selectItem{}, invalidf("unknown column %s of %s", expr, t.Name)
		}
		return selectItem{expr: quote(expr), alias: expr}, nil
	}

	m := funcPattern.FindStringSubmatch(expr)
	if m == nil {
		return selectItem{}, invalidf("unsupported column expression %q", expr)
	}
	fn, arg := strings.ToLower(m[1]), m[2]
	item := selectItem{aggregate: true, alias: fn + "(" + arg + ")"}
	upper := strings.ToUpper(fn)

	switch {
	case arg == "*":
		if fn != "count" {
			return selectItem{}, invalidf("%s(*) is not supported", fn)
		}
		item.expr = "COUNT(*)"
	case distinctPattern.MatchString(arg):
		col := distinctPattern.FindStringSubmatch(arg)[1]
		if fn != "count" {
			return selectItem{}, invalidf("%s(distinct ...) is not supported", fn)
		}
		if !t.HasColumn(col) {
			return selectItem{}, invalidf("unknown column %s of %s", col, t.Name)
		}
		item.expr = "COUNT(DISTINCT " + quote(col) + ")"
	case casePattern.MatchString(arg):
		cm := casePattern.FindStringSubmatch(arg)
		if fn != "count" && fn != "sum" {
			return selectItem{}, invalidf("%s(case ...) is not supported", fn)
		}
		if !t.HasColumn(cm[1]) {
			return selectItem{}, invalidf("unknown column %s of %s", cm[1], t.Name)
		}
		item.expr = upper + "(CASE WHEN " + quote(cm[1]) + " = ? THEN 1 END)"
		item.args = []any{literal(cm[2])}
	case identPattern.MatchString(arg):
		if !t.HasColumn(arg) {
			return selectItem{}, invalidf("unknown column %s of %s", arg, t.Name)
		}
		item.expr = upper + "(" + quote(arg) + ")"
	default:
		return selectItem{}, invalidf("unsupported argument %q of %s", arg, fn)
	}
	return item, nil
}

func findAlias(items []selectItem, name string) (selectItem, bool) {
	for _, it := range items {
		if it.alias == name {
			return it, true
		}
	}
	return selectItem{}, false
}

// parseOrder reads @order: "age-, name+". A bare name sorts ascending.
func parseOrder(t db.Table, spec string, items []selectItem) ([]string, error) {
	var out []string
	for _, raw := range strings.Split(spec, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		dir := "ASC"
		switch {
		case strings.HasSuffix(raw, "-"):
			dir, raw = "DESC", strings.TrimSuffix(raw, "-")
		case strings.HasSuffix(raw, "+"):
			raw = strings.TrimSuffix(raw, "+")
		}
		raw = strings.TrimSpace(raw)
		if _, ok := findAlias(items, raw); !ok && !t.HasColumn(raw) {
			return nil, invalidf("cannot order %s by %s", t.Name, raw)
		}
		out = append(out, quote(raw)+" "+dir)
	}
	return out, nil
}

func parseGroup(t db.Table, spec string) ([]string, error) {
	var out []string
	for _, raw := range strings.Split(spec, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !t.HasColumn(raw) {
			return nil, invalidf("cannot group %s by %s", t.Name, raw)
		}
		out = append(out, quote(raw))
	}
	return out, nil
}

// parseHaving reads @having. Each comma separated part is "fn(col) op number"
// or "alias op number"; the parts are joined with AND.
func parseHaving(t db.Table, spec string, items []selectItem) ([]string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	for _, raw := range splitTopLevel(spec, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		m := havingPattern.FindStringSubmatch(raw)
		if m == nil {
			return nil, nil, invalidf("unsupported @having condition %q", raw)
		}
		lhs := strings.TrimSpace(m[1])
		item, ok := findAlias(items, lhs)
		if !ok {
			var err error
			if item, err = parseExpr(t, lhs); err != nil {
				return nil, nil, err
			}
		}
		if !item.aggregate {
			return nil, nil, invalidf("@having needs an aggregate, got %s", lhs)
		}
		value, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, nil, invalidf("invalid number in @having: %s", m[3])
		}
		op := m[2]
		if op == "<>" {
			op = "!="
		}
		clauses = append(clauses, item.expr+" "+op+" ?")
		args = append(args, item.args...)
		args = append(args, value)
	}
	return clauses, args, nil
}
