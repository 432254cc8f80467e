package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"studentparent-server-go/db"
	"studentparent-server-go/models"
)

// write handles POST, PUT and DELETE. The body names exactly one table; its
// keys are checked against the Request structure registered for the tag,
// which defaults to the table name.
func (e *Engine) write(ctx context.Context, method models.Method, role models.Role, req gjson.Result) (*Object, error) {
	var (
		tableKey, tag string
		obj           gjson.Result
	)
	for _, en := range entries(req) {
		switch {
		case en.key == "tag":
			tag = en.value.String()
		case isMetaKey(en.key):
		case isTableName(en.key):
			if tableKey != "" {
				return nil, invalidf("%s may only change one table, got %s and %s", method, tableKey, en.key)
			}
			tableKey, obj = en.key, en.value
		default:
			return nil, invalidf("unsupported key %s in %s request", en.key, method)
		}
	}
	if tableKey == "" {
		return nil, invalidf("%s request names no table", method)
	}
	t, ok := db.LookupTable(tableKey)
	if !ok {
		return nil, invalidf("unknown table %s", tableKey)
	}
	if !obj.IsObject() {
		return nil, invalidf("%s must be an object", tableKey)
	}
	if tag == "" {
		tag = tableKey
	}
	if err := e.authorize(ctx, method, role, t.Name); err != nil {
		return nil, err
	}

	fields, err := e.validate(ctx, method, tag, t, obj)
	if err != nil {
		return nil, err
	}

	var row *Object
	switch method {
	case models.MethodPost:
		row, err = e.insert(ctx, t, fields)
	case models.MethodPut:
		row, err = e.update(ctx, t, fields)
	case models.MethodDelete:
		row, err = e.remove(ctx, t, fields)
	default:
		err = invalidf("unsupported method %s", method)
	}
	if err != nil {
		return nil, err
	}
	e.log.WithField("method", method).WithField("table", t.Name).Info("数据已更新")

	out := NewObject()
	out.Set(tableKey, row)
	return out, nil
}

// validate checks obj against the structure of (method, tag): keys ending
// with "!" are required and keys the structure does not name are rejected.
func (e *Engine) validate(ctx context.Context, method models.Method, tag string, t db.Table, obj gjson.Result) ([]entry, error) {
	rs, err := e.store.RequestStructure(ctx, method, tag)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: no request structure for %s %s", ErrForbidden, method, tag)
	}
	if err != nil {
		return nil, err
	}
	structure := gjson.Get(rs.Structure, t.Name)
	if !structure.IsObject() {
		return nil, fmt.Errorf("request structure %s %s does not describe %s", method, tag, t.Name)
	}

	allowed := make(map[string]bool)
	var required []string
	structure.ForEach(func(k, _ gjson.Result) bool {
		name := k.String()
		if strings.HasSuffix(name, "!") {
			name = strings.TrimSuffix(name, "!")
			required = append(required, name)
		}
		allowed[name] = true
		return true
	})

	fields := entries(obj)
	present := make(map[string]bool, len(fields))
	for _, f := range fields {
		name := f.key
		if method == models.MethodDelete && name == "id{}" {
			name = "id"
		}
		if !allowed[name] {
			return nil, invalidf("key %s is not allowed in %s %s", f.key, method, tag)
		}
		present[name] = true
	}
	for _, name := range required {
		if !present[name] {
			return nil, invalidf("key %s is required in %s %s", name, method, tag)
		}
	}
	return fields, nil
}

func idValue(v gjson.Result) (int64, error) {
	if v.Type != gjson.Number || strings.ContainsAny(v.Raw, ".eE") || v.Int() <= 0 {
		return 0, invalidf("id must be a positive integer, got %s", v.Raw)
	}
	return v.Int(), nil
}

func (e *Engine) insert(ctx context.Context, t db.Table, fields []entry) (*Object, error) {
	var (
		cols []string
		args []any
	)
	for _, f := range fields {
		if !t.CanWrite(f.key) {
			return nil, invalidf("column %s of %s cannot be written", f.key, t.Name)
		}
		v, err := scalar(f.value)
		if err != nil {
			return nil, err
		}
		cols = append(cols, quote(f.key))
		args = append(args, v)
	}
	if len(cols) == 0 {
		return nil, invalidf("nothing to insert into %s", t.Name)
	}
	res, err := e.exec(ctx,
		"INSERT INTO "+quote(t.Name)+" ("+strings.Join(cols, ", ")+") VALUES ("+
			strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")+")",
		args...)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read inserted id: %w", err)
	}
	row := NewObject()
	row.Set("id", id)
	row.Set("count", int64(1))
	return row, nil
}

func (e *Engine) update(ctx context.Context, t db.Table, fields []entry) (*Object, error) {
	var (
		id   int64
		sets []string
		args []any
	)
	for _, f := range fields {
		if f.key == "id" {
			var err error
			if id, err = idValue(f.value); err != nil {
				return nil, err
			}
			continue
		}
		if !t.CanWrite(f.key) {
			return nil, invalidf("column %s of %s cannot be written", f.key, t.Name)
		}
		v, err := scalar(f.value)
		if err != nil {
			return nil, err
		}
		sets = append(sets, quote(f.key)+" = ?")
		args = append(args, v)
	}
	if id == 0 {
		return nil, invalidf("PUT %s needs an id", t.Name)
	}
	if len(sets) == 0 {
		return nil, invalidf("nothing to update in %s %d", t.Name, id)
	}
	sets = append(sets, `"update_time" = CURRENT_TIMESTAMP`)
	args = append(args, id)

	n, err := e.affected(ctx, "UPDATE "+quote(t.Name)+" SET "+strings.Join(sets, ", ")+` WHERE "id" = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s %d does not exist", ErrNotFound, t.Name, id)
	}
	row := NewObject()
	row.Set("id", id)
	row.Set("count", n)
	return row, nil
}

func (e *Engine) remove(ctx context.Context, t db.Table, fields []entry) (*Object, error) {
	var (
		ids []any
		id  any
	)
	for _, f := range fields {
		switch f.key {
		case "id":
			single, err := idValue(f.value)
			if err != nil {
				return nil, err
			}
			ids, id = []any{single}, single
		case "id{}":
			if !f.value.IsArray() || len(f.value.Array()) == 0 {
				return nil, invalidf("id{} must be a non-empty list")
			}
			var list []any
			for _, v := range f.value.Array() {
				single, err := idValue(v)
				if err != nil {
					return nil, err
				}
				list = append(list, single)
			}
			ids, id = list, list
		default:
			return nil, invalidf("DELETE %s only accepts id or id{}", t.Name)
		}
	}
	if len(ids) == 0 {
		return nil, invalidf("DELETE %s needs an id", t.Name)
	}

	n, err := e.affected(ctx,
		"DELETE FROM "+quote(t.Name)+` WHERE "id" IN (`+strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")+")",
		ids...)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no %s matches %v", ErrNotFound, t.Name, id)
	}
	row := NewObject()
	row.Set("id", id)
	row.Set("count", n)
	return row, nil
}

type execResult interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// exec runs a write; constraint violations are the caller's fault.
func (e *Engine) exec(ctx context.Context, stmt string, args ...any) (execResult, error) {
	res, err := e.store.Exec(ctx, stmt, args...)
	if err != nil {
		if strings.Contains(err.Error(), "constraint failed") {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, err
	}
	return res, nil
}

func (e *Engine) affected(ctx context.Context, stmt string, args ...any) (int64, error) {
	res, err := e.exec(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}
	return n, nil
}
