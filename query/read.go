package query

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"studentparent-server-go/db"
	"studentparent-server-go/models"
)

// reader holds the state of one GET/HEAD/GETS/HEADS request.
type reader struct {
	engine *Engine
	method models.Method
	role   models.Role
	root   *Object
	// arrays keeps the compiled primary query of each top-level array so
	// that "/Name[]/total" can be counted on demand.
	arrays map[string]*arrayMeta
	access map[string]error
}

type arrayMeta struct {
	query *selectQuery
	size  int
	page  int
	total *int64
}

// group evaluates the keys of one level. scope is the object references are
// resolved against first; out receives the results.
func (r *reader) group(ctx context.Context, ents []entry, scope, out *Object, top bool) error {
	var refs []entry
	for _, en := range ents {
		switch key := en.key; {
		case isMetaKey(key):
		case strings.HasSuffix(key, "@"):
			if en.value.Type != gjson.String {
				return invalidf("reference %s must be a path string", key)
			}
			out.Set(strings.TrimSuffix(key, "@"), nil)
			refs = append(refs, en)
		case isArrayKey(key):
			if !en.value.IsObject() {
				return invalidf("%s must be an object", key)
			}
			list, err := r.array(ctx, key, en.value, scope, top)
			if err != nil {
				return err
			}
			out.Set(key, list)
		case isTableName(key):
			if !en.value.IsObject() {
				return invalidf("%s must be an object", key)
			}
			row, err := r.object(ctx, key, en.value, scope)
			if err != nil {
				return err
			}
			if row == nil {
				out.Set(key, nil)
			} else {
				out.Set(key, row)
			}
		default:
			out.Set(key, en.value.Value())
		}
	}

	// references at this level see every sibling, whatever their order
	for _, en := range refs {
		v, _, err := r.resolve(ctx, en.value.Str, scope)
		if err != nil {
			return err
		}
		out.Set(strings.TrimSuffix(en.key, "@"), v)
	}
	return nil
}

func (r *reader) authorize(ctx context.Context, table string) error {
	if err, ok := r.access[table]; ok {
		return err
	}
	err := r.engine.authorize(ctx, r.method, r.role, table)
	r.access[table] = err
	return err
}

func (r *reader) table(ctx context.Context, name string) (db.Table, error) {
	t, ok := db.LookupTable(name)
	if !ok {
		return db.Table{}, invalidf("unknown table %s", name)
	}
	if err := r.authorize(ctx, t.Name); err != nil {
		return db.Table{}, err
	}
	return t, nil
}

// object answers a table object with its first matching row, or with
// {"count": n} for HEAD and HEADS.
func (r *reader) object(ctx context.Context, key string, v gjson.Result, scope *Object) (*Object, error) {
	t, err := r.table(ctx, key)
	if err != nil {
		return nil, err
	}
	q, ok, err := r.compile(ctx, t, v, scope)
	if err != nil {
		return nil, err
	}
	if r.method.IsCount() {
		var n int64
		if ok {
			if n, err = r.count(ctx, q); err != nil {
				return nil, err
			}
		}
		out := NewObject()
		out.Set("count", n)
		return out, nil
	}
	if !ok {
		return nil, nil
	}
	q.limit = 1
	rows, err := r.fetch(ctx, q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// array answers "Name[]". The first table inside is the primary one and is
// paged; the others are evaluated once per primary row. With a single table
// the result is the list of its rows.
func (r *reader) array(ctx context.Context, key string, v gjson.Result, scope *Object, top bool) ([]any, error) {
	if r.method.IsCount() {
		return nil, invalidf("%s does not support array %s", r.method, key)
	}

	size, page, mode := DefaultCount, 0, 0
	var members []entry
	primary := -1
	for _, en := range entries(v) {
		var err error
		switch en.key {
		case "count":
			size, err = intParam(en.value, "count")
		case "page":
			page, err = intParam(en.value, "page")
		case "query":
			mode, err = intParam(en.value, "query")
		default:
			if isMetaKey(en.key) {
				continue
			}
			if primary < 0 && isTableName(en.key) {
				primary = len(members)
			}
			members = append(members, en)
		}
		if err != nil {
			return nil, err
		}
	}
	if primary < 0 {
		return nil, invalidf("%s names no table", key)
	}

	lead := members[primary]
	if !lead.value.IsObject() {
		return nil, invalidf("%s must be an object", lead.key)
	}
	t, err := r.table(ctx, lead.key)
	if err != nil {
		return nil, err
	}
	q, ok, err := r.compile(ctx, t, lead.value, scope)
	if err != nil {
		return nil, err
	}
	if q.count >= 0 {
		size = q.count
	}
	if q.page >= 0 {
		page = q.page
	}
	switch {
	case size <= 0:
		size = DefaultCount
	case size > MaxCount:
		size = MaxCount
	}
	if page < 0 {
		page = 0
	}
	if top {
		meta := &arrayMeta{query: q, size: size, page: page}
		if !ok {
			zero := int64(0)
			meta.total = &zero
		}
		r.arrays[key] = meta
	}

	list := []any{}
	// a page whose offset does not fit an int lies past any table
	if !ok || mode == 1 || page > math.MaxInt/size {
		return list, nil
	}

	q.limit, q.offset = size, page*size
	rows, err := r.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(members) == 1 {
		for _, row := range rows {
			list = append(list, row)
		}
		return list, nil
	}

	rest := make([]entry, 0, len(members)-1)
	rest = append(rest, members[:primary]...)
	rest = append(rest, members[primary+1:]...)
	for _, row := range rows {
		item := NewObject()
		item.Set(lead.key, row)
		if err := r.group(ctx, rest, item, item, false); err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, nil
}

// compile turns a table object into a query. ok is false when a reference
// resolved to nothing, in which case there is nothing to query.
func (r *reader) compile(ctx context.Context, t db.Table, v gjson.Result, scope *Object) (*selectQuery, bool, error) {
	q := &selectQuery{table: t, count: -1, page: -1}
	var column, order, group, having string
	ok := true

	for _, en := range entries(v) {
		key := en.key
		switch {
		case strings.HasPrefix(key, "@"):
			var err error
			switch key {
			case "@column":
				column = en.value.String()
			case "@order":
				order = en.value.String()
			case "@group":
				group = en.value.String()
			case "@having":
				having = en.value.String()
			case "@count":
				q.count, err = intParam(en.value, key)
			case "@page":
				q.page, err = intParam(en.value, key)
			default:
				err = invalidf("unsupported directive %s", key)
			}
			if err != nil {
				return nil, false, err
			}
		case strings.HasSuffix(key, "@"):
			col := strings.TrimSuffix(key, "@")
			if err := checkColumn(t, col); err != nil {
				return nil, false, err
			}
			if en.value.Type != gjson.String {
				return nil, false, invalidf("reference %s must be a path string", key)
			}
			value, found, err := r.resolve(ctx, en.value.Str, scope)
			if err != nil {
				return nil, false, err
			}
			if !found || value == nil {
				ok = false
				continue
			}
			if err := q.where.equal(col, value); err != nil {
				return nil, false, err
			}
		default:
			if err := q.where.addCondition(t, key, en.value); err != nil {
				return nil, false, err
			}
		}
	}

	var err error
	if q.items, err = parseColumns(t, column); err != nil {
		return nil, false, err
	}
	if q.group, err = parseGroup(t, group); err != nil {
		return nil, false, err
	}
	if q.having, q.havingArgs, err = parseHaving(t, having, q.items); err != nil {
		return nil, false, err
	}
	if q.order, err = parseOrder(t, order, q.items); err != nil {
		return nil, false, err
	}
	return q, ok, nil
}

func (r *reader) fetch(ctx context.Context, q *selectQuery) ([]*Object, error) {
	query, args := q.build()
	_, rows, err := r.engine.store.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*Object, 0, len(rows))
	for _, row := range rows {
		obj := NewObject()
		for i, it := range q.items {
			obj.Set(it.alias, row[i])
		}
		out = append(out, obj)
	}
	return out, nil
}

func (r *reader) count(ctx context.Context, q *selectQuery) (int64, error) {
	query, args := q.buildCount()
	_, rows, err := r.engine.store.QueryRows(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	n, _ := rows[0][0].(int64)
	return n, nil
}

// resolve reads a reference path. "/Student/id" and "Student/id" look in
// scope first and then in the response root; "[]/Student/id" is the same.
// "/Name[]/total" and "/Name[]/info" describe a top-level array.
func (r *reader) resolve(ctx context.Context, path string, scope *Object) (any, bool, error) {
	p := strings.TrimPrefix(path, "/")
	p = strings.TrimPrefix(p, "[]/")
	segs := strings.Split(p, "/")
	if len(segs) == 0 || segs[0] == "" {
		return nil, false, invalidf("invalid reference path %q", path)
	}

	if len(segs) == 2 && (segs[1] == "total" || segs[1] == "info") {
		if meta, ok := r.arrays[segs[0]]; ok {
			total, err := r.total(ctx, meta)
			if err != nil {
				return nil, false, err
			}
			if segs[1] == "total" {
				return total, true, nil
			}
			return pageInfo(total, meta), true, nil
		}
	}

	cur, found := scope.Get(segs[0])
	if !found && scope != r.root {
		cur, found = r.root.Get(segs[0])
	}
	if !found {
		return nil, false, nil
	}
	for _, seg := range segs[1:] {
		if cur, found = step(cur, seg); !found {
			return nil, false, nil
		}
	}
	return cur, true, nil
}

func step(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case *Object:
		return c.Get(seg)
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	}
	return nil, false
}

func (r *reader) total(ctx context.Context, meta *arrayMeta) (int64, error) {
	if meta.total != nil {
		return *meta.total, nil
	}
	n, err := r.count(ctx, meta.query)
	if err != nil {
		return 0, err
	}
	meta.total = &n
	return n, nil
}

func pageInfo(total int64, meta *arrayMeta) *Object {
	pages := int((total + int64(meta.size) - 1) / int64(meta.size))
	info := NewObject()
	info.Set("total", total)
	info.Set("count", meta.size)
	info.Set("page", meta.page)
	info.Set("max", max(pages-1, 0))
	info.Set("more", meta.page < pages-1)
	info.Set("first", meta.page == 0)
	info.Set("last", meta.page >= pages-1)
	return info
}
