package query

import (
	"strconv"
	"strings"

	"studentparent-server-go/db"
)

// selectQuery is a compiled table object.
type selectQuery struct {
	table      db.Table
	items      []selectItem
	where      where
	group      []string
	having     []string
	havingArgs []any
	order      []string
	// count and page hold @count and @page, -1 when absent.
	count, page   int
	limit, offset int
}

func (q *selectQuery) from() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" FROM ")
	sb.WriteString(quote(q.table.Name))
	if len(q.where.clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.where.clauses, " AND "))
		args = append(args, q.where.args...)
	}
	if len(q.group) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(q.group, ", "))
	}
	if len(q.having) > 0 {
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(q.having, " AND "))
		args = append(args, q.havingArgs...)
	}
	return sb.String(), args
}

func (q *selectQuery) build() (string, []any) {
	var (
		cols []string
		args []any
	)
	for _, it := range q.items {
		cols = append(cols, it.expr+" AS "+quote(it.alias))
		args = append(args, it.args...)
	}
	from, fromArgs := q.from()
	args = append(args, fromArgs...)

	sql := "SELECT " + strings.Join(cols, ", ") + from
	if len(q.order) > 0 {
		sql += " ORDER BY " + strings.Join(q.order, ", ")
	}
	if q.limit > 0 {
		sql += " LIMIT " + strconv.Itoa(q.limit)
		if q.offset > 0 {
			sql += " OFFSET " + strconv.Itoa(q.offset)
		}
	}
	return sql, args
}

// buildCount counts the rows build would return without paging.
func (q *selectQuery) buildCount() (string, []any) {
	from, args := q.from()
	if len(q.group) > 0 {
		return "SELECT COUNT(*) FROM (SELECT 1" + from + ")", args
	}
	return "SELECT COUNT(*)" + from, args
}
