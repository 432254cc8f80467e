package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentparent-server-go/db"
)

func studentTable(t *testing.T) db.Table {
	t.Helper()
	table, ok := db.LookupTable("Student")
	require.True(t, ok)
	return table
}

func TestParseColumns(t *testing.T) {
	table := studentTable(t)
	cases := []struct {
		spec  string
		expr  string
		alias string
	}{
		{"name", `"name"`, "name"},
		{"name:student_name", `"name"`, "student_name"},
		{"name as student_name", `"name"`, "student_name"},
		{"count(*)", "COUNT(*)", "count(*)"},
		{"count(*):total", "COUNT(*)", "total"},
		{"COUNT(DISTINCT grade):grades", `COUNT(DISTINCT "grade")`, "grades"},
		{"avg(age):avg_age", `AVG("age")`, "avg_age"},
		{"count(case when gender=1 then 1 end):girls", `COUNT(CASE WHEN "gender" = ? THEN 1 END)`, "girls"},
	}
	for _, tc := range cases {
		t.Run(tc.spec, func(t *testing.T) {
			items, err := parseColumns(table, tc.spec)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tc.expr, items[0].expr)
			assert.Equal(t, tc.alias, items[0].alias)
		})
	}
}

func TestParseColumnsRejects(t *testing.T) {
	table := studentTable(t)
	for _, spec := range []string{
		"password",
		"name:bad alias",
		"sum(*)",
		"max(distinct age)",
		"count(age) + 1",
		"name, name",
		"lower(name)",
		" , ",
	} {
		_, err := parseColumns(table, spec)
		assert.ErrorIs(t, err, ErrInvalidRequest, spec)
	}
}

func TestParseColumnsDefaultsToAllColumns(t *testing.T) {
	table := studentTable(t)
	items, err := parseColumns(table, "")
	require.NoError(t, err)
	assert.Len(t, items, len(table.Columns))
}

func TestSplitTopLevel(t *testing.T) {
	parts := splitTopLevel("a, count(case when x=1 then 1 end):c, 'p,q'", ',')
	require.Len(t, parts, 3)
	assert.Equal(t, " 'p,q'", parts[2])
}

func TestBuildSelect(t *testing.T) {
	table := studentTable(t)
	items, err := parseColumns(table, "grade, count(*):count")
	require.NoError(t, err)
	q := &selectQuery{table: table, items: items, group: []string{`"grade"`}, limit: 5, offset: 10}
	q.where.add(`"status" = ?`, int64(1))

	sql, args := q.build()
	assert.Equal(t, `SELECT "grade" AS "grade", COUNT(*) AS "count" FROM "Student" WHERE "status" = ? GROUP BY "grade" LIMIT 5 OFFSET 10`, sql)
	assert.Equal(t, []any{int64(1)}, args)

	count, _ := q.buildCount()
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT 1 FROM "Student" WHERE "status" = ? GROUP BY "grade")`, count)
}

func TestObjectMarshalKeepsOrder(t *testing.T) {
	o := NewObject()
	o.Set("z", 1)
	o.Set("a", []any{NewObject()})
	o.Set("z", 2)

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"z":2,"a":[{}]}`, string(data))
	assert.Equal(t, []string{"z", "a"}, o.Keys())
	assert.Equal(t, map[string]any{"z": 2, "a": []any{map[string]any{}}}, o.Map())

	var empty *Object
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
