package query

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentparent-server-go/db"
	"studentparent-server-go/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, db.MemoryPath, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(ctx, db.SeedOptions{DemoData: true}))
	return store
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(newTestStore(t), quietLogger(), opts...)
}

func call(t *testing.T, e *Engine, method models.Method, role models.Role, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(e.Execute(context.Background(), method, role, []byte(body)), &out))
	return out
}

func get(t *testing.T, e *Engine, body string) map[string]any {
	t.Helper()
	out := call(t, e, models.MethodGet, models.RoleUnknown, body)
	require.Equal(t, true, out["ok"], "response: %v", out)
	return out
}

func rows(t *testing.T, v any) []map[string]any {
	t.Helper()
	list, ok := v.([]any)
	require.True(t, ok, "not a list: %v", v)
	out := make([]map[string]any, len(list))
	for i, e := range list {
		out[i] = e.(map[string]any)
	}
	return out
}

func TestGetStudentByID(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student":{"id":2}}`)

	student := out["Student"].(map[string]any)
	assert.Equal(t, "李小红", student["name"])
	assert.EqualValues(t, 1, student["gender"])
	assert.EqualValues(t, 200, out["code"])
	assert.Equal(t, "success", out["msg"])
}

func TestGetMissingObjectIsNull(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student":{"id":999}}`)
	v, present := out["Student"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestArrayOfOneTableIsFlattened(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student[]":{"Student":{"grade":"九年级","@order":"id+"}}}`)

	list := rows(t, out["Student[]"])
	require.Len(t, list, 3)
	assert.Equal(t, "张小明", list[0]["name"])
	assert.Equal(t, "王小强", list[1]["name"])
	assert.Equal(t, "陈小华", list[2]["name"])
}

func TestObjectQueryTakesFirstOrderedRow(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{
		"Student": {"grade": "九年级", "@column": "id,name,age,student_no", "@order": "age-"},
		"Parent[]": {"Parent": {"relationship": "父亲", "@column": "name,phone,occupation", "@order": "id+"}}
	}`)

	student := out["Student"].(map[string]any)
	assert.Equal(t, "王小强", student["name"])
	assert.Len(t, student, 4)

	fathers := rows(t, out["Parent[]"])
	require.Len(t, fathers, 2)
	assert.Equal(t, "张大强", fathers[0]["name"])
	assert.Equal(t, "医生", fathers[1]["occupation"])
	_, hasID := fathers[0]["id"]
	assert.False(t, hasID)
}

func TestCountColumn(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student":{"@column":"count(*):total"}}`)
	assert.EqualValues(t, 5, out["Student"].(map[string]any)["total"])
}

func TestGroupByGrade(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student[]":{"Student":{
		"@column": "grade, count(*):count",
		"@group": "grade",
		"@order": "count-, grade+"
	}}}`)

	list := rows(t, out["Student[]"])
	require.Len(t, list, 3)
	assert.Equal(t, "九年级", list[0]["grade"])
	assert.EqualValues(t, 3, list[0]["count"])
	assert.Equal(t, "七年级", list[1]["grade"])
	assert.Equal(t, "八年级", list[2]["grade"])
}

func TestAverageAgeByGrade(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student[]":{"Student":{
		"@column": "grade, avg(age):average_age, count(*):student_count, min(age):min_age, max(age):max_age",
		"@group": "grade",
		"@order": "average_age-"
	}}}`)

	list := rows(t, out["Student[]"])
	require.Len(t, list, 3)
	top := list[0]
	assert.Equal(t, "九年级", top["grade"])
	assert.InDelta(t, 15.33, top["average_age"], 0.01)
	assert.EqualValues(t, 3, top["student_count"])
	assert.EqualValues(t, 15, top["min_age"])
	assert.EqualValues(t, 16, top["max_age"])
}

func TestConditionalCounts(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student[]":{"Student":{
		"@column": "grade, count(*):student_count, count(case when gender=0 then 1 end):male_count, count(case when gender=1 then 1 end):female_count",
		"@group": "grade",
		"@order": "grade+"
	}}}`)

	byGrade := map[string]map[string]any{}
	for _, r := range rows(t, out["Student[]"]) {
		byGrade[r["grade"].(string)] = r
	}
	assert.EqualValues(t, 3, byGrade["九年级"]["male_count"])
	assert.EqualValues(t, 0, byGrade["九年级"]["female_count"])
	assert.EqualValues(t, 1, byGrade["八年级"]["female_count"])
}

func TestPaginationWithTotal(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{
		"Student[]": {"Student": {"@column": "id,name", "@order": "id+", "@count": 2, "@page": 1}},
		"total@": "/Student[]/total"
	}`)

	list := rows(t, out["Student[]"])
	require.Len(t, list, 2)
	assert.EqualValues(t, 3, list[0]["id"])
	assert.EqualValues(t, 4, list[1]["id"])
	assert.EqualValues(t, 5, out["total"])
}

func TestArrayPagingKeysAndInfo(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{
		"info@": "/Student[]/info",
		"Student[]": {"count": 2, "page": 2, "Student": {"@order": "id+"}}
	}`)

	list := rows(t, out["Student[]"])
	require.Len(t, list, 1)
	assert.EqualValues(t, 5, list[0]["id"])

	info := out["info"].(map[string]any)
	assert.EqualValues(t, 5, info["total"])
	assert.EqualValues(t, 2, info["max"])
	assert.Equal(t, true, info["last"])
	assert.Equal(t, false, info["more"])
}

func TestHugePageIsEmpty(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{
		"Student[]": {"Student": {"@column": "id"}, "page": 9223372036854775807, "count": 100},
		"total@": "/Student[]/total"
	}`)
	assert.Empty(t, rows(t, out["Student[]"]))
	assert.EqualValues(t, 5, out["total"])
}

func TestQueryModeOneSkipsRows(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student[]":{"query":1,"Student":{}},"total@":"/Student[]/total"}`)
	assert.Empty(t, out["Student[]"])
	assert.EqualValues(t, 5, out["total"])
}

func TestCountIsCapped(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Student[]":{"count":1000,"Student":{}}}`)
	assert.Len(t, rows(t, out["Student[]"]), 5)
}

func TestRangeConditions(t *testing.T) {
	e := newTestEngine(t)
	cases := []struct {
		name string
		cond string
		want int
	}{
		{"bracket range", `"age{}": "[14,16]"`, 4},
		{"comparison or", `"age{}": ">=16,<=13"`, 2},
		{"comparison and", `"age&{}": ">=14,<=15"`, 3},
		{"in list", `"age{}": [13, 16]`, 2},
		{"not in", `"age!{}": [15]`, 3},
		{"not equal", `"grade!": "九年级"`, 2},
		{"like", `"name$": "%小%"`, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := get(t, e, `{"Student[]":{"Student":{`+tc.cond+`}}}`)
			assert.Len(t, rows(t, out["Student[]"]), tc.want)
		})
	}
}

func TestEmergencyContactsOfStudents(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Parent[]":{"Parent":{
		"student_id{}": [1, 3, 5],
		"is_emergency_contact": 1,
		"@column": "id,name,relationship,phone,student_id"
	}}}`)

	list := rows(t, out["Parent[]"])
	require.Len(t, list, 1)
	assert.Equal(t, "张大强", list[0]["name"])
}

func TestOccupationStatisticsWithHaving(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"Parent[]":{"Parent":{
		"@column": "occupation, count(*):count, avg(age):avg_age",
		"@group": "occupation",
		"@having": "count(*) > 0",
		"@order": "count-, occupation+"
	}}}`)
	assert.Len(t, rows(t, out["Parent[]"]), 3)

	out = get(t, e, `{"Parent[]":{"Parent":{
		"@column": "relationship, count(*):count",
		"@group": "relationship",
		"@having": "count > 1"
	}}}`)
	list := rows(t, out["Parent[]"])
	require.Len(t, list, 1)
	assert.Equal(t, "父亲", list[0]["relationship"])
}

func TestAliasWithAs(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"EmergencyContact[]":{"Parent":{
		"is_emergency_contact": 1,
		"@column": "name as contact_name,phone as contact_phone,relationship",
		"@order": "student_id+"
	}}}`)

	list := rows(t, out["EmergencyContact[]"])
	require.Len(t, list, 2)
	assert.Equal(t, "张大强", list[0]["contact_name"])
	assert.Equal(t, "13900001003", list[1]["contact_phone"])
}

func TestReferenceToSibling(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{
		"Student": {"id": 1},
		"Parent[]": {"Parent": {"student_id@": "/Student/id", "@order": "id+"}}
	}`)

	list := rows(t, out["Parent[]"])
	require.Len(t, list, 2)
	assert.Equal(t, "母亲", list[1]["relationship"])
}

func TestReferenceToMissingObjectYieldsNothing(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{
		"Student": {"id": 42},
		"Parent": {"student_id@": "/Student/id"},
		"Parent[]": {"Parent": {"student_id@": "/Student/id"}},
		"total@": "/Parent[]/total"
	}`)
	assert.Nil(t, out["Parent"])
	assert.Empty(t, out["Parent[]"])
	assert.EqualValues(t, 0, out["total"])
}

func TestMultiTableArrayItems(t *testing.T) {
	e := newTestEngine(t)
	out := get(t, e, `{"[]":{
		"Student": {"grade": "九年级", "@column": "id,name", "@order": "id+"},
		"Parent": {"student_id@": "[]/Student/id", "@column": "name"}
	}}`)

	items := rows(t, out["[]"])
	require.Len(t, items, 3)
	assert.Equal(t, "张小明", items[0]["Student"].(map[string]any)["name"])
	assert.Equal(t, "张大强", items[0]["Parent"].(map[string]any)["name"])
	assert.Nil(t, items[1]["Parent"])
}

func TestHeadCounts(t *testing.T) {
	e := newTestEngine(t)
	out := call(t, e, models.MethodHead, models.RoleUnknown, `{"Student":{"grade":"九年级"},"Parent":{}}`)
	require.Equal(t, true, out["ok"])
	assert.EqualValues(t, 3, out["Student"].(map[string]any)["count"])
	assert.EqualValues(t, 3, out["Parent"].(map[string]any)["count"])

	out = call(t, e, models.MethodHeads, models.RoleLogin, `{"Student[]":{"Student":{}}}`)
	assert.EqualValues(t, 400, out["code"])
}

func TestReadErrors(t *testing.T) {
	e := newTestEngine(t)
	cases := map[string]string{
		"not json":          `{"Student":`,
		"not an object":     `[1,2]`,
		"unknown table":     `{"Classroom":{}}`,
		"unknown column":    `{"Student":{"salary":1}}`,
		"injected column":   `{"Student":{"@column":"name;DROP TABLE Student"}}`,
		"unsupported call":  `{"Student":{"@column":"sleep(1)"}}`,
		"bad order":         `{"Student":{"@order":"password-"}}`,
		"bad having":        `{"Student[]":{"Student":{"@column":"grade","@group":"grade","@having":"grade > 1"}}}`,
		"unknown directive": `{"Student":{"@explode":true}}`,
		"array without row": `{"X[]":{"count":3}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			out := call(t, e, models.MethodGet, models.RoleUnknown, body)
			assert.Equal(t, false, out["ok"])
			assert.EqualValues(t, 400, out["code"])
			assert.NotEmpty(t, out["msg"])
		})
	}
}

func TestEnvelopeKeepsRequestOrder(t *testing.T) {
	e := newTestEngine(t)
	data := string(e.Execute(context.Background(), models.MethodGet, models.RoleUnknown,
		[]byte(`{"Parent":{"id":1,"@column":"name"},"Student":{"id":1,"@column":"name"}}`)))

	parent := strings.Index(data, `"Parent"`)
	student := strings.Index(data, `"Student"`)
	ok := strings.Index(data, `"ok"`)
	require.True(t, parent >= 0 && student >= 0 && ok >= 0, data)
	assert.Less(t, parent, student)
	assert.Less(t, student, ok)
}

func TestWritesRequireRole(t *testing.T) {
	e := newTestEngine(t)
	body := `{"Student":{"student_no":"S2024099","name":"新同学"}}`

	out := call(t, e, models.MethodPost, models.RoleUnknown, body)
	assert.EqualValues(t, 401, out["code"])

	out = call(t, e, models.MethodPost, models.RoleLogin, body)
	assert.EqualValues(t, 403, out["code"])

	out = call(t, e, models.MethodPost, models.RoleAdmin, body)
	require.Equal(t, true, out["ok"], "%v", out)
	created := out["Student"].(map[string]any)
	assert.EqualValues(t, 6, created["id"])
	assert.EqualValues(t, 1, created["count"])

	got := get(t, e, `{"Student":{"student_no":"S2024099"}}`)
	assert.Equal(t, "新同学", got["Student"].(map[string]any)["name"])
}

func TestPostValidatesStructure(t *testing.T) {
	e := newTestEngine(t)
	cases := map[string]string{
		"missing required":  `{"Student":{"name":"无学号"}}`,
		"unknown key":       `{"Student":{"student_no":"S1","name":"x","salary":3}}`,
		"two tables":        `{"Student":{"student_no":"S1","name":"x"},"Parent":{}}`,
		"no table":          `{"tag":"Student"}`,
		"duplicate number":  `{"Student":{"student_no":"S2024001","name":"重复"}}`,
		"object value":      `{"Student":{"student_no":"S1","name":{"a":1}}}`,
		"parent needs rels": `{"Parent":{"student_id":1,"name":"x","phone":"1"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			out := call(t, e, models.MethodPost, models.RoleAdmin, body)
			assert.EqualValues(t, 400, out["code"], "%v", out)
		})
	}

	out := call(t, e, models.MethodPost, models.RoleAdmin, `{"tag":"Nothing","Student":{"name":"x"}}`)
	assert.EqualValues(t, 403, out["code"])
}

func TestPutUpdatesRow(t *testing.T) {
	e := newTestEngine(t)

	out := call(t, e, models.MethodPut, models.RoleAdmin, `{"Student":{"id":4,"age":14,"grade":"八年级"}}`)
	require.Equal(t, true, out["ok"], "%v", out)
	assert.EqualValues(t, 1, out["Student"].(map[string]any)["count"])

	got := get(t, e, `{"Student":{"id":4}}`)
	assert.EqualValues(t, 14, got["Student"].(map[string]any)["age"])

	out = call(t, e, models.MethodPut, models.RoleAdmin, `{"Student":{"age":14}}`)
	assert.EqualValues(t, 400, out["code"])

	out = call(t, e, models.MethodPut, models.RoleAdmin, `{"Student":{"id":404,"age":14}}`)
	assert.EqualValues(t, 404, out["code"])
}

func TestDeleteRows(t *testing.T) {
	e := newTestEngine(t)

	out := call(t, e, models.MethodDelete, models.RoleAdmin, `{"Parent":{"id":2}}`)
	require.Equal(t, true, out["ok"], "%v", out)
	assert.Nil(t, get(t, e, `{"Parent":{"id":2}}`)["Parent"])

	out = call(t, e, models.MethodDelete, models.RoleAdmin, `{"Parent":{"id{}":[1,3]}}`)
	require.Equal(t, true, out["ok"], "%v", out)
	assert.EqualValues(t, 2, out["Parent"].(map[string]any)["count"])

	out = call(t, e, models.MethodDelete, models.RoleAdmin, `{"Parent":{"id":1}}`)
	assert.EqualValues(t, 404, out["code"])

	out = call(t, e, models.MethodDelete, models.RoleAdmin, `{"Parent":{"name":"x"}}`)
	assert.EqualValues(t, 400, out["code"])
}

func TestCacheServesReadsUntilWrite(t *testing.T) {
	store := newTestStore(t)
	e := NewEngine(store, quietLogger(), WithCache(db.NewMemoryCache(), time.Minute))
	body := `{"Student":{"@column":"count(*):total"}}`

	first := get(t, e, body)
	assert.EqualValues(t, 5, first["Student"].(map[string]any)["total"])

	_, err := store.InsertStudent(context.Background(), models.Student{StudentNo: "S2024200", Name: "旁路"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, get(t, e, body)["Student"].(map[string]any)["total"])

	out := call(t, e, models.MethodPost, models.RoleAdmin, `{"Student":{"student_no":"S2024201","name":"经由接口"}}`)
	require.Equal(t, true, out["ok"])
	assert.EqualValues(t, 7, get(t, e, body)["Student"].(map[string]any)["total"])
}

func TestCacheKeyIgnoresWhitespace(t *testing.T) {
	a := cacheKey(0, models.MethodGet, models.RoleUnknown, []byte(`{"Student": {"id": 1}}`))
	b := cacheKey(0, models.MethodGet, models.RoleUnknown, []byte("{\n  \"Student\":{\"id\":1}\n}"))
	c := cacheKey(0, models.MethodGet, models.RoleAdmin, []byte(`{"Student":{"id":1}}`))
	d := cacheKey(1, models.MethodGet, models.RoleUnknown, []byte(`{"Student":{"id":1}}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.True(t, strings.HasPrefix(a, "query:0:GET:UNKNOWN:"))
}

// writeOnSetCache runs a write between a read's query and its cache store.
type writeOnSetCache struct {
	*db.MemoryCache
	write func()
}

func (c *writeOnSetCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if w := c.write; w != nil {
		c.write = nil
		w()
	}
	return c.MemoryCache.Set(ctx, key, value, ttl)
}

func TestReadRacingWriteIsNotServedStale(t *testing.T) {
	store := newTestStore(t)
	cache := &writeOnSetCache{MemoryCache: db.NewMemoryCache()}
	e := NewEngine(store, quietLogger(), WithCache(cache, time.Minute))
	body := `{"Student":{"@column":"count(*):total"}}`

	cache.write = func() {
		out := call(t, e, models.MethodPost, models.RoleAdmin, `{"Student":{"student_no":"S2024300","name":"并发写入"}}`)
		require.Equal(t, true, out["ok"], "%v", out)
	}
	assert.EqualValues(t, 5, get(t, e, body)["Student"].(map[string]any)["total"])
	assert.EqualValues(t, 6, get(t, e, body)["Student"].(map[string]any)["total"])
}
