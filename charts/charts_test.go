package charts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

const (
	gradeRows  = `{"Student[]":[{"grade":"七年级","count":1},{"grade":"九年级","count":3}]}`
	genderRows = `{"Student[]":[{"gender":0,"count":3},{"gender":1,"count":2}]}`
	ageRows    = `{"Student[]":[{"age":13,"count":1},{"age":15,"count":2}]}`
)

func TestLocalTransform(t *testing.T) {
	assert.Equal(t, map[string]any{
		"categories": []any{"七年级", "九年级"},
		"values":     []any{1.0, 3.0},
	}, LocalTransform(Grade, decode(t, gradeRows)))

	assert.Equal(t, []any{
		map[string]any{"name": "男", "value": 3.0},
		map[string]any{"name": "女", "value": 2.0},
	}, LocalTransform(Gender, decode(t, genderRows)))

	assert.Equal(t, map[string]any{
		"categories": []any{"13岁", "15岁"},
		"values":     []any{1.0, 2.0},
	}, LocalTransform(Age, decode(t, ageRows)))

	empty := LocalTransform(Grade, map[string]any{})
	assert.Equal(t, map[string]any{"categories": []any{}, "values": []any{}}, empty)
}

func TestPostProcess(t *testing.T) {
	remote := []any{
		map[string]any{"gender": 0.0, "name": 0.0, "value": 3.0},
		map[string]any{"gender": "女", "name": "女", "value": 2.0},
	}
	assert.Equal(t, []any{
		map[string]any{"name": "男", "value": 3.0},
		map[string]any{"name": "女", "value": 2.0},
	}, PostProcess(Gender, remote))

	ages := map[string]any{"categories": []any{13.0, 15.0}, "values": []any{1.0, 2.0}}
	assert.Equal(t, []any{"13岁", "15岁"}, PostProcess(Age, ages).(map[string]any)["categories"])

	grade := map[string]any{"categories": []any{"七年级"}, "values": []any{1.0}}
	assert.Equal(t, grade, PostProcess(Grade, grade))
	assert.Equal(t, "odd", PostProcess(Gender, "odd"))
}

func TestOptions(t *testing.T) {
	data := map[string]any{"categories": []any{"七年级"}, "values": []any{1.0}}

	bar := BarOption("学生年级分布", data)
	assert.Equal(t, map[string]any{"text": "学生年级分布"}, bar["title"])
	assert.Equal(t, []any{"七年级"}, bar["xAxis"].(map[string]any)["data"])
	assert.Equal(t, "bar", bar["series"].([]any)[0].(map[string]any)["type"])

	pie := PieOption("学生性别分布", []any{map[string]any{"name": "男", "value": 3.0}})
	series := pie["series"].([]any)[0].(map[string]any)
	assert.Equal(t, "50%", series["radius"])
	assert.Equal(t, "item", pie["tooltip"].(map[string]any)["trigger"])

	line, err := Option("line", "学生年龄分布", data)
	require.NoError(t, err)
	assert.Equal(t, "axis", line["tooltip"].(map[string]any)["trigger"])

	_, err = Option("radar", "x", data)
	assert.Error(t, err)
}

func TestDashboardOption(t *testing.T) {
	opt := DashboardOption(Gender, LocalTransform(Gender, decode(t, genderRows)))
	assert.Equal(t, Subtext, opt["title"].(map[string]any)["subtext"])
	series := opt["series"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"40%", "70%"}, series["radius"])
	assert.Len(t, series["data"], 2)

	age := DashboardOption(Age, LocalTransform(Age, decode(t, ageRows)))
	assert.Equal(t, true, age["series"].([]any)[0].(map[string]any)["smooth"])
	assert.Equal(t, "学生数量", age["yAxis"].(map[string]any)["name"])
}

func TestStats(t *testing.T) {
	assert.Equal(t, Stats{Total: 5, Grades: 3, AvgAge: 15, MaleRatio: 60}, NewStats(5, 3, 14.6, 3))
	assert.Equal(t, Stats{}, NewStats(0, 0, 0, 0))
	assert.Equal(t, "bar", Grade.ChartType())
	assert.Equal(t, "学生性别分布", Gender.Title())
}
