// Package charts shapes query results into chart data and ECharts options.
package charts

import (
	"math"
	"strconv"

	"studentparent-server-go/models"
)

// Kind names a chart transform, matching the transform registry names.
type Kind string

const (
	Grade  Kind = "grade-distribution"
	Gender Kind = "gender-distribution"
	Age    Kind = "age-distribution"
)

// Kinds lists the dashboard charts in display order.
var Kinds = []Kind{Grade, Gender, Age}

// Palette is the default ECharts color list.
var Palette = []string{"#5470c6", "#91cc75", "#fac858", "#ee6666", "#73c0de", "#3ba272", "#fc8452", "#9a60b4"}

// ChartType returns the ECharts series type used for kind.
func (k Kind) ChartType() string {
	switch k {
	case Gender:
		return "pie"
	case Age:
		return "line"
	}
	return "bar"
}

// Title returns the chart title shown for kind.
func (k Kind) Title() string {
	switch k {
	case Gender:
		return "学生性别分布"
	case Age:
		return "学生年龄分布"
	}
	return "学生年级分布"
}

// label renders a JSON scalar for display.
func label(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// genderLabel maps a gender code to its name; names pass through.
func genderLabel(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	if f, ok := toFloat(v); ok {
		return models.GenderName(int(f))
	}
	return models.GenderName(1)
}

func rowsOf(apiData map[string]any) []map[string]any {
	list, _ := apiData["Student[]"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func listOf(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{}
}

// PostProcess finishes the output of a remote transform for display: gender
// codes become names and ages get a "岁" suffix.
func PostProcess(kind Kind, data any) any {
	switch kind {
	case Gender:
		list, ok := data.([]any)
		if !ok {
			return data
		}
		out := make([]any, 0, len(list))
		for _, e := range list {
			item, ok := e.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, map[string]any{"name": genderLabel(item["gender"]), "value": item["value"]})
		}
		return out
	case Age:
		m, ok := data.(map[string]any)
		if !ok || m["categories"] == nil || m["values"] == nil {
			return data
		}
		cats := listOf(m["categories"])
		labels := make([]any, len(cats))
		for i, c := range cats {
			labels[i] = label(c) + "岁"
		}
		return map[string]any{"categories": labels, "values": m["values"]}
	}
	return data
}

// LocalTransform produces the same chart data as the named transforms followed
// by PostProcess, without the transform service.
func LocalTransform(kind Kind, apiData map[string]any) any {
	rows := rowsOf(apiData)
	switch kind {
	case Grade, Age:
		cats := make([]any, 0, len(rows))
		vals := make([]any, 0, len(rows))
		for _, r := range rows {
			if kind == Age {
				cats = append(cats, label(r["age"])+"岁")
			} else {
				cats = append(cats, r["grade"])
			}
			vals = append(vals, r["count"])
		}
		return map[string]any{"categories": cats, "values": vals}
	case Gender:
		out := make([]any, 0, len(rows))
		for _, r := range rows {
			out = append(out, map[string]any{"name": genderLabel(r["gender"]), "value": r["count"]})
		}
		return out
	}
	return apiData
}

// Stats is the dashboard overview.
type Stats struct {
	Total     int64 `json:"total"`
	Grades    int64 `json:"grade_count"`
	AvgAge    int64 `json:"avg_age"`
	MaleRatio int64 `json:"male_ratio"`
}

// NewStats rounds the average age and turns the male count into a percentage.
func NewStats(total, grades int64, avgAge float64, male int64) Stats {
	s := Stats{Total: total, Grades: grades, AvgAge: int64(math.Round(avgAge))}
	if total > 0 {
		s.MaleRatio = int64(math.Round(float64(male) * 100 / float64(total)))
	}
	return s
}
