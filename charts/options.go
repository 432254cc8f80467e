package charts

import "fmt"

// Subtext is shown under dashboard chart titles.
const Subtext = "数据来源: APIJSON + JOLT转换"

func seriesData(data any) (categories, values []any) {
	m, _ := data.(map[string]any)
	return listOf(m["categories"]), listOf(m["values"])
}

// BarOption builds a bar chart from {categories, values}.
func BarOption(title string, data any) map[string]any {
	cats, vals := seriesData(data)
	return map[string]any{
		"title":   map[string]any{"text": title},
		"tooltip": map[string]any{},
		"xAxis":   map[string]any{"type": "category", "data": cats},
		"yAxis":   map[string]any{"type": "value"},
		"series":  []any{map[string]any{"type": "bar", "data": vals}},
	}
}

// PieOption builds a pie chart from [{name, value}].
func PieOption(title string, data any) map[string]any {
	slices := listOf(data)
	return map[string]any{
		"title":   map[string]any{"text": title, "left": "center"},
		"tooltip": map[string]any{"trigger": "item"},
		"series":  []any{map[string]any{"type": "pie", "radius": "50%", "data": slices}},
	}
}

// LineOption builds a line chart from {categories, values}.
func LineOption(title string, data any) map[string]any {
	cats, vals := seriesData(data)
	return map[string]any{
		"title":   map[string]any{"text": title},
		"tooltip": map[string]any{"trigger": "axis"},
		"xAxis":   map[string]any{"type": "category", "data": cats},
		"yAxis":   map[string]any{"type": "value"},
		"series":  []any{map[string]any{"type": "line", "data": vals}},
	}
}

// Option dispatches on an ECharts series type.
func Option(chartType, title string, data any) (map[string]any, error) {
	switch chartType {
	case "bar":
		return BarOption(title, data), nil
	case "pie":
		return PieOption(title, data), nil
	case "line":
		return LineOption(title, data), nil
	}
	return nil, fmt.Errorf("unsupported chart type %q", chartType)
}

// DashboardOption is the option the dashboard renders for kind: the plain
// option plus subtitle, axis names and colors.
func DashboardOption(kind Kind, data any) map[string]any {
	opt, _ := Option(kind.ChartType(), kind.Title(), data)
	title := opt["title"].(map[string]any)
	title["subtext"] = Subtext
	title["left"] = "center"
	series := opt["series"].([]any)[0].(map[string]any)

	switch kind {
	case Gender:
		opt["legend"] = map[string]any{"bottom": "10%", "left": "center"}
		series["name"] = "性别分布"
		series["radius"] = []any{"40%", "70%"}
		series["color"] = []any{Palette[0], Palette[1]}
	default:
		opt["tooltip"] = map[string]any{"trigger": "axis"}
		opt["grid"] = map[string]any{"left": "3%", "right": "4%", "bottom": "3%", "containLabel": true}
		opt["yAxis"].(map[string]any)["name"] = "学生数量"
		series["name"] = "学生数量"
		if kind == Age {
			series["smooth"] = true
			opt["xAxis"].(map[string]any)["boundaryGap"] = false
		} else {
			series["color"] = Palette[0]
		}
	}
	return opt
}
