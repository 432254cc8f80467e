package client

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"studentparent-server-go/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5470c6"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	sepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Table is a titled result table ready for the terminal.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// column maps a result field to its display header.
type column struct {
	key   string
	label string
}

var (
	studentColumns = []column{
		{"id", "ID"}, {"student_no", "学号"}, {"name", "姓名"}, {"gender", "性别"},
		{"age", "年龄"}, {"grade", "年级"}, {"class_name", "班级"}, {"phone", "电话"}, {"email", "邮箱"},
	}
	parentColumns = []column{
		{"id", "ID"}, {"student_id", "学生ID"}, {"name", "姓名"}, {"relationship", "关系"},
		{"phone", "电话"}, {"occupation", "职业"}, {"age", "年龄"}, {"is_emergency_contact", "紧急联系人"},
	}
	contactColumns = []column{
		{"contact_name", "联系人"}, {"contact_phone", "电话"}, {"relationship", "关系"},
	}
)

// newTable keeps the columns that appear in at least one row.
func newTable(title string, cols []column, rows []map[string]any) Table {
	var used []column
	for _, col := range cols {
		for _, r := range rows {
			if _, ok := r[col.key]; ok {
				used = append(used, col)
				break
			}
		}
	}
	t := Table{Title: title}
	for _, col := range used {
		t.Headers = append(t.Headers, col.label)
	}
	for _, r := range rows {
		row := make([]string, len(used))
		for i, col := range used {
			row[i] = cell(col.key, r[col.key])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func cell(key string, v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if t == "" {
			return "-"
		}
		return t
	case float64:
		switch {
		case key == "gender":
			return models.GenderName(int(t))
		case key == "is_emergency_contact":
			if t != 0 {
				return "是"
			}
			return "否"
		case t == float64(int64(t)):
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', 1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return "-"
}

// Render draws the table with its title. An empty table renders a notice.
func (t Table) Render() string {
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(titleStyle.Render(t.Title))
		sb.WriteString("\n")
	}
	if len(t.Rows) == 0 {
		sb.WriteString("暂无数据\n")
		return sb.String()
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(sepStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(t.Headers...).
		Rows(t.Rows...)
	sb.WriteString(tbl.String())
	sb.WriteString("\n")
	return sb.String()
}

// RenderTables joins several tables with blank lines.
func RenderTables(tables []Table) string {
	parts := make([]string, len(tables))
	for i, t := range tables {
		parts[i] = t.Render()
	}
	return strings.Join(parts, "\n")
}
