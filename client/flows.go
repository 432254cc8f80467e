package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownFlow is returned by RunFlow for names not in Flows.
var ErrUnknownFlow = errors.New("unknown flow")

// Params carries the inputs of the demo flows.
type Params struct {
	ID     int64
	Grade  string
	MinAge int
	MaxAge int
	Page   int
	Size   int
}

// DefaultParams are the form defaults of the demo page.
func DefaultParams() Params {
	return Params{ID: 1, Grade: "九年级", MinAge: 14, MaxAge: 16, Page: 0, Size: 5}
}

// Flow is one scripted demo interaction.
type Flow struct {
	Name  string
	Title string
	Run   func(ctx context.Context, c *Client, p Params) ([]Table, error)
}

// single runs one GET and renders the rows under key.
func single(title, key string, cols []column, build func(Params) any) func(context.Context, *Client, Params) ([]Table, error) {
	return func(ctx context.Context, c *Client, p Params) ([]Table, error) {
		resp, err := c.Get(ctx, build(p))
		if err != nil {
			return nil, err
		}
		return []Table{newTable(title, cols, resp.Rows(key))}, nil
	}
}

func statsColumns(pairs ...string) []column {
	cols := make([]column, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		cols = append(cols, column{pairs[i], pairs[i+1]})
	}
	return cols
}

// Flows lists every demo flow by name.
var Flows = map[string]Flow{
	"all-students": {Name: "all-students", Title: "查询所有学生",
		Run: single("学生", "Student", studentColumns, func(Params) any { return AllStudentsRequest() })},
	"student": {Name: "student", Title: "按ID查询学生",
		Run: single("学生", "Student", studentColumns, func(p Params) any { return StudentByIDRequest(p.ID) })},
	"students-by-grade": {Name: "students-by-grade", Title: "按年级查询学生",
		Run: single("学生", "Student[]", studentColumns, func(p Params) any { return StudentsByGradeRequest(p.Grade) })},
	"count-students": {Name: "count-students", Title: "统计学生总数",
		Run: single("学生总数", "Student", statsColumns("total", "总数"), func(Params) any { return CountStudentsRequest() })},
	"parents-of-student": {Name: "parents-of-student", Title: "查询学生的家长",
		Run: single("家长", "Parent[]", parentColumns, func(p Params) any { return ParentsOfStudentRequest(p.ID) })},
	"emergency-contacts": {Name: "emergency-contacts", Title: "查询紧急联系人",
		Run: single("紧急联系人", "Parent[]", parentColumns, func(Params) any { return EmergencyContactsRequest() })},
	"student-with-parents": {Name: "student-with-parents", Title: "查询学生及其家长信息", Run: studentWithParents},
	"complex-relation":     {Name: "complex-relation", Title: "复杂关联查询", Run: complexRelation},
	"conditional-relation": {Name: "conditional-relation", Title: "条件关联查询", Run: conditionalRelation},
	"complex-join":         {Name: "complex-join", Title: "综合关联演示", Run: complexJoin},
	"group-by-grade": {Name: "group-by-grade", Title: "按年级分组统计",
		Run: single("年级统计", "Student[]", statsColumns("grade", "年级", "count", "人数"),
			func(Params) any { return GroupByGradeRequest() })},
	"average-age": {Name: "average-age", Title: "各年级平均年龄",
		Run: single("年龄统计", "Student[]",
			statsColumns("grade", "年级", "average_age", "平均年龄", "student_count", "人数", "min_age", "最小年龄", "max_age", "最大年龄"),
			func(Params) any { return AverageAgeByGradeRequest() })},
	"pagination":         {Name: "pagination", Title: "分页查询", Run: pagination},
	"age-range":          {Name: "age-range", Title: "年龄范围查询", Run: single("学生", "Student[]", studentColumns, func(p Params) any { return AgeRangeRequest(p.MinAge, p.MaxAge) })},
	"fathers":            {Name: "fathers", Title: "查询所有父亲", Run: single("父亲", "Parent[]", parentColumns, func(Params) any { return FathersRequest() })},
	"grade-emergency":    {Name: "grade-emergency", Title: "年级学生的紧急联系人", Run: gradeEmergencyContacts},
	"occupation-stats": {Name: "occupation-stats", Title: "家长职业分布统计",
		Run: single("家长职业分布统计", "Parent[]", statsColumns("occupation", "职业", "count", "人数", "avg_age", "平均年龄"),
			func(Params) any { return OccupationStatsRequest() })},
	"gender-stats": {Name: "gender-stats", Title: "性别统计",
		Run: single("性别统计", "Student[]", statsColumns("gender", "性别", "count", "人数"),
			func(Params) any { return GenderStatsRequest() })},
	"grade-gender-stats": {Name: "grade-gender-stats", Title: "年级性别统计",
		Run: single("年级性别统计", "Student[]",
			statsColumns("grade", "年级", "student_count", "人数", "avg_age", "平均年龄", "male_count", "男生", "female_count", "女生"),
			func(Params) any { return GradeGenderStatsRequest() })},
	"age-stats": {Name: "age-stats", Title: "年龄分布统计",
		Run: single("年龄分布", "Student[]", statsColumns("age", "年龄", "count", "人数"),
			func(Params) any { return AgeStatsRequest() })},
	"relationship-stats": {Name: "relationship-stats", Title: "家长关系统计",
		Run: single("家长关系统计", "Parent[]", statsColumns("relationship", "关系", "count", "人数", "emergency_count", "紧急联系人"),
			func(Params) any { return RelationshipStatsRequest() })},
}

// FlowNames returns the flow names in sorted order.
func FlowNames() []string {
	names := make([]string, 0, len(Flows))
	for name := range Flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunFlow runs the named flow.
func (c *Client) RunFlow(ctx context.Context, name string, p Params) ([]Table, error) {
	f, ok := Flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, name)
	}
	c.log.WithField("flow", name).Info(f.Title)
	return f.Run(ctx, c, p)
}

func studentWithParents(ctx context.Context, c *Client, p Params) ([]Table, error) {
	resp, err := c.Get(ctx, StudentWithParentsRequest(p.ID))
	if err != nil {
		return nil, err
	}
	return []Table{
		newTable("学生", studentColumns, resp.Rows("Student")),
		newTable("家长", parentColumns, resp.Rows("Parent[]")),
	}, nil
}

func complexRelation(ctx context.Context, c *Client, p Params) ([]Table, error) {
	resp, err := c.Get(ctx, ComplexRelationRequest(p.Grade))
	if err != nil {
		return nil, err
	}
	return []Table{
		newTable(p.Grade+"学生", studentColumns, resp.Rows("Student[]")),
		newTable("紧急联系人", parentColumns, resp.Rows("Parent[]")),
	}, nil
}

func conditionalRelation(ctx context.Context, c *Client, p Params) ([]Table, error) {
	resp, err := c.Get(ctx, ConditionalRelationRequest(p.Grade))
	if err != nil {
		return nil, err
	}
	return []Table{
		newTable(p.Grade+"年龄最大的学生", studentColumns, resp.Rows("Student")),
		newTable("父亲", parentColumns, resp.Rows("Parent[]")),
	}, nil
}

func complexJoin(ctx context.Context, c *Client, p Params) ([]Table, error) {
	resp, err := c.Get(ctx, ComplexJoinRequest(p.Grade))
	if err != nil {
		return nil, err
	}
	return []Table{
		newTable(p.Grade+"学生", studentColumns, resp.Rows("Student")),
		newTable("父亲", parentColumns, resp.Rows("Parent[]")),
		newTable("紧急联系人", contactColumns, resp.Rows("EmergencyContact[]")),
	}, nil
}

func pagination(ctx context.Context, c *Client, p Params) ([]Table, error) {
	resp, err := c.Get(ctx, PaginationRequest(p.Page, p.Size))
	if err != nil {
		return nil, err
	}
	rows := resp.Rows("Student[]")
	title := fmt.Sprintf("第%d页，当前页%d条记录，总共%d条记录", p.Page+1, len(rows), resp.Get("total").Int())
	return []Table{newTable(title, studentColumns, rows)}, nil
}

// gradeEmergencyContacts looks up the students of a grade first, then their
// emergency contacts by student id.
func gradeEmergencyContacts(ctx context.Context, c *Client, p Params) ([]Table, error) {
	resp, err := c.Get(ctx, GradeStudentIDsRequest(p.Grade))
	if err != nil {
		return nil, err
	}
	students := resp.Rows("Student[]")
	ids := make([]int64, 0, len(students))
	for _, s := range students {
		if id, ok := s["id"].(float64); ok {
			ids = append(ids, int64(id))
		}
	}
	if len(ids) == 0 {
		return []Table{newTable(p.Grade+"暂无学生", parentColumns, nil)}, nil
	}
	resp, err = c.Get(ctx, EmergencyContactsOfRequest(ids))
	if err != nil {
		return nil, err
	}
	contacts := resp.Rows("Parent[]")
	title := fmt.Sprintf("%s共%d名学生，找到%d个紧急联系人", p.Grade, len(students), len(contacts))
	return []Table{newTable(title, parentColumns, contacts)}, nil
}
