package db

import (
	"context"
	"fmt"

	"studentparent-server-go/models"
)

// SeedOptions controls what Seed writes besides the protocol configuration.
type SeedOptions struct {
	// DemoData inserts the demo students and parents when Student is empty.
	DemoData bool
	// Admin, when its Phone is set, is created or refreshed.
	Admin models.User
}

var demoStudents = []models.Student{
	{StudentNo: "S2024001", Name: "张小明", Gender: 0, Age: 15, Grade: "九年级", ClassName: "九年级(1)班", Phone: "13800001001", Email: "zhangxm@email.com", Address: "北京市朝阳区建国路1号", Status: 1},
	{StudentNo: "S2024002", Name: "李小红", Gender: 1, Age: 14, Grade: "八年级", ClassName: "八年级(2)班", Phone: "13800001002", Email: "lixh@email.com", Address: "上海市浦东新区陆家嘴路2号", Status: 1},
	{StudentNo: "S2024003", Name: "王小强", Gender: 0, Age: 16, Grade: "九年级", ClassName: "九年级(2)班", Phone: "13800001003", Email: "wangxq@email.com", Address: "广州市天河区珠江新城3号", Status: 1},
	{StudentNo: "S2024004", Name: "刘小美", Gender: 1, Age: 13, Grade: "七年级", ClassName: "七年级(1)班", Phone: "13800001004", Email: "liuxm@email.com", Address: "深圳市南山区科技园4号", Status: 1},
	{StudentNo: "S2024005", Name: "陈小华", Gender: 0, Age: 15, Grade: "九年级", ClassName: "九年级(1)班", Phone: "13800001005", Email: "chenxh@email.com", Address: "杭州市西湖区文三路5号", Status: 1},
}

// demoParents reference demoStudents by position (0-based).
var demoParents = []struct {
	student int
	parent  models.Parent
}{
	{0, models.Parent{Name: "张大强", Relationship: "父亲", Gender: 0, Age: 42, Phone: "13900001001", Email: "zhangdq@email.com", Occupation: "软件工程师", WorkAddress: "北京市海淀区中关村大街10号", IsEmergencyContact: 1}},
	{0, models.Parent{Name: "王美丽", Relationship: "母亲", Gender: 1, Age: 40, Phone: "13900001002", Email: "wangml@email.com", Occupation: "会计师", WorkAddress: "北京市朝阳区国贸大厦20层", IsEmergencyContact: 0}},
	{1, models.Parent{Name: "李建国", Relationship: "父亲", Gender: 0, Age: 45, Phone: "13900001003", Email: "lijg@email.com", Occupation: "医生", WorkAddress: "上海市黄浦区人民医院", IsEmergencyContact: 1}},
}

var (
	readRoles  = []models.Role{models.RoleUnknown, models.RoleLogin, models.RoleAdmin}
	writeRoles = []models.Role{models.RoleAdmin}
)

// DefaultAccess is the permission row written for every query-visible table.
func DefaultAccess(table Table) models.Access {
	return models.Access{
		Name:  table.Name,
		Alias: table.Alias,
		Roles: map[models.Method][]models.Role{
			models.MethodGet:    readRoles,
			models.MethodHead:   readRoles,
			models.MethodGets:   readRoles,
			models.MethodHeads:  readRoles,
			models.MethodPost:   writeRoles,
			models.MethodPut:    writeRoles,
			models.MethodDelete: writeRoles,
		},
		Detail: table.Alias + "表的访问权限配置",
	}
}

var requestStructures = []models.RequestStructure{
	{Method: models.MethodPost, Tag: "Student", Detail: "新增学生",
		Structure: `{"Student":{"student_no!":"","name!":"","gender":"","age":"","grade":"","class_name":"","phone":"","email":"","address":"","status":""}}`},
	{Method: models.MethodPut, Tag: "Student", Detail: "修改学生信息",
		Structure: `{"Student":{"id!":0,"student_no":"","name":"","gender":"","age":"","grade":"","class_name":"","phone":"","email":"","address":"","status":""}}`},
	{Method: models.MethodDelete, Tag: "Student", Detail: "删除学生",
		Structure: `{"Student":{"id!":0}}`},
	{Method: models.MethodPost, Tag: "Parent", Detail: "新增家长",
		Structure: `{"Parent":{"student_id!":0,"name!":"","relationship!":"","gender":"","age":"","phone!":"","email":"","occupation":"","work_address":"","is_emergency_contact":""}}`},
	{Method: models.MethodPut, Tag: "Parent", Detail: "修改家长信息",
		Structure: `{"Parent":{"id!":0,"student_id":"","name":"","relationship":"","gender":"","age":"","phone":"","email":"","occupation":"","work_address":"","is_emergency_contact":""}}`},
	{Method: models.MethodDelete, Tag: "Parent", Detail: "删除家长",
		Structure: `{"Parent":{"id!":0}}`},
}

// Seed writes the Access and Request configuration, then the optional admin
// account and demo rows. Demo rows are only added to an empty Student table.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) error {
	for _, name := range TableNames() {
		table, _ := LookupTable(name)
		if err := s.PutAccess(ctx, DefaultAccess(table)); err != nil {
			return err
		}
	}
	for _, rs := range requestStructures {
		if err := s.PutRequestStructure(ctx, rs); err != nil {
			return err
		}
	}
	s.log.Info("✓ Access/Request 配置已更新")

	if opts.Admin.Phone != "" {
		if opts.Admin.Role == "" {
			opts.Admin.Role = models.RoleAdmin
		}
		if _, err := s.PutUser(ctx, opts.Admin); err != nil {
			return err
		}
		s.log.WithField("phone", opts.Admin.Phone).Info("✓ 管理员账号已就绪")
	}

	if !opts.DemoData {
		return nil
	}

	count, err := s.CountRows(ctx, "Student")
	if err != nil {
		s.log.WithError(err).Warn("无法检查是否已有学生数据，跳过添加测试数据")
		return nil
	}
	if count > 0 {
		s.log.WithField("count", count).Info("⚠️ 数据已存在，跳过数据插入")
		return nil
	}
	return s.seedDemoData(ctx)
}

func (s *Store) seedDemoData(ctx context.Context) error {
	ids := make([]int64, len(demoStudents))
	for i, st := range demoStudents {
		id, err := s.InsertStudent(ctx, st)
		if err != nil {
			return fmt.Errorf("seed student %s: %w", st.StudentNo, err)
		}
		ids[i] = id
	}
	s.log.WithField("count", len(ids)).Info("✓ 学生测试数据插入成功")

	for _, dp := range demoParents {
		p := dp.parent
		p.StudentID = ids[dp.student]
		if _, err := s.InsertParent(ctx, p); err != nil {
			return fmt.Errorf("seed parent %s: %w", p.Name, err)
		}
	}
	s.log.WithField("count", len(demoParents)).Info("✓ 家长测试数据插入成功")
	return nil
}
