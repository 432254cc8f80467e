package client

import (
	"fmt"

	"studentparent-server-go/models"
	"studentparent-server-go/query"
)

// obj builds an ordered payload object from key/value pairs.
func obj(kv ...any) *query.Object {
	o := query.NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1])
	}
	return o
}

// list wraps the condition object of table in a "Table[]" array request.
func list(table string, cond *query.Object) *query.Object {
	return obj(table+"[]", obj(table, cond))
}

// AllStudentsRequest reads the first student.
func AllStudentsRequest() *query.Object {
	return obj("Student", obj())
}

func StudentByIDRequest(id int64) *query.Object {
	return obj("Student", obj("id", id))
}

func StudentsByGradeRequest(grade string) *query.Object {
	return list("Student", obj("grade", grade))
}

func CountStudentsRequest() *query.Object {
	return obj("Student", obj("@column", "count(*):total"))
}

func StudentsByIDsRequest(ids []int64) *query.Object {
	return list("Student", obj("id{}", ids))
}

func ParentsOfStudentRequest(studentID int64) *query.Object {
	return list("Parent", obj("student_id", studentID))
}

func EmergencyContactsRequest() *query.Object {
	return list("Parent", obj("is_emergency_contact", 1))
}

func StudentWithParentsRequest(id int64) *query.Object {
	return obj(
		"Student", obj("id", id),
		"Parent[]", obj("Parent", obj("student_id", id)),
	)
}

// ComplexRelationRequest lists the students of grade next to every emergency contact.
func ComplexRelationRequest(grade string) *query.Object {
	return obj(
		"Student[]", obj("Student", obj("grade", grade)),
		"Parent[]", obj("Parent", obj(
			"is_emergency_contact", 1,
			"@column", "id,name,phone,relationship,student_id",
		)),
	)
}

// ConditionalRelationRequest reads the oldest student of grade and every father.
func ConditionalRelationRequest(grade string) *query.Object {
	return obj(
		"Student", obj(
			"grade", grade,
			"@column", "id,name,age,student_no",
			"@order", "age-",
		),
		"Parent[]", obj("Parent", obj(
			"relationship", "父亲",
			"@column", "name,phone,occupation",
			"@order", "id+",
		)),
	)
}

// ComplexJoinRequest adds an aliased emergency contact list to ConditionalRelationRequest.
func ComplexJoinRequest(grade string) *query.Object {
	req := ConditionalRelationRequest(grade)
	req.Set("EmergencyContact[]", obj("Parent", obj(
		"is_emergency_contact", 1,
		"@column", "name as contact_name,phone as contact_phone,relationship",
		"@order", "student_id+",
	)))
	return req
}

func GroupByGradeRequest() *query.Object {
	return list("Student", obj(
		"@column", "grade, count(*):count",
		"@group", "grade",
		"@order", "count-, grade+",
	))
}

func AverageAgeByGradeRequest() *query.Object {
	return list("Student", obj(
		"@column", "grade, avg(age):average_age, count(*):student_count, min(age):min_age, max(age):max_age",
		"@group", "grade",
		"@order", "average_age-",
	))
}

// PaginationRequest reads page (from 0) of size students and the total row count.
func PaginationRequest(page, size int) *query.Object {
	return obj(
		"Student[]", obj(
			"Student", obj(
				"@column", "id,student_no,name,age,grade,class_name",
				"@order", "age-, id+",
			),
			"@count", size,
			"@page", page,
		),
		"total@", "/Student[]/total",
	)
}

func AgeRangeRequest(minAge, maxAge int) *query.Object {
	return list("Student", obj(
		"age{}", fmt.Sprintf("[%d,%d]", minAge, maxAge),
		"@column", "id,name,age,grade,student_no",
		"@order", "age+, name+",
	))
}

func FathersRequest() *query.Object {
	return list("Parent", obj(
		"relationship", "父亲",
		"@column", "id,name,phone,student_id,occupation,age",
	))
}

func GradeStudentIDsRequest(grade string) *query.Object {
	return list("Student", obj("grade", grade, "@column", "id,name"))
}

func EmergencyContactsOfRequest(studentIDs []int64) *query.Object {
	return list("Parent", obj(
		"student_id{}", studentIDs,
		"is_emergency_contact", 1,
		"@column", "id,name,relationship,phone,student_id",
	))
}

func OccupationStatsRequest() *query.Object {
	return list("Parent", obj(
		"@column", "occupation, count(*):count, avg(age):avg_age",
		"@group", "occupation",
		"@having", "count(*) > 0",
		"@order", "count-, occupation+",
	))
}

func GenderStatsRequest() *query.Object {
	return list("Student", obj(
		"@column", "gender, count(*):count",
		"@group", "gender",
	))
}

func GradeGenderStatsRequest() *query.Object {
	return list("Student", obj(
		"@column", "grade, count(*):student_count, avg(age):avg_age, count(case when gender=0 then 1 end):male_count, count(case when gender=1 then 1 end):female_count",
		"@group", "grade",
		"@order", "grade+",
	))
}

func AgeStatsRequest() *query.Object {
	return list("Student", obj(
		"@column", "age, count(*):count",
		"@group", "age",
		"@order", "age+",
	))
}

func RelationshipStatsRequest() *query.Object {
	return list("Parent", obj(
		"@column", "relationship, count(*):count, count(case when is_emergency_contact=1 then 1 end):emergency_count",
		"@group", "relationship",
		"@order", "count-, relationship+",
	))
}

// ChartRequest is the grouped count query feeding the chart of kind.
func ChartRequest(column string) *query.Object {
	return list("Student", obj(
		"@column", column+", count(*):count",
		"@group", column,
		"@order", column+"+",
	))
}

// StudentRequest builds the POST or PUT body of a student. Empty text fields
// are left out; id is only sent when set.
func StudentRequest(st models.Student) *query.Object {
	o := obj()
	if st.ID != 0 {
		o.Set("id", st.ID)
	}
	setText(o, "student_no", st.StudentNo)
	setText(o, "name", st.Name)
	o.Set("gender", st.Gender)
	if st.Age != 0 {
		o.Set("age", st.Age)
	}
	setText(o, "grade", st.Grade)
	setText(o, "class_name", st.ClassName)
	setText(o, "phone", st.Phone)
	setText(o, "email", st.Email)
	setText(o, "address", st.Address)
	return obj("Student", o)
}

// ParentRequest builds the POST or PUT body of a parent.
func ParentRequest(p models.Parent) *query.Object {
	o := obj()
	if p.ID != 0 {
		o.Set("id", p.ID)
	}
	if p.StudentID != 0 {
		o.Set("student_id", p.StudentID)
	}
	setText(o, "name", p.Name)
	setText(o, "relationship", p.Relationship)
	o.Set("gender", p.Gender)
	if p.Age != 0 {
		o.Set("age", p.Age)
	}
	setText(o, "phone", p.Phone)
	setText(o, "email", p.Email)
	setText(o, "occupation", p.Occupation)
	setText(o, "work_address", p.WorkAddress)
	emergency := 0
	if p.IsEmergencyContact != 0 {
		emergency = 1
	}
	o.Set("is_emergency_contact", emergency)
	return obj("Parent", o)
}

// DeleteRequest removes the row id of table.
func DeleteRequest(table string, id int64) *query.Object {
	return obj(table, obj("id", id))
}

func setText(o *query.Object, key, v string) {
	if v != "" {
		o.Set(key, v)
	}
}
