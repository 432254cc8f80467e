package models

import "strings"

// Student represents a row of the Student table
type Student struct {
	ID         int64  `json:"id"`
	StudentNo  string `json:"student_no"` // Unique student number, e.g. S2024001
	Name       string `json:"name"`
	Gender     int    `json:"gender"` // 0 = 男, 1 = 女
	Age        int    `json:"age"`
	Grade      string `json:"grade"`
	ClassName  string `json:"class_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	Status     int    `json:"status"` // 1 = active
	CreateTime string `json:"create_time,omitempty"`
	UpdateTime string `json:"update_time,omitempty"`
}

// Parent represents a row of the Parent table
type Parent struct {
	ID                 int64  `json:"id"`
	StudentID          int64  `json:"student_id"` // ID of the student this parent belongs to
	Name               string `json:"name"`
	Relationship       string `json:"relationship"` // 父亲, 母亲, ...
	Gender             int    `json:"gender"`
	Age                int    `json:"age"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	Occupation         string `json:"occupation"`
	WorkAddress        string `json:"work_address"`
	IsEmergencyContact int    `json:"is_emergency_contact"`
	CreateTime         string `json:"create_time,omitempty"`
	UpdateTime         string `json:"update_time,omitempty"`
}

// GenderName maps the stored gender code to its display name.
func GenderName(code int) string {
	if code == 0 {
		return "男"
	}
	return "女"
}

// Role is the caller role checked against the Access table
type Role string

const (
	RoleUnknown Role = "UNKNOWN"
	RoleLogin   Role = "LOGIN"
	RoleContact Role = "CONTACT"
	RoleCircle  Role = "CIRCLE"
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole returns the role named by s, or RoleUnknown.
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleLogin, RoleContact, RoleCircle, RoleOwner, RoleAdmin:
		return r
	default:
		return RoleUnknown
	}
}

// Method is one of the query protocol operations
type Method string

const (
	MethodGet    Method = "GET"
	MethodHead   Method = "HEAD"
	MethodGets   Method = "GETS"
	MethodHeads  Method = "HEADS"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// Methods lists every method in Access column order.
var Methods = []Method{MethodGet, MethodHead, MethodGets, MethodHeads, MethodPost, MethodPut, MethodDelete}

// ParseMethod accepts both "get" and "GET".
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// IsRead reports whether m never modifies data.
func (m Method) IsRead() bool {
	switch m {
	case MethodGet, MethodHead, MethodGets, MethodHeads:
		return true
	}
	return false
}

// IsCount reports whether m answers with row counts instead of rows.
func (m Method) IsCount() bool {
	return m == MethodHead || m == MethodHeads
}

// Access is the per-table permission row
type Access struct {
	Name   string            `json:"name"`
	Alias  string            `json:"alias,omitempty"`
	Roles  map[Method][]Role `json:"roles"`
	Detail string            `json:"detail,omitempty"`
}

// Allows reports whether role may run method on the table.
func (a Access) Allows(method Method, role Role) bool {
	for _, r := range a.Roles[method] {
		if r == role {
			return true
		}
	}
	return false
}

// RequestStructure describes which keys a write request for a tag may carry.
// Keys ending with "!" are required.
type RequestStructure struct {
	ID        int64  `json:"id"`
	Version   int    `json:"version"`
	Method    Method `json:"method"`
	Tag       string `json:"tag"`
	Structure string `json:"structure"`
	Detail    string `json:"detail,omitempty"`
}

// User is an account that can log in and obtain a role
type User struct {
	ID           int64  `json:"id"`
	Phone        string `json:"phone"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"-"`
}

// Session is what a login token resolves to
type Session struct {
	UserID int64 `json:"userId"`
	Role   Role  `json:"role"`
}
