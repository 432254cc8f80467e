package db

import "sort"

// Table describes a table reachable through the query protocol.
type Table struct {
	Name    string
	Alias   string
	Columns []string
	// Writable lists the columns a POST or PUT may set.
	Writable []string
}

// HasColumn reports whether name is a column of t.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// CanWrite reports whether name may be assigned by a write request.
func (t Table) CanWrite(name string) bool {
	for _, c := range t.Writable {
		if c == name {
			return true
		}
	}
	return false
}

var tables = map[string]Table{
	"Student": {
		Name:  "Student",
		Alias: "学生",
		Columns: []string{
			"id", "student_no", "name", "gender", "age", "grade", "class_name",
			"phone", "email", "address", "status", "create_time", "update_time",
		},
		Writable: []string{
			"student_no", "name", "gender", "age", "grade", "class_name",
			"phone", "email", "address", "status",
		},
	},
	"Parent": {
		Name:  "Parent",
		Alias: "家长",
		Columns: []string{
			"id", "student_id", "name", "relationship", "gender", "age", "phone",
			"email", "occupation", "work_address", "is_emergency_contact",
			"create_time", "update_time",
		},
		Writable: []string{
			"student_id", "name", "relationship", "gender", "age", "phone",
			"email", "occupation", "work_address", "is_emergency_contact",
		},
	},
}

// LookupTable returns the metadata of a query-visible table.
func LookupTable(name string) (Table, bool) {
	t, ok := tables[name]
	return t, ok
}

// TableNames lists the query-visible tables in name order.
func TableNames() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
