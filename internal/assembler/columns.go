// Package assembler turns flat joined rows into nested registration views.
//
// Every joined query selects columns through the projections in this file, so
// each source column gets an alias prefixed with its entity ("section_id",
// "course_id", "department_name", ...). Row structs tag their fields with the
// same aliases, which keeps colliding names such as id and name apart.
package assembler

import "strings"

// Table aliases used by the joins below.
const (
	SectionAlias    = "s"
	CourseAlias     = "c"
	DepartmentAlias = "d"
	InstructorAlias = "i"
	StudentAlias    = "u"
	EnrollmentAlias = "e"
	WaitlistAlias   = "w"
)

// SectionJoins attaches course, department and instructor to sections aliased s.
const SectionJoins = `JOIN courses c ON c.id = s.course_id
JOIN departments d ON d.id = c.department_id
JOIN users i ON i.id = s.instructor_id`

var (
	sectionColumns = qualify(SectionAlias, "section",
		"id", "course_id", "classroom", "capacity", "waitlist_capacity", "day",
		"begin_time", "end_time", "freeze", "deleted", "instructor_id", "created_at", "updated_at")
	courseColumns     = qualify(CourseAlias, "course", "id", "code", "name", "department_id")
	departmentColumns = qualify(DepartmentAlias, "department", "id", "name")
	instructorColumns = qualify(InstructorAlias, "instructor", "id", "first_name", "last_name", "role")
	studentColumns    = qualify(StudentAlias, "student", "id", "first_name", "last_name", "role")
	enrollmentColumns = qualify(EnrollmentAlias, "enrollment",
		"id", "user_id", "section_id", "status", "grade", "created_at", "updated_at")
	waitlistColumns = qualify(WaitlistAlias, "waitlist", "user_id", "section_id", "position", "created_at")

	enrolledCountColumn = `(SELECT COUNT(*) FROM enrollments ec WHERE ec.section_id = s.id AND ec.status = 'ENROLLED') AS section_enrolled`
)

// SectionColumns projects SectionRow.
func SectionColumns() []string {
	return concat(sectionColumns, courseColumns, departmentColumns, instructorColumns, []string{enrolledCountColumn})
}

// EnrollmentColumns projects EnrollmentRow. Callers LEFT JOIN waitlist w on (user_id, section_id).
func EnrollmentColumns() []string {
	return concat(enrollmentColumns, studentColumns, []string{WaitlistAlias + ".position AS waitlist_position"}, SectionColumns())
}

// WaitlistColumns projects WaitlistRow.
func WaitlistColumns() []string {
	return concat(waitlistColumns, studentColumns, SectionColumns())
}

// CourseColumns projects CourseRow.
func CourseColumns() []string {
	return concat(courseColumns, departmentColumns)
}

func qualify(table, prefix string, columns ...string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = table + "." + col + " AS " + prefix + "_" + col
	}
	return out
}

func concat(groups ...[]string) []string {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]string, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Alias extracts the output name of a projected column.
func Alias(column string) string {
	if idx := strings.LastIndex(column, " AS "); idx >= 0 {
		return strings.TrimSpace(column[idx+4:])
	}
	return column
}
