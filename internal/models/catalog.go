package models

import "time"

// Department is static reference data owning courses.
type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Course belongs to a department.
type Course struct {
	ID           string `db:"id" json:"id"`
	Code         string `db:"code" json:"code"`
	Name         string `db:"name" json:"name"`
	DepartmentID string `db:"department_id" json:"department_id"`
}

// CourseDetail embeds the owning department.
type CourseDetail struct {
	Course
	Department Department `json:"department"`
}

// Section is a scheduled offering of a course with seat and waitlist capacity.
type Section struct {
	ID               string    `db:"id" json:"id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	Classroom        *string   `db:"classroom" json:"classroom,omitempty"`
	Capacity         int       `db:"capacity" json:"capacity"`
	WaitlistCapacity int       `db:"waitlist_capacity" json:"waitlist_capacity"`
	Day              string    `db:"day" json:"day"`
	BeginTime        string    `db:"begin_time" json:"begin_time"`
	EndTime          string    `db:"end_time" json:"end_time"`
	Freeze           bool      `db:"freeze" json:"freeze"`
	Deleted          bool      `db:"deleted" json:"-"`
	InstructorID     string    `db:"instructor_id" json:"instructor_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Admissible reports whether the section accepts new admissions.
func (s Section) Admissible() bool {
	return !s.Freeze && !s.Deleted
}

// SectionDetail embeds course (with department) and instructor.
type SectionDetail struct {
	Section
	Course     CourseDetail `json:"course"`
	Instructor UserSummary  `json:"instructor"`
	Enrolled   *int         `json:"enrolled,omitempty"`
}

// SectionFilter narrows section listings. Deleted sections are always excluded.
type SectionFilter struct {
	CourseID     string
	InstructorID string
	Day          string
	Page         int
	PageSize     int
}

// SectionPatch carries the mutable fields of a section. Nil means unchanged.
type SectionPatch struct {
	Classroom        *string `json:"classroom"`
	Capacity         *int    `json:"capacity" validate:"omitempty,min=0"`
	WaitlistCapacity *int    `json:"waitlist_capacity" validate:"omitempty,min=0"`
	Day              *string `json:"day" validate:"omitempty,oneof=MON TUE WED THU FRI SAT SUN"`
	BeginTime        *string `json:"begin_time" validate:"omitempty,datetime=15:04"`
	EndTime          *string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Freeze           *bool   `json:"freeze"`
	Deleted          *bool   `json:"deleted"`
	InstructorID     *string `json:"instructor_id"`
}

// Fields returns the column/value pairs that are set.
func (p SectionPatch) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if p.Classroom != nil {
		fields["classroom"] = *p.Classroom
	}
	if p.Capacity != nil {
		fields["capacity"] = *p.Capacity
	}
	if p.WaitlistCapacity != nil {
		fields["waitlist_capacity"] = *p.WaitlistCapacity
	}
	if p.Day != nil {
		fields["day"] = *p.Day
	}
	if p.BeginTime != nil {
		fields["begin_time"] = *p.BeginTime
	}
	if p.EndTime != nil {
		fields["end_time"] = *p.EndTime
	}
	if p.Freeze != nil {
		fields["freeze"] = *p.Freeze
	}
	if p.Deleted != nil {
		fields["deleted"] = *p.Deleted
	}
	if p.InstructorID != nil {
		fields["instructor_id"] = *p.InstructorID
	}
	return fields
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	DepartmentID string
	Search       string
	Page         int
	PageSize     int
}

// CreateCourseRequest is the registrar payload for a new course.
type CreateCourseRequest struct {
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=255"`
	DepartmentID string `json:"department_id" validate:"required"`
}

// CreateSectionRequest is the registrar payload for a new section of a course.
type CreateSectionRequest struct {
	Classroom        *string `json:"classroom"`
	Capacity         int     `json:"capacity" validate:"min=0"`
	WaitlistCapacity int     `json:"waitlist_capacity" validate:"min=0"`
	Day              string  `json:"day" validate:"required,oneof=MON TUE WED THU FRI SAT SUN"`
	BeginTime        string  `json:"begin_time" validate:"required,datetime=15:04"`
	EndTime          string  `json:"end_time" validate:"required,datetime=15:04"`
	Freeze           bool    `json:"freeze"`
	InstructorID     string  `json:"instructor_id" validate:"required"`
}
