package assembler

import (
	"time"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// CourseRow is the flat result of courses joined with departments.
type CourseRow struct {
	CourseID           string `db:"course_id"`
	CourseCode         string `db:"course_code"`
	CourseName         string `db:"course_name"`
	CourseDepartmentID string `db:"course_department_id"`
	DepartmentID       string `db:"department_id"`
	DepartmentName     string `db:"department_name"`
}

// SectionRow is the flat result of sections joined with course, department and instructor.
type SectionRow struct {
	CourseRow
	SectionID               string    `db:"section_id"`
	SectionCourseID         string    `db:"section_course_id"`
	SectionClassroom        *string   `db:"section_classroom"`
	SectionCapacity         int       `db:"section_capacity"`
	SectionWaitlistCapacity int       `db:"section_waitlist_capacity"`
	SectionDay              string    `db:"section_day"`
	SectionBeginTime        string    `db:"section_begin_time"`
	SectionEndTime          string    `db:"section_end_time"`
	SectionFreeze           bool      `db:"section_freeze"`
	SectionDeleted          bool      `db:"section_deleted"`
	SectionInstructorID     string    `db:"section_instructor_id"`
	SectionCreatedAt        time.Time `db:"section_created_at"`
	SectionUpdatedAt        time.Time `db:"section_updated_at"`
	SectionEnrolled         *int      `db:"section_enrolled"`
	InstructorID            string    `db:"instructor_id"`
	InstructorFirstName     string    `db:"instructor_first_name"`
	InstructorLastName      string    `db:"instructor_last_name"`
	InstructorRole          string    `db:"instructor_role"`
}

// StudentRow carries the student side of enrollment and waitlist joins.
type StudentRow struct {
	StudentID        string `db:"student_id"`
	StudentFirstName string `db:"student_first_name"`
	StudentLastName  string `db:"student_last_name"`
	StudentRole      string `db:"student_role"`
}

// EnrollmentRow is an enrollment joined with its student, section view and waitlist slot.
type EnrollmentRow struct {
	SectionRow
	StudentRow
	EnrollmentID        string    `db:"enrollment_id"`
	EnrollmentUserID    string    `db:"enrollment_user_id"`
	EnrollmentSectionID string    `db:"enrollment_section_id"`
	EnrollmentStatus    string    `db:"enrollment_status"`
	EnrollmentGrade     *string   `db:"enrollment_grade"`
	EnrollmentCreatedAt time.Time `db:"enrollment_created_at"`
	EnrollmentUpdatedAt time.Time `db:"enrollment_updated_at"`
	WaitlistPosition    *int      `db:"waitlist_position"`
}

// WaitlistRow is a waitlist entry joined with its student and section view.
type WaitlistRow struct {
	SectionRow
	StudentRow
	WaitlistUserID    string    `db:"waitlist_user_id"`
	WaitlistSectionID string    `db:"waitlist_section_id"`
	WaitlistPosition  int       `db:"waitlist_position"`
	WaitlistCreatedAt time.Time `db:"waitlist_created_at"`
}

// AssembleCourse builds a course with its department.
func AssembleCourse(row CourseRow) models.CourseDetail {
	return models.CourseDetail{
		Course: models.Course{
			ID:           row.CourseID,
			Code:         row.CourseCode,
			Name:         row.CourseName,
			DepartmentID: row.CourseDepartmentID,
		},
		Department: models.Department{ID: row.DepartmentID, Name: row.DepartmentName},
	}
}

// AssembleSection builds a section with its course, department and instructor.
func AssembleSection(row SectionRow) models.SectionDetail {
	return models.SectionDetail{
		Section: models.Section{
			ID:               row.SectionID,
			CourseID:         row.SectionCourseID,
			Classroom:        row.SectionClassroom,
			Capacity:         row.SectionCapacity,
			WaitlistCapacity: row.SectionWaitlistCapacity,
			Day:              row.SectionDay,
			BeginTime:        row.SectionBeginTime,
			EndTime:          row.SectionEndTime,
			Freeze:           row.SectionFreeze,
			Deleted:          row.SectionDeleted,
			InstructorID:     row.SectionInstructorID,
			CreatedAt:        row.SectionCreatedAt,
			UpdatedAt:        row.SectionUpdatedAt,
		},
		Course: AssembleCourse(row.CourseRow),
		Instructor: models.UserSummary{
			ID:        row.InstructorID,
			FirstName: row.InstructorFirstName,
			LastName:  row.InstructorLastName,
			Role:      models.UserRole(row.InstructorRole),
		},
		Enrolled: row.SectionEnrolled,
	}
}

func assembleStudent(row StudentRow) models.UserSummary {
	return models.UserSummary{
		ID:        row.StudentID,
		FirstName: row.StudentFirstName,
		LastName:  row.StudentLastName,
		Role:      models.UserRole(row.StudentRole),
	}
}

// AssembleEnrollment builds an enrollment view. The waitlist position is only
// reported while the enrollment is waitlisted.
func AssembleEnrollment(row EnrollmentRow) models.EnrollmentDetail {
	detail := models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:        row.EnrollmentID,
			UserID:    row.EnrollmentUserID,
			SectionID: row.EnrollmentSectionID,
			Status:    models.EnrollmentStatus(row.EnrollmentStatus),
			Grade:     row.EnrollmentGrade,
			CreatedAt: row.EnrollmentCreatedAt,
			UpdatedAt: row.EnrollmentUpdatedAt,
		},
		User:    assembleStudent(row.StudentRow),
		Section: AssembleSection(row.SectionRow),
	}
	if detail.Status == models.EnrollmentStatusWaitlisted && row.WaitlistPosition != nil {
		pos := *row.WaitlistPosition
		detail.WaitlistPosition = &pos
	}
	return detail
}

// AssembleWaitlistEntry builds a waitlist view.
func AssembleWaitlistEntry(row WaitlistRow) models.WaitlistEntryDetail {
	return models.WaitlistEntryDetail{
		WaitlistEntry: models.WaitlistEntry{
			UserID:    row.WaitlistUserID,
			SectionID: row.WaitlistSectionID,
			Position:  row.WaitlistPosition,
			CreatedAt: row.WaitlistCreatedAt,
		},
		User:    assembleStudent(row.StudentRow),
		Section: AssembleSection(row.SectionRow),
	}
}

// AssembleSections maps rows preserving order.
func AssembleSections(rows []SectionRow) []models.SectionDetail {
	out := make([]models.SectionDetail, len(rows))
	for i, row := range rows {
		out[i] = AssembleSection(row)
	}
	return out
}

// AssembleEnrollments maps rows preserving order.
func AssembleEnrollments(rows []EnrollmentRow) []models.EnrollmentDetail {
	out := make([]models.EnrollmentDetail, len(rows))
	for i, row := range rows {
		out[i] = AssembleEnrollment(row)
	}
	return out
}

// AssembleWaitlist maps rows preserving order.
func AssembleWaitlist(rows []WaitlistRow) []models.WaitlistEntryDetail {
	out := make([]models.WaitlistEntryDetail, len(rows))
	for i, row := range rows {
		out[i] = AssembleWaitlistEntry(row)
	}
	return out
}

// AssembleCourses maps rows preserving order.
func AssembleCourses(rows []CourseRow) []models.CourseDetail {
	out := make([]models.CourseDetail, len(rows))
	for i, row := range rows {
		out[i] = AssembleCourse(row)
	}
	return out
}
