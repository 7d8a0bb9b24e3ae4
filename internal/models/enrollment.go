package models

import (
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
)

// Enrollment is a student's registration in a section. At most one non-dropped
// row exists per (user, section); dropped rows are kept as history.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	SectionID string           `db:"section_id" json:"section_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	Grade     *string          `db:"grade" json:"grade"`
	CreatedAt time.Time        `db:"created_at" json:"date"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// Active reports whether the enrollment holds a seat or a waitlist slot.
func (e Enrollment) Active() bool {
	return e.Status != EnrollmentStatusDropped
}

// EnrollmentDetail enriches Enrollment with the student and section.
type EnrollmentDetail struct {
	Enrollment
	User             UserSummary   `json:"user"`
	Section          SectionDetail `json:"section"`
	WaitlistPosition *int          `json:"waitlist_position,omitempty"`
}

// StatusFilter selects enrollment statuses for listings. An empty slice means all statuses.
type StatusFilter []EnrollmentStatus

// ParseStatusFilter maps a query value to a filter. Empty input defaults to enrolled.
func ParseStatusFilter(raw string) (StatusFilter, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "enrolled":
		return StatusFilter{EnrollmentStatusEnrolled}, true
	case "waitlisted":
		return StatusFilter{EnrollmentStatusWaitlisted}, true
	case "dropped":
		return StatusFilter{EnrollmentStatusDropped}, true
	case "active":
		return StatusFilter{EnrollmentStatusEnrolled, EnrollmentStatusWaitlisted}, true
	case "all":
		return StatusFilter{}, true
	default:
		return nil, false
	}
}

// Key renders the filter for cache keys.
func (f StatusFilter) Key() string {
	if len(f) == 0 {
		return "all"
	}
	parts := make([]string, len(f))
	for i, s := range f {
		parts[i] = strings.ToLower(string(s))
	}
	return strings.Join(parts, "+")
}

// SectionMode selects which sections a user listing returns.
type SectionMode string

const (
	SectionModeEnrolled    SectionMode = "enrolled"
	SectionModeInstructing SectionMode = "instructing"
	SectionModeAll         SectionMode = "all"
)

// ParseSectionMode defaults to all.
func ParseSectionMode(raw string) (SectionMode, bool) {
	switch mode := SectionMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return SectionModeAll, true
	case SectionModeEnrolled, SectionModeInstructing, SectionModeAll:
		return mode, true
	default:
		return "", false
	}
}
