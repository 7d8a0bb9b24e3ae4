package models

import "time"

// WaitlistEntry ranks a student behind a full section. Position is a dense
// 0-based rank; entries behind a removed one move up by one.
type WaitlistEntry struct {
	UserID    string    `db:"user_id" json:"user_id"`
	SectionID string    `db:"section_id" json:"section_id"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"date"`
}

// WaitlistEntryDetail enriches the entry with student and section.
type WaitlistEntryDetail struct {
	WaitlistEntry
	User    UserSummary   `json:"user"`
	Section SectionDetail `json:"section"`
}

// AdmissionResult is the outcome of a successful admission.
type AdmissionResult struct {
	Status           EnrollmentStatus `json:"status"`
	WaitlistPosition *int             `json:"waitlist_position"`
	Enrollment       Enrollment       `json:"enrollment"`
}

// DropResult reports the dropped enrollment and any promotion it triggered.
type DropResult struct {
	Dropped  Enrollment  `json:"dropped"`
	Promoted *Enrollment `json:"promoted,omitempty"`
}

// AdmitRequest is the payload for POST /users/{id}/enrollments.
type AdmitRequest struct {
	Section string `json:"section" binding:"required"`
}
