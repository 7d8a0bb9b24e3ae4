package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

type stubRosterSource struct {
	enrollments []models.EnrollmentDetail
	status      string
}

func (s *stubRosterSource) EnrollmentsForSection(ctx context.Context, sectionID, status string) ([]models.EnrollmentDetail, bool, error) {
	s.status = status
	return s.enrollments, false, nil
}

func rosterFixture() (*ExportService, *stubRosterSource) {
	catalog := newFakeCatalogRepo()
	room := "B12"
	catalog.sections["s1"] = models.SectionDetail{
		Section:    models.Section{ID: "s1", CourseID: "c1", Capacity: 1, WaitlistCapacity: 2, Day: "TUE", BeginTime: "13:00", EndTime: "14:30", Classroom: &room},
		Course:     catalog.courses["c1"],
		Instructor: models.UserSummary{ID: "prof", FirstName: "Barbara", LastName: "Liskov"},
	}
	created := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)
	first, second := 1, 0
	source := &stubRosterSource{enrollments: []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{Status: models.EnrollmentStatusWaitlisted, CreatedAt: created}, User: models.UserSummary{ID: "u3", FirstName: "Edsger", LastName: "Dijkstra"}, WaitlistPosition: &first},
		{Enrollment: models.Enrollment{Status: models.EnrollmentStatusEnrolled, CreatedAt: created}, User: models.UserSummary{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}},
		{Enrollment: models.Enrollment{Status: models.EnrollmentStatusWaitlisted, CreatedAt: created}, User: models.UserSummary{ID: "u2", FirstName: "Alan", LastName: "Turing"}, WaitlistPosition: &second},
	}}
	return NewExportService(source, catalog, nil), source
}

func TestSectionRosterCSV(t *testing.T) {
	svc, source := rosterFixture()

	result, err := svc.SectionRoster(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "active", source.status)
	assert.Equal(t, "roster-CS101-s1.csv", result.Filename)
	assert.True(t, strings.HasPrefix(result.ContentType, "text/csv"))

	lines := strings.Split(strings.TrimSpace(string(result.Body)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "student_id,first_name,last_name,status,waitlist_position,date", lines[0])
	assert.Equal(t, "u1,Ada,Lovelace,ENROLLED,,2024-01-08 09:30", lines[1])
	assert.Equal(t, "u2,Alan,Turing,WAITLISTED,0,2024-01-08 09:30", lines[2])
	assert.Equal(t, "u3,Edsger,Dijkstra,WAITLISTED,1,2024-01-08 09:30", lines[3])
}

func TestSectionRosterPDF(t *testing.T) {
	svc, _ := rosterFixture()

	result, err := svc.SectionRoster(context.Background(), "s1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Body, []byte("%PDF")))
}

func TestSectionRosterErrors(t *testing.T) {
	svc, _ := rosterFixture()

	_, err := svc.SectionRoster(context.Background(), "s1", "xlsx")
	requireCode(t, err, appErrors.ErrValidation)

	_, err = svc.SectionRoster(context.Background(), "missing", "csv")
	requireCode(t, err, appErrors.ErrNotFound)
}
