package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/assembler"
	"github.com/noah-isme/course-registration-api/internal/models"
)

func aliasesOf(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = assembler.Alias(col)
	}
	return out
}

func enrollmentRowValues(id, userID, status string, position interface{}) []interface{} {
	now := time.Now()
	values := []interface{}{
		id, userID, "s1", status, nil, now, now,
		userID, "Alan", "Turing", "STUDENT",
		position,
	}
	return append(values, sectionRowValues("s1", 2, 2)...)
}

func TestEnrollmentsForUserIncludesInstructorView(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationQueryRepository(db)

	rows := sqlmock.NewRows(aliasesOf(assembler.EnrollmentColumns())).
		AddRow(toDriverValues(enrollmentRowValues("e1", "u1", "ENROLLED", nil))...)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN waitlist w ON w.user_id = e.user_id AND w.section_id = e.section_id WHERE s.deleted = $1 AND (e.user_id = $2 OR s.instructor_id = $3) AND e.status IN ($4) ORDER BY e.created_at ASC, e.id ASC")).
		WithArgs(false, "u1", "u1", "ENROLLED").
		WillReturnRows(rows)

	out, err := repo.EnrollmentsForUser(context.Background(), "u1", models.StatusFilter{models.EnrollmentStatusEnrolled})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "e1", out[0].ID)
	assert.Equal(t, "Turing", out[0].User.LastName)
	assert.Equal(t, "course-1", out[0].Section.Course.ID)
	assert.Nil(t, out[0].WaitlistPosition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentsForSectionAllStatuses(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationQueryRepository(db)

	rows := sqlmock.NewRows(aliasesOf(assembler.EnrollmentColumns())).
		AddRow(toDriverValues(enrollmentRowValues("e1", "u1", "ENROLLED", nil))...).
		AddRow(toDriverValues(enrollmentRowValues("e2", "u2", "WAITLISTED", 0))...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.deleted = $1 AND e.section_id = $2 ORDER BY")).
		WithArgs(false, "s1").
		WillReturnRows(rows)

	out, err := repo.EnrollmentsForSection(context.Background(), "s1", models.StatusFilter{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[1].WaitlistPosition)
	assert.Equal(t, 0, *out[1].WaitlistPosition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistForSectionOrdersByPosition(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationQueryRepository(db)

	now := time.Now()
	row := func(userID string, position int) []interface{} {
		values := []interface{}{userID, "s1", position, now, userID, "First", "Last", "STUDENT"}
		return append(values, sectionRowValues("s1", 2, 2)...)
	}
	rows := sqlmock.NewRows(aliasesOf(assembler.WaitlistColumns())).
		AddRow(toDriverValues(row("u3", 0))...).
		AddRow(toDriverValues(row("u4", 1))...)
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist w JOIN users u ON u.id = w.user_id JOIN sections s ON s.id = w.section_id") + ".*" + regexp.QuoteMeta("WHERE s.deleted = $1 AND w.section_id = $2 ORDER BY w.position ASC") + "$").
		WithArgs(false, "s1").
		WillReturnRows(rows)

	out, err := repo.WaitlistForSection(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "u3", out[0].UserID)
	assert.Equal(t, 1, out[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func waitlistRowValues(userID, sectionID string, position int) []interface{} {
	values := []interface{}{userID, sectionID, position, time.Now(), userID, "First", "Last", "STUDENT"}
	return append(values, sectionRowValues(sectionID, 2, 2)...)
}

func TestWaitlistForUserOrdersByPosition(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationQueryRepository(db)

	rows := sqlmock.NewRows(aliasesOf(assembler.WaitlistColumns())).
		AddRow(toDriverValues(waitlistRowValues("u1", "s2", 0))...).
		AddRow(toDriverValues(waitlistRowValues("u1", "s1", 3))...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.deleted = $1 AND w.user_id = $2 ORDER BY w.position ASC, s.id ASC") + "$").
		WithArgs(false, "u1").
		WillReturnRows(rows)

	out, err := repo.WaitlistForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].Position)
	assert.Equal(t, 3, out[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllEnrollmentsSpansLiveSections(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationQueryRepository(db)

	rows := sqlmock.NewRows(aliasesOf(assembler.EnrollmentColumns())).
		AddRow(toDriverValues(enrollmentRowValues("e1", "u1", "ENROLLED", nil))...).
		AddRow(toDriverValues(enrollmentRowValues("e2", "u2", "WAITLISTED", 0))...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.deleted = $1 AND (1=1) AND e.status IN ($2,$3) ORDER BY e.created_at ASC, e.id ASC")).
		WithArgs(false, "ENROLLED", "WAITLISTED").
		WillReturnRows(rows)

	out, err := repo.AllEnrollments(context.Background(), models.StatusFilter{models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllWaitlistOrdersBySectionThenPosition(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRegistrationQueryRepository(db)

	rows := sqlmock.NewRows(aliasesOf(assembler.WaitlistColumns())).
		AddRow(toDriverValues(waitlistRowValues("u3", "s1", 0))...).
		AddRow(toDriverValues(waitlistRowValues("u4", "s2", 0))...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.deleted = $1 AND (1=1) ORDER BY s.id ASC, w.position ASC") + "$").
		WithArgs(false).
		WillReturnRows(rows)

	out, err := repo.AllWaitlist(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "s2", out[1].SectionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionsForUserModes(t *testing.T) {
	cases := map[models.SectionMode]struct {
		pattern string
		args    []driver.Value
	}{
		models.SectionModeEnrolled:    {"AND s.id IN (SELECT ue.section_id FROM enrollments ue WHERE ue.user_id = $2 AND ue.status <> 'DROPPED') ORDER BY", []driver.Value{false, "u1"}},
		models.SectionModeInstructing: {"AND s.instructor_id = $2 ORDER BY", []driver.Value{false, "u1"}},
		models.SectionModeAll:         {"AND (s.id IN (SELECT ue.section_id FROM enrollments ue WHERE ue.user_id = $2 AND ue.status <> 'DROPPED') OR s.instructor_id = $3)", []driver.Value{false, "u1", "u1"}},
	}

	for mode, tc := range cases {
		t.Run(string(mode), func(t *testing.T) {
			db, mock, cleanup := newMock(t)
			defer cleanup()
			repo := NewRegistrationQueryRepository(db)

			mock.ExpectQuery(regexp.QuoteMeta(tc.pattern)).
				WithArgs(tc.args...).
				WillReturnRows(sqlmock.NewRows(sectionRowColumns()).AddRow(toDriverValues(sectionRowValues("s1", 2, 2))...))

			out, err := repo.SectionsForUser(context.Background(), "u1", mode)
			require.NoError(t, err)
			assert.Len(t, out, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
