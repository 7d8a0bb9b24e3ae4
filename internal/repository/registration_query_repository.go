package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/assembler"
	"github.com/noah-isme/course-registration-api/internal/models"
)

// RegistrationQueryRepository answers composed enrollment, waitlist and
// section views. Deleted sections never appear in its results.
type RegistrationQueryRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewRegistrationQueryRepository constructs the repository.
func NewRegistrationQueryRepository(db *sqlx.DB) *RegistrationQueryRepository {
	return &RegistrationQueryRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *RegistrationQueryRepository) enrollmentQuery(where squirrel.Sqlizer, statuses models.StatusFilter) squirrel.SelectBuilder {
	q := r.sb.Select(assembler.EnrollmentColumns()...).
		From("enrollments e").
		Join("users u ON u.id = e.user_id").
		Join("sections s ON s.id = e.section_id").
		JoinClause(assembler.SectionJoins).
		LeftJoin("waitlist w ON w.user_id = e.user_id AND w.section_id = e.section_id").
		Where(squirrel.Eq{"s.deleted": false}).
		Where(where)
	if len(statuses) > 0 {
		q = q.Where(squirrel.Eq{"e.status": statusValues(statuses)})
	}
	return q.OrderBy("e.created_at ASC", "e.id ASC")
}

func statusValues(statuses models.StatusFilter) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *RegistrationQueryRepository) selectEnrollments(ctx context.Context, q squirrel.SelectBuilder, label string) ([]models.EnrollmentDetail, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", label, err)
	}
	var rows []assembler.EnrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return assembler.AssembleEnrollments(rows), nil
}

// EnrollmentsForUser returns enrollments where the user is the student or the
// section's instructor.
func (r *RegistrationQueryRepository) EnrollmentsForUser(ctx context.Context, userID string, statuses models.StatusFilter) ([]models.EnrollmentDetail, error) {
	where := squirrel.Or{squirrel.Eq{"e.user_id": userID}, squirrel.Eq{"s.instructor_id": userID}}
	return r.selectEnrollments(ctx, r.enrollmentQuery(where, statuses), "list user enrollments")
}

// EnrollmentsForSection returns a section's enrollments.
func (r *RegistrationQueryRepository) EnrollmentsForSection(ctx context.Context, sectionID string, statuses models.StatusFilter) ([]models.EnrollmentDetail, error) {
	return r.selectEnrollments(ctx, r.enrollmentQuery(squirrel.Eq{"e.section_id": sectionID}, statuses), "list section enrollments")
}

// AllEnrollments returns enrollments across every live section.
func (r *RegistrationQueryRepository) AllEnrollments(ctx context.Context, statuses models.StatusFilter) ([]models.EnrollmentDetail, error) {
	return r.selectEnrollments(ctx, r.enrollmentQuery(squirrel.And{}, statuses), "list enrollments")
}

func (r *RegistrationQueryRepository) waitlistQuery(where squirrel.Sqlizer, orderBy ...string) squirrel.SelectBuilder {
	return r.sb.Select(assembler.WaitlistColumns()...).
		From("waitlist w").
		Join("users u ON u.id = w.user_id").
		Join("sections s ON s.id = w.section_id").
		JoinClause(assembler.SectionJoins).
		Where(squirrel.Eq{"s.deleted": false}).
		Where(where).
		OrderBy(orderBy...)
}

func (r *RegistrationQueryRepository) selectWaitlist(ctx context.Context, q squirrel.SelectBuilder, label string) ([]models.WaitlistEntryDetail, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", label, err)
	}
	var rows []assembler.WaitlistRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return assembler.AssembleWaitlist(rows), nil
}

// WaitlistForSection returns a section's queue in position order.
func (r *RegistrationQueryRepository) WaitlistForSection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, error) {
	return r.selectWaitlist(ctx, r.waitlistQuery(squirrel.Eq{"w.section_id": sectionID}, "w.position ASC"), "list section waitlist")
}

// WaitlistForCourse returns the queues of every section of a course.
func (r *RegistrationQueryRepository) WaitlistForCourse(ctx context.Context, courseID string) ([]models.WaitlistEntryDetail, error) {
	return r.selectWaitlist(ctx, r.waitlistQuery(squirrel.Eq{"s.course_id": courseID}, "s.id ASC", "w.position ASC"), "list course waitlist")
}

// WaitlistForUser returns every queue slot a user holds.
func (r *RegistrationQueryRepository) WaitlistForUser(ctx context.Context, userID string) ([]models.WaitlistEntryDetail, error) {
	return r.selectWaitlist(ctx, r.waitlistQuery(squirrel.Eq{"w.user_id": userID}, "w.position ASC", "s.id ASC"), "list user waitlist")
}

// AllWaitlist returns every live section's queue.
func (r *RegistrationQueryRepository) AllWaitlist(ctx context.Context) ([]models.WaitlistEntryDetail, error) {
	return r.selectWaitlist(ctx, r.waitlistQuery(squirrel.And{}, "s.id ASC", "w.position ASC"), "list waitlist")
}

// SectionsForUser returns sections the user is registered in, instructs, or both.
func (r *RegistrationQueryRepository) SectionsForUser(ctx context.Context, userID string, mode models.SectionMode) ([]models.SectionDetail, error) {
	enrolled := squirrel.Expr("s.id IN (SELECT ue.section_id FROM enrollments ue WHERE ue.user_id = ? AND ue.status <> 'DROPPED')", userID)
	instructing := squirrel.Eq{"s.instructor_id": userID}

	var where squirrel.Sqlizer
	switch mode {
	case models.SectionModeEnrolled:
		where = enrolled
	case models.SectionModeInstructing:
		where = instructing
	default:
		where = squirrel.Or{enrolled, instructing}
	}

	query, args, err := r.sb.Select(assembler.SectionColumns()...).
		From("sections s").
		JoinClause(assembler.SectionJoins).
		Where(squirrel.Eq{"s.deleted": false}).
		Where(where).
		OrderBy("s.day ASC", "s.begin_time ASC", "s.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user sections query: %w", err)
	}
	var rows []assembler.SectionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list user sections: %w", err)
	}
	return assembler.AssembleSections(rows), nil
}
