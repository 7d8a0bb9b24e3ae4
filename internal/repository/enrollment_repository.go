package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// EnrollmentConstraint is the partial unique index allowing one non-dropped
// enrollment per (user, section).
const EnrollmentConstraint = "enrollments_active_uniq"

const enrollmentColumns = `id, user_id, section_id, status, grade, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments. Every method takes
// an optional executor so the admission engine can run them in one transaction.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindActive returns the non-dropped enrollment of a user in a section.
func (r *EnrollmentRepository) FindActive(ctx context.Context, exec sqlx.ExtContext, userID, sectionID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND section_id = $2 AND status <> 'DROPPED' LIMIT 1 FOR UPDATE`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, userID, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return &enrollment, nil
}

// CountByStatus counts a section's enrollments in the given status.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context, exec sqlx.ExtContext, sectionID string, status models.EnrollmentStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sectionID, status); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// Create inserts an enrollment. A second active row for the same pair fails
// on EnrollmentConstraint.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, user_id, section_id, status, grade, created_at, updated_at)
VALUES (:id, :user_id, :section_id, :status, :grade, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus moves an enrollment to a new status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, updatedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DropActiveForSection drops every live enrollment of a section and returns
// the affected users.
func (r *EnrollmentRepository) DropActiveForSection(ctx context.Context, exec sqlx.ExtContext, sectionID string, updatedAt time.Time) ([]string, error) {
	const query = `UPDATE enrollments SET status = 'DROPPED', updated_at = $2 WHERE section_id = $1 AND status <> 'DROPPED' RETURNING user_id`
	var users []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &users, query, sectionID, updatedAt); err != nil {
		return nil, fmt.Errorf("drop section enrollments: %w", err)
	}
	return users, nil
}
