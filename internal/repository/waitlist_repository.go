package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// WaitlistRepository manages waitlist rows. Positions stay dense: removing an
// entry shifts every entry behind it up by one.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func (r *WaitlistRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CountForSection returns the number of entries queued on a section.
func (r *WaitlistRepository) CountForSection(ctx context.Context, exec sqlx.ExtContext, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM waitlist WHERE section_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sectionID); err != nil {
		return 0, fmt.Errorf("count section waitlist: %w", err)
	}
	return count, nil
}

// CountForUser returns the number of live sections a user is waitlisted on.
func (r *WaitlistRepository) CountForUser(ctx context.Context, exec sqlx.ExtContext, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM waitlist w JOIN sections s ON s.id = w.section_id WHERE w.user_id = $1 AND NOT s.deleted`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, userID); err != nil {
		return 0, fmt.Errorf("count user waitlist: %w", err)
	}
	return count, nil
}

// Insert appends an entry at the given position.
func (r *WaitlistRepository) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO waitlist (user_id, section_id, position, created_at) VALUES (:user_id, :section_id, :position, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

// Head returns and locks the lowest-position entry of a section.
func (r *WaitlistRepository) Head(ctx context.Context, exec sqlx.ExtContext, sectionID string) (*models.WaitlistEntry, error) {
	const query = `SELECT user_id, section_id, position, created_at FROM waitlist WHERE section_id = $1 ORDER BY position ASC LIMIT 1 FOR UPDATE`
	var entry models.WaitlistEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("waitlist head: %w", err)
	}
	return &entry, nil
}

// Remove deletes a user's entry and compacts the positions behind it. It
// returns the removed position and the users whose positions moved, or
// sql.ErrNoRows when no entry existed.
func (r *WaitlistRepository) Remove(ctx context.Context, exec sqlx.ExtContext, userID, sectionID string) (int, []string, error) {
	target := r.exec(exec)

	const deleteQuery = `DELETE FROM waitlist WHERE user_id = $1 AND section_id = $2 RETURNING position`
	var position int
	if err := sqlx.GetContext(ctx, target, &position, deleteQuery, userID, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, err
		}
		return 0, nil, fmt.Errorf("delete waitlist entry: %w", err)
	}

	const compactQuery = `UPDATE waitlist SET position = position - 1 WHERE section_id = $1 AND position > $2 RETURNING user_id`
	var shifted []string
	if err := sqlx.SelectContext(ctx, target, &shifted, compactQuery, sectionID, position); err != nil {
		return 0, nil, fmt.Errorf("compact waitlist: %w", err)
	}
	return position, shifted, nil
}

// ClearSection deletes a section's whole queue and returns the users it held.
func (r *WaitlistRepository) ClearSection(ctx context.Context, exec sqlx.ExtContext, sectionID string) ([]string, error) {
	const query = `DELETE FROM waitlist WHERE section_id = $1 RETURNING user_id`
	var users []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &users, query, sectionID); err != nil {
		return nil, fmt.Errorf("clear section waitlist: %w", err)
	}
	return users, nil
}
