package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/pkg/database"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/logger"
)

const defaultWaitlistUserLimit = 3

type transactor interface {
	WithinTx(ctx context.Context, opts database.TxOptions, fn database.TxFunc) error
}

type sectionLocker interface {
	LockSection(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Section, error)
}

type userLocker interface {
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.User, error)
}

type enrollmentStore interface {
	FindActive(ctx context.Context, exec sqlx.ExtContext, userID, sectionID string) (*models.Enrollment, error)
	CountByStatus(ctx context.Context, exec sqlx.ExtContext, sectionID string, status models.EnrollmentStatus) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, updatedAt time.Time) error
}

type waitlistStore interface {
	CountForSection(ctx context.Context, exec sqlx.ExtContext, sectionID string) (int, error)
	CountForUser(ctx context.Context, exec sqlx.ExtContext, userID string) (int, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error
	Head(ctx context.Context, exec sqlx.ExtContext, sectionID string) (*models.WaitlistEntry, error)
	Remove(ctx context.Context, exec sqlx.ExtContext, userID, sectionID string) (int, []string, error)
}

type registrationPublisher interface {
	Publish(ctx context.Context, event RegistrationEvent)
}

// AdmissionConfig tunes admission transactions.
type AdmissionConfig struct {
	MaxRetries        int
	RetryBackoff      time.Duration
	WaitlistUserLimit int
}

// AdmissionService decides whether a student is seated, waitlisted or rejected,
// and handles drops with waitlist promotion. Each decision runs in a single
// serializable transaction that locks the section row first, then the user row.
type AdmissionService struct {
	tx          transactor
	sections    sectionLocker
	users       userLocker
	enrollments enrollmentStore
	waitlist    waitlistStore
	events      registrationPublisher
	metrics     *MetricsService
	logger      *zap.Logger
	config      AdmissionConfig
}

// NewAdmissionService constructs the admission engine. events and metrics may be nil.
func NewAdmissionService(
	tx transactor,
	sections sectionLocker,
	users userLocker,
	enrollments enrollmentStore,
	waitlist waitlistStore,
	events registrationPublisher,
	metrics *MetricsService,
	logger *zap.Logger,
	config AdmissionConfig,
) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WaitlistUserLimit <= 0 {
		config.WaitlistUserLimit = defaultWaitlistUserLimit
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &AdmissionService{
		tx:          tx,
		sections:    sections,
		users:       users,
		enrollments: enrollments,
		waitlist:    waitlist,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		config:      config,
	}
}

func (s *AdmissionService) txOptions(label string) database.TxOptions {
	return database.TxOptions{
		Label:      label,
		Isolation:  sql.LevelSerializable,
		MaxRetries: s.config.MaxRetries,
		Backoff:    s.config.RetryBackoff,
	}
}

// Admit seats the user in the section when a seat is free, otherwise queues
// them on the waitlist when both the section queue and the user's own
// waitlist cap allow it.
func (s *AdmissionService) Admit(ctx context.Context, userID, sectionID string) (*models.AdmissionResult, error) {
	if userID == "" || sectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user and section are required")
	}

	var (
		result  models.AdmissionResult
		section models.Section
	)
	err := s.tx.WithinTx(ctx, s.txOptions("admit"), func(ctx context.Context, exec sqlx.ExtContext) error {
		locked, err := s.sections.LockSection(ctx, exec, sectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "section not found")
			}
			return err
		}
		if locked.Deleted {
			return appErrors.Clone(appErrors.ErrSectionUnavailable, "section has been removed")
		}
		if locked.Freeze {
			return appErrors.Clone(appErrors.ErrSectionUnavailable, "section is frozen")
		}
		section = *locked

		user, err := s.users.LockForUpdate(ctx, exec, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return err
		}
		if user.Role != models.RoleStudent {
			return appErrors.Clone(appErrors.ErrValidation, "only students can register for sections")
		}

		if _, err := s.enrollments.FindActive(ctx, exec, userID, sectionID); err == nil {
			return appErrors.ErrDuplicateEnrollment
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		seated, err := s.enrollments.CountByStatus(ctx, exec, sectionID, models.EnrollmentStatusEnrolled)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		if seated < section.Capacity {
			enrollment := &models.Enrollment{UserID: userID, SectionID: sectionID, Status: models.EnrollmentStatusEnrolled, CreatedAt: now}
			if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
				return err
			}
			result = models.AdmissionResult{Status: models.EnrollmentStatusEnrolled, Enrollment: *enrollment}
			return nil
		}

		waitlisted, err := s.waitlist.CountForSection(ctx, exec, sectionID)
		if err != nil {
			return err
		}
		if waitlisted >= section.WaitlistCapacity {
			return appErrors.ErrCapacityExceeded
		}
		held, err := s.waitlist.CountForUser(ctx, exec, userID)
		if err != nil {
			return err
		}
		if held >= s.config.WaitlistUserLimit {
			return appErrors.ErrWaitlistLimitExceeded
		}

		entry := &models.WaitlistEntry{UserID: userID, SectionID: sectionID, Position: waitlisted, CreatedAt: now}
		if err := s.waitlist.Insert(ctx, exec, entry); err != nil {
			return err
		}
		enrollment := &models.Enrollment{UserID: userID, SectionID: sectionID, Status: models.EnrollmentStatusWaitlisted, CreatedAt: now}
		if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
			return err
		}
		position := entry.Position
		result = models.AdmissionResult{Status: models.EnrollmentStatusWaitlisted, WaitlistPosition: &position, Enrollment: *enrollment}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "admit", userID, sectionID, err)
	}

	outcome := OutcomeEnrolled
	if result.Status == models.EnrollmentStatusWaitlisted {
		outcome = OutcomeWaitlisted
	}
	s.metrics.RecordAdmission("admit", outcome, "")
	logger.ForContext(s.logger, ctx).Info("admission decided",
		zap.String("user_id", userID),
		zap.String("section_id", sectionID),
		zap.String("status", string(result.Status)),
	)
	s.publish(ctx, RegistrationEvent{
		Kind:         EventAdmitted,
		UserID:       userID,
		SectionID:    sectionID,
		CourseID:     section.CourseID,
		InstructorID: section.InstructorID,
	})
	return &result, nil
}

// Drop marks the user's active enrollment dropped. A waitlisted drop leaves
// the queue; a seated drop promotes the head of the queue when a seat opens.
// Frozen sections still accept drops and promote.
func (s *AdmissionService) Drop(ctx context.Context, userID, sectionID string) (*models.DropResult, error) {
	if userID == "" || sectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user and section are required")
	}

	var (
		result  models.DropResult
		section models.Section
		shifted []string
	)
	err := s.tx.WithinTx(ctx, s.txOptions("drop"), func(ctx context.Context, exec sqlx.ExtContext) error {
		result = models.DropResult{}
		shifted = nil

		locked, err := s.sections.LockSection(ctx, exec, sectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "section not found")
			}
			return err
		}
		if locked.Deleted {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		section = *locked

		enrollment, err := s.enrollments.FindActive(ctx, exec, userID, sectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return err
		}

		now := time.Now().UTC()
		if err := s.enrollments.UpdateStatus(ctx, exec, enrollment.ID, models.EnrollmentStatusDropped, now); err != nil {
			return err
		}
		previous := enrollment.Status
		enrollment.Status = models.EnrollmentStatusDropped
		enrollment.UpdatedAt = now
		result.Dropped = *enrollment

		switch previous {
		case models.EnrollmentStatusWaitlisted:
			_, moved, err := s.waitlist.Remove(ctx, exec, userID, sectionID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			shifted = moved
		case models.EnrollmentStatusEnrolled:
			promoted, moved, err := s.promote(ctx, exec, section, now)
			if err != nil {
				return err
			}
			result.Promoted = promoted
			shifted = moved
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "drop", userID, sectionID, err)
	}

	s.metrics.RecordAdmission("drop", OutcomeDropped, "")
	event := RegistrationEvent{
		Kind:           EventDropped,
		UserID:         userID,
		SectionID:      sectionID,
		CourseID:       section.CourseID,
		InstructorID:   section.InstructorID,
		ShiftedUserIDs: shifted,
	}
	log := logger.ForContext(s.logger, ctx).With(zap.String("user_id", userID), zap.String("section_id", sectionID))
	if result.Promoted != nil {
		s.metrics.RecordPromotion()
		event.PromotedUserID = result.Promoted.UserID
		log = log.With(zap.String("promoted_user_id", result.Promoted.UserID))
	}
	log.Info("enrollment dropped")
	s.publish(ctx, event)
	return &result, nil
}

// promote seats the lowest-position waitlisted student when the section has
// a free seat. Queue rows without a matching waitlisted enrollment are
// discarded and the next entry is tried. It also returns the users still
// queued whose positions moved.
func (s *AdmissionService) promote(ctx context.Context, exec sqlx.ExtContext, section models.Section, now time.Time) (*models.Enrollment, []string, error) {
	var shifted []string
	for {
		seated, err := s.enrollments.CountByStatus(ctx, exec, section.ID, models.EnrollmentStatusEnrolled)
		if err != nil {
			return nil, nil, err
		}
		if seated >= section.Capacity {
			return nil, shifted, nil
		}

		head, err := s.waitlist.Head(ctx, exec, section.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, shifted, nil
			}
			return nil, nil, err
		}
		_, moved, err := s.waitlist.Remove(ctx, exec, head.UserID, section.ID)
		if err != nil {
			return nil, nil, err
		}
		shifted = mergeUserIDs(shifted, moved)

		candidate, err := s.enrollments.FindActive(ctx, exec, head.UserID, section.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				logger.ForContext(s.logger, ctx).Warn("discarding orphaned waitlist entry",
					zap.String("user_id", head.UserID), zap.String("section_id", section.ID))
				continue
			}
			return nil, nil, err
		}
		if candidate.Status != models.EnrollmentStatusWaitlisted {
			continue
		}
		if err := s.enrollments.UpdateStatus(ctx, exec, candidate.ID, models.EnrollmentStatusEnrolled, now); err != nil {
			return nil, nil, err
		}
		candidate.Status = models.EnrollmentStatusEnrolled
		candidate.UpdatedAt = now
		return candidate, shifted, nil
	}
}

// fail translates storage and domain errors into API errors and records the rejection.
func (s *AdmissionService) fail(ctx context.Context, op, userID, sectionID string, err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, database.ErrRetriesExhausted):
		appErr = appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, appErrors.ErrBusy.Message)
	case database.IsUniqueViolation(err, ""):
		appErr = appErrors.Wrap(err, appErrors.ErrDuplicateEnrollment.Code, appErrors.ErrDuplicateEnrollment.Status, appErrors.ErrDuplicateEnrollment.Message)
	default:
		appErr = appErrors.Internal(err, "failed to "+op+" enrollment")
	}

	s.metrics.RecordAdmission(op, OutcomeRejected, appErr.Code)
	log := logger.ForContext(s.logger, ctx).With(
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.String("section_id", sectionID),
		zap.String("code", appErr.Code),
	)
	if appErr.Status >= 500 {
		log.Error("registration failed", zap.Error(err))
	} else {
		log.Info("registration rejected")
	}
	return appErr
}

func (s *AdmissionService) publish(ctx context.Context, event RegistrationEvent) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event)
}
