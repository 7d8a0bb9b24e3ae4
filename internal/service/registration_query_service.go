package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/models"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/logger"
)

const cachePrefix = "registration"

func userCacheKey(userID string, parts ...string) string {
	return strings.Join(append([]string{cachePrefix, "user", userID}, parts...), ":")
}

func sectionCacheKey(sectionID string, parts ...string) string {
	return strings.Join(append([]string{cachePrefix, "section", sectionID}, parts...), ":")
}

func courseCacheKey(courseID string, parts ...string) string {
	return strings.Join(append([]string{cachePrefix, "course", courseID}, parts...), ":")
}

type registrationQueryRepository interface {
	EnrollmentsForUser(ctx context.Context, userID string, statuses models.StatusFilter) ([]models.EnrollmentDetail, error)
	EnrollmentsForSection(ctx context.Context, sectionID string, statuses models.StatusFilter) ([]models.EnrollmentDetail, error)
	WaitlistForSection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, error)
	WaitlistForCourse(ctx context.Context, courseID string) ([]models.WaitlistEntryDetail, error)
	WaitlistForUser(ctx context.Context, userID string) ([]models.WaitlistEntryDetail, error)
	SectionsForUser(ctx context.Context, userID string, mode models.SectionMode) ([]models.SectionDetail, error)
	AllEnrollments(ctx context.Context, statuses models.StatusFilter) ([]models.EnrollmentDetail, error)
	AllWaitlist(ctx context.Context) ([]models.WaitlistEntryDetail, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type sectionReader interface {
	FindSection(ctx context.Context, id string) (*models.SectionDetail, error)
}

type courseReader interface {
	FindCourse(ctx context.Context, id string) (*models.CourseDetail, error)
}

// RegistrationQueryService answers composed registration views, reading
// through the cache when it is enabled. The bool results report cache hits.
type RegistrationQueryService struct {
	repo     registrationQueryRepository
	users    userReader
	sections sectionReader
	courses  courseReader
	cache    *CacheService
	logger   *zap.Logger
}

// NewRegistrationQueryService constructs the query façade. cache may be nil.
func NewRegistrationQueryService(repo registrationQueryRepository, users userReader, sections sectionReader, courses courseReader, cache *CacheService, logger *zap.Logger) *RegistrationQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationQueryService{repo: repo, users: users, sections: sections, courses: courses, cache: cache, logger: logger}
}

// EnrollmentsForUser lists enrollments where the user is the student or the instructor.
func (s *RegistrationQueryService) EnrollmentsForUser(ctx context.Context, userID, status string) ([]models.EnrollmentDetail, bool, error) {
	filter, err := parseStatus(status)
	if err != nil {
		return nil, false, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, false, err
	}
	return readThrough(ctx, s, userCacheKey(userID, "enrollments", filter.Key()), func() ([]models.EnrollmentDetail, error) {
		return s.repo.EnrollmentsForUser(ctx, userID, filter)
	})
}

// EnrollmentsForSection lists a section's enrollments.
func (s *RegistrationQueryService) EnrollmentsForSection(ctx context.Context, sectionID, status string) ([]models.EnrollmentDetail, bool, error) {
	filter, err := parseStatus(status)
	if err != nil {
		return nil, false, err
	}
	if err := s.requireSection(ctx, sectionID); err != nil {
		return nil, false, err
	}
	return readThrough(ctx, s, sectionCacheKey(sectionID, "enrollments", filter.Key()), func() ([]models.EnrollmentDetail, error) {
		return s.repo.EnrollmentsForSection(ctx, sectionID, filter)
	})
}

// WaitlistForSection lists a section's queue by position.
func (s *RegistrationQueryService) WaitlistForSection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, bool, error) {
	if err := s.requireSection(ctx, sectionID); err != nil {
		return nil, false, err
	}
	return readThrough(ctx, s, sectionCacheKey(sectionID, "waitlist"), func() ([]models.WaitlistEntryDetail, error) {
		return s.repo.WaitlistForSection(ctx, sectionID)
	})
}

// WaitlistForCourse lists the queues of a course's sections.
func (s *RegistrationQueryService) WaitlistForCourse(ctx context.Context, courseID string) ([]models.WaitlistEntryDetail, bool, error) {
	if _, err := s.courses.FindCourse(ctx, courseID); err != nil {
		return nil, false, notFoundOr(err, "course not found", "failed to load course")
	}
	return readThrough(ctx, s, courseCacheKey(courseID, "waitlist"), func() ([]models.WaitlistEntryDetail, error) {
		return s.repo.WaitlistForCourse(ctx, courseID)
	})
}

// WaitlistForUser lists a user's queue slots.
func (s *RegistrationQueryService) WaitlistForUser(ctx context.Context, userID string) ([]models.WaitlistEntryDetail, bool, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, false, err
	}
	return readThrough(ctx, s, userCacheKey(userID, "waitlist"), func() ([]models.WaitlistEntryDetail, error) {
		return s.repo.WaitlistForUser(ctx, userID)
	})
}

// AllEnrollments lists enrollments across all sections. Registrar views are
// read straight from the database.
func (s *RegistrationQueryService) AllEnrollments(ctx context.Context, status string) ([]models.EnrollmentDetail, error) {
	filter, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.AllEnrollments(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	return items, nil
}

// AllWaitlist lists every section's queue.
func (s *RegistrationQueryService) AllWaitlist(ctx context.Context) ([]models.WaitlistEntryDetail, error) {
	items, err := s.repo.AllWaitlist(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list waitlist")
	}
	return items, nil
}

// SectionsForUser lists sections the user is registered in, instructs, or both.
func (s *RegistrationQueryService) SectionsForUser(ctx context.Context, userID, mode string) ([]models.SectionDetail, bool, error) {
	parsed, ok := models.ParseSectionMode(mode)
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "mode must be one of enrolled, instructing, all")
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, false, err
	}
	return readThrough(ctx, s, userCacheKey(userID, "sections", string(parsed)), func() ([]models.SectionDetail, error) {
		return s.repo.SectionsForUser(ctx, userID, parsed)
	})
}

func (s *RegistrationQueryService) requireUser(ctx context.Context, userID string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return notFoundOr(err, "user not found", "failed to load user")
	}
	return nil
}

func (s *RegistrationQueryService) requireSection(ctx context.Context, sectionID string) error {
	if _, err := s.sections.FindSection(ctx, sectionID); err != nil {
		return notFoundOr(err, "section not found", "failed to load section")
	}
	return nil
}

func parseStatus(raw string) (models.StatusFilter, error) {
	filter, ok := models.ParseStatusFilter(raw)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of enrolled, waitlisted, dropped, active, all")
	}
	return filter, nil
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, internal)
}

// readThrough serves key from cache or loads and stores it. Cache errors only
// cost a database read.
func readThrough[T any](ctx context.Context, s *RegistrationQueryService, key string, load func() (T, error)) (T, bool, error) {
	var cached T
	if s.cache.Enabled() {
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return cached, true, nil
		}
	}

	value, err := load()
	if err != nil {
		var zero T
		return zero, false, appErrors.Internal(err, "failed to load registration view")
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, value, 0); err != nil {
			logger.ForContext(s.logger, ctx).Debug("registration view not cached", zap.String("key", key), zap.Error(err))
		}
	}
	return value, false, nil
}
