package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/pkg/database"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/logger"
)

type catalogRepository interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	FindDepartment(ctx context.Context, id string) (*models.Department, error)
	FindCourse(ctx context.Context, id string) (*models.CourseDetail, error)
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	CreateCourse(ctx context.Context, course *models.Course) error
	FindSection(ctx context.Context, id string) (*models.SectionDetail, error)
	ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	CreateSection(ctx context.Context, section *models.Section) error
	UpdateSection(ctx context.Context, exec sqlx.ExtContext, id string, fields map[string]interface{}) error
}

type sectionEnrollments interface {
	CountByStatus(ctx context.Context, exec sqlx.ExtContext, sectionID string, status models.EnrollmentStatus) (int, error)
	DropActiveForSection(ctx context.Context, exec sqlx.ExtContext, sectionID string, updatedAt time.Time) ([]string, error)
}

type sectionQueue interface {
	CountForSection(ctx context.Context, exec sqlx.ExtContext, sectionID string) (int, error)
	ClearSection(ctx context.Context, exec sqlx.ExtContext, sectionID string) ([]string, error)
}

// CatalogService serves departments, courses and sections, and the registrar
// operations that change them.
type CatalogService struct {
	repo        catalogRepository
	tx          transactor
	sections    sectionLocker
	enrollments sectionEnrollments
	waitlist    sectionQueue
	users       userReader
	cache       cacheInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	maxRetries  int
}

// NewCatalogService constructs CatalogService. cache may be nil.
func NewCatalogService(
	repo catalogRepository,
	tx transactor,
	sections sectionLocker,
	enrollments sectionEnrollments,
	waitlist sectionQueue,
	users userReader,
	cache cacheInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
	maxRetries int,
) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		repo:        repo,
		tx:          tx,
		sections:    sections,
		enrollments: enrollments,
		waitlist:    waitlist,
		users:       users,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		maxRetries:  maxRetries,
	}
}

// ListDepartments returns all departments.
func (s *CatalogService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list departments")
	}
	if departments == nil {
		departments = []models.Department{}
	}
	return departments, nil
}

// ListCourses returns courses with pagination metadata.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.ListCourses(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, pagination(filter.Page, filter.PageSize, total), nil
}

// GetCourse returns a course by id.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindCourse(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}
	return course, nil
}

// ListSections returns non-deleted sections with pagination metadata.
func (s *CatalogService) ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.ListSections(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list sections")
	}
	return sections, pagination(filter.Page, filter.PageSize, total), nil
}

// SectionsForCourse returns the sections of an existing course.
func (s *CatalogService) SectionsForCourse(ctx context.Context, courseID string, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return nil, nil, err
	}
	filter.CourseID = courseID
	return s.ListSections(ctx, filter)
}

// GetSection returns a non-deleted section by id.
func (s *CatalogService) GetSection(ctx context.Context, id string) (*models.SectionDetail, error) {
	section, err := s.repo.FindSection(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "section not found", "failed to load section")
	}
	return section, nil
}

// CreateCourse adds a course to an existing department.
func (s *CatalogService) CreateCourse(ctx context.Context, req models.CreateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	department, err := s.repo.FindDepartment(ctx, req.DepartmentID)
	if err != nil {
		return nil, notFoundOr(err, "department not found", "failed to load department")
	}

	course := &models.Course{Code: req.Code, Name: req.Name, DepartmentID: department.ID}
	if err := s.repo.CreateCourse(ctx, course); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, appErrors.Internal(err, "failed to create course")
	}
	logger.ForContext(s.logger, ctx).Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return &models.CourseDetail{Course: *course, Department: *department}, nil
}

// CreateSection schedules a new section under a course.
func (s *CatalogService) CreateSection(ctx context.Context, courseID string, req models.CreateSectionRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if req.EndTime <= req.BeginTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after begin_time")
	}
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	if err := s.requireInstructor(ctx, req.InstructorID); err != nil {
		return nil, err
	}

	section := &models.Section{
		CourseID:         courseID,
		Classroom:        req.Classroom,
		Capacity:         req.Capacity,
		WaitlistCapacity: req.WaitlistCapacity,
		Day:              req.Day,
		BeginTime:        req.BeginTime,
		EndTime:          req.EndTime,
		Freeze:           req.Freeze,
		InstructorID:     req.InstructorID,
	}
	if err := s.repo.CreateSection(ctx, section); err != nil {
		return nil, appErrors.Internal(err, "failed to create section")
	}
	logger.ForContext(s.logger, ctx).Info("section created", zap.String("section_id", section.ID), zap.String("course_id", courseID))
	return s.GetSection(ctx, section.ID)
}

// UpdateSection applies a partial update. At least one field must be set.
// Capacities may not drop below the section's current seated or queued counts;
// the check and the write share one transaction holding the section lock.
func (s *CatalogService) UpdateSection(ctx context.Context, id string, patch models.SectionPatch) (*models.SectionDetail, error) {
	if err := s.validator.Struct(patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section patch")
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "patch must set at least one field")
	}
	if patch.InstructorID != nil {
		if err := s.requireInstructor(ctx, *patch.InstructorID); err != nil {
			return nil, err
		}
	}

	var (
		current  models.Section
		released int
	)
	opts := database.TxOptions{Label: "patch_section", Isolation: sql.LevelSerializable, MaxRetries: s.maxRetries}
	err := s.tx.WithinTx(ctx, opts, func(ctx context.Context, exec sqlx.ExtContext) error {
		locked, err := s.sections.LockSection(ctx, exec, id)
		if err != nil {
			return err
		}
		if locked.Deleted {
			return sql.ErrNoRows
		}
		current = *locked
		released = 0

		begin, end := current.BeginTime, current.EndTime
		if patch.BeginTime != nil {
			begin = *patch.BeginTime
		}
		if patch.EndTime != nil {
			end = *patch.EndTime
		}
		if end <= begin {
			return appErrors.Clone(appErrors.ErrValidation, "end_time must be after begin_time")
		}
		if patch.Capacity != nil {
			seated, err := s.enrollments.CountByStatus(ctx, exec, id, models.EnrollmentStatusEnrolled)
			if err != nil {
				return err
			}
			if *patch.Capacity < seated {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("capacity cannot be below the %d enrolled students", seated))
			}
		}
		if patch.WaitlistCapacity != nil {
			queued, err := s.waitlist.CountForSection(ctx, exec, id)
			if err != nil {
				return err
			}
			if *patch.WaitlistCapacity < queued {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("waitlist_capacity cannot be below the %d waitlisted students", queued))
			}
		}
		if patch.Deleted != nil && *patch.Deleted {
			queued, err := s.waitlist.ClearSection(ctx, exec, id)
			if err != nil {
				return err
			}
			dropped, err := s.enrollments.DropActiveForSection(ctx, exec, id, time.Now().UTC())
			if err != nil {
				return err
			}
			released = len(mergeUserIDs(dropped, queued))
		}
		return s.repo.UpdateSection(ctx, exec, id, fields)
	})
	if err != nil {
		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			return nil, appErr
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		case errors.Is(err, database.ErrRetriesExhausted):
			return nil, appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, appErrors.ErrBusy.Message)
		default:
			return nil, appErrors.Internal(err, "failed to update section")
		}
	}

	s.invalidate(ctx, current)
	logger.ForContext(s.logger, ctx).Info("section updated",
		zap.String("section_id", id),
		zap.Int("fields", len(fields)),
		zap.Int("released_registrations", released),
	)

	if patch.Deleted != nil && *patch.Deleted {
		return nil, nil
	}
	return s.GetSection(ctx, id)
}

func (s *CatalogService) requireInstructor(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "instructor not found")
		}
		return appErrors.Internal(err, "failed to load instructor")
	}
	if user.Role != models.RoleInstructor {
		return appErrors.Clone(appErrors.ErrValidation, "instructor_id must reference an instructor")
	}
	return nil
}

// invalidate drops cached views embedding the section. Every cached user view
// may embed it, so user keys go too.
func (s *CatalogService) invalidate(ctx context.Context, section models.Section) {
	if s.cache == nil {
		return
	}
	patterns := []string{
		sectionCacheKey(section.ID, "*"),
		courseCacheKey(section.CourseID, "*"),
		userCacheKey("*"),
	}
	if err := s.cache.Invalidate(ctx, patterns...); err != nil {
		logger.ForContext(s.logger, ctx).Warn("section cache invalidation failed", zap.String("section_id", section.ID), zap.Error(err))
	}
}
