package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/assembler"
	"github.com/noah-isme/course-registration-api/internal/models"
)

// CatalogRepository manages departments, courses and sections.
type CatalogRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *CatalogRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockSection reads and row-locks a section, deleted or not, inside the caller's transaction.
func (r *CatalogRepository) LockSection(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, classroom, capacity, waitlist_capacity, day, begin_time, end_time, freeze, deleted, instructor_id, created_at, updated_at
FROM sections WHERE id = $1 FOR UPDATE`
	var section models.Section
	if err := sqlx.GetContext(ctx, r.exec(exec), &section, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock section: %w", err)
	}
	return &section, nil
}

// ListDepartments returns every department ordered by name.
func (r *CatalogRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, name FROM departments ORDER BY name ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindDepartment returns a department by id.
func (r *CatalogRepository) FindDepartment(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, name FROM departments WHERE id = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	return &department, nil
}

func (r *CatalogRepository) courseQuery() squirrel.SelectBuilder {
	return r.sb.Select(assembler.CourseColumns()...).
		From("courses c").
		Join("departments d ON d.id = c.department_id")
}

// FindCourse returns a course with its department.
func (r *CatalogRepository) FindCourse(ctx context.Context, id string) (*models.CourseDetail, error) {
	query, args, err := r.courseQuery().Where(squirrel.Eq{"c.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find course query: %w", err)
	}
	var row assembler.CourseRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	course := assembler.AssembleCourse(row)
	return &course, nil
}

// ListCourses returns courses matching the filter with total count.
func (r *CatalogRepository) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	where := squirrel.And{}
	if filter.DepartmentID != "" {
		where = append(where, squirrel.Eq{"c.department_id": filter.DepartmentID})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		where = append(where, squirrel.Or{squirrel.ILike{"c.code": like}, squirrel.ILike{"c.name": like}})
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query, args, err := r.courseQuery().
		Where(where).
		OrderBy("c.code ASC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list courses query: %w", err)
	}
	var rows []assembler.CourseRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("courses c").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count courses query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return assembler.AssembleCourses(rows), total, nil
}

// CreateCourse inserts a course.
func (r *CatalogRepository) CreateCourse(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	const query = `INSERT INTO courses (id, code, name, department_id) VALUES (:id, :code, :name, :department_id)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

func (r *CatalogRepository) sectionQuery() squirrel.SelectBuilder {
	return r.sb.Select(assembler.SectionColumns()...).
		From("sections s").
		JoinClause(assembler.SectionJoins).
		Where(squirrel.Eq{"s.deleted": false})
}

// FindSection returns a non-deleted section with course, department and instructor.
func (r *CatalogRepository) FindSection(ctx context.Context, id string) (*models.SectionDetail, error) {
	query, args, err := r.sectionQuery().Where(squirrel.Eq{"s.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find section query: %w", err)
	}
	var row assembler.SectionRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find section: %w", err)
	}
	section := assembler.AssembleSection(row)
	return &section, nil
}

// ListSections returns non-deleted sections matching the filter with total count.
func (r *CatalogRepository) ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	where := squirrel.And{squirrel.Eq{"s.deleted": false}}
	if filter.CourseID != "" {
		where = append(where, squirrel.Eq{"s.course_id": filter.CourseID})
	}
	if filter.InstructorID != "" {
		where = append(where, squirrel.Eq{"s.instructor_id": filter.InstructorID})
	}
	if filter.Day != "" {
		where = append(where, squirrel.Eq{"s.day": strings.ToUpper(filter.Day)})
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query, args, err := r.sb.Select(assembler.SectionColumns()...).
		From("sections s").
		JoinClause(assembler.SectionJoins).
		Where(where).
		OrderBy("c.code ASC", "s.day ASC", "s.begin_time ASC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list sections query: %w", err)
	}
	var rows []assembler.SectionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("sections s").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count sections query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return assembler.AssembleSections(rows), total, nil
}

// CreateSection inserts a section.
func (r *CatalogRepository) CreateSection(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now

	const query = `INSERT INTO sections (id, course_id, classroom, capacity, waitlist_capacity, day, begin_time, end_time, freeze, deleted, instructor_id, created_at, updated_at)
VALUES (:id, :course_id, :classroom, :capacity, :waitlist_capacity, :day, :begin_time, :end_time, :freeze, :deleted, :instructor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// UpdateSection applies the given column values to a non-deleted section.
// It returns sql.ErrNoRows when nothing matched.
func (r *CatalogRepository) UpdateSection(ctx context.Context, exec sqlx.ExtContext, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return fmt.Errorf("update section: no fields")
	}
	query, args, err := r.sb.Update("sections").
		SetMap(fields).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update section query: %w", err)
	}
	res, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update section rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
