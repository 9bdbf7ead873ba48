package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/madrasa-dev/timetable-api/internal/models"
)

const teacherColumns = "id, full_name, email, phone, active, created_at, updated_at"

// TeacherRepository provides read access to teachers and declared blackouts.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository creates a new teacher repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers with optional filtering and pagination.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("full_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"full_name":  true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherColumns, base, sortBy, order, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindByID loads a teacher by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE id = $1", teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListBlackouts returns every declared blackout slot.
func (r *TeacherRepository) ListBlackouts(ctx context.Context) ([]models.TeacherBlackout, error) {
	const query = `SELECT id, teacher_id, day_of_week, period_number FROM teacher_blackouts ORDER BY teacher_id ASC, day_of_week ASC, period_number ASC`
	var blackouts []models.TeacherBlackout
	if err := r.db.SelectContext(ctx, &blackouts, query); err != nil {
		return nil, fmt.Errorf("list teacher blackouts: %w", err)
	}
	return blackouts, nil
}

// ListBlackoutsByTeacher returns the declared blackout slots of one teacher.
func (r *TeacherRepository) ListBlackoutsByTeacher(ctx context.Context, teacherID string) ([]models.TeacherBlackout, error) {
	const query = `SELECT id, teacher_id, day_of_week, period_number FROM teacher_blackouts WHERE teacher_id = $1 ORDER BY day_of_week ASC, period_number ASC`
	var blackouts []models.TeacherBlackout
	if err := r.db.SelectContext(ctx, &blackouts, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher blackouts: %w", err)
	}
	return blackouts, nil
}
