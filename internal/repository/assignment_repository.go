package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/madrasa-dev/timetable-api/internal/models"
)

const assignmentColumns = "id, academic_year_id, session_type, class_id, section, day_of_week, period_number, subject_id, teacher_id, room, notes, created_at, updated_at"

// AssignmentRepository provides persistence for timetable assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// List returns assignments with optional filtering and pagination.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	base := "FROM assignments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.SessionType != "" {
		conditions = append(conditions, fmt.Sprintf("session_type = $%d", len(args)+1))
		args = append(args, filter.SessionType)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Section != "" {
		conditions = append(conditions, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.DayOfWeek > 0 {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, filter.DayOfWeek)
	}
	if filter.PeriodNumber > 0 {
		conditions = append(conditions, fmt.Sprintf("period_number = $%d", len(args)+1))
		args = append(args, filter.PeriodNumber)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "day_of_week"
	}
	allowedSorts := map[string]bool{
		"day_of_week":   true,
		"period_number": true,
		"class_id":      true,
		"created_at":    true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "day_of_week"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, period_number ASC LIMIT %d OFFSET %d", assignmentColumns, base, sortBy, order, size, offset)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	return assignments, total, nil
}

// FindByID loads an assignment by id.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE id = $1", assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindAtSlot returns every assignment occupying the given grid cell across
// all class-sections of a year/session. Used for conflict validation.
func (r *AssignmentRepository) FindAtSlot(ctx context.Context, yearID string, session models.SessionType, day, period int) ([]models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE academic_year_id = $1 AND session_type = $2 AND day_of_week = $3 AND period_number = $4", assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, yearID, session, day, period); err != nil {
		return nil, fmt.Errorf("find assignments at slot: %w", err)
	}
	return assignments, nil
}

// LockYear takes a row lock on the academic year, serializing grid mutations
// for that year until the transaction ends. Every check-then-write path must
// acquire it first so concurrent writers cannot validate against the same
// pre-mutation snapshot.
func (r *AssignmentRepository) LockYear(ctx context.Context, tx *sqlx.Tx, yearID string) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM academic_years WHERE id = $1 FOR UPDATE`, yearID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock academic year: %w", err)
	}
	return nil
}

// FindByIDWithTx loads one assignment through the transaction, locked against
// concurrent updates.
func (r *AssignmentRepository) FindByIDWithTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction provided")
	}
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE id = $1 FOR UPDATE", assignmentColumns)
	var assignment models.Assignment
	if err := tx.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindAtSlotWithTx is FindAtSlot through the transaction, so the occupancy
// check sees writes ordered by the year lock.
func (r *AssignmentRepository) FindAtSlotWithTx(ctx context.Context, tx *sqlx.Tx, yearID string, session models.SessionType, day, period int) ([]models.Assignment, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction provided")
	}
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE academic_year_id = $1 AND session_type = $2 AND day_of_week = $3 AND period_number = $4", assignmentColumns)
	var assignments []models.Assignment
	if err := tx.SelectContext(ctx, &assignments, query, yearID, session, day, period); err != nil {
		return nil, fmt.Errorf("find assignments at slot: %w", err)
	}
	return assignments, nil
}

// ListByYearSessionWithTx is ListByYearSession through the transaction.
func (r *AssignmentRepository) ListByYearSessionWithTx(ctx context.Context, tx *sqlx.Tx, yearID string, session models.SessionType) ([]models.Assignment, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil transaction provided")
	}
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE academic_year_id = $1 AND session_type = $2 ORDER BY day_of_week ASC, period_number ASC", assignmentColumns)
	var assignments []models.Assignment
	if err := tx.SelectContext(ctx, &assignments, query, yearID, session); err != nil {
		return nil, fmt.Errorf("list assignments by year session: %w", err)
	}
	return assignments, nil
}

// ListByClassSection returns one grid ordered by day and period.
func (r *AssignmentRepository) ListByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE academic_year_id = $1 AND session_type = $2 AND class_id = $3 AND section = $4 ORDER BY day_of_week ASC, period_number ASC", assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, yearID, session, classID, section); err != nil {
		return nil, fmt.Errorf("list assignments by class section: %w", err)
	}
	return assignments, nil
}

// ListByYearSession returns every assignment in a year/session ordered by
// day and period. Feeds teacher availability derivation and conflict scans.
func (r *AssignmentRepository) ListByYearSession(ctx context.Context, yearID string, session models.SessionType) ([]models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE academic_year_id = $1 AND session_type = $2 ORDER BY day_of_week ASC, period_number ASC", assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, yearID, session); err != nil {
		return nil, fmt.Errorf("list assignments by year session: %w", err)
	}
	return assignments, nil
}

// CreateWithTx inserts one assignment through the transaction that holds the
// year lock and performed the conflict read.
func (r *AssignmentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now

	const query = `INSERT INTO assignments (id, academic_year_id, session_type, class_id, section, day_of_week, period_number, subject_id, teacher_id, room, notes, created_at, updated_at) VALUES (:id, :academic_year_id, :session_type, :class_id, :section, :day_of_week, :period_number, :subject_id, :teacher_id, :room, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// UpdateWithTx rewrites one assignment through the transaction.
func (r *AssignmentRepository) UpdateWithTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assignments SET academic_year_id = :academic_year_id, session_type = :session_type, class_id = :class_id, section = :section, day_of_week = :day_of_week, period_number = :period_number, subject_id = :subject_id, teacher_id = :teacher_id, room = :room, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// BulkCreateWithTx inserts assignments using an existing transaction.
func (r *AssignmentRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return r.bulkInsertAssignments(ctx, tx, assignments)
}

func (r *AssignmentRepository) bulkInsertAssignments(ctx context.Context, exec sqlx.ExtContext, assignments []models.Assignment) error {
	now := time.Now().UTC()
	for i := range assignments {
		payload := assignments[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.UpdatedAt = now

		if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO assignments (id, academic_year_id, session_type, class_id, section, day_of_week, period_number, subject_id, teacher_id, room, notes, created_at, updated_at) VALUES (:id, :academic_year_id, :session_type, :class_id, :section, :day_of_week, :period_number, :subject_id, :teacher_id, :room, :notes, :created_at, :updated_at)`, &payload); err != nil {
			return fmt.Errorf("bulk insert assignment: %w", err)
		}
		assignments[i] = payload
	}
	return nil
}

// UpdateSubjectTeacherWithTx rewrites the subject/teacher pair of one row
// inside an existing transaction. Swap commits call it twice.
func (r *AssignmentRepository) UpdateSubjectTeacherWithTx(ctx context.Context, tx *sqlx.Tx, id, subjectID string, teacherID *string) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	const query = `UPDATE assignments SET subject_id = $1, teacher_id = $2, updated_at = $3 WHERE id = $4`
	if _, err := tx.ExecContext(ctx, query, subjectID, teacherID, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update assignment subject/teacher: %w", err)
	}
	return nil
}

// Delete removes an assignment by id.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// DeleteByClassSection removes one grid and returns the deleted rows so the
// caller can report which teachers regained availability.
func (r *AssignmentRepository) DeleteByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error) {
	query := fmt.Sprintf("DELETE FROM assignments WHERE academic_year_id = $1 AND session_type = $2 AND class_id = $3 AND section = $4 RETURNING %s", assignmentColumns)
	var deleted []models.Assignment
	if err := r.db.SelectContext(ctx, &deleted, query, yearID, session, classID, section); err != nil {
		return nil, fmt.Errorf("delete class section assignments: %w", err)
	}
	return deleted, nil
}
