package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/madrasa-dev/timetable-api/internal/models"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error)
	ListByYearSession(ctx context.Context, yearID string, session models.SessionType) ([]models.Assignment, error)
	LockYear(ctx context.Context, tx *sqlx.Tx, yearID string) error
	FindAtSlotWithTx(ctx context.Context, tx *sqlx.Tx, yearID string, session models.SessionType, day, period int) ([]models.Assignment, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment) error
	UpdateWithTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
	DeleteByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error)
}

type blackoutReader interface {
	ListBlackoutsByTeacher(ctx context.Context, teacherID string) ([]models.TeacherBlackout, error)
}

type swapCacheInvalidator interface {
	InvalidateAll(ctx context.Context)
}

// CreateAssignmentRequest describes payload for creating an assignment.
type CreateAssignmentRequest struct {
	AcademicYearID string  `json:"academic_year_id" validate:"required"`
	SessionType    string  `json:"session_type" validate:"required,oneof=morning evening"`
	ClassID        string  `json:"class_id" validate:"required"`
	Section        string  `json:"section" validate:"required"`
	DayOfWeek      int     `json:"day_of_week" validate:"required,min=1,max=5"`
	PeriodNumber   int     `json:"period_number" validate:"required,min=1,max=6"`
	SubjectID      string  `json:"subject_id" validate:"required"`
	TeacherID      *string `json:"teacher_id"`
	Room           *string `json:"room"`
	Notes          *string `json:"notes"`
}

// UpdateAssignmentRequest updates an existing assignment.
type UpdateAssignmentRequest struct {
	DayOfWeek    int     `json:"day_of_week" validate:"required,min=1,max=5"`
	PeriodNumber int     `json:"period_number" validate:"required,min=1,max=6"`
	SubjectID    string  `json:"subject_id" validate:"required"`
	TeacherID    *string `json:"teacher_id"`
	Room         *string `json:"room"`
	Notes        *string `json:"notes"`
}

// DeleteClassScheduleRequest wipes one class-section grid.
type DeleteClassScheduleRequest struct {
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	SessionType    string `json:"session_type" validate:"required,oneof=morning evening"`
	ClassID        string `json:"class_id" validate:"required"`
	Section        string `json:"section" validate:"required"`
}

// DeleteClassScheduleResult reports what a grid wipe removed and which
// teachers regained their slots.
type DeleteClassScheduleResult struct {
	DeletedCount       int      `json:"deleted_count"`
	RestoredTeacherIDs []string `json:"restored_teacher_ids"`
}

// AssignmentService owns timetable assignment writes and conflict checks.
// Writes run check-then-insert inside one transaction under the year lock, so
// two concurrent creates for the same slot cannot both pass validation.
type AssignmentService struct {
	repo      assignmentRepository
	blackouts blackoutReader
	swapCache swapCacheInvalidator
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService instantiates AssignmentService.
func NewAssignmentService(repo assignmentRepository, blackouts blackoutReader, swapCache swapCacheInvalidator, tx txProvider, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, blackouts: blackouts, swapCache: swapCache, tx: tx, validator: validate, logger: logger}
}

// List returns assignments with pagination metadata.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return assignments, pagination, nil
}

// Get loads one assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// ListGrid returns the full grid of one class-section ordered by day and period.
func (s *AssignmentService) ListGrid(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error) {
	assignments, err := s.repo.ListByClassSection(ctx, yearID, session, classID, section)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class section grid")
	}
	return assignments, nil
}

// Create inserts a new assignment after conflict detection.
func (s *AssignmentService) Create(ctx context.Context, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment := models.Assignment{
		AcademicYearID: req.AcademicYearID,
		SessionType:    models.SessionType(req.SessionType),
		ClassID:        req.ClassID,
		Section:        req.Section,
		DayOfWeek:      req.DayOfWeek,
		PeriodNumber:   req.PeriodNumber,
		SubjectID:      req.SubjectID,
		TeacherID:      normalizeTeacherID(req.TeacherID),
		Room:           req.Room,
		Notes:          req.Notes,
	}

	err := s.withYearLock(ctx, assignment.AcademicYearID, func(tx *sqlx.Tx) error {
		if cerr := s.ensureNoConflict(ctx, tx, assignment, ""); cerr != nil {
			return cerr
		}
		if cerr := s.repo.CreateWithTx(ctx, tx, &assignment); cerr != nil {
			return appErrors.Wrap(cerr, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to create assignment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSwapCache(ctx)
	return &assignment, nil
}

// Update modifies an existing assignment. Year, session, class and section
// are fixed at creation; only slot, subject, teacher and annotations move.
func (s *AssignmentService) Update(ctx context.Context, id string, req UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	updated := models.Assignment{
		ID:             existing.ID,
		AcademicYearID: existing.AcademicYearID,
		SessionType:    existing.SessionType,
		ClassID:        existing.ClassID,
		Section:        existing.Section,
		DayOfWeek:      req.DayOfWeek,
		PeriodNumber:   req.PeriodNumber,
		SubjectID:      req.SubjectID,
		TeacherID:      normalizeTeacherID(req.TeacherID),
		Room:           req.Room,
		Notes:          req.Notes,
		CreatedAt:      existing.CreatedAt,
	}

	err = s.withYearLock(ctx, updated.AcademicYearID, func(tx *sqlx.Tx) error {
		if cerr := s.ensureNoConflict(ctx, tx, updated, existing.ID); cerr != nil {
			return cerr
		}
		if cerr := s.repo.UpdateWithTx(ctx, tx, &updated); cerr != nil {
			return appErrors.Wrap(cerr, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to update assignment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSwapCache(ctx)
	return &updated, nil
}

// Delete removes one assignment.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	s.invalidateSwapCache(ctx)
	return nil
}

// DeleteClassSchedule wipes one grid and reports which teachers became free.
func (s *AssignmentService) DeleteClassSchedule(ctx context.Context, req DeleteClassScheduleRequest) (*DeleteClassScheduleResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class schedule payload")
	}

	deleted, err := s.repo.DeleteByClassSection(ctx, req.AcademicYearID, models.SessionType(req.SessionType), req.ClassID, req.Section)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class schedule")
	}

	restored := make(map[string]struct{})
	for _, a := range deleted {
		if a.TeacherID != nil && *a.TeacherID != "" {
			restored[*a.TeacherID] = struct{}{}
		}
	}
	teacherIDs := make([]string, 0, len(restored))
	for id := range restored {
		teacherIDs = append(teacherIDs, id)
	}
	sort.Strings(teacherIDs)

	if len(deleted) > 0 {
		s.invalidateSwapCache(ctx)
	}
	s.logger.Info("class schedule deleted",
		zap.String("class_id", req.ClassID),
		zap.String("section", req.Section),
		zap.Int("deleted", len(deleted)),
		zap.Int("restored_teachers", len(teacherIDs)))

	return &DeleteClassScheduleResult{DeletedCount: len(deleted), RestoredTeacherIDs: teacherIDs}, nil
}

// ListConflicts scans a year/session for rows violating the grid invariants.
// A clean store returns an empty list; anything reported came from writes
// that bypassed this service.
func (s *AssignmentService) ListConflicts(ctx context.Context, yearID string, session models.SessionType) ([]models.AssignmentConflict, error) {
	if yearID == "" || !session.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academic_year_id and session_type are required")
	}
	assignments, err := s.repo.ListByYearSession(ctx, yearID, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan assignments")
	}

	conflicts := make([]models.AssignmentConflict, 0)

	classSeen := make(map[string]models.Assignment)
	for _, a := range assignments {
		key := fmt.Sprintf("%s|%s|%d|%d", a.ClassID, a.Section, a.DayOfWeek, a.PeriodNumber)
		if prior, ok := classSeen[key]; ok {
			priorID := prior.ID
			conflicts = append(conflicts, models.AssignmentConflict{
				AssignmentID: a.ID,
				OtherID:      &priorID,
				ClassID:      a.ClassID,
				Section:      a.Section,
				TeacherID:    a.TeacherID,
				DayOfWeek:    a.DayOfWeek,
				PeriodNumber: a.PeriodNumber,
				Dimension:    models.ConflictDimensionClass,
			})
			continue
		}
		classSeen[key] = a
	}

	teacherSeen := make(map[string]models.Assignment)
	for _, a := range assignments {
		if a.TeacherID == nil || *a.TeacherID == "" {
			continue
		}
		key := fmt.Sprintf("%s|%d|%d", *a.TeacherID, a.DayOfWeek, a.PeriodNumber)
		if prior, ok := teacherSeen[key]; ok {
			priorID := prior.ID
			conflicts = append(conflicts, models.AssignmentConflict{
				AssignmentID: a.ID,
				OtherID:      &priorID,
				ClassID:      a.ClassID,
				Section:      a.Section,
				TeacherID:    a.TeacherID,
				DayOfWeek:    a.DayOfWeek,
				PeriodNumber: a.PeriodNumber,
				Dimension:    models.ConflictDimensionTeacher,
			})
			continue
		}
		teacherSeen[key] = a
	}

	return conflicts, nil
}

// withYearLock runs fn inside one transaction holding the year row lock and
// commits when fn succeeds. Returning an error rolls everything back.
func (s *AssignmentService) withYearLock(ctx context.Context, yearID string, fn func(tx *sqlx.Tx) error) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.LockYear(ctx, tx, yearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock academic year")
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to commit assignment write")
		return err
	}
	return nil
}

func (s *AssignmentService) ensureNoConflict(ctx context.Context, tx *sqlx.Tx, assignment models.Assignment, ignoreID string) error {
	existing, err := s.repo.FindAtSlotWithTx(ctx, tx, assignment.AcademicYearID, assignment.SessionType, assignment.DayOfWeek, assignment.PeriodNumber)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment conflicts")
	}

	for _, item := range existing {
		if item.ID == ignoreID {
			continue
		}
		if item.ClassID == assignment.ClassID && item.Section == assignment.Section {
			return s.wrapConflict(models.ConflictDimensionClass, "class section already has a subject in this slot", item)
		}
		if assignment.TeacherID != nil && item.TeacherID != nil && *item.TeacherID == *assignment.TeacherID {
			return s.wrapConflict(models.ConflictDimensionTeacher, "teacher already assigned in this slot", item)
		}
	}

	if assignment.TeacherID != nil && s.blackouts != nil {
		blackouts, err := s.blackouts.ListBlackoutsByTeacher(ctx, *assignment.TeacherID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
		}
		for _, b := range blackouts {
			if b.DayOfWeek == assignment.DayOfWeek && b.PeriodNumber == assignment.PeriodNumber {
				return s.wrapConflict(models.ConflictDimensionAvailability, "teacher declared this slot unavailable", assignment)
			}
		}
	}
	return nil
}

func (s *AssignmentService) wrapConflict(dimension, message string, existing models.Assignment) error {
	conflict := models.AssignmentConflict{
		AssignmentID: existing.ID,
		ClassID:      existing.ClassID,
		Section:      existing.Section,
		TeacherID:    existing.TeacherID,
		DayOfWeek:    existing.DayOfWeek,
		PeriodNumber: existing.PeriodNumber,
		Dimension:    dimension,
	}
	domainErr := &models.AssignmentConflictError{Type: dimension, Message: message, Conflict: conflict}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("assignment conflict: %s", message))
}

func (s *AssignmentService) invalidateSwapCache(ctx context.Context) {
	if s.swapCache != nil {
		s.swapCache.InvalidateAll(ctx)
	}
}

func normalizeTeacherID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}
