package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/madrasa-dev/timetable-api/internal/dto"
	"github.com/madrasa-dev/timetable-api/internal/models"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
)

type swapAssignmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindAtSlot(ctx context.Context, yearID string, session models.SessionType, day, period int) ([]models.Assignment, error)
	LockYear(ctx context.Context, tx *sqlx.Tx, yearID string) error
	FindByIDWithTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error)
	FindAtSlotWithTx(ctx context.Context, tx *sqlx.Tx, yearID string, session models.SessionType, day, period int) ([]models.Assignment, error)
	UpdateSubjectTeacherWithTx(ctx context.Context, tx *sqlx.Tx, id, subjectID string, teacherID *string) error
}

// slotReader abstracts how the conflict scan loads a slot's occupants, so the
// same checks run against the pool for validation and against the locked
// transaction for execution.
type slotReader func(ctx context.Context, yearID string, session models.SessionType, day, period int) ([]models.Assignment, error)

// SwapResult reports the outcome of a swap attempt. First and Second are set
// only when the exchange was committed.
type SwapResult struct {
	Swapped  bool               `json:"swapped"`
	Validity dto.SwapValidity   `json:"validity"`
	First    *models.Assignment `json:"first,omitempty"`
	Second   *models.Assignment `json:"second,omitempty"`
}

// SwapService validates and executes subject/teacher exchanges between two
// assignments. Each row keeps its own slot; only subject and teacher move.
type SwapService struct {
	repo      swapAssignmentStore
	blackouts blackoutReader
	cache     *SwapValidityCache
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSwapService instantiates SwapService.
func NewSwapService(repo swapAssignmentStore, blackouts blackoutReader, cache *SwapValidityCache, tx txProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SwapService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwapService{repo: repo, blackouts: blackouts, cache: cache, tx: tx, metrics: metrics, validator: validate, logger: logger}
}

// ValidateSwap reports whether exchanging the two assignments would keep the
// store conflict free. Results are memoized until the next committed mutation.
func (s *SwapService) ValidateSwap(ctx context.Context, req dto.SwapRequest) (*dto.SwapValidity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}
	if req.AssignmentID1 == req.AssignmentID2 {
		return &dto.SwapValidity{CanSwap: false, Reason: "cannot swap an assignment with itself"}, nil
	}

	if cached, ok := s.cache.Get(ctx, req.AssignmentID1, req.AssignmentID2); ok {
		s.metrics.RecordSwapValidation(cached.CanSwap)
		return cached, nil
	}

	first, err := s.loadAssignment(ctx, req.AssignmentID1)
	if err != nil {
		return nil, err
	}
	second, err := s.loadAssignment(ctx, req.AssignmentID2)
	if err != nil {
		return nil, err
	}
	validity, err := s.checkSwap(ctx, first, second, s.repo.FindAtSlot)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, req.AssignmentID1, req.AssignmentID2, *validity)
	s.metrics.RecordSwapValidation(validity.CanSwap)
	return validity, nil
}

// ExecuteSwap re-validates inside one transaction under the year lock and
// commits the exchange there, so no write can slip between the check and the
// swap. An invalid swap changes nothing and is reported, not an error.
func (s *SwapService) ExecuteSwap(ctx context.Context, req dto.SwapRequest) (*SwapResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}
	if req.AssignmentID1 == req.AssignmentID2 {
		return &SwapResult{Validity: dto.SwapValidity{CanSwap: false, Reason: "cannot swap an assignment with itself"}}, nil
	}

	// The year id is only known after loading a row; the rows are re-read
	// under the lock before anything is trusted.
	peek, err := s.loadAssignment(ctx, req.AssignmentID1)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return &SwapResult{Validity: dto.SwapValidity{CanSwap: false, Reason: "first assignment not found"}}, nil
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.LockYear(ctx, tx, peek.AcademicYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock academic year")
		return nil, err
	}

	first, err := s.loadAssignmentTx(ctx, tx, req.AssignmentID1)
	if err != nil {
		return nil, err
	}
	second, err := s.loadAssignmentTx(ctx, tx, req.AssignmentID2)
	if err != nil {
		return nil, err
	}
	txReader := func(ctx context.Context, yearID string, session models.SessionType, day, period int) ([]models.Assignment, error) {
		return s.repo.FindAtSlotWithTx(ctx, tx, yearID, session, day, period)
	}
	validity, err := s.checkSwap(ctx, first, second, txReader)
	if err != nil {
		return nil, err
	}
	if !validity.CanSwap {
		_ = tx.Rollback()
		s.metrics.RecordSwapExecution("rejected")
		return &SwapResult{Validity: *validity}, nil
	}

	if err = s.repo.UpdateSubjectTeacherWithTx(ctx, tx, first.ID, second.SubjectID, second.TeacherID); err != nil {
		s.metrics.RecordSwapExecution("error")
		err = appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to update first assignment")
		return nil, err
	}
	if err = s.repo.UpdateSubjectTeacherWithTx(ctx, tx, second.ID, first.SubjectID, first.TeacherID); err != nil {
		s.metrics.RecordSwapExecution("error")
		err = appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to update second assignment")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		s.metrics.RecordSwapExecution("error")
		err = appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to commit swap")
		return nil, err
	}

	s.cache.InvalidateAll(ctx)

	updatedFirst, err := s.repo.FindByID(ctx, first.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload first assignment")
	}
	updatedSecond, err := s.repo.FindByID(ctx, second.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload second assignment")
	}

	s.metrics.RecordSwapExecution("ok")
	s.logger.Info("swap executed",
		zap.String("first_id", updatedFirst.ID),
		zap.String("second_id", updatedSecond.ID))
	return &SwapResult{Swapped: true, Validity: dto.SwapValidity{CanSwap: true}, First: updatedFirst, Second: updatedSecond}, nil
}

// checkSwap simulates the exchange. Preconditions and conflicts are reported
// through the validity, never as errors.
func (s *SwapService) checkSwap(ctx context.Context, first, second *models.Assignment, read slotReader) (*dto.SwapValidity, error) {
	if first == nil {
		return &dto.SwapValidity{CanSwap: false, Reason: "first assignment not found"}, nil
	}
	if second == nil {
		return &dto.SwapValidity{CanSwap: false, Reason: "second assignment not found"}, nil
	}

	if first.AcademicYearID != second.AcademicYearID {
		return &dto.SwapValidity{CanSwap: false, Reason: "assignments belong to different academic years"}, nil
	}
	if first.SessionType != second.SessionType {
		return &dto.SwapValidity{CanSwap: false, Reason: "assignments belong to different session types"}, nil
	}
	if first.ClassID == second.ClassID && first.Section == second.Section &&
		first.DayOfWeek == second.DayOfWeek && first.PeriodNumber == second.PeriodNumber {
		return &dto.SwapValidity{CanSwap: false, Reason: "assignments occupy the same slot"}, nil
	}

	var conflicts []string

	incoming, err := s.incomingConflicts(ctx, first, second, read)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, incoming...)

	incoming, err = s.incomingConflicts(ctx, second, first, read)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, incoming...)

	validity := &dto.SwapValidity{CanSwap: len(conflicts) == 0, Conflicts: conflicts}
	if !validity.CanSwap {
		validity.Reason = "swap would double-book a teacher or violate availability"
	}
	return validity, nil
}

// incomingConflicts checks the teacher arriving at dst's slot from src.
func (s *SwapService) incomingConflicts(ctx context.Context, dst, src *models.Assignment, read slotReader) ([]string, error) {
	if src.TeacherID == nil || *src.TeacherID == "" {
		return nil, nil
	}
	teacherID := *src.TeacherID
	var conflicts []string

	if s.blackouts != nil {
		blackouts, err := s.blackouts.ListBlackoutsByTeacher(ctx, teacherID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
		}
		for _, b := range blackouts {
			if b.DayOfWeek == dst.DayOfWeek && b.PeriodNumber == dst.PeriodNumber {
				conflicts = append(conflicts, fmt.Sprintf("teacher %s is unavailable on %s period %d", teacherID, models.DayNames[dst.DayOfWeek], dst.PeriodNumber))
			}
		}
	}

	occupants, err := read(ctx, dst.AcademicYearID, dst.SessionType, dst.DayOfWeek, dst.PeriodNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot occupancy")
	}
	for _, item := range occupants {
		if item.ID == dst.ID || item.ID == src.ID {
			continue
		}
		if item.TeacherID != nil && *item.TeacherID == teacherID {
			conflicts = append(conflicts, fmt.Sprintf("teacher %s already teaches class %s section %s on %s period %d", teacherID, item.ClassID, item.Section, models.DayNames[dst.DayOfWeek], dst.PeriodNumber))
		}
	}
	return conflicts, nil
}

func (s *SwapService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *SwapService) loadAssignmentTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByIDWithTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}
