package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madrasa-dev/timetable-api/internal/models"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
	"github.com/madrasa-dev/timetable-api/pkg/export"
	"github.com/madrasa-dev/timetable-api/pkg/storage"
)

type exportAssignmentReader interface {
	ListByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error)
}

type exportSubjectReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.Subject, error)
}

type exportTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type exportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
}

// ExportGridRequest selects the class-section grid to export.
type ExportGridRequest struct {
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	SessionType    string `json:"session_type" validate:"required,oneof=morning evening"`
	ClassID        string `json:"class_id" validate:"required"`
	Section        string `json:"section" validate:"required"`
}

// ExportResult references a stored export file via a signed token.
type ExportResult struct {
	Token     string    `json:"token"`
	FileName  string    `json:"file_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders class-section grids to CSV files served through
// signed, expiring download tokens.
type ExportService struct {
	assignments exportAssignmentReader
	subjects    exportSubjectReader
	teachers    exportTeacherReader
	store       exportFileStore
	signer      *storage.DownloadTokenSigner
	exporter    *export.TimetableCSV
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewExportService instantiates ExportService.
func NewExportService(
	assignments exportAssignmentReader,
	subjects exportSubjectReader,
	teachers exportTeacherReader,
	store exportFileStore,
	signer *storage.DownloadTokenSigner,
	validate *validator.Validate,
	logger *zap.Logger,
) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		assignments: assignments,
		subjects:    subjects,
		teachers:    teachers,
		store:       store,
		signer:      signer,
		exporter:    export.NewTimetableCSV(),
		validator:   validate,
		logger:      logger,
	}
}

// ExportGrid writes one class-section grid as CSV and returns a signed token
// for downloading it.
func (s *ExportService) ExportGrid(ctx context.Context, req ExportGridRequest) (*ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	rows, err := s.assignments.ListByClassSection(ctx, req.AcademicYearID, models.SessionType(req.SessionType), req.ClassID, req.Section)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class schedule")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no assignments found for class section")
	}

	subjectNames, err := s.subjectNames(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	teacherNames := s.teacherNames(ctx, rows)

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DayOfWeek != rows[j].DayOfWeek {
			return rows[i].DayOfWeek < rows[j].DayOfWeek
		}
		return rows[i].PeriodNumber < rows[j].PeriodNumber
	})

	grid := make([]export.GridRow, 0, len(rows))
	for _, row := range rows {
		cell := export.GridRow{
			Day:     models.DayNames[row.DayOfWeek],
			Period:  row.PeriodNumber,
			Subject: subjectNames[row.SubjectID],
		}
		if cell.Subject == "" {
			cell.Subject = row.SubjectID
		}
		if row.TeacherID != nil {
			cell.Teacher = teacherNames[*row.TeacherID]
		}
		if row.Room != nil {
			cell.Room = *row.Room
		}
		grid = append(grid, cell)
	}

	data, err := s.exporter.Render(grid)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
	}

	fileName := fmt.Sprintf("grid_%s_%s_%s.csv", req.ClassID, req.Section, uuid.NewString())
	stored, err := s.store.Save(fileName, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export file")
	}

	token, expiresAt, err := s.signer.Sign(stored)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	s.logger.Info("schedule exported",
		zap.String("class_id", req.ClassID),
		zap.String("section", req.Section),
		zap.String("file", stored),
	)

	return &ExportResult{Token: token, FileName: fileName, ExpiresAt: expiresAt}, nil
}

// Resolve validates a download token and returns the absolute file path plus
// the name the file should be served under.
func (s *ExportService) Resolve(token string) (string, string, error) {
	fileName, err := s.signer.Verify(token)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found or expired")
	}
	return s.store.Path(fileName), fileName, nil
}

func (s *ExportService) subjectNames(ctx context.Context, classID string) (map[string]string, error) {
	subjects, err := s.subjects.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	names := make(map[string]string, len(subjects))
	for _, subject := range subjects {
		names[subject.ID] = subject.Name
	}
	return names, nil
}

func (s *ExportService) teacherNames(ctx context.Context, rows []models.Assignment) map[string]string {
	names := make(map[string]string)
	for _, row := range rows {
		if row.TeacherID == nil {
			continue
		}
		id := *row.TeacherID
		if _, ok := names[id]; ok {
			continue
		}
		teacher, err := s.teachers.FindByID(ctx, id)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("failed to resolve teacher name for export", zap.String("teacher_id", id), zap.Error(err))
			}
			names[id] = id
			continue
		}
		names[id] = teacher.FullName
	}
	return names
}
