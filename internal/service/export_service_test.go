package service

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-dev/timetable-api/internal/models"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
	"github.com/madrasa-dev/timetable-api/pkg/storage"
)

func newExportFixture(t *testing.T, rows []models.Assignment) *ExportService {
	store, err := storage.NewExportStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewDownloadTokenSigner("test-secret", time.Hour)

	return NewExportService(
		exportAssignmentsStub{items: rows},
		exportSubjectsStub{names: map[string]string{"math": "Mathematics", "art": "Art"}},
		exportTeachersStub{names: map[string]string{"teacher-1": "Huda Salim"}},
		store,
		signer,
		nil,
		nil,
	)
}

func TestExportServiceExportGridAndDownload(t *testing.T) {
	rows := []models.Assignment{
		{ID: "a2", ClassID: "class-1", Section: "A", DayOfWeek: 2, PeriodNumber: 1, SubjectID: "art"},
		{ID: "a1", ClassID: "class-1", Section: "A", DayOfWeek: 1, PeriodNumber: 1, SubjectID: "math", TeacherID: strPtr("teacher-1"), Room: strPtr("R12")},
	}
	service := newExportFixture(t, rows)

	result, err := service.ExportGrid(context.Background(), ExportGridRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	path, name, err := service.Resolve(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.FileName, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "day,period,subject,teacher,room", lines[0])
	assert.Equal(t, "Sunday,1,Mathematics,Huda Salim,R12", lines[1], "rows sorted by day then period")
	assert.Equal(t, "Monday,1,Art,,", lines[2])
}

func TestExportServiceExportGridEmpty(t *testing.T) {
	service := newExportFixture(t, nil)

	_, err := service.ExportGrid(context.Background(), ExportGridRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceResolveRejectsTamperedToken(t *testing.T) {
	service := newExportFixture(t, []models.Assignment{
		{ID: "a1", ClassID: "class-1", Section: "A", DayOfWeek: 1, PeriodNumber: 1, SubjectID: "math"},
	})

	result, err := service.ExportGrid(context.Background(), ExportGridRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
	})
	require.NoError(t, err)

	_, _, err = service.Resolve(result.Token + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type exportAssignmentsStub struct {
	items []models.Assignment
}

func (s exportAssignmentsStub) ListByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error) {
	return s.items, nil
}

type exportSubjectsStub struct {
	names map[string]string
}

func (s exportSubjectsStub) ListByClass(ctx context.Context, classID string) ([]models.Subject, error) {
	subjects := make([]models.Subject, 0, len(s.names))
	for id, name := range s.names {
		subjects = append(subjects, models.Subject{ID: id, ClassID: classID, Name: name})
	}
	return subjects, nil
}

type exportTeachersStub struct {
	names map[string]string
}

func (s exportTeachersStub) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	name, ok := s.names[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Teacher{ID: id, FullName: name}, nil
}
