package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-dev/timetable-api/internal/dto"
	"github.com/madrasa-dev/timetable-api/internal/models"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
)

func TestGeneratorServiceGenerateFillsWholeGrid(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "arabic", ClassID: "class-1", WeeklyPeriods: 6},
			{ID: "english", ClassID: "class-1", WeeklyPeriods: 6},
			{ID: "history", ClassID: "class-1", WeeklyPeriods: 6},
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 6},
			{ID: "science", ClassID: "class-1", WeeklyPeriods: 6},
		},
		qualifications: []models.TeacherAssignment{
			{SubjectID: "arabic", TeacherID: "teacher-1"},
			{SubjectID: "english", TeacherID: "teacher-2"},
			{SubjectID: "history", TeacherID: "teacher-3"},
			{SubjectID: "math", TeacherID: "teacher-4"},
			{SubjectID: "science", TeacherID: "teacher-5"},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID:     "year-1",
		SessionType:        "morning",
		ClassID:            "class-1",
		Section:            "A",
		AutoAssignTeachers: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Saved)
	assert.Equal(t, models.SlotsPerWeek, resp.FilledCount)
	assert.Zero(t, resp.UnfilledCount)
	assert.Len(t, fixture.assignments.items, models.SlotsPerWeek)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeneratorServiceGenerateDeterministicOrder(t *testing.T) {
	build := func() (*GeneratorService, *generatorAssignmentStoreStub, sqlmock.Sqlmock) {
		tx, mock := newTxProviderMock(t)
		fixture := newGeneratorFixture(generatorFixtureConfig{
			subjects: []models.Subject{
				{ID: "art", ClassID: "class-1", WeeklyPeriods: 2},
				{ID: "math", ClassID: "class-1", WeeklyPeriods: 2},
			},
			tx: tx,
		})
		return fixture.service, fixture.assignments, mock
	}

	run := func() []dto.GeneratedAssignment {
		service, _, mock := build()
		mock.ExpectBegin()
		mock.ExpectCommit()
		resp, err := service.Generate(context.Background(), dto.GenerateScheduleRequest{
			AcademicYearID: "year-1",
			SessionType:    "morning",
			ClassID:        "class-1",
			Section:        "A",
		})
		require.NoError(t, err)
		return resp.Assignments
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)

	// Equal remaining quotas break on subject id, so art leads and the two
	// subjects interleave across the first four periods of day one.
	require.Len(t, first, 4)
	assert.Equal(t, "art", first[0].SubjectID)
	assert.Equal(t, "math", first[1].SubjectID)
	assert.Equal(t, "art", first[2].SubjectID)
	assert.Equal(t, "math", first[3].SubjectID)
	for i, cell := range first {
		assert.Equal(t, 1, cell.DayOfWeek)
		assert.Equal(t, i+1, cell.PeriodNumber)
	}
}

func TestGeneratorServiceGenerateSkipsOccupiedAndCountsQuota(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 3},
		},
		existing: []models.Assignment{
			{ID: "a1", AcademicYearID: "year-1", SessionType: models.SessionMorning, ClassID: "class-1", Section: "A", DayOfWeek: 1, PeriodNumber: 1, SubjectID: "math"},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
	})
	require.NoError(t, err)
	require.Len(t, resp.Assignments, 2, "existing row consumes quota")
	assert.Equal(t, 2, resp.Assignments[0].PeriodNumber, "occupied cell is skipped")
	assert.Equal(t, 3, resp.Assignments[1].PeriodNumber)
}

func TestGeneratorServiceGenerateReportsUnfilledSlots(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 1},
		},
		qualifications: []models.TeacherAssignment{
			{SubjectID: "math", TeacherID: "teacher-1"},
		},
		blackouts: []models.TeacherBlackout{
			{TeacherID: "teacher-1", DayOfWeek: 1, PeriodNumber: 1},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID:     "year-1",
		SessionType:        "morning",
		ClassID:            "class-1",
		Section:            "A",
		AutoAssignTeachers: true,
	})
	require.NoError(t, err)
	assert.Zero(t, resp.FilledCount, "a cell without a teacher is not filled")
	assert.Equal(t, 1, resp.UnfilledCount)
	require.Len(t, resp.Unfilled, 1)
	assert.Equal(t, 1, resp.Unfilled[0].DayOfWeek)
	assert.Equal(t, 1, resp.Unfilled[0].PeriodNumber)
	assert.Equal(t, "math", resp.Unfilled[0].SubjectID)
	require.Len(t, resp.Assignments, 1)
	assert.Nil(t, resp.Assignments[0].TeacherID, "slot kept, teacher left for manual completion")
}

func TestGeneratorServiceGenerateReportsQuotaOverflow(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "arabic", ClassID: "class-1", WeeklyPeriods: 20},
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 20},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SlotsPerWeek, resp.FilledCount)
	assert.Equal(t, 10, resp.UnfilledCount, "demand beyond the weekly grid is reported")
	require.Len(t, resp.Unfilled, 10)
	for _, slot := range resp.Unfilled {
		assert.Zero(t, slot.DayOfWeek)
		assert.Zero(t, slot.PeriodNumber)
		assert.Contains(t, []string{"arabic", "math"}, slot.SubjectID)
		assert.Equal(t, "no free period left in the weekly grid", slot.Reason)
	}

	require.Len(t, resp.Quotas, 2)
	assert.Equal(t, dto.SubjectQuotaStatus{SubjectID: "arabic", Required: 20, Assigned: 15}, resp.Quotas[0])
	assert.Equal(t, dto.SubjectQuotaStatus{SubjectID: "math", Required: 20, Assigned: 15}, resp.Quotas[1])
}

func TestGeneratorServiceGenerateReportsQuotaFulfilment(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "art", ClassID: "class-1", WeeklyPeriods: 2},
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 3},
		},
		existing: []models.Assignment{
			{ID: "a1", AcademicYearID: "year-1", SessionType: models.SessionMorning, ClassID: "class-1", Section: "A", DayOfWeek: 1, PeriodNumber: 1, SubjectID: "math"},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
	})
	require.NoError(t, err)
	assert.Zero(t, resp.UnfilledCount)
	require.Len(t, resp.Quotas, 2)
	assert.Equal(t, dto.SubjectQuotaStatus{SubjectID: "art", Required: 2, Assigned: 2}, resp.Quotas[0])
	assert.Equal(t, dto.SubjectQuotaStatus{SubjectID: "math", Required: 3, Assigned: 3}, resp.Quotas[1])
}

func TestGeneratorServiceGenerateBalancesLoad(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 4},
		},
		qualifications: []models.TeacherAssignment{
			{SubjectID: "math", TeacherID: "teacher-1"},
			{SubjectID: "math", TeacherID: "teacher-2"},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID:     "year-1",
		SessionType:        "morning",
		ClassID:            "class-1",
		Section:            "A",
		AutoAssignTeachers: true,
		BalanceTeacherLoad: true,
	})
	require.NoError(t, err)

	load := map[string]int{}
	for _, cell := range resp.Assignments {
		require.NotNil(t, cell.TeacherID)
		load[*cell.TeacherID]++
	}
	assert.Equal(t, 2, load["teacher-1"])
	assert.Equal(t, 2, load["teacher-2"])
}

func TestGeneratorServiceGenerateContinuityKeepsTeacher(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 2},
		},
		qualifications: []models.TeacherAssignment{
			{SubjectID: "math", TeacherID: "teacher-1"},
			{SubjectID: "math", TeacherID: "teacher-2"},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID:          "year-1",
		SessionType:             "morning",
		ClassID:                 "class-1",
		Section:                 "A",
		AutoAssignTeachers:      true,
		BalanceTeacherLoad:      true,
		PreferSubjectContinuity: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Assignments, 2)
	require.NotNil(t, resp.Assignments[0].TeacherID)
	require.NotNil(t, resp.Assignments[1].TeacherID)
	assert.Equal(t, *resp.Assignments[0].TeacherID, *resp.Assignments[1].TeacherID,
		"consecutive periods of the same subject keep the teacher")
}

func TestGeneratorServicePreviewDoesNotPersist(t *testing.T) {
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 2},
		},
	})

	resp, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
		PreviewOnly:    true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.PreviewID)
	assert.False(t, resp.Saved)
	assert.Empty(t, fixture.assignments.items)
}

func TestGeneratorServiceSavePreviewCommits(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 2},
		},
		tx: tx,
	})

	preview, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
		PreviewOnly:    true,
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	saved, err := fixture.service.SavePreview(context.Background(), dto.SavePreviewRequest{PreviewID: preview.PreviewID})
	require.NoError(t, err)
	assert.True(t, saved.Saved)
	assert.Empty(t, saved.PreviewID)
	assert.Len(t, fixture.assignments.items, 2)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = fixture.service.SavePreview(context.Background(), dto.SavePreviewRequest{PreviewID: preview.PreviewID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code, "preview is single-use")
}

func TestGeneratorServiceSavePreviewRejectsStaleGrid(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 1},
		},
		tx: tx,
	})

	preview, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
		PreviewOnly:    true,
	})
	require.NoError(t, err)

	// Another writer takes the slot between preview and save.
	fixture.assignments.items = append(fixture.assignments.items, models.Assignment{
		ID: "a1", AcademicYearID: "year-1", SessionType: models.SessionMorning,
		ClassID: "class-1", Section: "A", DayOfWeek: 1, PeriodNumber: 1, SubjectID: "art",
	})

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = fixture.service.SavePreview(context.Background(), dto.SavePreviewRequest{PreviewID: preview.PreviewID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, fixture.assignments.items, 1, "nothing new was written")
	assert.NoError(t, mock.ExpectationsWereMet(), "stale grid is detected inside the transaction")
}

func TestGeneratorServicePreviewExpires(t *testing.T) {
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 1},
		},
		previewTTL: time.Millisecond,
	})

	preview, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
		PreviewOnly:    true,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = fixture.service.SavePreview(context.Background(), dto.SavePreviewRequest{PreviewID: preview.PreviewID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGeneratorServiceGenerateNoSubjects(t *testing.T) {
	fixture := newGeneratorFixture(generatorFixtureConfig{})

	_, err := fixture.service.Generate(context.Background(), dto.GenerateScheduleRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
		ClassID:        "class-1",
		Section:        "A",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestGeneratorServiceGenerateAllIsolatesFailures(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	fixture := newGeneratorFixture(generatorFixtureConfig{
		subjects: []models.Subject{
			{ID: "math", ClassID: "class-1", WeeklyPeriods: 1},
		},
		sections: []models.ClassSection{
			{ClassID: "class-1", Section: "A", SessionType: models.SessionMorning},
			{ClassID: "class-2", Section: "A", SessionType: models.SessionMorning},
		},
		tx: tx,
	})

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fixture.service.GenerateAll(context.Background(), dto.GenerateAllRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Generated)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Sections, 2)
	assert.Empty(t, resp.Sections[0].Error)
	assert.Equal(t, 1, resp.Sections[0].FilledCount)
	assert.NotEmpty(t, resp.Sections[1].Error, "class-2 has no subjects")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeneratorServiceGenerateAllNoSections(t *testing.T) {
	fixture := newGeneratorFixture(generatorFixtureConfig{})

	_, err := fixture.service.GenerateAll(context.Background(), dto.GenerateAllRequest{
		AcademicYearID: "year-1",
		SessionType:    "morning",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

type generatorFixtureConfig struct {
	subjects       []models.Subject
	qualifications []models.TeacherAssignment
	blackouts      []models.TeacherBlackout
	existing       []models.Assignment
	sections       []models.ClassSection
	tx             txProvider
	previewTTL     time.Duration
}

type generatorFixture struct {
	service     *GeneratorService
	assignments *generatorAssignmentStoreStub
}

func newGeneratorFixture(cfg generatorFixtureConfig) *generatorFixture {
	assignments := &generatorAssignmentStoreStub{items: cfg.existing}
	subjectsBySlot := make(map[string][]models.Subject)
	for _, subject := range cfg.subjects {
		subjectsBySlot[subject.ClassID] = append(subjectsBySlot[subject.ClassID], subject)
	}

	tx := cfg.tx
	if tx == nil {
		tx = failingTxProvider{}
	}
	ttl := cfg.previewTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	service := NewGeneratorService(
		assignments,
		classReaderStub{sections: cfg.sections},
		subjectReaderStub{byClass: subjectsBySlot},
		qualificationReaderStub{items: cfg.qualifications},
		blackoutListStub{items: cfg.blackouts},
		yearReaderStub{},
		tx,
		&swapCacheSpy{},
		nil,
		nil,
		nil,
		GeneratorConfig{PreviewTTL: ttl},
	)
	return &generatorFixture{service: service, assignments: assignments}
}

type generatorAssignmentStoreStub struct {
	items []models.Assignment
}

func (s *generatorAssignmentStoreStub) ListByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error) {
	var result []models.Assignment
	for _, item := range s.items {
		if item.AcademicYearID == yearID && item.SessionType == session && item.ClassID == classID && item.Section == section {
			result = append(result, item)
		}
	}
	return result, nil
}

func (s *generatorAssignmentStoreStub) ListByYearSession(ctx context.Context, yearID string, session models.SessionType) ([]models.Assignment, error) {
	var result []models.Assignment
	for _, item := range s.items {
		if item.AcademicYearID == yearID && item.SessionType == session {
			result = append(result, item)
		}
	}
	return result, nil
}

func (s *generatorAssignmentStoreStub) LockYear(ctx context.Context, tx *sqlx.Tx, yearID string) error {
	return nil
}

func (s *generatorAssignmentStoreStub) ListByYearSessionWithTx(ctx context.Context, tx *sqlx.Tx, yearID string, session models.SessionType) ([]models.Assignment, error) {
	return s.ListByYearSession(ctx, yearID, session)
}

func (s *generatorAssignmentStoreStub) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error {
	s.items = append(s.items, assignments...)
	return nil
}

type classReaderStub struct {
	sections []models.ClassSection
}

func (s classReaderStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	return &models.Class{ID: id}, nil
}

func (s classReaderStub) ListSectionsByYearSession(ctx context.Context, yearID string, session models.SessionType) ([]models.ClassSection, error) {
	return s.sections, nil
}

type subjectReaderStub struct {
	byClass map[string][]models.Subject
}

func (s subjectReaderStub) ListByClass(ctx context.Context, classID string) ([]models.Subject, error) {
	return s.byClass[classID], nil
}

type qualificationReaderStub struct {
	items []models.TeacherAssignment
}

func (s qualificationReaderStub) ListByClassSection(ctx context.Context, yearID, classID, section string) ([]models.TeacherAssignment, error) {
	return s.items, nil
}

type blackoutListStub struct {
	items []models.TeacherBlackout
}

func (s blackoutListStub) ListBlackouts(ctx context.Context) ([]models.TeacherBlackout, error) {
	return s.items, nil
}

type yearReaderStub struct{}

func (yearReaderStub) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	return &models.AcademicYear{ID: id}, nil
}

type failingTxProvider struct{}

func (failingTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
