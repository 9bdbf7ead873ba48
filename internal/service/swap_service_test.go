package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-dev/timetable-api/internal/dto"
	"github.com/madrasa-dev/timetable-api/internal/models"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
)

func (s *assignmentRepoStub) FindByIDWithTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error) {
	return s.FindByID(ctx, id)
}

func (s *assignmentRepoStub) UpdateSubjectTeacherWithTx(ctx context.Context, tx *sqlx.Tx, id, subjectID string, teacherID *string) error {
	for idx := range s.items {
		if s.items[idx].ID == id {
			s.items[idx].SubjectID = subjectID
			s.items[idx].TeacherID = teacherID
			return nil
		}
	}
	return nil
}

func swapPair() (models.Assignment, models.Assignment) {
	first := models.Assignment{
		ID: "a1", AcademicYearID: "year-1", SessionType: models.SessionMorning,
		ClassID: "class-1", Section: "A", DayOfWeek: 1, PeriodNumber: 1,
		SubjectID: "math", TeacherID: strPtr("teacher-1"),
	}
	second := models.Assignment{
		ID: "a2", AcademicYearID: "year-1", SessionType: models.SessionMorning,
		ClassID: "class-1", Section: "A", DayOfWeek: 2, PeriodNumber: 3,
		SubjectID: "art", TeacherID: strPtr("teacher-2"),
	}
	return first, second
}

func newSwapService(repo swapAssignmentStore, blackouts blackoutReader, cache *SwapValidityCache, tx txProvider) *SwapService {
	if cache == nil {
		cache = NewSwapValidityCache(nil, 0)
	}
	return NewSwapService(repo, blackouts, cache, tx, nil, nil, nil)
}

func TestSwapServiceValidateOK(t *testing.T) {
	first, second := swapPair()
	repo := newAssignmentRepoStub(first, second)
	service := newSwapService(repo, blackoutStub{}, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.True(t, validity.CanSwap)
	assert.Empty(t, validity.Conflicts)
}

func TestSwapServiceValidateFailsClosed(t *testing.T) {
	first, _ := swapPair()
	repo := newAssignmentRepoStub(first)
	service := newSwapService(repo, blackoutStub{}, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "missing"})
	require.NoError(t, err)
	assert.False(t, validity.CanSwap)
	assert.Equal(t, "second assignment not found", validity.Reason)
}

func TestSwapServiceValidateRejectsMixedYears(t *testing.T) {
	first, second := swapPair()
	second.AcademicYearID = "year-2"
	repo := newAssignmentRepoStub(first, second)
	service := newSwapService(repo, blackoutStub{}, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.False(t, validity.CanSwap)
	assert.Equal(t, "assignments belong to different academic years", validity.Reason)
}

func TestSwapServiceValidateRejectsMixedSessions(t *testing.T) {
	first, second := swapPair()
	second.SessionType = models.SessionEvening
	repo := newAssignmentRepoStub(first, second)
	service := newSwapService(repo, blackoutStub{}, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.False(t, validity.CanSwap)
	assert.Equal(t, "assignments belong to different session types", validity.Reason)
}

func TestSwapServiceValidateRejectsSameSlot(t *testing.T) {
	first, second := swapPair()
	second.DayOfWeek = first.DayOfWeek
	second.PeriodNumber = first.PeriodNumber
	repo := newAssignmentRepoStub(first, second)
	service := newSwapService(repo, blackoutStub{}, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.False(t, validity.CanSwap)
	assert.Equal(t, "assignments occupy the same slot", validity.Reason)
}

func TestSwapServiceValidateSelfSwap(t *testing.T) {
	first, _ := swapPair()
	repo := newAssignmentRepoStub(first)
	service := newSwapService(repo, blackoutStub{}, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a1"})
	require.NoError(t, err)
	assert.False(t, validity.CanSwap)
	assert.Equal(t, "cannot swap an assignment with itself", validity.Reason)
}

func TestSwapServiceValidateDetectsDoubleBooking(t *testing.T) {
	first, second := swapPair()
	// teacher-1 moves into a2's slot (day 2 period 3) where another section
	// already has teacher-1.
	blocker := models.Assignment{
		ID: "a3", AcademicYearID: "year-1", SessionType: models.SessionMorning,
		ClassID: "class-2", Section: "B", DayOfWeek: 2, PeriodNumber: 3,
		SubjectID: "science", TeacherID: strPtr("teacher-1"),
	}
	repo := newAssignmentRepoStub(first, second, blocker)
	service := newSwapService(repo, blackoutStub{}, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.False(t, validity.CanSwap)
	require.Len(t, validity.Conflicts, 1)
	assert.Contains(t, validity.Conflicts[0], "teacher-1")
	assert.Contains(t, validity.Conflicts[0], "class-2")
}

func TestSwapServiceValidateDetectsBlackout(t *testing.T) {
	first, second := swapPair()
	blackouts := blackoutStub{items: map[string][]models.TeacherBlackout{
		"teacher-1": {{TeacherID: "teacher-1", DayOfWeek: 2, PeriodNumber: 3}},
	}}
	repo := newAssignmentRepoStub(first, second)
	service := newSwapService(repo, blackouts, nil, nil)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.False(t, validity.CanSwap)
	require.Len(t, validity.Conflicts, 1)
	assert.Contains(t, validity.Conflicts[0], "unavailable")
}

func TestSwapServiceValidateMemoizesResult(t *testing.T) {
	first, second := swapPair()
	repo := &countingSwapStore{assignmentRepoStub: newAssignmentRepoStub(first, second)}
	cache := NewSwapValidityCache(newFakeCacheService(), time.Minute)
	service := newSwapService(repo, blackoutStub{}, cache, nil)

	_, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	loads := repo.findCalls

	// Reversed pair hits the same ordered cache key.
	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a2", AssignmentID2: "a1"})
	require.NoError(t, err)
	assert.True(t, validity.CanSwap)
	assert.Equal(t, loads, repo.findCalls, "second validation served from cache")
}

func TestSwapServiceExecuteSwapExchangesSubjectAndTeacher(t *testing.T) {
	first, second := swapPair()
	repo := newAssignmentRepoStub(first, second)
	tx, mock := newTxProviderMock(t)
	service := newSwapService(repo, blackoutStub{}, nil, tx)

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := service.ExecuteSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	require.True(t, result.Swapped)

	assert.Equal(t, "art", result.First.SubjectID)
	assert.Equal(t, "teacher-2", *result.First.TeacherID)
	assert.Equal(t, 1, result.First.DayOfWeek, "slots do not move")
	assert.Equal(t, "math", result.Second.SubjectID)
	assert.Equal(t, "teacher-1", *result.Second.TeacherID)
	assert.Equal(t, 2, result.Second.DayOfWeek)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapServiceExecuteSwapRoundTripRestoresOriginal(t *testing.T) {
	first, second := swapPair()
	repo := newAssignmentRepoStub(first, second)
	tx, mock := newTxProviderMock(t)
	service := newSwapService(repo, blackoutStub{}, nil, tx)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := service.ExecuteSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	result, err := service.ExecuteSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	require.True(t, result.Swapped)

	assert.Equal(t, first.SubjectID, result.First.SubjectID)
	assert.Equal(t, *first.TeacherID, *result.First.TeacherID)
	assert.Equal(t, second.SubjectID, result.Second.SubjectID)
	assert.Equal(t, *second.TeacherID, *result.Second.TeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapServiceExecuteSwapRejectedLeavesStoreUntouched(t *testing.T) {
	first, second := swapPair()
	second.AcademicYearID = "year-2"
	repo := newAssignmentRepoStub(first, second)
	tx, mock := newTxProviderMock(t)
	service := newSwapService(repo, blackoutStub{}, nil, tx)

	mock.ExpectBegin()
	mock.ExpectRollback()

	result, err := service.ExecuteSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.False(t, result.Swapped)
	assert.Equal(t, "assignments belong to different academic years", result.Validity.Reason)

	unchanged, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "math", unchanged.SubjectID)
	assert.NoError(t, mock.ExpectationsWereMet(), "rejection rolls the transaction back")
}

func TestSwapServiceExecuteSwapIgnoresStaleCache(t *testing.T) {
	first, second := swapPair()
	repo := newAssignmentRepoStub(first, second)
	cache := NewSwapValidityCache(newFakeCacheService(), time.Minute)
	tx, mock := newTxProviderMock(t)
	service := newSwapService(repo, blackoutStub{}, cache, tx)

	validity, err := service.ValidateSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	require.True(t, validity.CanSwap)

	// The grid changes after the cached validation: teacher-2 now also
	// teaches at a1's slot in another section.
	repo.items = append(repo.items, models.Assignment{
		ID: "a3", AcademicYearID: "year-1", SessionType: models.SessionMorning,
		ClassID: "class-2", Section: "B", DayOfWeek: 1, PeriodNumber: 1,
		SubjectID: "science", TeacherID: strPtr("teacher-2"),
	})

	mock.ExpectBegin()
	mock.ExpectRollback()

	result, err := service.ExecuteSwap(context.Background(), dto.SwapRequest{AssignmentID1: "a1", AssignmentID2: "a2"})
	require.NoError(t, err)
	assert.False(t, result.Swapped, "execution re-validates against fresh data")
	assert.Contains(t, repo.ops, "lock:year-1", "re-validation runs under the year lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Fixtures ---

type countingSwapStore struct {
	*assignmentRepoStub
	findCalls int
}

func (s *countingSwapStore) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	s.findCalls++
	return s.assignmentRepoStub.FindByID(ctx, id)
}

type fakeCacheRepo struct {
	values map[string][]byte
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.values[key] = raw
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	f.values = make(map[string][]byte)
	return nil
}

func newFakeCacheService() *CacheService {
	return NewCacheService(&fakeCacheRepo{values: make(map[string][]byte)}, nil, time.Minute, nil, true)
}
