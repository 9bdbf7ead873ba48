package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/madrasa-dev/timetable-api/internal/dto"
	"github.com/madrasa-dev/timetable-api/internal/models"
	appErrors "github.com/madrasa-dev/timetable-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type generatorAssignmentStore interface {
	ListByClassSection(ctx context.Context, yearID string, session models.SessionType, classID, section string) ([]models.Assignment, error)
	ListByYearSession(ctx context.Context, yearID string, session models.SessionType) ([]models.Assignment, error)
	LockYear(ctx context.Context, tx *sqlx.Tx, yearID string) error
	ListByYearSessionWithTx(ctx context.Context, tx *sqlx.Tx, yearID string, session models.SessionType) ([]models.Assignment, error)
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error
}

type generatorClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListSectionsByYearSession(ctx context.Context, yearID string, session models.SessionType) ([]models.ClassSection, error)
}

type generatorSubjectReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.Subject, error)
}

type qualificationReader interface {
	ListByClassSection(ctx context.Context, yearID, classID, section string) ([]models.TeacherAssignment, error)
}

type generatorBlackoutReader interface {
	ListBlackouts(ctx context.Context) ([]models.TeacherBlackout, error)
}

type academicYearReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

// GeneratorService fills class-section grids subject by subject.
type GeneratorService struct {
	assignments    generatorAssignmentStore
	classes        generatorClassReader
	subjects       generatorSubjectReader
	qualifications qualificationReader
	blackouts      generatorBlackoutReader
	years          academicYearReader
	tx             txProvider
	swapCache      swapCacheInvalidator
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
	store          *previewStore
}

// GeneratorConfig governs generator behaviour.
type GeneratorConfig struct {
	PreviewTTL time.Duration
}

// NewGeneratorService wires generator dependencies.
func NewGeneratorService(
	assignments generatorAssignmentStore,
	classes generatorClassReader,
	subjects generatorSubjectReader,
	qualifications qualificationReader,
	blackouts generatorBlackoutReader,
	years academicYearReader,
	tx txProvider,
	swapCache swapCacheInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg GeneratorConfig,
) *GeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PreviewTTL <= 0 {
		cfg.PreviewTTL = 30 * time.Minute
	}
	return &GeneratorService{
		assignments:    assignments,
		classes:        classes,
		subjects:       subjects,
		qualifications: qualifications,
		blackouts:      blackouts,
		years:          years,
		tx:             tx,
		swapCache:      swapCache,
		metrics:        metrics,
		validator:      validate,
		logger:         logger,
		store:          newPreviewStore(cfg.PreviewTTL),
	}
}

// Generate fills the empty cells of one class-section grid. With PreviewOnly
// the working set is held in memory under a preview id; otherwise the new
// rows are persisted in a single transaction.
func (s *GeneratorService) Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	if err := s.ensureYearAndClass(ctx, req.AcademicYearID, req.ClassID); err != nil {
		return nil, err
	}

	rows, resp, err := s.buildWorkingSet(ctx, req)
	if err != nil {
		s.recordRun(req.PreviewOnly, "error", 0, 0)
		return nil, err
	}

	if req.PreviewOnly {
		preview := schedulePreview{
			PreviewID:   uuid.NewString(),
			Request:     req,
			Rows:        rows,
			Response:    *resp,
			RequestedAt: time.Now().UTC(),
		}
		s.store.Save(preview)
		resp.PreviewID = preview.PreviewID
		s.recordRun(true, "ok", resp.FilledCount, resp.UnfilledCount)
		return resp, nil
	}

	if err := s.commitRows(ctx, req.AcademicYearID, models.SessionType(req.SessionType), rows); err != nil {
		s.recordRun(false, "error", 0, 0)
		return nil, err
	}
	resp.Saved = true
	s.recordRun(false, "ok", resp.FilledCount, resp.UnfilledCount)
	s.logger.Info("schedule generated",
		zap.String("class_id", req.ClassID),
		zap.String("section", req.Section),
		zap.Int("filled", resp.FilledCount),
		zap.Int("unfilled", resp.UnfilledCount))
	return resp, nil
}

// SavePreview re-validates a stored working set against the current store and
// commits it in one transaction.
func (s *GeneratorService) SavePreview(ctx context.Context, req dto.SavePreviewRequest) (*dto.GenerateScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save preview payload")
	}
	preview, ok := s.store.Get(req.PreviewID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "preview not found or expired")
	}

	session := models.SessionType(preview.Request.SessionType)
	if err := s.commitRows(ctx, preview.Request.AcademicYearID, session, preview.Rows); err != nil {
		return nil, err
	}
	s.store.Delete(req.PreviewID)

	resp := preview.Response
	resp.PreviewID = ""
	resp.Saved = true
	return &resp, nil
}

// GenerateAll fills every class-section grid of a year/session. Sections are
// independent: a failing section is reported, not fatal.
func (s *GeneratorService) GenerateAll(ctx context.Context, req dto.GenerateAllRequest) (*dto.GenerateAllResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate all payload")
	}

	sections, err := s.classes.ListSectionsByYearSession(ctx, req.AcademicYearID, models.SessionType(req.SessionType))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class sections")
	}
	if len(sections) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no class sections defined for this year and session")
	}

	resp := &dto.GenerateAllResponse{Sections: make([]dto.SectionGenerationResult, 0, len(sections))}
	for _, section := range sections {
		result := dto.SectionGenerationResult{ClassID: section.ClassID, Section: section.Section}
		sectionResp, err := s.Generate(ctx, dto.GenerateScheduleRequest{
			AcademicYearID:          req.AcademicYearID,
			SessionType:             req.SessionType,
			ClassID:                 section.ClassID,
			Section:                 section.Section,
			AutoAssignTeachers:      req.AutoAssignTeachers,
			BalanceTeacherLoad:      req.BalanceTeacherLoad,
			PreferSubjectContinuity: req.PreferSubjectContinuity,
		})
		if err != nil {
			result.Error = appErrors.FromError(err).Message
			resp.Failed++
		} else {
			result.FilledCount = sectionResp.FilledCount
			result.UnfilledCount = sectionResp.UnfilledCount
			resp.Generated++
		}
		resp.Sections = append(resp.Sections, result)
	}
	return resp, nil
}

// DiscardPreview drops a stored working set. Missing ids are not an error.
func (s *GeneratorService) DiscardPreview(previewID string) {
	s.store.Delete(previewID)
}

func (s *GeneratorService) ensureYearAndClass(ctx context.Context, yearID, classID string) error {
	if s.years != nil {
		if _, err := s.years.FindByID(ctx, yearID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
		}
	}
	if s.classes != nil {
		if _, err := s.classes.FindByID(ctx, classID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
	}
	return nil
}

// buildWorkingSet runs the greedy fill. The walk order is fixed (day-major,
// then period) and every tie breaks on ids, so identical inputs produce
// identical grids.
func (s *GeneratorService) buildWorkingSet(ctx context.Context, req dto.GenerateScheduleRequest) ([]models.Assignment, *dto.GenerateScheduleResponse, error) {
	session := models.SessionType(req.SessionType)

	subjects, err := s.subjects.ListByClass(ctx, req.ClassID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	if len(subjects) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no subjects defined for this class")
	}

	var qualified map[string][]string
	if req.AutoAssignTeachers {
		quals, err := s.qualifications.ListByClassSection(ctx, req.AcademicYearID, req.ClassID, req.Section)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher assignments")
		}
		qualified = mapQualifications(quals)
	}

	var blackoutIdx *BlackoutIndex
	if s.blackouts != nil {
		blackouts, err := s.blackouts.ListBlackouts(ctx)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher blackouts")
		}
		blackoutIdx = NewBlackoutIndex(blackouts)
	}

	all, err := s.assignments.ListByYearSession(ctx, req.AcademicYearID, session)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}

	state := newFillState(subjects, all, req.ClassID, req.Section, session)

	var rows []models.Assignment
	var generated []dto.GeneratedAssignment
	var unfilled []dto.UnfilledSlot
	teacherless := 0

	for day := 1; day <= models.DaysPerWeek; day++ {
		for period := 1; period <= models.PeriodsPerDay; period++ {
			if state.occupied(day, period) {
				continue
			}
			subjectID, ok := state.nextSubject()
			if !ok {
				continue
			}

			var teacherID *string
			if req.AutoAssignTeachers {
				picked := state.pickTeacher(pickTeacherArgs{
					candidates: qualified[subjectID],
					day:        day,
					period:     period,
					subjectID:  subjectID,
					blackouts:  blackoutIdx,
					balance:    req.BalanceTeacherLoad,
					continuity: req.PreferSubjectContinuity,
				})
				if picked == "" {
					teacherless++
					unfilled = append(unfilled, dto.UnfilledSlot{
						DayOfWeek:    day,
						PeriodNumber: period,
						SubjectID:    subjectID,
						Reason:       "no qualified teacher available for this slot",
					})
				} else {
					teacherID = &picked
				}
			}

			row := models.Assignment{
				AcademicYearID: req.AcademicYearID,
				SessionType:    session,
				ClassID:        req.ClassID,
				Section:        req.Section,
				DayOfWeek:      day,
				PeriodNumber:   period,
				SubjectID:      subjectID,
				TeacherID:      teacherID,
			}
			rows = append(rows, row)
			generated = append(generated, dto.GeneratedAssignment{
				DayOfWeek:    day,
				PeriodNumber: period,
				SubjectID:    subjectID,
				TeacherID:    teacherID,
			})
			state.place(row)
		}
	}

	// Demand that no longer fits in the week is reported slot by slot, so a
	// quota shortfall is never silent even when every cell got a row.
	unfilled = append(unfilled, state.leftoverDemand()...)

	combined := make([]models.Assignment, 0, len(all)+len(rows))
	combined = append(combined, all...)
	combined = append(combined, rows...)
	quotas := make([]dto.SubjectQuotaStatus, 0, len(subjects))
	for _, report := range BuildQuotaReport(subjects, req.ClassID, req.Section, combined) {
		quotas = append(quotas, dto.SubjectQuotaStatus{
			SubjectID: report.SubjectID,
			Required:  report.Required,
			Assigned:  report.Assigned,
		})
	}

	resp := &dto.GenerateScheduleResponse{
		Assignments:   generated,
		FilledCount:   len(generated) - teacherless,
		UnfilledCount: len(unfilled),
		Unfilled:      unfilled,
		Quotas:        quotas,
	}
	return rows, resp, nil
}

// commitRows persists a working set in one transaction. The year row is
// locked first and every row is re-checked against the store read under that
// lock, so a grid or teacher slot taken since generation rejects the commit
// instead of double-booking.
func (s *GeneratorService) commitRows(ctx context.Context, yearID string, session models.SessionType, rows []models.Assignment) error {
	if len(rows) == 0 {
		return nil
	}
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

	if err = s.assignments.LockYear(ctx, tx, yearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock academic year")
		return err
	}
	current, lerr := s.assignments.ListByYearSessionWithTx(ctx, tx, yearID, session)
	if lerr != nil {
		err = appErrors.Wrap(lerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload assignments")
		return err
	}
	for _, row := range rows {
		if !IsClassSlotFree(row.ClassID, row.Section, row.SessionType, row.DayOfWeek, row.PeriodNumber, current) {
			err = appErrors.Clone(appErrors.ErrConflict, "schedule no longer applies: a grid slot was taken, regenerate")
			return err
		}
		if row.TeacherID != nil && !IsTeacherFree(*row.TeacherID, row.DayOfWeek, row.PeriodNumber, current) {
			err = appErrors.Clone(appErrors.ErrConflict, "schedule no longer applies: a teacher slot was taken, regenerate")
			return err
		}
	}

	if err = s.assignments.BulkCreateWithTx(ctx, tx, rows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to persist generated assignments")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, "failed to commit generated assignments")
		return err
	}
	if s.swapCache != nil {
		s.swapCache.InvalidateAll(ctx)
	}
	return nil
}

func (s *GeneratorService) recordRun(preview bool, outcome string, filled, unfilled int) {
	if s.metrics == nil {
		return
	}
	mode := "commit"
	if preview {
		mode = "preview"
	}
	s.metrics.RecordGenerationRun(mode, outcome, filled, unfilled)
}

func mapQualifications(items []models.TeacherAssignment) map[string][]string {
	bySubject := make(map[string]map[string]struct{})
	for _, item := range items {
		if bySubject[item.SubjectID] == nil {
			bySubject[item.SubjectID] = make(map[string]struct{})
		}
		bySubject[item.SubjectID][item.TeacherID] = struct{}{}
	}
	result := make(map[string][]string, len(bySubject))
	for subjectID, teachers := range bySubject {
		ids := make([]string, 0, len(teachers))
		for id := range teachers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		result[subjectID] = ids
	}
	return result
}

// --- Fill state ---

type subjectQuota struct {
	id        string
	remaining int
}

type fillState struct {
	quotas      []subjectQuota
	classCells  map[slotKey]models.Assignment
	teacherBusy map[string]map[slotKey]bool
	runLoad     map[string]int
}

func newFillState(subjects []models.Subject, all []models.Assignment, classID, section string, session models.SessionType) *fillState {
	state := &fillState{
		classCells:  make(map[slotKey]models.Assignment),
		teacherBusy: make(map[string]map[slotKey]bool),
		runLoad:     make(map[string]int),
	}

	assignedPerSubject := make(map[string]int)
	for _, a := range all {
		key := slotKey{Day: a.DayOfWeek, Period: a.PeriodNumber}
		if a.ClassID == classID && a.Section == section && a.SessionType == session {
			state.classCells[key] = a
			assignedPerSubject[a.SubjectID]++
		}
		if a.TeacherID != nil && *a.TeacherID != "" {
			if state.teacherBusy[*a.TeacherID] == nil {
				state.teacherBusy[*a.TeacherID] = make(map[slotKey]bool)
			}
			state.teacherBusy[*a.TeacherID][key] = true
		}
	}

	for _, subject := range subjects {
		remaining := subject.WeeklyPeriods - assignedPerSubject[subject.ID]
		if remaining > 0 {
			state.quotas = append(state.quotas, subjectQuota{id: subject.ID, remaining: remaining})
		}
	}
	return state
}

func (s *fillState) occupied(day, period int) bool {
	_, ok := s.classCells[slotKey{Day: day, Period: period}]
	return ok
}

// nextSubject returns the subject with the most remaining demand, ties broken
// by subject id.
func (s *fillState) nextSubject() (string, bool) {
	sort.Slice(s.quotas, func(i, j int) bool {
		if s.quotas[i].remaining == s.quotas[j].remaining {
			return s.quotas[i].id < s.quotas[j].id
		}
		return s.quotas[i].remaining > s.quotas[j].remaining
	})
	for i := range s.quotas {
		if s.quotas[i].remaining > 0 {
			return s.quotas[i].id, true
		}
	}
	return "", false
}

type pickTeacherArgs struct {
	candidates []string
	day        int
	period     int
	subjectID  string
	blackouts  *BlackoutIndex
	balance    bool
	continuity bool
}

func (s *fillState) pickTeacher(args pickTeacherArgs) string {
	available := make([]string, 0, len(args.candidates))
	for _, id := range args.candidates {
		if args.blackouts.Blocked(id, args.day, args.period) {
			continue
		}
		if busy := s.teacherBusy[id]; busy != nil && busy[slotKey{Day: args.day, Period: args.period}] {
			continue
		}
		available = append(available, id)
	}
	if len(available) == 0 {
		return ""
	}

	if args.continuity && args.period > 1 {
		if prev, ok := s.classCells[slotKey{Day: args.day, Period: args.period - 1}]; ok {
			if prev.SubjectID == args.subjectID && prev.TeacherID != nil {
				for _, id := range available {
					if id == *prev.TeacherID {
						return id
					}
				}
			}
		}
	}

	if args.balance {
		sort.SliceStable(available, func(i, j int) bool {
			if s.runLoad[available[i]] == s.runLoad[available[j]] {
				return available[i] < available[j]
			}
			return s.runLoad[available[i]] < s.runLoad[available[j]]
		})
	}
	return available[0]
}

// leftoverDemand reports each weekly period a subject still needs after the
// grid ran out of free cells, one entry per missing period.
func (s *fillState) leftoverDemand() []dto.UnfilledSlot {
	remaining := make([]subjectQuota, 0, len(s.quotas))
	for _, quota := range s.quotas {
		if quota.remaining > 0 {
			remaining = append(remaining, quota)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].id < remaining[j].id })

	var slots []dto.UnfilledSlot
	for _, quota := range remaining {
		for i := 0; i < quota.remaining; i++ {
			slots = append(slots, dto.UnfilledSlot{
				SubjectID: quota.id,
				Reason:    "no free period left in the weekly grid",
			})
		}
	}
	return slots
}

func (s *fillState) place(row models.Assignment) {
	key := slotKey{Day: row.DayOfWeek, Period: row.PeriodNumber}
	s.classCells[key] = row
	for i := range s.quotas {
		if s.quotas[i].id == row.SubjectID {
			s.quotas[i].remaining--
			break
		}
	}
	if row.TeacherID != nil {
		if s.teacherBusy[*row.TeacherID] == nil {
			s.teacherBusy[*row.TeacherID] = make(map[slotKey]bool)
		}
		s.teacherBusy[*row.TeacherID][key] = true
		s.runLoad[*row.TeacherID]++
	}
}

// --- Preview cache ---

type schedulePreview struct {
	PreviewID   string
	Request     dto.GenerateScheduleRequest
	Rows        []models.Assignment
	Response    dto.GenerateScheduleResponse
	RequestedAt time.Time
}

type previewStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]schedulePreview
}

func newPreviewStore(ttl time.Duration) *previewStore {
	return &previewStore{
		ttl:   ttl,
		items: make(map[string]schedulePreview),
	}
}

func (s *previewStore) Save(preview schedulePreview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[preview.PreviewID] = preview
}

func (s *previewStore) Get(id string) (schedulePreview, bool) {
	s.mu.RLock()
	preview, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return schedulePreview{}, false
	}
	if time.Since(preview.RequestedAt) > s.ttl {
		s.Delete(id)
		return schedulePreview{}, false
	}
	return preview, true
}

func (s *previewStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
