package dto

// GenerateScheduleRequest asks the generator to fill one class-section grid.
type GenerateScheduleRequest struct {
	AcademicYearID          string `json:"academicYearId" validate:"required"`
	SessionType             string `json:"sessionType" validate:"required,oneof=morning evening"`
	ClassID                 string `json:"classId" validate:"required"`
	Section                 string `json:"section" validate:"required"`
	AutoAssignTeachers      bool   `json:"autoAssignTeachers"`
	BalanceTeacherLoad      bool   `json:"balanceTeacherLoad"`
	PreferSubjectContinuity bool   `json:"preferSubjectContinuity"`
	PreviewOnly             bool   `json:"previewOnly"`
}

// GeneratedAssignment is one filled cell of a generated grid.
type GeneratedAssignment struct {
	DayOfWeek    int     `json:"dayOfWeek"`
	PeriodNumber int     `json:"periodNumber"`
	SubjectID    string  `json:"subjectId"`
	TeacherID    *string `json:"teacherId,omitempty"`
}

// UnfilledSlot reports a cell the generator left for manual completion.
type UnfilledSlot struct {
	DayOfWeek    int    `json:"dayOfWeek"`
	PeriodNumber int    `json:"periodNumber"`
	SubjectID    string `json:"subjectId,omitempty"`
	Reason       string `json:"reason"`
}

// SubjectQuotaStatus reports how much of a subject's weekly demand the grid
// covers after the run.
type SubjectQuotaStatus struct {
	SubjectID string `json:"subjectId"`
	Required  int    `json:"required"`
	Assigned  int    `json:"assigned"`
}

// GenerateScheduleResponse returns the generated grid. PreviewID is set only
// when the run was preview-only; Saved reports whether rows were persisted.
// FilledCount counts cells with a complete assignment; cells the generator
// could not complete appear in Unfilled, including quota demand that no longer
// fits in the week.
type GenerateScheduleResponse struct {
	PreviewID     string                `json:"previewId,omitempty"`
	Saved         bool                  `json:"saved"`
	Assignments   []GeneratedAssignment `json:"assignments"`
	FilledCount   int                   `json:"filledCount"`
	UnfilledCount int                   `json:"unfilledCount"`
	Unfilled      []UnfilledSlot        `json:"unfilled,omitempty"`
	Quotas        []SubjectQuotaStatus  `json:"quotas,omitempty"`
}

// SavePreviewRequest commits a previously generated preview.
type SavePreviewRequest struct {
	PreviewID string `json:"previewId" validate:"required"`
}

// GenerateAllRequest fills every class-section in a year/session.
type GenerateAllRequest struct {
	AcademicYearID          string `json:"academicYearId" validate:"required"`
	SessionType             string `json:"sessionType" validate:"required,oneof=morning evening"`
	AutoAssignTeachers      bool   `json:"autoAssignTeachers"`
	BalanceTeacherLoad      bool   `json:"balanceTeacherLoad"`
	PreferSubjectContinuity bool   `json:"preferSubjectContinuity"`
}

// SectionGenerationResult summarises one class-section run inside GenerateAll.
type SectionGenerationResult struct {
	ClassID       string `json:"classId"`
	Section       string `json:"section"`
	FilledCount   int    `json:"filledCount"`
	UnfilledCount int    `json:"unfilledCount"`
	Error         string `json:"error,omitempty"`
}

// GenerateAllResponse aggregates per-section outcomes.
type GenerateAllResponse struct {
	Sections  []SectionGenerationResult `json:"sections"`
	Generated int                       `json:"generated"`
	Failed    int                       `json:"failed"`
}
