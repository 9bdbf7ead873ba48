package service

import (
	"github.com/madrasa-dev/timetable-api/internal/models"
)

type slotKey struct {
	Day    int
	Period int
}

// BlackoutIndex answers declared-unavailability lookups over a loaded set of
// teacher blackouts.
type BlackoutIndex struct {
	blocked map[string]map[slotKey]bool
}

// NewBlackoutIndex builds an index from blackout rows.
func NewBlackoutIndex(blackouts []models.TeacherBlackout) *BlackoutIndex {
	idx := &BlackoutIndex{blocked: make(map[string]map[slotKey]bool)}
	for _, b := range blackouts {
		if idx.blocked[b.TeacherID] == nil {
			idx.blocked[b.TeacherID] = make(map[slotKey]bool)
		}
		idx.blocked[b.TeacherID][slotKey{Day: b.DayOfWeek, Period: b.PeriodNumber}] = true
	}
	return idx
}

// Blocked reports whether the teacher declared the slot unavailable.
func (b *BlackoutIndex) Blocked(teacherID string, day, period int) bool {
	if b == nil {
		return false
	}
	slots := b.blocked[teacherID]
	if slots == nil {
		return false
	}
	return slots[slotKey{Day: day, Period: period}]
}

// IsTeacherFree reports whether the teacher holds no assignment at the slot.
// Assignments in excludeIDs are ignored, which lets swap simulation drop the
// two rows being exchanged.
func IsTeacherFree(teacherID string, day, period int, assignments []models.Assignment, excludeIDs ...string) bool {
	excluded := makeIDSet(excludeIDs)
	for _, a := range assignments {
		if excluded[a.ID] {
			continue
		}
		if a.TeacherID == nil || *a.TeacherID != teacherID {
			continue
		}
		if a.DayOfWeek == day && a.PeriodNumber == period {
			return false
		}
	}
	return true
}

// IsClassSlotFree reports whether the class-section grid cell is unoccupied.
func IsClassSlotFree(classID, section string, session models.SessionType, day, period int, assignments []models.Assignment, excludeIDs ...string) bool {
	excluded := makeIDSet(excludeIDs)
	for _, a := range assignments {
		if excluded[a.ID] {
			continue
		}
		if a.ClassID != classID || a.Section != section || a.SessionType != session {
			continue
		}
		if a.DayOfWeek == day && a.PeriodNumber == period {
			return false
		}
	}
	return true
}

// QuotaStatus counts how many periods a subject currently occupies in one grid.
func QuotaStatus(classID, section, subjectID string, assignments []models.Assignment) int {
	count := 0
	for _, a := range assignments {
		if a.ClassID == classID && a.Section == section && a.SubjectID == subjectID {
			count++
		}
	}
	return count
}

// QuotaReport pairs a subject's required weekly periods with its current count.
type QuotaReport struct {
	SubjectID string `json:"subject_id"`
	Required  int    `json:"required"`
	Assigned  int    `json:"assigned"`
}

// BuildQuotaReport summarises quota fulfilment for every subject of a grid.
func BuildQuotaReport(subjects []models.Subject, classID, section string, assignments []models.Assignment) []QuotaReport {
	reports := make([]QuotaReport, 0, len(subjects))
	for _, subject := range subjects {
		reports = append(reports, QuotaReport{
			SubjectID: subject.ID,
			Required:  subject.WeeklyPeriods,
			Assigned:  QuotaStatus(classID, section, subject.ID, assignments),
		})
	}
	return reports
}

func makeIDSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}
