package models

// The teaching week runs Sunday through Thursday, six periods per day.
const (
	DaysPerWeek   = 5
	PeriodsPerDay = 6
	SlotsPerWeek  = DaysPerWeek * PeriodsPerDay
)

// DayNames maps day_of_week values (1-based) to display names.
var DayNames = map[int]string{
	1: "Sunday",
	2: "Monday",
	3: "Tuesday",
	4: "Wednesday",
	5: "Thursday",
}

// SessionType distinguishes the morning and evening school sessions.
type SessionType string

const (
	SessionMorning SessionType = "morning"
	SessionEvening SessionType = "evening"
)

// Valid reports whether the session type is one of the known values.
func (s SessionType) Valid() bool {
	return s == SessionMorning || s == SessionEvening
}

// TimeSlot identifies one cell of the weekly grid.
type TimeSlot struct {
	DayOfWeek    int `json:"day_of_week"`
	PeriodNumber int `json:"period_number"`
}

// InRange reports whether the slot falls inside the teaching grid.
func (t TimeSlot) InRange() bool {
	return t.DayOfWeek >= 1 && t.DayOfWeek <= DaysPerWeek &&
		t.PeriodNumber >= 1 && t.PeriodNumber <= PeriodsPerDay
}
