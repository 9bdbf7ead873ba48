package models

import "time"

// Subject is class-scoped: the same subject name taught to two classes is two
// rows, each carrying its own weekly period quota.
type Subject struct {
	ID            string    `db:"id" json:"id"`
	ClassID       string    `db:"class_id" json:"class_id"`
	Name          string    `db:"name" json:"name"`
	WeeklyPeriods int       `db:"weekly_periods" json:"weekly_periods"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	ClassID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
