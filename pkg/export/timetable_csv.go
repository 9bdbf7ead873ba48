package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// GridRow is one scheduled period of a class-section week, already resolved
// to display names.
type GridRow struct {
	Day     string
	Period  int
	Subject string
	Teacher string
	Room    string
}

// TimetableCSV renders class-section grids with a fixed column layout.
type TimetableCSV struct{}

// NewTimetableCSV builds the renderer.
func NewTimetableCSV() *TimetableCSV {
	return &TimetableCSV{}
}

// Render encodes the rows as CSV. Rows are written in the order given.
func (e *TimetableCSV) Render(rows []GridRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("timetable export requires at least one row")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"day", "period", "subject", "teacher", "room"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.Day, strconv.Itoa(row.Period), row.Subject, row.Teacher, row.Room}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
