package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one weekly recurring availability window for a doctor at a
// hospital. Times are clock values ("HH:MM") in the hospital's local civil
// time; no timezone conversion happens anywhere in this package.
type Entry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	HospitalID  uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Weekday     int       `db:"weekday" json:"weekday"` // 0=Sunday .. 6=Saturday
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	SlotMinutes int       `db:"slot_minutes" json:"slot_minutes"`
}

// DayHours is a hospital's operating window for one weekday. A missing row or
// IsOpen=false means closed; open/close times present on a closed day are
// ignored rather than treated as open.
type DayHours struct {
	Weekday   int     `db:"weekday" json:"weekday"`
	IsOpen    bool    `db:"is_open" json:"is_open"`
	OpenTime  *string `db:"open_time" json:"open_time,omitempty"`
	CloseTime *string `db:"close_time" json:"close_time,omitempty"`
}

// HospitalHours is the full operating configuration for a hospital.
type HospitalHours struct {
	HospitalID uuid.UUID  `json:"hospital_id"`
	Open24x7   bool       `json:"open_24x7"`
	Days       []DayHours `json:"days"`
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}

// FormatClock converts minutes since midnight to "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate validates a "YYYY-MM-DD" date and returns it.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
