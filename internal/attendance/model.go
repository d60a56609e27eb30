package attendance

import (
	"time"
)

// Status is a per-student attendance mark. Wire values are single letters.
type Status string

const (
	StatusPresent Status = "P"
	StatusAbsent  Status = "A"
)

// Valid reports whether the status is one of the supported symbols.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// StudentRecord is one student's mark inside a session.
type StudentRecord struct {
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
}

// Session is one recorded class meeting for a subject, date and period.
// At most one session exists per (SubjectID, Date, Period); the date carries
// no time-of-day component.
type Session struct {
	ID        string          `json:"id"`
	SubjectID string          `json:"subject_id"`
	Date      time.Time       `json:"date"`
	Period    int             `json:"period"`
	FacultyID string          `json:"faculty_id"`
	Semester  int             `json:"semester"`
	Branch    string          `json:"branch"`
	Records   []StudentRecord `json:"records"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ReportEntry is the computed attendance rollup for one (student, subject)
// pair. It is derived on demand and never persisted.
type ReportEntry struct {
	SubjectID       string  `json:"subject_id"`
	SubjectCode     string  `json:"subject_code"`
	SubjectName     string  `json:"subject_name"`
	Present         int     `json:"present"`
	Absent          int     `json:"absent"`
	Total           int     `json:"total"`
	Percentage      float64 `json:"percentage"`
	MonthPresent    int     `json:"month_present"`
	MonthAbsent     int     `json:"month_absent"`
	MonthTotal      int     `json:"month_total"`
	MonthPercentage float64 `json:"month_percentage"`
}

// MarkInput is the full payload for recording or amending one session.
type MarkInput struct {
	SubjectID string
	Date      time.Time
	Period    int
	FacultyID string
	Records   []StudentRecord
}

// CheckResult tells a caller whether a subsequent Mark for the same key
// would create a new session or overwrite an existing one. Advisory only:
// no lock is held between Check and Mark.
type CheckResult struct {
	Exists  bool
	Mode    string // "create" or "update"
	Session *Session
}

// NormalizeDate truncates a timestamp to midnight UTC so every call on the
// same calendar day addresses the same session.
func NormalizeDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
