package attendance

import (
	"context"
	"fmt"
	"math"
	"time"

	"deptportal/internal/catalog"
)

// Store persists attendance sessions. The Postgres implementation lives in
// this package; tests supply an in-memory fake.
type Store interface {
	// Upsert atomically creates the session for its (subject, date, period)
	// key or overwrites Records and FacultyID on the existing one. The
	// returned bool is true when a new session was created.
	Upsert(ctx context.Context, s Session) (Session, bool, error)
	Find(ctx context.Context, subjectID string, date time.Time, period int) (*Session, error)
	Count(ctx context.Context, subjectID string) (int, error)
	ListBySubject(ctx context.Context, subjectID string, date *time.Time) ([]Session, error)
	// ListByStudent scans by student membership across all subjects.
	ListByStudent(ctx context.Context, studentID string) ([]Session, error)
	Get(ctx context.Context, id string) (*Session, error)
}

// Catalog is the read-only subject and roster reference data owned by the
// wider portal.
type Catalog interface {
	Subject(ctx context.Context, id string) (*catalog.Subject, error)
	SubjectsFor(ctx context.Context, semester int, branch string) ([]catalog.Subject, error)
	Student(ctx context.Context, id string) (*catalog.Student, error)
}

// ScopePolicy controls whether a student's report includes sessions for
// subjects outside their current semester/branch (e.g. after a promotion).
type ScopePolicy string

const (
	// ScopeCurrent drops historical sessions whose subject is not in the
	// student's current roster. Matches the behaviour of the legacy portal.
	ScopeCurrent ScopePolicy = "current"
	// ScopeAll reports historical subjects as additional entries.
	ScopeAll ScopePolicy = "all"
)

// Service implements the attendance upsert engine and aggregator.
type Service struct {
	store   Store
	catalog Catalog
	scope   ScopePolicy
}

// NewService creates a service over a session store and a catalog.
func NewService(store Store, cat Catalog, scope ScopePolicy) *Service {
	if scope != ScopeAll {
		scope = ScopeCurrent
	}
	return &Service{store: store, catalog: cat, scope: scope}
}

// Mark records or amends one session's attendance. The write is a single
// atomic upsert keyed by (subject, normalized date, period): two calls for
// the same key never produce two sessions, and the second caller's records
// win. Returns the stored session and whether it was created.
func (s *Service) Mark(ctx context.Context, in MarkInput) (Session, bool, error) {
	if in.SubjectID == "" {
		return Session{}, false, fmt.Errorf("%w: subject id required", ErrInvalidArgument)
	}
	if in.Date.IsZero() {
		return Session{}, false, fmt.Errorf("%w: date required", ErrInvalidArgument)
	}
	if in.Period < 1 || in.Period > 6 {
		return Session{}, false, fmt.Errorf("%w: period must be 1-6", ErrInvalidArgument)
	}
	if len(in.Records) == 0 {
		return Session{}, false, fmt.Errorf("%w: records required", ErrInvalidArgument)
	}
	for _, rec := range in.Records {
		if rec.StudentID == "" {
			return Session{}, false, fmt.Errorf("%w: record missing student id", ErrInvalidArgument)
		}
		if !rec.Status.Valid() {
			return Session{}, false, fmt.Errorf("%w: bad status %q", ErrInvalidArgument, rec.Status)
		}
	}

	subj, err := s.catalog.Subject(ctx, in.SubjectID)
	if err != nil {
		return Session{}, false, err
	}
	if subj == nil {
		return Session{}, false, fmt.Errorf("%w: subject %s", ErrNotFound, in.SubjectID)
	}

	sess := Session{
		SubjectID: in.SubjectID,
		Date:      NormalizeDate(in.Date),
		Period:    in.Period,
		FacultyID: in.FacultyID,
		Semester:  subj.Semester,
		Branch:    subj.Branch,
		Records:   in.Records,
	}
	return s.store.Upsert(ctx, sess)
}

// Check reports whether a Mark for the key would create or update. Advisory:
// a concurrent writer can change the answer before the caller acts on it.
func (s *Service) Check(ctx context.Context, subjectID string, date time.Time, period int) (CheckResult, error) {
	if subjectID == "" {
		return CheckResult{}, fmt.Errorf("%w: subject id required", ErrInvalidArgument)
	}
	if date.IsZero() {
		return CheckResult{}, fmt.Errorf("%w: date required", ErrInvalidArgument)
	}
	sess, err := s.store.Find(ctx, subjectID, NormalizeDate(date), period)
	if err != nil {
		return CheckResult{}, err
	}
	if sess == nil {
		return CheckResult{Exists: false, Mode: "create"}, nil
	}
	return CheckResult{Exists: true, Mode: "update", Session: sess}, nil
}

// CountSessions returns the number of classes conducted for a subject, one
// per session regardless of roster size.
func (s *Service) CountSessions(ctx context.Context, subjectID string) (int, error) {
	if subjectID == "" {
		return 0, fmt.Errorf("%w: subject id required", ErrInvalidArgument)
	}
	return s.store.Count(ctx, subjectID)
}

// ListBySubject returns sessions for a subject, optionally narrowed to one
// calendar day.
func (s *Service) ListBySubject(ctx context.Context, subjectID string, date *time.Time) ([]Session, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id required", ErrInvalidArgument)
	}
	if date != nil {
		d := NormalizeDate(*date)
		date = &d
	}
	return s.store.ListBySubject(ctx, subjectID, date)
}

// Session returns one session by id. Used by the report cache warmer.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// StudentReport computes cumulative and current-month rollups for every
// subject in the student's semester/branch, as of the given instant. Subjects
// with no sessions appear with zero counts. A student the catalog cannot
// resolve yields an empty report rather than an error.
func (s *Service) StudentReport(ctx context.Context, studentID string, asOf time.Time) ([]ReportEntry, error) {
	student, err := s.catalog.Student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return []ReportEntry{}, nil
	}

	subjects, err := s.catalog.SubjectsFor(ctx, student.Semester, student.Branch)
	if err != nil {
		return nil, err
	}

	sessions, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	entries := make([]ReportEntry, 0, len(subjects))
	index := make(map[string]int, len(subjects))
	for _, subj := range subjects {
		entries = append(entries, ReportEntry{
			SubjectID:   subj.ID,
			SubjectCode: subj.Code,
			SubjectName: subj.Name,
		})
		index[subj.ID] = len(entries) - 1
	}

	for _, sess := range sessions {
		rec, ok := findRecord(sess.Records, studentID)
		if !ok {
			continue
		}
		i, ok := index[sess.SubjectID]
		if !ok {
			if s.scope != ScopeAll {
				// Subject outside the current roster: dropped.
				continue
			}
			e := ReportEntry{SubjectID: sess.SubjectID}
			if subj, err := s.catalog.Subject(ctx, sess.SubjectID); err == nil && subj != nil {
				e.SubjectCode = subj.Code
				e.SubjectName = subj.Name
			}
			entries = append(entries, e)
			i = len(entries) - 1
			index[sess.SubjectID] = i
		}

		entry := &entries[i]
		entry.Total++
		if rec.Status == StatusPresent {
			entry.Present++
		} else {
			entry.Absent++
		}
		if !sess.Date.Before(monthStart) && sess.Date.Before(nextMonth) {
			entry.MonthTotal++
			if rec.Status == StatusPresent {
				entry.MonthPresent++
			} else {
				entry.MonthAbsent++
			}
		}
	}

	for i := range entries {
		entries[i].Percentage = percentage(entries[i].Present, entries[i].Total)
		entries[i].MonthPercentage = percentage(entries[i].MonthPresent, entries[i].MonthTotal)
	}
	return entries, nil
}

func findRecord(records []StudentRecord, studentID string) (StudentRecord, bool) {
	for _, rec := range records {
		if rec.StudentID == studentID {
			return rec, true
		}
	}
	return StudentRecord{}, false
}

// percentage rounds to two decimals; a zero total yields 0, never NaN.
func percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*100*100) / 100
}
