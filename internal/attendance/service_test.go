package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"deptportal/internal/catalog"
)

// fakeStore keeps sessions in memory keyed by (subject, date, period).
type fakeStore struct {
	sessions map[string]*Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*Session)}
}

func storeKey(subjectID string, date time.Time, period int) string {
	return subjectID + "|" + date.Format("2006-01-02") + "|" + string(rune('0'+period))
}

func (f *fakeStore) Upsert(_ context.Context, s Session) (Session, bool, error) {
	key := storeKey(s.SubjectID, s.Date, s.Period)
	if existing, ok := f.sessions[key]; ok {
		existing.Records = s.Records
		existing.FacultyID = s.FacultyID
		existing.UpdatedAt = time.Now().UTC()
		return *existing, false, nil
	}
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	f.sessions[key] = &s
	return s, true, nil
}

func (f *fakeStore) Find(_ context.Context, subjectID string, date time.Time, period int) (*Session, error) {
	if s, ok := f.sessions[storeKey(subjectID, date, period)]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) Count(_ context.Context, subjectID string) (int, error) {
	n := 0
	for _, s := range f.sessions {
		if s.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListBySubject(_ context.Context, subjectID string, date *time.Time) ([]Session, error) {
	var res []Session
	for _, s := range f.sessions {
		if s.SubjectID != subjectID {
			continue
		}
		if date != nil && !s.Date.Equal(*date) {
			continue
		}
		res = append(res, *s)
	}
	return res, nil
}

func (f *fakeStore) ListByStudent(_ context.Context, studentID string) ([]Session, error) {
	var res []Session
	for _, s := range f.sessions {
		if _, ok := findRecord(s.Records, studentID); ok {
			res = append(res, *s)
		}
	}
	return res, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Session, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// fakeCatalog serves subjects and students from maps.
type fakeCatalog struct {
	subjects map[string]catalog.Subject
	students map[string]catalog.Student
}

func (f *fakeCatalog) Subject(_ context.Context, id string) (*catalog.Subject, error) {
	if s, ok := f.subjects[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeCatalog) SubjectsFor(_ context.Context, semester int, branch string) ([]catalog.Subject, error) {
	var res []catalog.Subject
	for _, s := range f.subjects {
		if s.Semester == semester && s.Branch == branch {
			res = append(res, s)
		}
	}
	return res, nil
}

func (f *fakeCatalog) Student(_ context.Context, id string) (*catalog.Student, error) {
	if s, ok := f.students[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		subjects: map[string]catalog.Subject{
			"sub-dbms": {ID: "sub-dbms", Code: "CS301", Name: "Database Systems", Semester: 3, Branch: "CSE"},
			"sub-os":   {ID: "sub-os", Code: "CS302", Name: "Operating Systems", Semester: 3, Branch: "CSE"},
			"sub-old":  {ID: "sub-old", Code: "CS201", Name: "Data Structures", Semester: 2, Branch: "CSE"},
		},
		students: map[string]catalog.Student{
			"stu-1": {ID: "stu-1", Name: "Asha", RollNo: "CSE-21-001", Semester: 3, Branch: "CSE"},
		},
	}
}

func newTestService(scope ScopePolicy) (*Service, *fakeStore) {
	st := newFakeStore()
	return NewService(st, testCatalog(), scope), st
}

func mustMark(t *testing.T, svc *Service, subjectID string, date time.Time, period int, records []StudentRecord) (Session, bool) {
	t.Helper()
	sess, created, err := svc.Mark(context.Background(), MarkInput{
		SubjectID: subjectID,
		Date:      date,
		Period:    period,
		FacultyID: "fac-1",
		Records:   records,
	})
	if err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	return sess, created
}

func present(studentID string) StudentRecord { return StudentRecord{StudentID: studentID, Status: StatusPresent} }
func absent(studentID string) StudentRecord  { return StudentRecord{StudentID: studentID, Status: StatusAbsent} }

func TestMarkValidation(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)
	ctx := context.Background()
	date := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   MarkInput
		want error
	}{
		{"missing subject", MarkInput{Date: date, Period: 1, Records: []StudentRecord{present("stu-1")}}, ErrInvalidArgument},
		{"missing date", MarkInput{SubjectID: "sub-dbms", Period: 1, Records: []StudentRecord{present("stu-1")}}, ErrInvalidArgument},
		{"period too low", MarkInput{SubjectID: "sub-dbms", Date: date, Period: 0, Records: []StudentRecord{present("stu-1")}}, ErrInvalidArgument},
		{"period too high", MarkInput{SubjectID: "sub-dbms", Date: date, Period: 7, Records: []StudentRecord{present("stu-1")}}, ErrInvalidArgument},
		{"empty records", MarkInput{SubjectID: "sub-dbms", Date: date, Period: 1}, ErrInvalidArgument},
		{"record without student", MarkInput{SubjectID: "sub-dbms", Date: date, Period: 1, Records: []StudentRecord{{Status: StatusPresent}}}, ErrInvalidArgument},
		{"bad status", MarkInput{SubjectID: "sub-dbms", Date: date, Period: 1, Records: []StudentRecord{{StudentID: "stu-1", Status: "X"}}}, ErrInvalidArgument},
		{"unknown subject", MarkInput{SubjectID: "nope", Date: date, Period: 1, Records: []StudentRecord{present("stu-1")}}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Mark(ctx, tc.in)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMarkCreateThenUpdate(t *testing.T) {
	svc, st := newTestService(ScopeCurrent)
	date := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)

	first, created := mustMark(t, svc, "sub-dbms", date, 2, []StudentRecord{present("stu-1"), absent("stu-2")})
	if !created {
		t.Fatal("first mark should create")
	}
	if first.Semester != 3 || first.Branch != "CSE" {
		t.Errorf("semester/branch not copied from subject: %+v", first)
	}

	second, created := mustMark(t, svc, "sub-dbms", date, 2, []StudentRecord{absent("stu-1"), present("stu-2")})
	if created {
		t.Fatal("second mark for same key should update")
	}
	if second.ID != first.ID {
		t.Errorf("update produced a new session: %s vs %s", second.ID, first.ID)
	}
	if second.Records[0].Status != StatusAbsent {
		t.Errorf("second caller's records should win, got %+v", second.Records)
	}
	if len(st.sessions) != 1 {
		t.Errorf("exactly one session must exist per key, got %d", len(st.sessions))
	}
}

func TestMarkDateNormalization(t *testing.T) {
	svc, st := newTestService(ScopeCurrent)

	morning := time.Date(2026, 2, 5, 1, 2, 0, 0, time.UTC)
	afternoon := time.Date(2026, 2, 5, 14, 33, 0, 0, time.UTC)

	a, created := mustMark(t, svc, "sub-dbms", morning, 1, []StudentRecord{present("stu-1")})
	if !created {
		t.Fatal("first mark should create")
	}
	b, created := mustMark(t, svc, "sub-dbms", afternoon, 1, []StudentRecord{absent("stu-1")})
	if created {
		t.Fatal("same calendar day must resolve to the same session")
	}
	if a.ID != b.ID {
		t.Errorf("time-of-day must be discarded: %s vs %s", a.ID, b.ID)
	}
	if len(st.sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(st.sessions))
	}
	if b.Records[0].Status != StatusAbsent {
		t.Errorf("later call's records should win")
	}
	if !a.Date.Equal(time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date not normalized to midnight UTC: %v", a.Date)
	}

	// A different period on the same day is a different session.
	_, created = mustMark(t, svc, "sub-dbms", morning, 2, []StudentRecord{present("stu-1")})
	if !created {
		t.Error("different period should create a new session")
	}
}

func TestCheckModeDetection(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)
	ctx := context.Background()
	date := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)

	res, err := svc.Check(ctx, "sub-dbms", date, 3)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Exists || res.Mode != "create" || res.Session != nil {
		t.Errorf("before any mark, want create mode: %+v", res)
	}

	mustMark(t, svc, "sub-dbms", date, 3, []StudentRecord{present("stu-1")})

	res, err = svc.Check(ctx, "sub-dbms", time.Date(2026, 2, 5, 23, 59, 0, 0, time.UTC), 3)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Exists || res.Mode != "update" || res.Session == nil {
		t.Errorf("after mark, want update mode: %+v", res)
	}
}

func TestCountSessions(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)

	day1 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	recs := []StudentRecord{present("stu-1"), present("stu-2"), present("stu-3")}

	mustMark(t, svc, "sub-dbms", day1, 1, recs)
	mustMark(t, svc, "sub-dbms", day1, 2, recs)
	mustMark(t, svc, "sub-dbms", day2, 1, recs)
	// Re-marking does not add a class.
	mustMark(t, svc, "sub-dbms", day2, 1, recs)
	mustMark(t, svc, "sub-os", day1, 1, recs)

	n, err := svc.CountSessions(context.Background(), "sub-dbms")
	if err != nil {
		t.Fatalf("CountSessions failed: %v", err)
	}
	if n != 3 {
		t.Errorf("classes conducted = %d, want 3 (one per session, roster size irrelevant)", n)
	}
}

func findEntry(t *testing.T, entries []ReportEntry, subjectID string) ReportEntry {
	t.Helper()
	for _, e := range entries {
		if e.SubjectID == subjectID {
			return e
		}
	}
	t.Fatalf("no entry for subject %s in %+v", subjectID, entries)
	return ReportEntry{}
}

func TestStudentReportAggregation(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)
	asOf := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

	// Three sessions: two present, one absent.
	mustMark(t, svc, "sub-dbms", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{present("stu-1")})
	mustMark(t, svc, "sub-dbms", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{present("stu-1")})
	mustMark(t, svc, "sub-dbms", time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{absent("stu-1")})

	entries, err := svc.StudentReport(context.Background(), "stu-1", asOf)
	if err != nil {
		t.Fatalf("StudentReport failed: %v", err)
	}

	dbms := findEntry(t, entries, "sub-dbms")
	if dbms.Present != 2 || dbms.Absent != 1 || dbms.Total != 3 {
		t.Errorf("counts = %d/%d/%d, want 2/1/3", dbms.Present, dbms.Absent, dbms.Total)
	}
	if dbms.Percentage != 66.67 {
		t.Errorf("percentage = %v, want 66.67", dbms.Percentage)
	}
}

func TestStudentReportMonthScoping(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)
	asOf := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

	// Previous month: cumulative only.
	mustMark(t, svc, "sub-dbms", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{present("stu-1")})
	// Current month, including both boundaries.
	mustMark(t, svc, "sub-dbms", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{present("stu-1")})
	mustMark(t, svc, "sub-dbms", time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{absent("stu-1")})
	// Next month: cumulative only.
	mustMark(t, svc, "sub-dbms", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{present("stu-1")})

	entries, err := svc.StudentReport(context.Background(), "stu-1", asOf)
	if err != nil {
		t.Fatalf("StudentReport failed: %v", err)
	}

	dbms := findEntry(t, entries, "sub-dbms")
	if dbms.Total != 4 || dbms.Present != 3 || dbms.Absent != 1 {
		t.Errorf("cumulative = %d/%d/%d, want 3/1/4", dbms.Present, dbms.Absent, dbms.Total)
	}
	if dbms.MonthTotal != 2 || dbms.MonthPresent != 1 || dbms.MonthAbsent != 1 {
		t.Errorf("month = %d/%d/%d, want 1/1/2", dbms.MonthPresent, dbms.MonthAbsent, dbms.MonthTotal)
	}
	if dbms.MonthPercentage != 50 {
		t.Errorf("month percentage = %v, want 50", dbms.MonthPercentage)
	}
}

func TestStudentReportZeroSessionSubject(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)
	asOf := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	mustMark(t, svc, "sub-dbms", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), 1, []StudentRecord{present("stu-1")})

	entries, err := svc.StudentReport(context.Background(), "stu-1", asOf)
	if err != nil {
		t.Fatalf("StudentReport failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both roster subjects, got %d entries", len(entries))
	}

	// sub-os has never met, but must still appear with zeros, not NaN.
	os := findEntry(t, entries, "sub-os")
	if os.Total != 0 || os.Present != 0 || os.Absent != 0 {
		t.Errorf("zero-session subject counts = %+v, want zeros", os)
	}
	if os.Percentage != 0 || os.MonthPercentage != 0 {
		t.Errorf("zero totals must yield 0 percent, got %v / %v", os.Percentage, os.MonthPercentage)
	}
}

func TestStudentReportScopePolicy(t *testing.T) {
	asOf := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	// stu-1 is in semester 3 now, but has a session from a semester-2 subject.
	oldDate := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("current scope drops stale subjects", func(t *testing.T) {
		svc, _ := newTestService(ScopeCurrent)
		mustMark(t, svc, "sub-old", oldDate, 1, []StudentRecord{present("stu-1")})

		entries, err := svc.StudentReport(context.Background(), "stu-1", asOf)
		if err != nil {
			t.Fatalf("StudentReport failed: %v", err)
		}
		for _, e := range entries {
			if e.SubjectID == "sub-old" {
				t.Errorf("stale subject leaked into current-scope report")
			}
		}
	})

	t.Run("all scope reports stale subjects", func(t *testing.T) {
		svc, _ := newTestService(ScopeAll)
		mustMark(t, svc, "sub-old", oldDate, 1, []StudentRecord{present("stu-1")})

		entries, err := svc.StudentReport(context.Background(), "stu-1", asOf)
		if err != nil {
			t.Fatalf("StudentReport failed: %v", err)
		}
		old := findEntry(t, entries, "sub-old")
		if old.Total != 1 || old.Present != 1 {
			t.Errorf("historical subject counts = %+v, want 1 present", old)
		}
		if old.SubjectCode != "CS201" {
			t.Errorf("historical subject should be enriched from catalog, got %q", old.SubjectCode)
		}
	})
}

func TestStudentReportUnknownStudent(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)
	entries, err := svc.StudentReport(context.Background(), "ghost", time.Now().UTC())
	if err != nil {
		t.Fatalf("unresolvable student must degrade, not fail: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("want empty report, got %d entries", len(entries))
	}
}

func TestStudentReportIgnoresOtherStudents(t *testing.T) {
	svc, _ := newTestService(ScopeCurrent)
	asOf := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	mustMark(t, svc, "sub-dbms", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), 1,
		[]StudentRecord{present("stu-1"), absent("stu-2"), absent("stu-3")})

	entries, err := svc.StudentReport(context.Background(), "stu-1", asOf)
	if err != nil {
		t.Fatalf("StudentReport failed: %v", err)
	}
	dbms := findEntry(t, entries, "sub-dbms")
	if dbms.Present != 1 || dbms.Absent != 0 || dbms.Total != 1 {
		t.Errorf("other students' marks leaked: %+v", dbms)
	}
}

func TestPercentageRounding(t *testing.T) {
	cases := []struct {
		present, total int
		want           float64
	}{
		{0, 0, 0},
		{2, 3, 66.67},
		{1, 3, 33.33},
		{3, 3, 100},
		{1, 7, 14.29},
		{0, 5, 0},
	}
	for _, tc := range cases {
		if got := percentage(tc.present, tc.total); got != tc.want {
			t.Errorf("percentage(%d, %d) = %v, want %v", tc.present, tc.total, got, tc.want)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	in := time.Date(2026, 2, 5, 2, 30, 0, 0, ist) // 2026-02-04T21:00Z
	got := NormalizeDate(in)
	want := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NormalizeDate(%v) = %v, want %v", in, got, want)
	}
}
