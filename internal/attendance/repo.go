package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance sessions in Postgres. The unique index on
// (subject_id, date, period) is the authority for the one-session-per-key
// invariant; the application never takes locks of its own.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, subject_id, date, period, faculty_id, semester, branch, records, created_at, updated_at`

// Upsert writes the session with a single INSERT ... ON CONFLICT, so two
// concurrent writers on the same key cannot both create. The second writer
// lands on the update path and its records win.
func (r *Repository) Upsert(ctx context.Context, s Session) (Session, bool, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	recs, err := json.Marshal(s.Records)
	if err != nil {
		return Session{}, false, err
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, subject_id, date, period, faculty_id, semester, branch, records)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (subject_id, date, period) DO UPDATE
		SET records = EXCLUDED.records, faculty_id = EXCLUDED.faculty_id, updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`, s.ID, s.SubjectID, s.Date, s.Period, s.FacultyID, s.Semester, s.Branch, recs)

	var created bool
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &created); err != nil {
		return Session{}, false, mapPgError(err)
	}
	s.Date = NormalizeDate(s.Date)
	return s, created, nil
}

// Find returns the session for a key, or nil when none exists.
func (r *Repository) Find(ctx context.Context, subjectID string, date time.Time, period int) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE subject_id = $1 AND date = $2 AND period = $3
	`, subjectID, date, period)
	return scanOptionalSession(row)
}

// Get returns a session by id, or nil when none exists.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions WHERE id = $1
	`, id)
	return scanOptionalSession(row)
}

// Count returns the number of distinct sessions for a subject.
func (r *Repository) Count(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_sessions WHERE subject_id = $1
	`, subjectID).Scan(&n)
	return n, err
}

// ListBySubject returns sessions for a subject, optionally for one day.
func (r *Repository) ListBySubject(ctx context.Context, subjectID string, date *time.Time) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE subject_id = $1`
	args := []any{subjectID}
	if date != nil {
		query += ` AND date = $2`
		args = append(args, *date)
	}
	query += ` ORDER BY date DESC, period ASC`
	return r.querySessions(ctx, query, args...)
}

// ListByStudent scans by membership in the records array. The GIN index on
// records makes this a single containment lookup rather than a full scan.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]Session, error) {
	match, err := json.Marshal([]map[string]string{{"student_id": studentID}})
	if err != nil {
		return nil, err
	}
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE records @> $1
		ORDER BY date ASC, period ASC
	`, match)
}

func (r *Repository) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var recs []byte
	if err := row.Scan(&s.ID, &s.SubjectID, &s.Date, &s.Period, &s.FacultyID,
		&s.Semester, &s.Branch, &recs, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal(recs, &s.Records); err != nil {
		return Session{}, fmt.Errorf("corrupt records for session %s: %w", s.ID, err)
	}
	s.Date = NormalizeDate(s.Date)
	return s, nil
}

func scanOptionalSession(row *sql.Row) (*Session, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// mapPgError translates constraint violations to the package sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
