package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound means the subject or user does not exist.
var ErrNotFound = errors.New("not found")

// Repository reads subject and roster reference data from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Subject returns one subject by id, or nil when absent.
func (r *Repository) Subject(ctx context.Context, id string) (*Subject, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, credits, semester, branch, faculty_id, created_at
		FROM subjects WHERE id = $1
	`, id)
	var s Subject
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Credits, &s.Semester, &s.Branch, &s.FacultyID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SubjectsFor lists the active subjects for a semester and branch. This set
// defines the universe of a student's attendance report.
func (r *Repository) SubjectsFor(ctx context.Context, semester int, branch string) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, credits, semester, branch, faculty_id, created_at
		FROM subjects
		WHERE semester = $1 AND branch = $2
		ORDER BY code
	`, semester, branch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Credits, &s.Semester, &s.Branch, &s.FacultyID, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Student returns a student's scoping attributes, or nil when the id does
// not resolve to a student account with semester and branch set.
func (r *Repository) Student(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(roll_no, ''), semester, branch
		FROM users
		WHERE id = $1 AND role = 'student' AND semester IS NOT NULL AND branch IS NOT NULL
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.RollNo, &s.Semester, &s.Branch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// User returns any portal account by id, or nil when absent.
func (r *Repository) User(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, role, roll_no, semester, branch, created_at
		FROM users WHERE id = $1
	`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Role, &u.RollNo, &u.Semester, &u.Branch, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SubjectForFaculty resolves the one subject registered to a faculty
// account, or nil when none is.
func (r *Repository) SubjectForFaculty(ctx context.Context, facultyID string) (*Subject, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, credits, semester, branch, faculty_id, created_at
		FROM subjects WHERE faculty_id = $1
	`, facultyID)
	var s Subject
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Credits, &s.Semester, &s.Branch, &s.FacultyID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ReassignFaculty moves a subject's registered assignment to a new holder.
// Clearing any previous holder of the target faculty and setting the new
// holder happen in one transaction, so the sparse uniqueness on faculty_id
// cannot be observed half-applied.
func (r *Repository) ReassignFaculty(ctx context.Context, subjectID, facultyID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The incoming faculty may hold a different subject; release it first.
	if _, err := tx.ExecContext(ctx, `
		UPDATE subjects SET faculty_id = NULL WHERE faculty_id = $1 AND id <> $2
	`, facultyID, subjectID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE subjects SET faculty_id = $2 WHERE id = $1
	`, subjectID, facultyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: subject %s", ErrNotFound, subjectID)
	}
	return tx.Commit()
}
