package store

import "context"

// Schema statements are idempotent so startup can run them unconditionally.
// The unique index on (subject_id, date, period) is the authority for the
// one-session-per-key invariant; the nullable-unique faculty_id column is
// the sparse one-subject-per-faculty assignment.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('student','faculty','admin')),
		roll_no TEXT,
		semester INT,
		branch TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		credits INT NOT NULL DEFAULT 0,
		semester INT NOT NULL,
		branch TEXT NOT NULL,
		faculty_id TEXT UNIQUE REFERENCES users (id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id UUID PRIMARY KEY,
		subject_id TEXT NOT NULL REFERENCES subjects (id),
		date DATE NOT NULL,
		period INT NOT NULL CHECK (period BETWEEN 1 AND 6),
		faculty_id TEXT NOT NULL,
		semester INT NOT NULL,
		branch TEXT NOT NULL,
		records JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (subject_id, date, period)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_subject ON attendance_sessions (subject_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_records ON attendance_sessions USING GIN (records jsonb_path_ops)`,
}

// EnsureSchema creates tables and indexes when missing.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
