// Package jobs keeps a local history of submitted asynchronous query
// jobs in a SQLite database under the Data Lab home directory. The
// server retains job records independently; this ledger only lets the
// user find job ids they submitted from this machine and see the last
// status the client observed.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// ErrNotFound means the ledger has no row for the requested job id.
var ErrNotFound = errors.New("jobs: job not found")

// Record is one submitted async job as remembered locally.
type Record struct {
	JobID       string
	Query       string
	Language    string
	Format      string
	Output      string
	Status      string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Ledger wraps the jobs database. Sole-writer: the connection pool is
// capped at one, matching the strictly synchronous client.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger database at path and
// applies pending schema migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jobs: opening ledger %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts a newly submitted job. Resubmitting the same job id is
// a programmer error surfaced by the unique constraint.
func (l *Ledger) Record(ctx context.Context, r Record) error {
	now := time.Now().Unix()

	submitted := now
	if !r.SubmittedAt.IsZero() {
		submitted = r.SubmittedAt.Unix()
	}

	status := r.Status
	if status == "" {
		status = "QUEUED"
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, query_text, language, format, output, status, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Query, r.Language, r.Format, r.Output, status, submitted, now)
	if err != nil {
		return fmt.Errorf("jobs: recording job %s: %w", r.JobID, err)
	}

	l.logger.Debug("job recorded", slog.String("job_id", r.JobID))

	return nil
}

// UpdateStatus stores the latest observed status for a job. Updating a
// job the ledger never saw is not an error; jobs submitted elsewhere are
// simply not tracked.
func (l *Ledger) UpdateStatus(ctx context.Context, jobID, status string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE job_id = ?`,
		status, time.Now().Unix(), jobID)
	if err != nil {
		return fmt.Errorf("jobs: updating job %s: %w", jobID, err)
	}

	return nil
}

// Get returns the ledger row for one job id.
func (l *Ledger) Get(ctx context.Context, jobID string) (*Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT job_id, query_text, language, format, output, status, submitted_at, updated_at
		 FROM jobs WHERE job_id = ?`, jobID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("jobs: %s: %w", jobID, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("jobs: loading job %s: %w", jobID, err)
	}

	return rec, nil
}

// List returns the most recently submitted jobs, newest first, up to
// limit (0 means no limit).
func (l *Ledger) List(ctx context.Context, limit int) ([]Record, error) {
	q := `SELECT job_id, query_text, language, format, output, status, submitted_at, updated_at
	      FROM jobs ORDER BY submitted_at DESC, id DESC`

	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: listing jobs: %w", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobs: scanning job row: %w", scanErr)
		}

		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: listing jobs: %w", err)
	}

	return records, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec                  Record
		submitted, updatedAt int64
	)

	err := s.Scan(&rec.JobID, &rec.Query, &rec.Language, &rec.Format,
		&rec.Output, &rec.Status, &submitted, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.SubmittedAt = time.Unix(submitted, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	return &rec, nil
}
