package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/listkeeper/internal/domain"
)

// ErrJobNotFound is returned when a job ID does not exist.
var ErrJobNotFound = errors.New("job not found")

// JobRepo manages the background job queue.
type JobRepo struct{ db *sql.DB }

// NewJobRepo creates a Postgres-backed job repository.
func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

// Enqueue inserts a pending job and sets j.ID.
func (r *JobRepo) Enqueue(ctx context.Context, j *domain.Job) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO jobs (type, status, payload, batch_id, created_at)
		VALUES ($1, 'pending', NULLIF($2, '')::jsonb, $3, NOW())
		RETURNING id, created_at
	`, j.Type, string(j.Payload), j.BatchID).Scan(&j.ID, &j.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	j.Status = domain.JobPending
	return nil
}

// ClaimNext atomically claims the oldest pending job and marks it
// running. SKIP LOCKED keeps concurrent workers from double-claiming.
// Returns nil when the queue is empty.
func (r *JobRepo) ClaimNext(ctx context.Context) (*domain.Job, error) {
	var j domain.Job
	err := r.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'running', started_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type, status, payload, batch_id, cancel_requested,
		          COALESCE(error_message, ''), created_at, started_at, completed_at
	`).Scan(
		&j.ID, &j.Type, &j.Status, &j.Payload, &j.BatchID, &j.CancelRequested,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return &j, nil
}

// Get returns a job by ID.
func (r *JobRepo) Get(ctx context.Context, id int64) (*domain.Job, error) {
	var j domain.Job
	err := r.db.QueryRowContext(ctx, `
		SELECT id, type, status, payload, batch_id, cancel_requested,
		       COALESCE(error_message, ''), created_at, started_at, completed_at
		FROM jobs WHERE id = $1
	`, id).Scan(
		&j.ID, &j.Type, &j.Status, &j.Payload, &j.BatchID, &j.CancelRequested,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// Finish records a job's terminal status.
func (r *JobRepo) Finish(ctx context.Context, id int64, status domain.JobStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, error_message = NULLIF($3, ''), completed_at = NOW()
		WHERE id = $1
	`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RequestCancel flags a pending or running job for cooperative
// cancellation. Terminal jobs are left untouched.
func (r *JobRepo) RequestCancel(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = TRUE
		WHERE id = $1 AND status IN ('pending', 'running')
	`, id)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List returns jobs newest first.
func (r *JobRepo) List(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, payload, batch_id, cancel_requested,
		       COALESCE(error_message, ''), created_at, started_at, completed_at
		FROM jobs
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(
			&j.ID, &j.Type, &j.Status, &j.Payload, &j.BatchID, &j.CancelRequested,
			&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
