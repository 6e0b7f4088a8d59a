package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/service/admission"
)

// BatchRepo serves batch creation, listings and per-batch stats.
type BatchRepo struct{ db *sql.DB }

// NewBatchRepo creates a Postgres-backed batch repository.
func NewBatchRepo(db *sql.DB) *BatchRepo { return &BatchRepo{db: db} }

// Create inserts a queued batch for an uploaded file and sets b.ID.
func (r *BatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO batches (filename, status, isolated_scope, uploaded_by, created_at)
		VALUES ($1, 'queued', $2, $3, NOW())
		RETURNING id, created_at
	`, b.Filename, b.IsolatedScope, b.UploadedBy).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	b.Status = domain.BatchQueued
	return nil
}

// Get returns one batch by ID.
func (r *BatchRepo) Get(ctx context.Context, id int64) (*domain.Batch, error) {
	var b domain.Batch
	err := r.db.QueryRowContext(ctx, `
		SELECT id, filename, status, total_lines, imported_count, duplicate_count,
		       rejected_count, valid_count, invalid_count, COALESCE(error_message, ''),
		       isolated_scope, uploaded_by, created_at, completed_at
		FROM batches WHERE id = $1
	`, id).Scan(
		&b.ID, &b.Filename, &b.Status, &b.TotalLines, &b.ImportedCount,
		&b.DuplicateCount, &b.RejectedCount, &b.ValidCount, &b.InvalidCount,
		&b.ErrorMessage, &b.IsolatedScope, &b.UploadedBy, &b.CreatedAt, &b.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, admission.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// List returns batches newest first.
func (r *BatchRepo) List(ctx context.Context, limit, offset int) ([]domain.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filename, status, total_lines, imported_count, duplicate_count,
		       rejected_count, valid_count, invalid_count, COALESCE(error_message, ''),
		       isolated_scope, uploaded_by, created_at, completed_at
		FROM batches
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(
			&b.ID, &b.Filename, &b.Status, &b.TotalLines, &b.ImportedCount,
			&b.DuplicateCount, &b.RejectedCount, &b.ValidCount, &b.InvalidCount,
			&b.ErrorMessage, &b.IsolatedScope, &b.UploadedBy, &b.CreatedAt, &b.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// Stats returns a batch with its pending-validation count and the
// distribution of ratings across its validated records.
func (r *BatchRepo) Stats(ctx context.Context, id int64) (*domain.BatchStats, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := &domain.BatchStats{Batch: *b, RatingCounts: make(map[domain.Rating]int)}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM emails WHERE batch_id = $1 AND status = 'unverified'
	`, id).Scan(&stats.PendingValidation)
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT rating, COUNT(*) FROM emails
		WHERE batch_id = $1 AND rating IS NOT NULL
		GROUP BY rating
	`, id)
	if err != nil {
		return nil, fmt.Errorf("rating counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rating domain.Rating
		var n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("scan rating count: %w", err)
		}
		stats.RatingCounts[rating] = n
	}
	return stats, rows.Err()
}
