package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/service/admission"
)

// AdmissionRepo implements admission.Repository against PostgreSQL.
type AdmissionRepo struct{ db *sql.DB }

// NewAdmissionRepo creates a Postgres-backed admission repository.
func NewAdmissionRepo(db *sql.DB) *AdmissionRepo { return &AdmissionRepo{db: db} }

func (r *AdmissionRepo) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
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

func (r *AdmissionRepo) MarkBatchRunning(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE batches SET status = 'running' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark batch running: %w", err)
	}
	return nil
}

func (r *AdmissionRepo) FinishBatch(ctx context.Context, id int64, status domain.BatchStatus, total, imported, duplicates, rejected int, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batches
		SET status = $2, total_lines = $3, imported_count = $4,
		    duplicate_count = $5, rejected_count = $6,
		    error_message = NULLIF($7, ''), completed_at = NOW()
		WHERE id = $1
	`, id, status, total, imported, duplicates, rejected, errMsg)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	return nil
}

// InsertEmail relies on the unique index over lower(address): the insert
// and the duplicate check are one atomic statement, so racing admission
// runs can never create two case-variant rows.
func (r *AdmissionRepo) InsertEmail(ctx context.Context, rec *domain.EmailRecord) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO emails (address, domain, domain_category, status, validation_method,
		                    consent_granted, batch_id, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (lower(address)) DO NOTHING
		RETURNING id
	`, rec.Address, rec.Domain, rec.DomainCategory, rec.Status, rec.ValidationMethod,
		rec.ConsentGranted, rec.BatchID, rec.UploadedBy,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict path: fetch the existing row's ID.
		existing, found, ferr := r.FindEmailID(ctx, rec.Address)
		if ferr != nil {
			return 0, false, ferr
		}
		if !found {
			return 0, false, fmt.Errorf("insert email: conflict but no existing row for %s", rec.Address)
		}
		return existing, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert email: %w", err)
	}
	rec.ID = id
	return id, true, nil
}

func (r *AdmissionRepo) FindEmailID(ctx context.Context, address string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM emails WHERE lower(address) = lower($1)`, address,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find email: %w", err)
	}
	return id, true, nil
}

func (r *AdmissionRepo) IsSuppressed(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppression_entries WHERE lower(address) = lower($1))`,
		address,
	).Scan(&exists)
	return exists, err
}

func (r *AdmissionRepo) IsIgnoredDomain(ctx context.Context, dom string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ignore_domains WHERE lower(domain) = lower($1))`,
		dom,
	).Scan(&exists)
	return exists, err
}

func (r *AdmissionRepo) AddRejectedItem(ctx context.Context, item *domain.RejectedItem) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO rejected_items (batch_id, raw_line, address, reason, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`, item.BatchID, item.RawLine, item.Address, item.Reason, item.Detail).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("add rejected item: %w", err)
	}
	return nil
}

func (r *AdmissionRepo) AddGuestItem(ctx context.Context, item *domain.GuestEmailItem) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO guest_email_items (batch_id, address, outcome, matched_email_id, rejection_reason, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())
		RETURNING id
	`, item.BatchID, item.Address, item.Outcome, item.MatchedEmailID, item.RejectionReason).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("add guest item: %w", err)
	}
	return nil
}
