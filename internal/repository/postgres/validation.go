package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/service/validation"
)

// ValidationRepo implements validation.Repository against PostgreSQL.
type ValidationRepo struct{ db *sql.DB }

// NewValidationRepo creates a Postgres-backed validation repository.
func NewValidationRepo(db *sql.DB) *ValidationRepo { return &ValidationRepo{db: db} }

func (r *ValidationRepo) BatchExists(ctx context.Context, batchID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, batchID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("batch exists: %w", err)
	}
	return exists, nil
}

func (r *ValidationRepo) ListCandidates(ctx context.Context, batchID int64, revalidate bool) ([]domain.EmailRecord, error) {
	query := `
		SELECT id, address, domain, domain_category, status, quality_score,
		       COALESCE(rating, ''), validation_method, consent_granted, suppressed,
		       batch_id, uploaded_by, created_at
		FROM emails
		WHERE batch_id = $1 AND status = 'unverified'
		ORDER BY id
	`
	if revalidate {
		query = `
			SELECT id, address, domain, domain_category, status, quality_score,
			       COALESCE(rating, ''), validation_method, consent_granted, suppressed,
			       batch_id, uploaded_by, created_at
			FROM emails
			WHERE batch_id = $1 AND status IN ('unverified', 'verified')
			ORDER BY id
		`
	}
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var records []domain.EmailRecord
	for rows.Next() {
		var rec domain.EmailRecord
		if err := rows.Scan(
			&rec.ID, &rec.Address, &rec.Domain, &rec.DomainCategory, &rec.Status,
			&rec.QualityScore, &rec.Rating, &rec.ValidationMethod, &rec.ConsentGranted,
			&rec.Suppressed, &rec.BatchID, &rec.UploadedBy, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *ValidationRepo) ApplyOutcome(ctx context.Context, o validation.Outcome) error {
	status := domain.StatusVerified
	if !o.Valid {
		status = domain.StatusRejected
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE emails
		SET status = $2, validation_method = $3, quality_score = $4, rating = $5,
		    rejection_reason = NULLIF($6, ''), validation_error = NULLIF($7, ''),
		    verified_at = $8
		WHERE id = $1
	`, o.EmailID, status, o.Method, o.Score, o.Rating, o.Reason, o.Detail, o.VerifiedAt)
	if err != nil {
		return fmt.Errorf("apply outcome: %w", err)
	}
	return nil
}

func (r *ValidationRepo) UpdateBatchValidation(ctx context.Context, batchID int64, valid, invalid int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batches SET valid_count = $2, invalid_count = $3 WHERE id = $1
	`, batchID, valid, invalid)
	if err != nil {
		return fmt.Errorf("update batch validation: %w", err)
	}
	return nil
}

func (r *ValidationRepo) BumpDomainReputation(ctx context.Context, dom string, valid bool) error {
	validInc, invalidInc := 0, 1
	if valid {
		validInc, invalidInc = 1, 0
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO domain_reputation (domain, total_seen, valid_count, invalid_count, updated_at)
		VALUES ($1, 1, $2, $3, NOW())
		ON CONFLICT (domain) DO UPDATE SET
		    total_seen = domain_reputation.total_seen + 1,
		    valid_count = domain_reputation.valid_count + EXCLUDED.valid_count,
		    invalid_count = domain_reputation.invalid_count + EXCLUDED.invalid_count,
		    updated_at = NOW()
	`, dom, validInc, invalidInc)
	if err != nil {
		return fmt.Errorf("bump domain reputation: %w", err)
	}
	return nil
}

// GetDomainReputation returns a domain's rollup, or nil when never seen.
func (r *ValidationRepo) GetDomainReputation(ctx context.Context, dom string) (*domain.DomainReputation, error) {
	var rep domain.DomainReputation
	err := r.db.QueryRowContext(ctx, `
		SELECT domain, total_seen, valid_count, invalid_count, updated_at
		FROM domain_reputation WHERE domain = $1
	`, dom).Scan(&rep.Domain, &rep.TotalSeen, &rep.ValidCount, &rep.InvalidCount, &rep.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get domain reputation: %w", err)
	}
	rep.Score = rep.ComputeScore()
	return &rep, nil
}
