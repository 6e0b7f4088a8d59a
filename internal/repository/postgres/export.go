package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/service/export"
)

// ExportRepo implements export.Repository against PostgreSQL.
type ExportRepo struct{ db *sql.DB }

// NewExportRepo creates a Postgres-backed export repository.
func NewExportRepo(db *sql.DB) *ExportRepo { return &ExportRepo{db: db} }

// ClaimAvailable marks matching available records consumed and returns them.
// The inner select takes row locks with SKIP LOCKED, so two racing exports
// partition the pool instead of double-claiming.
func (r *ExportRepo) ClaimAvailable(ctx context.Context, filter domain.ExportFilter) ([]domain.EmailRecord, error) {
	conds := []string{
		"consumed_at IS NULL",
		"consent_granted",
		"NOT suppressed",
	}
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch filter.StatusClass {
	case domain.ExportClassVerified:
		conds = append(conds, "status = 'verified'")
	case domain.ExportClassSMTPVerified:
		conds = append(conds, "status = 'verified'", "validation_method = 'smtp'")
	case domain.ExportClassUnverified:
		conds = append(conds, "status = 'unverified'")
	case domain.ExportClassAll, "":
		conds = append(conds, "status <> 'rejected'")
	default:
		return nil, fmt.Errorf("claim available: unknown status class %q", filter.StatusClass)
	}
	if len(filter.Ratings) > 0 {
		placeholders := make([]string, len(filter.Ratings))
		for i, rating := range filter.Ratings {
			placeholders[i] = arg(rating)
		}
		conds = append(conds, "rating IN ("+strings.Join(placeholders, ", ")+")")
	}
	// Domain and category allow-lists are one OR-combined condition: a
	// record passes when it matches either list.
	var domainConds []string
	if len(filter.Domains) > 0 {
		placeholders := make([]string, len(filter.Domains))
		for i, d := range filter.Domains {
			placeholders[i] = arg(strings.ToLower(d))
		}
		domainConds = append(domainConds, "domain IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.DomainCategories) > 0 {
		placeholders := make([]string, len(filter.DomainCategories))
		for i, c := range filter.DomainCategories {
			placeholders[i] = arg(c)
		}
		domainConds = append(domainConds, "domain_category IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(domainConds) > 0 {
		conds = append(conds, "("+strings.Join(domainConds, " OR ")+")")
	}
	if filter.BatchID != nil {
		conds = append(conds, "batch_id = "+arg(*filter.BatchID))
	}
	if filter.MinScore != nil {
		conds = append(conds, "quality_score >= "+arg(*filter.MinScore))
	}

	order := "ORDER BY id"
	if filter.Random {
		order = "ORDER BY random()"
	}
	limit := ""
	if filter.Limit > 0 {
		limit = "LIMIT " + arg(filter.Limit)
	}

	query := fmt.Sprintf(`
		UPDATE emails
		SET consumed_at = NOW(), consumption_count = consumption_count + 1
		WHERE id IN (
			SELECT id FROM emails
			WHERE %s
			%s %s
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, address, domain, domain_category, status, quality_score,
		          COALESCE(rating, ''), validation_method, consent_granted,
		          suppressed, consumed_at, consumption_count, batch_id,
		          uploaded_by, created_at
	`, strings.Join(conds, " AND "), order, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim available: %w", err)
	}
	defer rows.Close()

	var records []domain.EmailRecord
	for rows.Next() {
		var rec domain.EmailRecord
		if err := rows.Scan(
			&rec.ID, &rec.Address, &rec.Domain, &rec.DomainCategory, &rec.Status,
			&rec.QualityScore, &rec.Rating, &rec.ValidationMethod, &rec.ConsentGranted,
			&rec.Suppressed, &rec.ConsumedAt, &rec.ConsumptionCount, &rec.BatchID,
			&rec.UploadedBy, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan claimed record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ReleaseClaim undoes a claim whose artifact was never produced. The
// consumption counter moves back with the timestamp so a later claim
// counts from the same baseline.
func (r *ExportRepo) ReleaseClaim(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE emails
		SET consumed_at = NULL, consumption_count = GREATEST(consumption_count - 1, 0)
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (r *ExportRepo) AddDownloadHistory(ctx context.Context, entry *domain.DownloadHistoryEntry) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO download_history (filename, storage_path, record_count, filter_json,
		                              part, part_count, downloaded_times, requested_by, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::jsonb, $5, $6, 0, $7, NOW())
		RETURNING id
	`, entry.Filename, entry.StoragePath, entry.RecordCount, string(entry.FilterJSON),
		entry.Part, entry.PartCount, entry.RequestedBy,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("add download history: %w", err)
	}
	return nil
}

func (r *ExportRepo) GetDownloadHistory(ctx context.Context, id int64) (*domain.DownloadHistoryEntry, error) {
	var e domain.DownloadHistoryEntry
	err := r.db.QueryRowContext(ctx, `
		SELECT id, filename, storage_path, record_count, filter_json, part,
		       part_count, downloaded_times, requested_by, created_at
		FROM download_history WHERE id = $1
	`, id).Scan(
		&e.ID, &e.Filename, &e.StoragePath, &e.RecordCount, &e.FilterJSON,
		&e.Part, &e.PartCount, &e.DownloadedTimes, &e.RequestedBy, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get download history: %w", err)
	}
	return &e, nil
}

func (r *ExportRepo) IncrementDownloadCount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE download_history SET downloaded_times = downloaded_times + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return export.ErrHistoryNotFound
	}
	return nil
}

func (r *ExportRepo) ListDownloadHistory(ctx context.Context, limit, offset int) ([]domain.DownloadHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filename, storage_path, record_count, filter_json, part,
		       part_count, downloaded_times, requested_by, created_at
		FROM download_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list download history: %w", err)
	}
	defer rows.Close()

	var entries []domain.DownloadHistoryEntry
	for rows.Next() {
		var e domain.DownloadHistoryEntry
		if err := rows.Scan(
			&e.ID, &e.Filename, &e.StoragePath, &e.RecordCount, &e.FilterJSON,
			&e.Part, &e.PartCount, &e.DownloadedTimes, &e.RequestedBy, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan download history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *ExportRepo) ListGuestItems(ctx context.Context, batchID int64) ([]domain.GuestEmailItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, address, outcome, matched_email_id,
		       COALESCE(rejection_reason, ''), created_at
		FROM guest_email_items WHERE batch_id = $1 ORDER BY id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list guest items: %w", err)
	}
	defer rows.Close()

	var items []domain.GuestEmailItem
	for rows.Next() {
		var it domain.GuestEmailItem
		if err := rows.Scan(
			&it.ID, &it.BatchID, &it.Address, &it.Outcome,
			&it.MatchedEmailID, &it.RejectionReason, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan guest item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *ExportRepo) AddGuestDownload(ctx context.Context, entry *domain.GuestDownloadHistory) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO guest_download_history (batch_id, filename, storage_path, record_count, downloaded_times, created_at)
		VALUES ($1, $2, $3, $4, 0, NOW())
		RETURNING id
	`, entry.BatchID, entry.Filename, entry.StoragePath, entry.RecordCount).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("add guest download: %w", err)
	}
	return nil
}

func (r *ExportRepo) GetGuestDownload(ctx context.Context, id int64) (*domain.GuestDownloadHistory, error) {
	var e domain.GuestDownloadHistory
	err := r.db.QueryRowContext(ctx, `
		SELECT id, batch_id, filename, storage_path, record_count, downloaded_times, created_at
		FROM guest_download_history WHERE id = $1
	`, id).Scan(&e.ID, &e.BatchID, &e.Filename, &e.StoragePath, &e.RecordCount, &e.DownloadedTimes, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get guest download: %w", err)
	}
	return &e, nil
}

func (r *ExportRepo) IncrementGuestDownloadCount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE guest_download_history SET downloaded_times = downloaded_times + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment guest download count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return export.ErrHistoryNotFound
	}
	return nil
}

func (r *ExportRepo) ListRejectedItems(ctx context.Context, batchID int64) ([]domain.RejectedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, raw_line, address, reason, detail, created_at
		FROM rejected_items WHERE batch_id = $1 ORDER BY id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list rejected items: %w", err)
	}
	defer rows.Close()

	var items []domain.RejectedItem
	for rows.Next() {
		var it domain.RejectedItem
		if err := rows.Scan(&it.ID, &it.BatchID, &it.RawLine, &it.Address, &it.Reason, &it.Detail, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rejected item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *ExportRepo) SaveTemplate(ctx context.Context, tpl *domain.ExportTemplate) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO export_templates (name, filter_json, created_by, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
		    filter_json = EXCLUDED.filter_json,
		    updated_at = NOW()
		RETURNING id
	`, tpl.Name, string(tpl.FilterJSON), tpl.CreatedBy).Scan(&tpl.ID)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (r *ExportRepo) GetTemplate(ctx context.Context, name string) (*domain.ExportTemplate, error) {
	var tpl domain.ExportTemplate
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, filter_json, created_by, created_at, updated_at
		FROM export_templates WHERE name = $1
	`, name).Scan(&tpl.ID, &tpl.Name, &tpl.FilterJSON, &tpl.CreatedBy, &tpl.CreatedAt, &tpl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &tpl, nil
}

func (r *ExportRepo) ListTemplates(ctx context.Context) ([]domain.ExportTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, filter_json, created_by, created_at, updated_at
		FROM export_templates ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var tpls []domain.ExportTemplate
	for rows.Next() {
		var tpl domain.ExportTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.FilterJSON, &tpl.CreatedBy, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		tpls = append(tpls, tpl)
	}
	return tpls, rows.Err()
}

func (r *ExportRepo) DeleteTemplate(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM export_templates WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return export.ErrTemplateNotFound
	}
	return nil
}
