package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/listkeeper/internal/domain"
)

// ErrNotFound is returned by lookup-table operations targeting a missing row.
var ErrNotFound = errors.New("not found")

// LookupRepo manages the operator-maintained ignore-domain and
// suppression tables.
type LookupRepo struct{ db *sql.DB }

// NewLookupRepo creates a Postgres-backed lookup repository.
func NewLookupRepo(db *sql.DB) *LookupRepo { return &LookupRepo{db: db} }

// AddIgnoreDomain inserts a domain into the ignore list, setting d.ID.
// Re-adding an existing domain updates its note.
func (r *LookupRepo) AddIgnoreDomain(ctx context.Context, d *domain.IgnoreDomain) error {
	d.Domain = strings.ToLower(strings.TrimSpace(d.Domain))
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ignore_domains (domain, note, created_at)
		VALUES ($1, NULLIF($2, ''), NOW())
		ON CONFLICT (domain) DO UPDATE SET note = NULLIF(EXCLUDED.note, '')
		RETURNING id, created_at
	`, d.Domain, d.Note).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("add ignore domain: %w", err)
	}
	return nil
}

// RemoveIgnoreDomain deletes a domain from the ignore list.
func (r *LookupRepo) RemoveIgnoreDomain(ctx context.Context, dom string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ignore_domains WHERE domain = lower($1)`, strings.TrimSpace(dom))
	if err != nil {
		return fmt.Errorf("remove ignore domain: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIgnoreDomains returns the ignore list sorted by domain.
func (r *LookupRepo) ListIgnoreDomains(ctx context.Context) ([]domain.IgnoreDomain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, domain, COALESCE(note, ''), created_at
		FROM ignore_domains ORDER BY domain
	`)
	if err != nil {
		return nil, fmt.Errorf("list ignore domains: %w", err)
	}
	defer rows.Close()

	var out []domain.IgnoreDomain
	for rows.Next() {
		var d domain.IgnoreDomain
		if err := rows.Scan(&d.ID, &d.Domain, &d.Note, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ignore domain: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddSuppression inserts one address into the suppression list, setting
// e.ID. Duplicate additions are no-ops that return the existing row.
func (r *LookupRepo) AddSuppression(ctx context.Context, e *domain.SuppressionEntry) error {
	e.Address = strings.ToLower(strings.TrimSpace(e.Address))
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO suppression_entries (address, source, created_at)
		VALUES ($1, NULLIF($2, ''), NOW())
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id, created_at
	`, e.Address, e.Source).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("add suppression: %w", err)
	}
	return nil
}

// RemoveSuppression deletes an address from the suppression list.
func (r *LookupRepo) RemoveSuppression(ctx context.Context, address string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppression_entries WHERE address = lower($1)`, strings.TrimSpace(address))
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsSuppressed reports suppression-list membership for an address.
func (r *LookupRepo) IsSuppressed(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppression_entries WHERE address = lower($1))`,
		strings.TrimSpace(address),
	).Scan(&exists)
	return exists, err
}

// ListSuppressions returns a page of the suppression list, newest first.
func (r *LookupRepo) ListSuppressions(ctx context.Context, limit, offset int) ([]domain.SuppressionEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, address, COALESCE(source, ''), created_at
		FROM suppression_entries
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.ID, &e.Address, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSuppressions returns the suppression list size.
func (r *LookupRepo) CountSuppressions(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppression_entries`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count suppressions: %w", err)
	}
	return n, nil
}
