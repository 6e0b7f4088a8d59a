package admission

import (
	"context"

	"github.com/ignite/listkeeper/internal/domain"
)

// Repository defines the data access contract for the admission pipeline.
type Repository interface {
	// GetBatch returns a batch by ID. Returns ErrBatchNotFound if missing.
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)

	// MarkBatchRunning transitions a batch to running.
	MarkBatchRunning(ctx context.Context, id int64) error

	// FinishBatch records final status and counters in one statement, so
	// the counters always sum consistently with the recorded total.
	FinishBatch(ctx context.Context, id int64, status domain.BatchStatus, total, imported, duplicates, rejected int, errMsg string) error

	// InsertEmail inserts a record if no case-insensitive match exists.
	// Returns the record ID and whether a new row was created; on conflict
	// the existing row's ID is returned with inserted=false.
	InsertEmail(ctx context.Context, rec *domain.EmailRecord) (id int64, inserted bool, err error)

	// FindEmailID returns the ID of an existing record matching the
	// normalized address, or found=false.
	FindEmailID(ctx context.Context, address string) (id int64, found bool, err error)

	// IsSuppressed reports suppression-list membership for an address.
	IsSuppressed(ctx context.Context, address string) (bool, error)

	// IsIgnoredDomain reports ignore-list membership for a domain.
	IsIgnoredDomain(ctx context.Context, dom string) (bool, error)

	// AddRejectedItem records one refused line for the batch.
	AddRejectedItem(ctx context.Context, item *domain.RejectedItem) error

	// AddGuestItem records one shadow outcome row for an isolated-scope batch.
	AddGuestItem(ctx context.Context, item *domain.GuestEmailItem) error
}
