package validation

import (
	"context"
	"time"

	"github.com/ignite/listkeeper/internal/domain"
)

// Repository defines the data access contract for the validation pipelines.
type Repository interface {
	// BatchExists reports whether the batch is known at all.
	BatchExists(ctx context.Context, batchID int64) (bool, error)

	// ListCandidates returns the records of a batch eligible for a
	// validation run: unverified records, plus previously
	// standard-validated records when revalidate is set.
	ListCandidates(ctx context.Context, batchID int64, revalidate bool) ([]domain.EmailRecord, error)

	// ApplyOutcome writes one record's terminal state for this run.
	ApplyOutcome(ctx context.Context, o Outcome) error

	// UpdateBatchValidation records the batch's valid/invalid counters.
	UpdateBatchValidation(ctx context.Context, batchID int64, valid, invalid int) error

	// BumpDomainReputation folds one outcome into the per-domain rollup.
	BumpDomainReputation(ctx context.Context, dom string, valid bool) error
}

// Outcome is a record's terminal state for one validation run.
type Outcome struct {
	EmailID    int64
	Valid      bool
	Method     domain.ValidationMethod
	Score      int
	Rating     domain.Rating
	Reason     domain.RejectionReason
	Detail     string
	VerifiedAt *time.Time
}
