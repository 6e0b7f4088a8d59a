package domain

import "time"

// BatchStatus is the lifecycle of an upload batch.
type BatchStatus string

const (
	BatchQueued  BatchStatus = "queued"
	BatchRunning BatchStatus = "running"
	BatchSuccess BatchStatus = "success"
	BatchFailed  BatchStatus = "failed"
)

// Batch is one uploaded source file and its admission/validation counters.
// Invariant: TotalLines == ImportedCount + DuplicateCount + RejectedCount
// once admission finishes.
type Batch struct {
	ID             int64       `json:"id" db:"id"`
	Filename       string      `json:"filename" db:"filename"`
	Status         BatchStatus `json:"status" db:"status"`
	TotalLines     int         `json:"total_lines" db:"total_lines"`
	ImportedCount  int         `json:"imported_count" db:"imported_count"`
	DuplicateCount int         `json:"duplicate_count" db:"duplicate_count"`
	RejectedCount  int         `json:"rejected_count" db:"rejected_count"`
	ValidCount     int         `json:"valid_count" db:"valid_count"`
	InvalidCount   int         `json:"invalid_count" db:"invalid_count"`
	ErrorMessage   string      `json:"error_message,omitempty" db:"error_message"`
	IsolatedScope  bool        `json:"isolated_scope" db:"isolated_scope"`
	UploadedBy     int64       `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// BatchStats is the per-batch summary served to listings.
type BatchStats struct {
	Batch
	PendingValidation int            `json:"pending_validation"`
	RatingCounts      map[Rating]int `json:"rating_counts,omitempty"`
}

// RejectedItem records one line that admission or validation refused,
// with the raw input preserved for the rejected-items download.
type RejectedItem struct {
	ID        int64           `json:"id" db:"id"`
	BatchID   int64           `json:"batch_id" db:"batch_id"`
	RawLine   string          `json:"raw_line" db:"raw_line"`
	Address   string          `json:"address" db:"address"`
	Reason    RejectionReason `json:"reason" db:"reason"`
	Detail    string          `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
