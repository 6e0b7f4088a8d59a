package domain

import "time"

// GuestOutcome is the per-line admission outcome recorded for an
// isolated-scope upload. Unlike the global pipeline, duplicates are
// kept as rows so the uploader sees exactly what matched.
type GuestOutcome string

const (
	GuestInserted  GuestOutcome = "inserted"
	GuestDuplicate GuestOutcome = "duplicate"
	GuestRejected  GuestOutcome = "rejected"
)

// GuestEmailItem is one admitted-or-not line in an isolated-scope batch.
// MatchedEmailID links a duplicate back to the global record it collided
// with; it is nil for inserted and rejected rows.
type GuestEmailItem struct {
	ID              int64           `json:"id" db:"id"`
	BatchID         int64           `json:"batch_id" db:"batch_id"`
	Address         string          `json:"address" db:"address"`
	Outcome         GuestOutcome    `json:"outcome" db:"outcome"`
	MatchedEmailID  *int64          `json:"matched_email_id,omitempty" db:"matched_email_id"`
	RejectionReason RejectionReason `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// GuestDownloadHistory tracks artifacts produced from an isolated-scope
// batch. Those exports read only the batch's own items and never touch
// global consumption state.
type GuestDownloadHistory struct {
	ID              int64     `json:"id" db:"id"`
	BatchID         int64     `json:"batch_id" db:"batch_id"`
	Filename        string    `json:"filename" db:"filename"`
	StoragePath     string    `json:"storage_path" db:"storage_path"`
	RecordCount     int       `json:"record_count" db:"record_count"`
	DownloadedTimes int       `json:"downloaded_times" db:"downloaded_times"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
