package domain

import "time"

// JobType names the long-running work a background worker can run.
type JobType string

const (
	JobImport   JobType = "import"
	JobValidate JobType = "validate"
	JobExport   JobType = "export"
)

// JobStatus is the lifecycle of a background job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one unit of background work claimed and executed by a worker.
// Payload carries the type-specific parameters as JSON.
type Job struct {
	ID              int64      `json:"id" db:"id"`
	Type            JobType    `json:"type" db:"type"`
	Status          JobStatus  `json:"status" db:"status"`
	Payload         []byte     `json:"payload,omitempty" db:"payload"`
	BatchID         *int64     `json:"batch_id,omitempty" db:"batch_id"`
	CancelRequested bool       `json:"cancel_requested" db:"cancel_requested"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Progress is the externally visible state of a running job.
type Progress struct {
	JobID     int64     `json:"job_id"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
