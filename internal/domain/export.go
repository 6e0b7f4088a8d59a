package domain

import "time"

// Status classes an export request can target. SMTP-verified-only narrows
// "verified" to records whose last validation used the SMTP probe.
const (
	ExportClassAll          = "all"
	ExportClassVerified     = "verified"
	ExportClassSMTPVerified = "smtp_verified"
	ExportClassUnverified   = "unverified"
)

// ExportFilter selects which available records an export may claim.
// Domains and DomainCategories are allow-lists combined with OR: a record
// passes when it matches either list, and both empty means no domain
// restriction. A zero Limit means no cap. Random selection trades speed
// for an unbiased sample.
type ExportFilter struct {
	StatusClass      string   `json:"status_class"`
	Ratings          []Rating `json:"ratings,omitempty"`
	Domains          []string `json:"domains,omitempty"`
	DomainCategories []string `json:"domain_categories,omitempty"`
	BatchID          *int64   `json:"batch_id,omitempty"`
	MinScore         *int     `json:"min_score,omitempty"`
	Limit            int      `json:"limit"`
	Random           bool     `json:"random"`
	PartSize         int      `json:"part_size,omitempty"`
}

// DownloadHistoryEntry records one produced export artifact. Re-downloads
// serve the same artifact and bump DownloadedTimes; they never re-claim.
type DownloadHistoryEntry struct {
	ID              int64     `json:"id" db:"id"`
	Filename        string    `json:"filename" db:"filename"`
	StoragePath     string    `json:"storage_path" db:"storage_path"`
	RecordCount     int       `json:"record_count" db:"record_count"`
	FilterJSON      []byte    `json:"filter,omitempty" db:"filter_json"`
	Part            int       `json:"part" db:"part"`
	PartCount       int       `json:"part_count" db:"part_count"`
	DownloadedTimes int       `json:"downloaded_times" db:"downloaded_times"`
	RequestedBy     int64     `json:"requested_by" db:"requested_by"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// ExportTemplate is a saved, named export filter.
type ExportTemplate struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	FilterJSON []byte    `json:"filter" db:"filter_json"`
	CreatedBy  int64     `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// DomainReputation is the per-domain rollup of validation outcomes.
type DomainReputation struct {
	Domain       string    `json:"domain" db:"domain"`
	TotalSeen    int       `json:"total_seen" db:"total_seen"`
	ValidCount   int       `json:"valid_count" db:"valid_count"`
	InvalidCount int       `json:"invalid_count" db:"invalid_count"`
	Score        int       `json:"score" db:"score"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ComputeScore derives the 0-100 reputation score from the counters.
// Domains with no validated records score a neutral 50.
func (r *DomainReputation) ComputeScore() int {
	checked := r.ValidCount + r.InvalidCount
	if checked == 0 {
		return 50
	}
	return r.ValidCount * 100 / checked
}
