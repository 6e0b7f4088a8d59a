package domain

import "time"

// EmailStatus tracks where a record sits in its lifecycle.
type EmailStatus string

const (
	StatusUnverified EmailStatus = "unverified"
	StatusVerified   EmailStatus = "verified"
	StatusRejected   EmailStatus = "rejected"
	StatusSuppressed EmailStatus = "suppressed"
)

// ValidationMethod records which pipeline last validated a record.
type ValidationMethod string

const (
	MethodNone     ValidationMethod = "none"
	MethodStandard ValidationMethod = "standard"
	MethodSMTP     ValidationMethod = "smtp"
)

// Rating is the letter band derived from a quality score. It is never set
// independently of the score.
type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
)

// Fixed score bands: >=80 A, >=60 B, >=40 C, else D.
func RatingForScore(score int) Rating {
	switch {
	case score >= 80:
		return RatingA
	case score >= 60:
		return RatingB
	case score >= 40:
		return RatingC
	default:
		return RatingD
	}
}

// RejectionReason is the closed set of reasons a line or record can be
// rejected. Exactly one applies per rejection; reasons are never merged
// into one another in reporting.
type RejectionReason string

const (
	ReasonCCTLDPolicy   RejectionReason = "cctld_policy"
	ReasonPolicySuffix  RejectionReason = "policy_suffix"
	ReasonIgnoreDomain  RejectionReason = "ignore_domain"
	ReasonSuppressed    RejectionReason = "suppressed"
	ReasonDuplicate     RejectionReason = "duplicate"
	ReasonInvalidSyntax RejectionReason = "invalid_syntax"
	ReasonNoMXRecord    RejectionReason = "no_mx_record"
	ReasonRoleBased     RejectionReason = "role_based"
	ReasonDisposable    RejectionReason = "disposable"
	ReasonTypoTLD       RejectionReason = "typo_tld"
	ReasonFakeLocal     RejectionReason = "fake_local"
)

// EmailRecord is one globally-unique normalized address in the corpus.
// Uniqueness is case-insensitive and enforced at admission time.
type EmailRecord struct {
	ID               int64            `json:"id" db:"id"`
	Address          string           `json:"address" db:"address"`
	Domain           string           `json:"domain" db:"domain"`
	DomainCategory   string           `json:"domain_category" db:"domain_category"`
	Status           EmailStatus      `json:"status" db:"status"`
	QualityScore     *int             `json:"quality_score,omitempty" db:"quality_score"`
	Rating           Rating           `json:"rating,omitempty" db:"rating"`
	ValidationMethod ValidationMethod `json:"validation_method" db:"validation_method"`
	ConsentGranted   bool             `json:"consent_granted" db:"consent_granted"`
	Suppressed       bool             `json:"suppressed" db:"suppressed"`
	ConsumedAt       *time.Time       `json:"consumed_at,omitempty" db:"consumed_at"`
	ConsumptionCount int              `json:"consumption_count" db:"consumption_count"`
	RejectionReason  RejectionReason  `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ValidationError  string           `json:"validation_error,omitempty" db:"validation_error"`
	BatchID          int64            `json:"batch_id" db:"batch_id"`
	UploadedBy       int64            `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	VerifiedAt       *time.Time       `json:"verified_at,omitempty" db:"verified_at"`
}

// Available reports whether the record can still be claimed by a fresh export.
func (e *EmailRecord) Available() bool {
	return e.ConsumedAt == nil && e.ConsentGranted && !e.Suppressed
}
