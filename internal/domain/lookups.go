package domain

import "time"

// IgnoreDomain is one operator-managed domain excluded at admission time.
// Matching is exact on the normalized domain.
type IgnoreDomain struct {
	ID        int64     `json:"id" db:"id"`
	Domain    string    `json:"domain" db:"domain"`
	Note      string    `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SuppressionEntry is one address that must never be admitted or exported.
type SuppressionEntry struct {
	ID        int64     `json:"id" db:"id"`
	Address   string    `json:"address" db:"address"`
	Source    string    `json:"source,omitempty" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
