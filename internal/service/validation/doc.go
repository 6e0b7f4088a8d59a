// Package validation implements the two validation pipelines over admitted
// records.
//
// Standard validation is a policy scan plus an additive quality score from
// a fixed rubric. SMTP validation probes the domain's mail exchanger
// directly and produces a binary score. A record transitions terminally for
// the run it is in, but may be re-validated later by either method.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package validation
