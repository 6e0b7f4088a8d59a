// Package export implements the download state machine.
//
// A fresh export atomically claims currently-available records, writes
// them to a durable artifact, and marks them consumed as one logical
// unit. A record is exported as available at most once; re-downloads
// serve the original artifact again and touch nothing but a counter.
// Isolated-scope batches export from their own shadow rows and never
// claim shared records.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package export
