// Package admission implements the import pipeline that turns raw uploaded
// lines into EmailRecords.
//
// Every line lands in exactly one bucket: admitted, duplicate, or rejected
// with a single reason. The per-line check order is fixed policy: syntax,
// TLD/suffix rules, ignore list, suppression list, in-batch duplicate,
// global duplicate, insert. First failing check wins.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package admission
