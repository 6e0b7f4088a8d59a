package admission

import "errors"

// Sentinel errors for the admission service layer.
var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrCancelled     = errors.New("admission run cancelled")
)
