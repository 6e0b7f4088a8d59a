package validation

import "errors"

// Sentinel errors for the validation service layer.
var (
	ErrBatchNotFound  = errors.New("batch not found")
	ErrCancelled      = errors.New("validation run cancelled")
	ErrAlreadyRunning = errors.New("validation already running for batch")
)
