package export

import "errors"

// Sentinel errors for the export service layer.
var (
	ErrHistoryNotFound  = errors.New("download history entry not found")
	ErrTemplateNotFound = errors.New("export template not found")
	ErrNoRecords        = errors.New("no records matched the export filter")
)
