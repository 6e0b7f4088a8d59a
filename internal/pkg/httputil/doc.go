// Package httputil provides shared HTTP response/request utilities for the
// list management API handlers.
//
// Batch, validation, and export handlers should use these helpers instead of
// writing raw http.ResponseWriter calls. This keeps JSON formatting, error
// envelopes, and logging consistent across all endpoints.
package httputil
