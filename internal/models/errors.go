package models

// ErrorType identifies the category of a per-file failure.
type ErrorType string

const (
	// Fetch phase
	ErrHTTPStatus      ErrorType = "http_status"
	ErrTransportFailed ErrorType = "transport_failed"
	ErrWriteFailed     ErrorType = "write_failed"

	// Extract phase
	ErrWrapperMissing ErrorType = "wrapper_missing"
	ErrArchiveInvalid ErrorType = "archive_invalid"
	ErrCopyFailed     ErrorType = "copy_failed"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// ItemError describes why a single fetch target or download entry failed.
type ItemError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}
