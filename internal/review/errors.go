package review

import "errors"

var (
	// ErrInvalidInput is a caller error: missing reference or unknown source.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClassificationRejected means the estimate was UNKNOWN or AMBIGUOUS.
	// The *classify.RejectionError in the chain carries the verdict.
	ErrClassificationRejected = errors.New("classification rejected")

	// ErrExtractionFailed covers model call failures and unparseable answers.
	// Callers may retry.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrStorageFailed covers document and database I/O failures.
	ErrStorageFailed = errors.New("storage failed")

	// ErrNotFound is returned for unknown review IDs.
	ErrNotFound = errors.New("review not found")
)
