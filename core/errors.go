package core

import "errors"

var (
	// ErrServiceUnavailable means a remote service could not be reached. Fetches retry on it.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInvalidMeasurementSet means the observations cannot produce a utility:
	// the set is empty or its weights do not sum to a positive number.
	ErrInvalidMeasurementSet = errors.New("invalid measurement set")

	// ErrDegenerateSpan means a metric's bounds have zero width.
	ErrDegenerateSpan = errors.New("degenerate normalization span")
)
