package models

import "errors"

// Error kinds surfaced across the request boundary. Controllers map these
// onto HTTP status codes; anything else is treated as an internal error.
var (
	// ErrInvalidPeriod marks a malformed or unsupported period/frequency string.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrUnknownBenchmark marks a benchmark symbol the market data service
	// does not recognize.
	ErrUnknownBenchmark = errors.New("unknown benchmark")

	// ErrCollaboratorUnavailable marks a failed call to an upstream data
	// source. Callers may retry; the engine never does.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrConfiguration marks malformed configuration, e.g. non-increasing
	// alert thresholds.
	ErrConfiguration = errors.New("invalid configuration")
)
