package relay

import "errors"

// Domain-specific errors for relay operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidMessage is returned when a telemetry payload cannot be
	// decoded into a point.
	ErrInvalidMessage = errors.New("relay: invalid telemetry message")

	// ErrWriteFailed is returned when a batch could not be delivered.
	ErrWriteFailed = errors.New("relay: write failed")
)
