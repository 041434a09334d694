package influxline

import (
	"errors"
	"fmt"
)

// Sentinel errors for encoding and dispatch operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxline.ErrNoFields) {
//	    // Point was built without any field
//	}
var (
	// ErrNoMeasurement indicates a point has an empty measurement name.
	ErrNoMeasurement = errors.New("influxline: point has no measurement")

	// ErrNoFields indicates a point has no fields. Line protocol requires
	// at least one field per point.
	ErrNoFields = errors.New("influxline: point has no fields")

	// ErrTransport indicates the exchange failed before a server response
	// arrived (connection refused, timeout, socket error).
	ErrTransport = errors.New("influxline: transport failed")

	// ErrDecoding indicates a response body could not be decoded.
	ErrDecoding = errors.New("influxline: decoding response failed")
)

// ServerError is returned when the database reports a failure, either as a
// non-2xx HTTP status or as an error embedded in a query response envelope.
// Message carries the server's text verbatim.
type ServerError struct {
	// StatusCode is the HTTP status of the response that carried the error.
	StatusCode int
	// Message is the server's error text, unaltered.
	Message string
}

func (e *ServerError) Error() string {
	if e.StatusCode == 0 {
		return "influxline: server error: " + e.Message
	}
	return fmt.Sprintf("influxline: server error (HTTP %d): %s", e.StatusCode, e.Message)
}
