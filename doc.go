// Package influxline is a client for InfluxDB 1.x compatible time-series
// databases.
//
// It encodes points as line protocol, dispatches writes and queries over
// HTTP, decodes the JSON response envelope into typed results, and can fan
// writes out to UDP listeners.
//
// # Purpose
//
// This package covers the full v1 wire surface:
//   - Point construction and line protocol encoding with exact escaping
//   - /write dispatch with precision, retention policy and gzip support
//   - /query dispatch with typed result decoding and chunked streaming
//   - Management statements (databases, users, retention policies)
//   - UDP datagram fan-out for fire-and-forget ingestion
//
// # Usage
//
//	client, err := influxline.NewClient(influxline.Config{
//	    URL:      "http://localhost:8086",
//	    Database: "telemetry",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p := influxline.NewPoint("cpu").
//	    AddTag("host", influxline.String("web-01")).
//	    AddField("load", influxline.Float(0.92))
//
//	if err := client.WritePoint(ctx, p, influxline.Seconds, ""); err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := client.Query(ctx, `SELECT "load" FROM "cpu"`, influxline.Milliseconds)
//
// # Thread Safety
//
// Client configuration is immutable after NewClient; all methods are safe
// for concurrent use. The package runs no background goroutines and keeps
// no hidden state: every call maps to at most one network exchange,
// cancelled through the caller's context.
//
// # Error Handling
//
// Encoding problems (ErrNoMeasurement, ErrNoFields) surface before any I/O
// is attempted. Transport failures wrap ErrTransport, malformed response
// bodies wrap ErrDecoding, and failures reported by the server are returned
// as *ServerError carrying the server's message verbatim.
package influxline
