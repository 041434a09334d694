package relay

import (
	"context"

	"github.com/nerrad567/influxline"
)

// HTTPWriter delivers batches through the influxline HTTP client.
type HTTPWriter struct {
	client    *influxline.Client
	precision influxline.Precision
	rp        string
}

// NewHTTPWriter wraps an influxline client for use as a relay Writer.
// The precision and retention policy are applied to every write; pass
// an empty rp to use the database default.
func NewHTTPWriter(client *influxline.Client, precision influxline.Precision, rp string) *HTTPWriter {
	return &HTTPWriter{client: client, precision: precision, rp: rp}
}

// Write implements Writer.
func (w *HTTPWriter) Write(ctx context.Context, points influxline.Points) error {
	return w.client.WritePoints(ctx, points, w.precision, w.rp)
}

// UDPWriter delivers batches through the influxline UDP client.
type UDPWriter struct {
	client *influxline.UDPClient
}

// NewUDPWriter wraps an influxline UDP client for use as a relay Writer.
func NewUDPWriter(client *influxline.UDPClient) *UDPWriter {
	return &UDPWriter{client: client}
}

// Write implements Writer. The context is ignored; datagram sends do
// not block on the server.
func (w *UDPWriter) Write(_ context.Context, points influxline.Points) error {
	return w.client.WritePoints(points)
}
