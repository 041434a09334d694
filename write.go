package influxline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// WritePoints encodes the batch and posts it to the /write endpoint as one
// request.
//
// Encoding failures surface before any request is made. An empty batch
// still issues the request; the server treats an empty body as a no-op.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - points: The batch to write, one line each, order preserved
//   - precision: Timestamp unit for the batch; zero value means Seconds
//   - rp: Target retention policy; empty uses the database default
//
// Returns nil on a 2xx response. Server rejections come back as
// *ServerError with the server's message; connection failures wrap
// ErrTransport. There are no retries.
func (c *Client) WritePoints(ctx context.Context, points Points, precision Precision, rp string) error {
	payload, err := points.Serialize()
	if err != nil {
		return err
	}

	if precision == "" {
		precision = Seconds
	}
	params := url.Values{}
	params.Set("db", c.database)
	params.Set("precision", string(precision))
	if rp != "" {
		params.Set("rp", rp)
	}

	body, encoding, err := c.writeBody(payload)
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/write", params, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return serverError(resp)
	}
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// WritePoint writes a single point. See WritePoints.
func (c *Client) WritePoint(ctx context.Context, p *Point, precision Precision, rp string) error {
	return c.WritePoints(ctx, Points{p}, precision, rp)
}

// writeBody wraps the payload for transmission, compressing when the
// client was configured with Gzip.
func (c *Client) writeBody(payload string) (io.Reader, string, error) {
	if !c.gzip {
		return strings.NewReader(payload), "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(payload)); err != nil {
		return nil, "", fmt.Errorf("influxline: compressing write body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("influxline: compressing write body: %w", err)
	}
	return &buf, "gzip", nil
}
