package influxline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query executes an InfluxQL statement and decodes the result envelope.
//
// The HTTP verb follows the statement's leading keyword: create, drop,
// delete, grant, revoke, alter, set and kill dispatch as POST, as does
// SELECT ... INTO. Everything else, including unrecognised statements,
// dispatches as GET, which the server rejects for mutations rather than
// executing them.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: The InfluxQL statement text, sent verbatim
//   - epoch: Timestamp unit for returned values; zero omits the parameter
//     and timestamps arrive in the server's RFC3339 form
//
// Returns one Result per statement. A nil slice with a nil error means the
// response carried no results key at all, as opposed to an empty results
// array. A server-reported failure, top-level or per statement, returns
// *ServerError and no results.
func (c *Client) Query(ctx context.Context, q string, epoch Precision) ([]Result, error) {
	params := url.Values{}
	params.Set("db", c.database)
	params.Set("q", q)
	if epoch != "" {
		params.Set("epoch", string(epoch))
	}

	req, err := c.newRequest(ctx, queryMethod(q), "/query", params, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serverError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	return response.results(resp.StatusCode)
}

// QueryChunked executes a statement with chunked responses enabled and
// decodes the newline-delimited stream of envelopes the server produces.
//
// Results are concatenated in arrival order; Series.Partial marks
// fragments that continue in the next chunk. A chunkSize of zero leaves
// the server's default chunk length in place.
func (c *Client) QueryChunked(ctx context.Context, q string, chunkSize int, epoch Precision) ([]Result, error) {
	params := url.Values{}
	params.Set("db", c.database)
	params.Set("q", q)
	params.Set("chunked", "true")
	if chunkSize > 0 {
		params.Set("chunk_size", strconv.Itoa(chunkSize))
	}
	if epoch != "" {
		params.Set("epoch", string(epoch))
	}

	req, err := c.newRequest(ctx, queryMethod(q), "/query", params, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serverError(resp)
	}

	var results []Result
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize) //nolint:mnd // 64 KB initial buffer
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk Response
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
		}
		part, err := chunk.results(resp.StatusCode)
		if err != nil {
			return nil, err
		}
		results = append(results, part...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return results, nil
}

// mutatingKeywords lead statements that must dispatch as POST.
var mutatingKeywords = map[string]bool{
	"create": true,
	"drop":   true,
	"delete": true,
	"grant":  true,
	"revoke": true,
	"alter":  true,
	"set":    true,
	"kill":   true,
}

// queryMethod picks the HTTP verb for a statement. Only the documented
// mutating keywords and SELECT ... INTO use POST; ambiguity falls back to
// GET so an unrecognised statement can never mutate.
func queryMethod(q string) string {
	words := strings.Fields(strings.ToLower(q))
	if len(words) == 0 {
		return http.MethodGet
	}
	if mutatingKeywords[words[0]] {
		return http.MethodPost
	}
	if words[0] == "select" {
		for _, word := range words[1:] {
			if word == "into" {
				return http.MethodPost
			}
		}
	}
	return http.MethodGet
}
