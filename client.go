package influxline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds each HTTP exchange when no client is supplied.
	defaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 10 << 20 // 10 MB
)

// Config holds the settings for an HTTP client.
type Config struct {
	// URL is the base address of the database, e.g. "http://localhost:8086".
	// The scheme must be http or https.
	URL string

	// Database is the database targeted by writes and queries.
	Database string

	// Username and Password are sent as the u/p query parameters on every
	// request when Username is set.
	Username string
	Password string

	// BearerToken is sent verbatim in an Authorization: Bearer header.
	BearerToken string

	// SharedSecret, when set, signs a fresh short-lived bearer token for
	// each request against the server's shared secret. Takes precedence
	// over BearerToken.
	SharedSecret string

	// Timeout bounds each HTTP exchange when HTTPClient is nil.
	// Zero means 10 seconds.
	Timeout time.Duration

	// Gzip compresses write bodies with Content-Encoding: gzip.
	Gzip bool

	// HTTPClient overrides the transport. When nil a client honouring
	// Timeout is created.
	HTTPClient *http.Client
}

// Client dispatches writes and queries to one database over HTTP.
//
// Configuration is fixed at construction; use WithDatabase to address a
// different database through the same transport.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	url        string
	database   string
	username   string
	password   string
	bearer     string
	secret     string
	gzip       bool
	httpClient *http.Client
}

// NewClient validates the configuration and returns a client.
//
// No connection is made; use Ping to verify the database is reachable.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("influxline: parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("influxline: URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("influxline: URL %q has no host", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:        strings.TrimRight(cfg.URL, "/"),
		database:   cfg.Database,
		username:   cfg.Username,
		password:   cfg.Password,
		bearer:     cfg.BearerToken,
		secret:     cfg.SharedSecret,
		gzip:       cfg.Gzip,
		httpClient: httpClient,
	}, nil
}

// WithDatabase returns a copy of the client bound to a different database.
// The copy shares the underlying HTTP transport and credentials; the
// original is unchanged.
func (c *Client) WithDatabase(db string) *Client {
	clone := *c
	clone.database = db
	return &clone
}

// Database returns the database the client is bound to.
func (c *Client) Database() string {
	return c.database
}

// Ping verifies the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ping(ctx)
	return err
}

// Version returns the server version reported by the ping endpoint, or
// "unknown" when the server does not identify itself.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.ping(ctx)
}

// ping issues GET /ping and returns the advertised server version.
func (c *Client) ping(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ping", url.Values{}, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", serverError(resp)
	}
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	version := resp.Header.Get("X-Influxdb-Version")
	if version == "" {
		version = "unknown"
	}
	return version, nil
}

// newRequest builds an authenticated request for path with params.
// Credentials attach identically on every endpoint.
func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	if c.username != "" {
		params.Set("u", c.username)
		params.Set("p", c.password)
	}

	endpoint := c.url + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if err := c.setBearer(req); err != nil {
		return nil, err
	}
	return req, nil
}

// serverError builds a ServerError from a non-2xx response. The v1 API
// reports failures as {"error": "..."}; fall back to the raw body text,
// then to the HTTP status text.
func serverError(resp *http.Response) *ServerError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))

	var envelope struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		msg = envelope.Error
	} else {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &ServerError{StatusCode: resp.StatusCode, Message: msg}
}
