package influxline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient binds a client to the test server.
func newTestClient(server *httptest.Server) *Client {
	return &Client{
		url:        server.URL,
		database:   "testdb",
		httpClient: server.Client(),
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(Config{
		URL:      "http://localhost:8086/",
		Database: "telemetry",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if client.url != "http://localhost:8086" {
		t.Errorf("url = %q, want trailing slash trimmed", client.url)
	}
	if client.Database() != "telemetry" {
		t.Errorf("Database() = %q, want %q", client.Database(), "telemetry")
	}
	if client.httpClient.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", client.httpClient.Timeout, defaultTimeout)
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no_scheme", "localhost:8086"},
		{"bad_scheme", "udp://localhost:8089"},
		{"no_host", "http://"},
		{"unparseable", "http://bad url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(Config{URL: tt.url}); err == nil {
				t.Errorf("NewClient(%q) should fail", tt.url)
			}
		})
	}
}

func TestNewClient_CustomHTTPClient(t *testing.T) {
	custom := &http.Client{Timeout: 42 * time.Second}
	client, err := NewClient(Config{URL: "http://localhost:8086", HTTPClient: custom})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.httpClient != custom {
		t.Error("NewClient() should keep the supplied http.Client")
	}
}

func TestWithDatabase(t *testing.T) {
	client, err := NewClient(Config{URL: "http://localhost:8086", Database: "first"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	clone := client.WithDatabase("second")

	if clone.Database() != "second" {
		t.Errorf("clone Database() = %q, want %q", clone.Database(), "second")
	}
	if client.Database() != "first" {
		t.Errorf("original Database() = %q, want unchanged %q", client.Database(), "first")
	}
	if clone.httpClient != client.httpClient {
		t.Error("WithDatabase() should share the HTTP transport")
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			t.Fatalf("path = %q, want /ping", r.URL.Path)
		}
		w.Header().Set("X-Influxdb-Version", "1.8.10")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestPing_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	client := newTestClient(server)
	server.Close()

	err := client.Ping(context.Background())
	if err == nil {
		t.Fatal("Ping() should fail against a closed server")
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Ping() error = %v, want ErrTransport", err)
	}
}

func TestPing_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"authorization required"}`))
	}))
	defer server.Close()

	err := newTestClient(server).Ping(context.Background())
	if err == nil {
		t.Fatal("Ping() should surface the rejection")
	}

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Ping() error = %v, want *ServerError", err)
	}
	if serverErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", serverErr.StatusCode)
	}
	if serverErr.Message != "authorization required" {
		t.Errorf("Message = %q, want server text verbatim", serverErr.Message)
	}
}

func TestVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Influxdb-Version", "1.8.10")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	version, err := newTestClient(server).Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != "1.8.10" {
		t.Errorf("Version() = %q, want %q", version, "1.8.10")
	}
}

func TestVersion_HeaderAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	version, err := newTestClient(server).Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != "unknown" {
		t.Errorf("Version() = %q, want %q", version, "unknown")
	}
}

func TestServerError_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json_error", `{"error":"database not found"}`, "database not found"},
		{"plain_body", "upstream exploded\n", "upstream exploded"},
		{"empty_body", "", http.StatusText(http.StatusServiceUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := newTestClient(server).Ping(context.Background())

			var serverErr *ServerError
			if !errors.As(err, &serverErr) {
				t.Fatalf("error = %v, want *ServerError", err)
			}
			if serverErr.Message != tt.want {
				t.Errorf("Message = %q, want %q", serverErr.Message, tt.want)
			}
		})
	}
}
