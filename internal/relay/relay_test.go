package relay

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/influxline"
	"github.com/nerrad567/influxline/internal/infrastructure/config"
	"github.com/nerrad567/influxline/internal/infrastructure/logging"
	"github.com/nerrad567/influxline/internal/infrastructure/mqtt"
)

// fakeWriter records delivered batches and can be told to fail.
type fakeWriter struct {
	mu      sync.Mutex
	batches []influxline.Points
	err     error
}

func (w *fakeWriter) Write(_ context.Context, points influxline.Points) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, points)
	return nil
}

func (w *fakeWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *fakeWriter) batchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func (w *fakeWriter) lastBatch() influxline.Points {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.batches) == 0 {
		return nil
	}
	return w.batches[len(w.batches)-1]
}

// fakeSubscriber records subscriptions without a broker.
type fakeSubscriber struct {
	topics   []string
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (s *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if s.err != nil {
		return s.err
	}
	if s.handlers == nil {
		s.handlers = make(map[string]mqtt.MessageHandler)
	}
	s.topics = append(s.topics, topic)
	s.handlers[topic] = handler
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "json", Output: "stdout"}, "test")
}

// startTestRelay starts a relay with an hour-long flush interval so
// only explicit flushes move data.
func startTestRelay(t *testing.T, cfg config.RelayConfig, writer Writer, journal *Journal) (*Relay, *fakeSubscriber) {
	t.Helper()

	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{"telemetry/#"}
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 3600
	}

	sub := &fakeSubscriber{}
	r, err := Start(Options{
		Config:     cfg,
		Precision:  influxline.Nanoseconds,
		QoS:        1,
		Subscriber: sub,
		Writer:     writer,
		Journal:    journal,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return r, sub
}

// openTestJournal creates a temporary journal for testing.
func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	journal, err := OpenJournal(config.JournalConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	t.Cleanup(func() { journal.Close() }) //nolint:errcheck // Test cleanup
	return journal
}

// =============================================================================
// Message Parsing Tests
// =============================================================================

func TestParsePoint(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "tags and float field",
			payload: `{"measurement":"temperature","tags":{"room":"kitchen","sensor":"dht22"},"fields":{"value":21.5},"timestamp":1700000000}`,
			want:    `temperature,room=kitchen,sensor=dht22 value=21.5 1700000000`,
		},
		{
			name:    "integral numbers become floats",
			payload: `{"measurement":"door","fields":{"count":42},"timestamp":5}`,
			want:    `door count=42 5`,
		},
		{
			name:    "bool and string fields",
			payload: `{"measurement":"door","fields":{"open":true,"state":"ajar"},"timestamp":5}`,
			want:    `door open=true,state="ajar" 5`,
		},
		{
			name:    "fields in sorted key order",
			payload: `{"measurement":"env","fields":{"z":1,"a":2},"timestamp":7}`,
			want:    `env a=2,z=1 7`,
		},
		{
			name:    "escaped measurement and tag value",
			payload: `{"measurement":"room temp","tags":{"loc":"a,b"},"fields":{"v":1.5},"timestamp":9}`,
			want:    `room\ temp,loc=a\,b v=1.5 9`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point, err := parsePoint([]byte(tt.payload), influxline.Nanoseconds)
			if err != nil {
				t.Fatalf("parsePoint() error = %v", err)
			}

			line, err := point.Serialize()
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			if line != tt.want {
				t.Errorf("parsePoint() line = %q, want %q", line, tt.want)
			}
		})
	}
}

func TestParsePoint_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "invalid json", payload: `{"measurement":`},
		{name: "missing measurement", payload: `{"fields":{"v":1}}`},
		{name: "no fields", payload: `{"measurement":"temp"}`},
		{name: "empty fields", payload: `{"measurement":"temp","fields":{}}`},
		{name: "array field", payload: `{"measurement":"temp","fields":{"v":[1,2]}}`},
		{name: "null field", payload: `{"measurement":"temp","fields":{"v":null}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePoint([]byte(tt.payload), influxline.Nanoseconds)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("parsePoint() error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestParsePoint_ReceiptTimestamp(t *testing.T) {
	before := time.Now().Unix()
	point, err := parsePoint([]byte(`{"measurement":"temp","fields":{"v":1.5}}`), influxline.Seconds)
	if err != nil {
		t.Fatalf("parsePoint() error = %v", err)
	}
	after := time.Now().Unix()

	ts, ok := point.Timestamp()
	if !ok {
		t.Fatal("Timestamp() ok = false, want receipt stamp")
	}
	if ts < before || ts > after {
		t.Errorf("Timestamp() = %d, want between %d and %d", ts, before, after)
	}
}

func TestEpochNow(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		precision influxline.Precision
		want      int64
		tolerance int64
	}{
		{"nanoseconds", influxline.Nanoseconds, now.UnixNano(), int64(5 * time.Second)},
		{"microseconds", influxline.Microseconds, now.UnixMicro(), 5_000_000},
		{"milliseconds", influxline.Milliseconds, now.UnixMilli(), 5_000},
		{"seconds", influxline.Seconds, now.Unix(), 5},
		{"minutes", influxline.Minutes, now.Unix() / 60, 1},
		{"hours", influxline.Hours, now.Unix() / 3600, 1},
		{"empty defaults to seconds", influxline.Precision(""), now.Unix(), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := epochNow(tt.precision)
			if diff := got - tt.want; diff < -tt.tolerance || diff > tt.tolerance {
				t.Errorf("epochNow(%q) = %d, want within %d of %d", tt.precision, got, tt.tolerance, tt.want)
			}
		})
	}
}

// =============================================================================
// Batching Tests
// =============================================================================

func TestHandleMessage_BatchesUntilFull(t *testing.T) {
	writer := &fakeWriter{}
	r, sub := startTestRelay(t, config.RelayConfig{BatchSize: 3}, writer, nil)
	defer r.Close() //nolint:errcheck // Test cleanup

	handler := sub.handlers["telemetry/#"]
	payload := []byte(`{"measurement":"temp","fields":{"v":1.5},"timestamp":1}`)

	for i := 0; i < 2; i++ {
		if err := handler("telemetry/temp", payload); err != nil {
			t.Fatalf("handler error = %v", err)
		}
	}
	if writer.batchCount() != 0 {
		t.Errorf("batches written = %d, want 0 before batch is full", writer.batchCount())
	}
	if r.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", r.Pending())
	}

	if err := handler("telemetry/temp", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if writer.batchCount() != 1 {
		t.Fatalf("batches written = %d, want 1 after batch fills", writer.batchCount())
	}
	if got := len(writer.lastBatch()); got != 3 {
		t.Errorf("batch size = %d, want 3", got)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after flush, want 0", r.Pending())
	}
}

func TestHandleMessage_InvalidPayload(t *testing.T) {
	writer := &fakeWriter{}
	r, _ := startTestRelay(t, config.RelayConfig{BatchSize: 10}, writer, nil)
	defer r.Close() //nolint:errcheck // Test cleanup

	err := r.handleMessage("telemetry/bad", []byte("not json"))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("handleMessage() error = %v, want ErrInvalidMessage", err)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0; invalid messages must not batch", r.Pending())
	}
}

func TestFlush_SendsPending(t *testing.T) {
	writer := &fakeWriter{}
	r, _ := startTestRelay(t, config.RelayConfig{BatchSize: 10}, writer, nil)
	defer r.Close() //nolint:errcheck // Test cleanup

	payload := []byte(`{"measurement":"temp","fields":{"v":1.5},"timestamp":1}`)
	for i := 0; i < 2; i++ {
		if err := r.handleMessage("telemetry/temp", payload); err != nil {
			t.Fatalf("handleMessage() error = %v", err)
		}
	}

	r.Flush()

	if writer.batchCount() != 1 {
		t.Fatalf("batches written = %d, want 1", writer.batchCount())
	}
	if got := len(writer.lastBatch()); got != 2 {
		t.Errorf("batch size = %d, want 2", got)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after flush, want 0", r.Pending())
	}

	// Flushing an empty batch writes nothing
	r.Flush()
	if writer.batchCount() != 1 {
		t.Errorf("batches written = %d after empty flush, want 1", writer.batchCount())
	}
}

func TestFlushLoop_TimerFires(t *testing.T) {
	writer := &fakeWriter{}
	r, _ := startTestRelay(t, config.RelayConfig{BatchSize: 100, FlushInterval: 1}, writer, nil)
	defer r.Close() //nolint:errcheck // Test cleanup

	payload := []byte(`{"measurement":"temp","fields":{"v":1.5},"timestamp":1}`)
	if err := r.handleMessage("telemetry/temp", payload); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for writer.batchCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	if writer.batchCount() != 1 {
		t.Errorf("batches written = %d, want 1 after flush interval", writer.batchCount())
	}
}

// =============================================================================
// Journal Redelivery Tests
// =============================================================================

func TestFlush_FailureJournals(t *testing.T) {
	journal := openTestJournal(t)
	writer := &fakeWriter{}
	r, _ := startTestRelay(t, config.RelayConfig{BatchSize: 10}, writer, journal)
	defer r.Close() //nolint:errcheck // Test cleanup

	writer.setErr(errors.New("connection refused"))

	payload := []byte(`{"measurement":"temp","tags":{"room":"attic"},"fields":{"v":1.5},"timestamp":42}`)
	if err := r.handleMessage("telemetry/temp", payload); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
	r.Flush()

	if writer.batchCount() != 0 {
		t.Errorf("batches written = %d, want 0 while writer is down", writer.batchCount())
	}

	ctx := context.Background()
	n, err := journal.Len(ctx)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("journal Len() = %d, want 1", n)
	}

	batch, err := journal.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	want := `temp,room=attic v=1.5 42`
	if batch.Payload != want {
		t.Errorf("journaled payload = %q, want %q", batch.Payload, want)
	}

	// Writer recovers; the next flush drains the journal.
	writer.setErr(nil)
	r.Flush()

	if n, _ := journal.Len(ctx); n != 0 {
		t.Errorf("journal Len() = %d after drain, want 0", n)
	}
	if writer.batchCount() != 1 {
		t.Fatalf("batches written = %d after drain, want 1", writer.batchCount())
	}

	line, err := writer.lastBatch().Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if line != want {
		t.Errorf("re-sent batch = %q, want %q", line, want)
	}
}

func TestFlush_FailureWithoutJournalDrops(t *testing.T) {
	writer := &fakeWriter{}
	r, _ := startTestRelay(t, config.RelayConfig{BatchSize: 10}, writer, nil)
	defer r.Close() //nolint:errcheck // Test cleanup

	writer.setErr(errors.New("connection refused"))

	payload := []byte(`{"measurement":"temp","fields":{"v":1.5},"timestamp":1}`)
	if err := r.handleMessage("telemetry/temp", payload); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
	r.Flush()

	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after drop", r.Pending())
	}

	// Dropped batches must not reappear once the writer recovers.
	writer.setErr(nil)
	r.Flush()
	if writer.batchCount() != 0 {
		t.Errorf("batches written = %d, want 0", writer.batchCount())
	}
}

func TestDrainJournal_CorruptBatchDropped(t *testing.T) {
	journal := openTestJournal(t)
	writer := &fakeWriter{}
	r, _ := startTestRelay(t, config.RelayConfig{BatchSize: 10}, writer, journal)
	defer r.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := journal.Enqueue(ctx, "temp v="); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	time.Sleep(2 * time.Millisecond) // distinct created_at ordering
	if err := journal.Enqueue(ctx, "temp v=1.5 7"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Empty batch, so Flush goes straight to the drain.
	r.Flush()

	if writer.batchCount() != 1 {
		t.Fatalf("batches written = %d, want 1; corrupt batch should be skipped", writer.batchCount())
	}
	line, err := writer.lastBatch().Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if line != "temp v=1.5 7" {
		t.Errorf("re-sent batch = %q, want %q", line, "temp v=1.5 7")
	}
	if n, _ := journal.Len(ctx); n != 0 {
		t.Errorf("journal Len() = %d, want 0; corrupt batch should be removed", n)
	}
}

func TestPointsFromLines(t *testing.T) {
	payload := "temperature,room=kitchen value=21.5 1700000000\n" +
		`door,room=hall count=42i,open=true,state="ajar" 1700000001`

	points, err := pointsFromLines(payload)
	if err != nil {
		t.Fatalf("pointsFromLines() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("pointsFromLines() returned %d points, want 2", len(points))
	}

	out, err := points.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if out != payload {
		t.Errorf("round trip = %q, want %q", out, payload)
	}
}

func TestPointsFromLines_Invalid(t *testing.T) {
	if _, err := pointsFromLines("temp v="); err == nil {
		t.Error("pointsFromLines() should fail on a truncated line")
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestStart_SubscribesTopics(t *testing.T) {
	cfg := config.RelayConfig{
		Topics:        []string{"telemetry/#", "sensors/+/data"},
		BatchSize:     10,
		FlushInterval: 3600,
	}
	sub := &fakeSubscriber{}
	r, err := Start(Options{
		Config:     cfg,
		Subscriber: sub,
		Writer:     &fakeWriter{},
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Close() //nolint:errcheck // Test cleanup

	if len(sub.topics) != len(cfg.Topics) {
		t.Fatalf("subscribed to %d topics, want %d", len(sub.topics), len(cfg.Topics))
	}
	for i, want := range cfg.Topics {
		if sub.topics[i] != want {
			t.Errorf("topic[%d] = %q, want %q", i, sub.topics[i], want)
		}
	}
}

func TestStart_Validation(t *testing.T) {
	if _, err := Start(Options{Writer: &fakeWriter{}}); err == nil {
		t.Error("Start() without subscriber should fail")
	}
	if _, err := Start(Options{Subscriber: &fakeSubscriber{}}); err == nil {
		t.Error("Start() without writer should fail")
	}
}

func TestStart_SubscribeError(t *testing.T) {
	sub := &fakeSubscriber{err: errors.New("broker down")}
	_, err := Start(Options{
		Config:     config.RelayConfig{Topics: []string{"telemetry/#"}},
		Subscriber: sub,
		Writer:     &fakeWriter{},
		Logger:     testLogger(),
	})
	if err == nil {
		t.Fatal("Start() should fail when a subscription fails")
	}
}

func TestClose_FlushesRemaining(t *testing.T) {
	writer := &fakeWriter{}
	r, _ := startTestRelay(t, config.RelayConfig{BatchSize: 100}, writer, nil)

	payload := []byte(`{"measurement":"temp","fields":{"v":1.5},"timestamp":1}`)
	for i := 0; i < 2; i++ {
		if err := r.handleMessage("telemetry/temp", payload); err != nil {
			t.Fatalf("handleMessage() error = %v", err)
		}
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if writer.batchCount() != 1 {
		t.Fatalf("batches written = %d after Close, want 1", writer.batchCount())
	}
	if got := len(writer.lastBatch()); got != 2 {
		t.Errorf("batch size = %d, want 2", got)
	}
}

func TestClose_Nil(t *testing.T) {
	var r *Relay
	if err := r.Close(); err != nil {
		t.Errorf("Close() on nil relay error = %v", err)
	}
}
