package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	protocol "github.com/influxdata/line-protocol"

	"github.com/nerrad567/influxline"
	"github.com/nerrad567/influxline/internal/infrastructure/config"
	"github.com/nerrad567/influxline/internal/infrastructure/logging"
	"github.com/nerrad567/influxline/internal/infrastructure/mqtt"
)

// Timeouts and fallbacks for relay operations.
const (
	// defaultWriteTimeout bounds a single delivery attempt. The HTTP
	// client usually times out first; this is the upper bound.
	defaultWriteTimeout = 30 * time.Second

	// defaultJournalTimeout bounds individual journal operations.
	defaultJournalTimeout = 5 * time.Second

	// Applied when the config leaves batching values unset.
	defaultBatchSize     = 1000
	defaultFlushInterval = time.Second

	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// Writer delivers point batches to InfluxDB. Both transport adapters in
// this package satisfy it.
type Writer interface {
	Write(ctx context.Context, points influxline.Points) error
}

// Subscriber is the broker-side surface the relay consumes. Satisfied
// by the infrastructure mqtt client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Options configures a relay.
type Options struct {
	// Config supplies topics, batch size and flush interval.
	Config config.RelayConfig

	// Precision is the timestamp unit used when stamping messages that
	// arrive without one. It must match the precision the writer sends.
	Precision influxline.Precision

	// QoS is the MQTT quality of service for subscriptions.
	QoS byte

	// Subscriber receives the topic subscriptions.
	Subscriber Subscriber

	// Writer delivers flushed batches.
	Writer Writer

	// Journal is the dead-letter store. Optional; failed batches are
	// dropped after logging when nil.
	Journal *Journal

	// Logger receives relay log output. Defaults to logging.Default().
	Logger *logging.Logger
}

// Relay consumes telemetry messages and writes them to InfluxDB.
//
// Points are batched internally and flushed either when the batch
// reaches the configured size or when the flush interval timer fires.
// Failed flushes are parked in the journal and re-sent oldest-first
// once deliveries succeed again.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
type Relay struct {
	precision influxline.Precision
	writer    Writer
	journal   *Journal
	log       *logging.Logger

	// Batching
	batch     influxline.Points
	batchMu   sync.Mutex
	batchSize int
	flushTick *time.Ticker
	done      chan struct{}
	wg        sync.WaitGroup

	// drainMu serializes journal drains so a batch is never picked up twice.
	drainMu sync.Mutex
}

// Start subscribes to the configured topics and begins relaying.
//
// It performs the following:
//  1. Validates options and applies batching defaults
//  2. Subscribes to every configured topic pattern
//  3. Starts the background flush goroutine
//
// The subscriber, writer and journal are owned by the caller; Close
// leaves them open.
//
// Parameters:
//   - opts: Relay options (Subscriber and Writer are required)
//
// Returns:
//   - *Relay: Running relay
//   - error: If options are incomplete or a subscription fails
func Start(opts Options) (*Relay, error) {
	if opts.Subscriber == nil {
		return nil, errors.New("relay: subscriber is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("relay: writer is required")
	}

	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}

	// Validate and apply defaults
	batchSize := opts.Config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := time.Duration(opts.Config.FlushInterval) * time.Second
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	r := &Relay{
		precision: opts.Precision,
		writer:    opts.Writer,
		journal:   opts.Journal,
		log:       log,
		batch:     make(influxline.Points, 0, batchSize),
		batchSize: batchSize,
		flushTick: time.NewTicker(flushInterval),
		done:      make(chan struct{}),
	}

	for _, topic := range opts.Config.Topics {
		if err := opts.Subscriber.Subscribe(topic, opts.QoS, r.handleMessage); err != nil {
			r.flushTick.Stop()
			return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	// Start background flush goroutine
	r.wg.Add(1)
	go r.flushLoop()

	return r, nil
}

// flushLoop periodically flushes the batch on timer or when done is signalled.
func (r *Relay) flushLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.flushTick.C:
			r.Flush()
		case <-r.done:
			return
		}
	}
}

// Close stops the flush timer and delivers any remaining batched points.
//
// It performs:
//  1. Stops the flush timer
//  2. Signals the flush goroutine to stop
//  3. Flushes any remaining batched points
//
// The subscriber and journal stay open; they belong to the caller.
//
// Returns:
//   - error: nil (delivery failures are journaled, not returned)
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}

	// Stop timer
	r.flushTick.Stop()

	// Signal goroutine to stop
	close(r.done)
	r.wg.Wait()

	// Final flush of remaining data
	r.Flush()

	return nil
}

// handleMessage is the MessageHandler registered for every configured
// topic. Decode failures are returned for the mqtt wrapper to log.
func (r *Relay) handleMessage(topic string, payload []byte) error {
	point, err := parsePoint(payload, r.precision)
	if err != nil {
		return fmt.Errorf("topic %s: %w", topic, err)
	}

	r.add(point)
	return nil
}

// add appends a point to the batch, flushing when the batch is full.
func (r *Relay) add(point *influxline.Point) {
	r.batchMu.Lock()
	r.batch = append(r.batch, point)
	shouldFlush := len(r.batch) >= r.batchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.Flush()
	}
}

// Pending returns the number of points waiting in the current batch.
func (r *Relay) Pending() int {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return len(r.batch)
}

// Flush sends all pending points, then drains the journal if delivery
// is working again.
//
// This is called automatically by the flush timer and when the batch
// is full. It can also be called manually for testing or shutdown.
// Safe to call concurrently; the batch swap is guarded by a mutex.
func (r *Relay) Flush() {
	if err := r.flushOnce(); err != nil {
		// The batch is already journaled or dropped; skip the drain
		// while the writer is down.
		return
	}
	r.drainJournal()
}

// flushOnce delivers the current batch. A failed delivery hands the
// batch to the journal.
func (r *Relay) flushOnce() error {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return nil
	}
	// Swap batch out under lock
	points := r.batch
	r.batch = make(influxline.Points, 0, r.batchSize)
	r.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	if err := r.writer.Write(ctx, points); err != nil {
		r.keepForRetry(points, err)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	return nil
}

// keepForRetry stores a failed batch in the journal, or drops it with a
// log entry when no journal is configured.
func (r *Relay) keepForRetry(points influxline.Points, cause error) {
	if r.journal == nil {
		r.log.Error("write failed, dropping batch", "error", cause, "points", len(points))
		return
	}

	// Points are validated at parse time, so serialization only fails
	// on malformed hand-built points.
	payload, err := points.Serialize()
	if err != nil {
		r.log.Error("write failed and batch cannot be serialized", "error", err, "points", len(points))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultJournalTimeout)
	defer cancel()

	if err := r.journal.Enqueue(ctx, payload); err != nil {
		r.log.Error("journaling failed batch", "error", err, "points", len(points))
		return
	}

	r.log.Warn("write failed, batch journaled", "error", cause, "points", len(points))
}

// drainJournal re-sends journaled batches oldest-first, stopping at the
// first delivery failure.
func (r *Relay) drainJournal() {
	if r.journal == nil {
		return
	}

	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	for r.drainOne() {
	}
}

// drainOne re-sends the oldest journaled batch. It reports whether the
// caller should keep draining.
func (r *Relay) drainOne() bool {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	batch, err := r.journal.Next(ctx)
	if err != nil {
		r.log.Error("reading journal", "error", err)
		return false
	}
	if batch == nil {
		return false
	}

	points, err := pointsFromLines(batch.Payload)
	if err != nil {
		// A row that cannot be decoded would wedge the queue; drop it.
		r.log.Error("dropping corrupt journal batch", "id", batch.ID, "error", err)
		if removeErr := r.journal.Remove(ctx, batch.ID); removeErr != nil {
			r.log.Error("removing corrupt journal batch", "id", batch.ID, "error", removeErr)
			return false
		}
		return true
	}

	if err := r.writer.Write(ctx, points); err != nil {
		return false
	}

	if err := r.journal.Remove(ctx, batch.ID); err != nil {
		r.log.Error("removing delivered journal batch", "id", batch.ID, "error", err)
		return false
	}

	r.log.Info("journaled batch delivered", "id", batch.ID, "points", len(points))
	return true
}

// telemetryMessage is the JSON document sensors publish.
type telemetryMessage struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`
	Timestamp   *int64            `json:"timestamp"`
}

// parsePoint decodes a telemetry payload into a point.
//
// Tags and fields are added in sorted key order so identical messages
// serialize identically. Messages without a timestamp are stamped at
// receipt in the given precision.
func parsePoint(payload []byte, precision influxline.Precision) (*influxline.Point, error) {
	var msg telemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Measurement == "" {
		return nil, fmt.Errorf("%w: measurement is required", ErrInvalidMessage)
	}
	if len(msg.Fields) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", ErrInvalidMessage)
	}

	point := influxline.NewPoint(msg.Measurement)

	tagKeys := make([]string, 0, len(msg.Tags))
	for key := range msg.Tags {
		tagKeys = append(tagKeys, key)
	}
	slices.Sort(tagKeys)
	for _, key := range tagKeys {
		point.AddTag(key, influxline.String(msg.Tags[key]))
	}

	fieldKeys := make([]string, 0, len(msg.Fields))
	for key := range msg.Fields {
		fieldKeys = append(fieldKeys, key)
	}
	slices.Sort(fieldKeys)
	for _, key := range fieldKeys {
		value, err := fieldValue(msg.Fields[key])
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidMessage, key, err)
		}
		point.AddField(key, value)
	}

	if msg.Timestamp != nil {
		point.SetTimestamp(*msg.Timestamp)
	} else {
		point.SetTimestamp(epochNow(precision))
	}

	return point, nil
}

// fieldValue maps a decoded JSON value onto a field value. JSON has a
// single number type, so every number becomes a float field.
func fieldValue(v any) (influxline.Value, error) {
	switch value := v.(type) {
	case float64:
		return influxline.Float(value), nil
	case bool:
		return influxline.Boolean(value), nil
	case string:
		return influxline.String(value), nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// epochNow returns the current time as an epoch in the given precision.
// An empty precision mirrors the write path default of seconds.
func epochNow(precision influxline.Precision) int64 {
	now := time.Now()
	switch precision {
	case influxline.Nanoseconds:
		return now.UnixNano()
	case influxline.Microseconds:
		return now.UnixMicro()
	case influxline.Milliseconds:
		return now.UnixMilli()
	case influxline.Minutes:
		return now.Unix() / secondsPerMinute
	case influxline.Hours:
		return now.Unix() / secondsPerHour
	default:
		return now.Unix()
	}
}

// pointsFromLines decodes a journaled line-protocol body back into
// points for redelivery.
func pointsFromLines(payload string) (influxline.Points, error) {
	parser := protocol.NewParser(protocol.NewMetricHandler())
	metrics, err := parser.Parse([]byte(payload + "\n"))
	if err != nil {
		return nil, fmt.Errorf("parsing journaled batch: %w", err)
	}

	points := make(influxline.Points, 0, len(metrics))
	for _, metric := range metrics {
		point := influxline.NewPoint(metric.Name())
		for _, tag := range metric.TagList() {
			point.AddTag(tag.Key, influxline.String(tag.Value))
		}
		for _, field := range metric.FieldList() {
			value, err := parsedFieldValue(field.Value)
			if err != nil {
				return nil, fmt.Errorf("parsing journaled batch: field %q: %w", field.Key, err)
			}
			point.AddField(field.Key, value)
		}
		point.SetTimestamp(metric.Time().UnixNano())
		points = append(points, point)
	}

	return points, nil
}

// parsedFieldValue maps a field value decoded from line protocol onto a
// field value. Unlike JSON, line protocol distinguishes integers.
func parsedFieldValue(v interface{}) (influxline.Value, error) {
	switch value := v.(type) {
	case float64:
		return influxline.Float(value), nil
	case int64:
		return influxline.Integer(value), nil
	case uint64:
		return influxline.Integer(int64(value)), nil
	case string:
		return influxline.String(value), nil
	case bool:
		return influxline.Boolean(value), nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
