package influxline_test

import (
	"testing"
	"time"

	protocol "github.com/influxdata/line-protocol"

	"github.com/nerrad567/influxline"
)

// parseLines feeds serialized output through the reference line protocol
// parser. Tag and field order are compared as sets because the reference
// parser re-sorts tags.
func parseLines(t *testing.T, payload string) []protocol.Metric {
	t.Helper()
	parser := protocol.NewParser(protocol.NewMetricHandler())
	metrics, err := parser.Parse([]byte(payload + "\n"))
	if err != nil {
		t.Fatalf("reference parser rejected %q: %v", payload, err)
	}
	return metrics
}

func TestSerializeRoundTrip(t *testing.T) {
	ts := int64(1434055562000000123)
	p := influxline.NewPoint("weather station").
		AddTag("site", influxline.String("coastal ridge")).
		AddTag("unit,id", influxline.String("a=b")).
		AddField("temp", influxline.Float(23.75)).
		AddField("samples", influxline.Integer(1442)).
		AddField("ok", influxline.Boolean(true)).
		AddField("notes", influxline.String(`sensor "B" offline\retry`)).
		SetTimestamp(ts)

	line, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	metrics := parseLines(t, line)
	if len(metrics) != 1 {
		t.Fatalf("parsed %d metrics, want 1", len(metrics))
	}
	m := metrics[0]

	if m.Name() != "weather station" {
		t.Errorf("measurement = %q, want %q", m.Name(), "weather station")
	}
	if !m.Time().Equal(time.Unix(0, ts)) {
		t.Errorf("time = %v, want %v", m.Time(), time.Unix(0, ts))
	}

	tags := make(map[string]string)
	for _, tag := range m.TagList() {
		tags[tag.Key] = tag.Value
	}
	wantTags := map[string]string{
		"site":    "coastal ridge",
		"unit,id": "a=b",
	}
	if len(tags) != len(wantTags) {
		t.Fatalf("tags = %v, want %v", tags, wantTags)
	}
	for k, v := range wantTags {
		if tags[k] != v {
			t.Errorf("tag %q = %q, want %q", k, tags[k], v)
		}
	}

	fields := make(map[string]interface{})
	for _, field := range m.FieldList() {
		fields[field.Key] = field.Value
	}
	wantFields := map[string]interface{}{
		"temp":    23.75,
		"samples": int64(1442),
		"ok":      true,
		"notes":   `sensor "B" offline\retry`,
	}
	if len(fields) != len(wantFields) {
		t.Fatalf("fields = %v, want %v", fields, wantFields)
	}
	for k, v := range wantFields {
		if fields[k] != v {
			t.Errorf("field %q = %#v, want %#v", k, fields[k], v)
		}
	}
}

func TestSerializeRoundTrip_Batch(t *testing.T) {
	batch := influxline.Points{
		influxline.NewPoint("cpu").
			AddTag("host", influxline.String("a b")).
			AddField("load", influxline.Float(0.5)).
			SetTimestamp(100),
		influxline.NewPoint("mem").
			AddField("used", influxline.Integer(2048)).
			SetTimestamp(200),
	}

	payload, err := batch.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	metrics := parseLines(t, payload)
	if len(metrics) != 2 {
		t.Fatalf("parsed %d metrics, want 2", len(metrics))
	}
	if metrics[0].Name() != "cpu" || metrics[1].Name() != "mem" {
		t.Errorf("measurements = %q, %q, want cpu, mem", metrics[0].Name(), metrics[1].Name())
	}
	if !metrics[0].Time().Equal(time.Unix(0, 100)) {
		t.Errorf("first time = %v, want %v", metrics[0].Time(), time.Unix(0, 100))
	}
}
