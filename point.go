package influxline

// Precision selects the timestamp unit for writes and query epochs.
type Precision string

// Timestamp precisions accepted by the v1 API.
const (
	Nanoseconds  Precision = "n"
	Microseconds Precision = "u"
	Milliseconds Precision = "ms"
	Seconds      Precision = "s"
	Minutes      Precision = "m"
	Hours        Precision = "h"
)

// Tag is one key/value pair in a point's tag set.
type Tag struct {
	Key   string
	Value Value
}

// Field is one key/value pair in a point's field set.
type Field struct {
	Key   string
	Value Value
}

// Point is a single measurement row: a measurement name, ordered tags,
// ordered fields and an optional timestamp.
//
// Points are mutable builders; nothing is escaped or validated until
// Serialize. Tags and fields keep insertion order, and adding a key that
// already exists overwrites the value in place without moving the key.
//
// A Point is not safe for concurrent mutation.
type Point struct {
	measurement string
	tags        []Tag
	fields      []Field
	timestamp   int64
	hasTime     bool
}

// NewPoint creates a point for the given measurement with no tags, no
// fields and no timestamp.
func NewPoint(measurement string) *Point {
	return &Point{measurement: measurement}
}

// AddTag appends a tag, or overwrites the value in place when the key is
// already present. It returns the point for chaining.
func (p *Point) AddTag(key string, value Value) *Point {
	for i := range p.tags {
		if p.tags[i].Key == key {
			p.tags[i].Value = value
			return p
		}
	}
	p.tags = append(p.tags, Tag{Key: key, Value: value})
	return p
}

// AddField appends a field, or overwrites the value in place when the key
// is already present. It returns the point for chaining.
func (p *Point) AddField(key string, value Value) *Point {
	for i := range p.fields {
		if p.fields[i].Key == key {
			p.fields[i].Value = value
			return p
		}
	}
	p.fields = append(p.fields, Field{Key: key, Value: value})
	return p
}

// SetTimestamp sets the point's timestamp, interpreted in the precision
// chosen at write time. It returns the point for chaining.
func (p *Point) SetTimestamp(t int64) *Point {
	p.timestamp = t
	p.hasTime = true
	return p
}

// Measurement returns the measurement name the point was created with.
func (p *Point) Measurement() string {
	return p.measurement
}

// Timestamp returns the point's timestamp and whether one was set.
func (p *Point) Timestamp() (int64, bool) {
	return p.timestamp, p.hasTime
}

// Points is an ordered batch of points that serializes to one line each.
type Points []*Point
