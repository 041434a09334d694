package influxline

import "strconv"

// Value is a tag or field value on a point.
//
// It is implemented by exactly four types, mirroring the scalar types line
// protocol can carry: String, Integer, Float and Boolean. Rendering depends
// on position: field values carry type markers (quotes for strings, an "i"
// suffix for integers) while tag values are always bare text.
type Value interface {
	// fieldText renders the value as it appears in field position.
	fieldText() string
	// tagText renders the value as it appears in tag position,
	// before positional escaping is applied.
	tagText() string
}

// String is a string value. In field position it is double-quoted with
// backslash and double-quote escaped; in tag position it is bare text.
type String string

// Integer is a 64-bit signed integer value. In field position it carries
// the "i" suffix that distinguishes it from a float on the wire.
type Integer int64

// Float is a 64-bit floating point value, rendered in the shortest form
// that round-trips.
type Float float64

// Boolean is a boolean value, rendered as "true" or "false".
type Boolean bool

func (v String) fieldText() string { return escapeStringField(string(v)) }
func (v String) tagText() string   { return string(v) }

func (v Integer) fieldText() string { return strconv.FormatInt(int64(v), 10) + "i" }
func (v Integer) tagText() string   { return strconv.FormatInt(int64(v), 10) }

func (v Float) fieldText() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Float) tagText() string   { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

func (v Boolean) fieldText() string { return strconv.FormatBool(bool(v)) }
func (v Boolean) tagText() string   { return strconv.FormatBool(bool(v)) }
