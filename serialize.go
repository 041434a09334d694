package influxline

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize encodes the point as one line of line protocol:
//
//	measurement[,tag=value...] field=value[,field=value...] [timestamp]
//
// Tags and fields appear in insertion order. The timestamp is appended only
// when one was set; its unit is whatever precision the write is dispatched
// with.
//
// Returns ErrNoMeasurement for an empty measurement name and ErrNoFields
// for a point without fields; line protocol cannot express either.
func (p *Point) Serialize() (string, error) {
	if p.measurement == "" {
		return "", ErrNoMeasurement
	}
	if len(p.fields) == 0 {
		return "", ErrNoFields
	}

	var b strings.Builder
	b.WriteString(escapeMeasurement(p.measurement))

	for _, tag := range p.tags {
		b.WriteByte(',')
		b.WriteString(escapeTag(tag.Key))
		b.WriteByte('=')
		b.WriteString(escapeTag(tag.Value.tagText()))
	}

	b.WriteByte(' ')
	for i, field := range p.fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeTag(field.Key))
		b.WriteByte('=')
		b.WriteString(field.Value.fieldText())
	}

	if p.hasTime {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(p.timestamp, 10))
	}

	return b.String(), nil
}

// Serialize encodes the batch as newline-joined line protocol with no
// trailing newline. An empty batch encodes to the empty string.
func (ps Points) Serialize() (string, error) {
	lines := make([]string, 0, len(ps))
	for i, p := range ps {
		line, err := p.Serialize()
		if err != nil {
			return "", fmt.Errorf("point %d: %w", i, err)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// escapeTag escapes special characters in tag keys, tag values and field
// keys. Commas, equals signs and spaces must be backslash-escaped.
// Newlines are stripped to prevent line protocol injection.
func escapeTag(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "=", "\\=")
	return s
}

// escapeMeasurement escapes special characters in measurement names.
// Equals signs are literal here, unlike in tags.
// Newlines are stripped to prevent line protocol injection.
func escapeMeasurement(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	return s
}

// escapeStringField renders a string field value: double-quoted, with
// backslashes and double quotes escaped. Everything else, including
// newlines, passes through literally.
func escapeStringField(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2) //nolint:mnd // the surrounding quotes
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// quoteIdent renders an InfluxQL identifier: double-quoted, with
// backslashes and double quotes escaped.
func quoteIdent(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// quoteLiteral renders an InfluxQL string literal: single-quoted, with
// backslashes and single quotes escaped.
func quoteLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return `'` + r.Replace(s) + `'`
}
