package influxline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Response is the JSON envelope returned by the /query endpoint.
type Response struct {
	Results []Result `json:"results"`
	Err     string   `json:"error,omitempty"`
}

// results flattens the envelope, surfacing any embedded error. status is
// the HTTP status of the response that carried it.
func (r *Response) results(status int) ([]Result, error) {
	if r.Err != "" {
		return nil, &ServerError{StatusCode: status, Message: r.Err}
	}
	for i := range r.Results {
		if r.Results[i].Err != "" {
			return nil, &ServerError{StatusCode: status, Message: r.Results[i].Err}
		}
	}
	return r.Results, nil
}

// Result holds the outcome of one statement in a query.
type Result struct {
	StatementID int      `json:"statement_id"`
	Series      []Series `json:"series,omitempty"`
	Partial     bool     `json:"partial,omitempty"`
	Err         string   `json:"error,omitempty"`
}

// Series is one table of rows grouped under a measurement name.
type Series struct {
	Name    string            `json:"name,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
	Columns []string          `json:"columns,omitempty"`
	Values  [][]Cell          `json:"values,omitempty"`
	Partial bool              `json:"partial,omitempty"`
}

// cellKind discriminates the JSON type a Cell carried.
type cellKind uint8

const (
	cellNull cellKind = iota
	cellString
	cellNumber
	cellBool
)

// Cell is a single value from a series row.
//
// Row values arrive as untyped JSON scalars, so Cell records which of the
// four wire types was present. Numbers keep their raw JSON text: epoch
// nanosecond timestamps overflow float64's integer range, and converting
// through it would corrupt them.
type Cell struct {
	kind cellKind
	text string // string value, or raw number text
	b    bool
}

// UnmarshalJSON decodes one scalar. Arrays and objects never appear in
// series rows and are rejected.
func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty cell")
	}

	switch data[0] {
	case 'n':
		*c = Cell{}
		return nil
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*c = Cell{kind: cellBool, b: v}
		return nil
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*c = Cell{kind: cellString, text: v}
		return nil
	default:
		var v json.Number
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*c = Cell{kind: cellNumber, text: v.String()}
		return nil
	}
}

// MarshalJSON re-encodes the cell as the scalar it arrived as.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case cellNull:
		return []byte("null"), nil
	case cellBool:
		return strconv.AppendBool(nil, c.b), nil
	case cellString:
		return json.Marshal(c.text)
	default:
		return []byte(c.text), nil
	}
}

// IsNull reports whether the cell was JSON null.
func (c Cell) IsNull() bool {
	return c.kind == cellNull
}

// String returns the cell's text: the string value for strings, the raw
// JSON text for numbers, "true"/"false" for booleans and "" for null.
func (c Cell) String() string {
	if c.kind == cellBool {
		return strconv.FormatBool(c.b)
	}
	return c.text
}

// Float64 converts a number cell. ok is false for any other kind.
func (c Cell) Float64() (v float64, ok bool) {
	if c.kind != cellNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(c.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int64 converts a number cell, refusing fractional or out-of-range
// values. ok is false for any other kind.
func (c Cell) Int64() (v int64, ok bool) {
	if c.kind != cellNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(c.text, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bool returns a boolean cell's value. ok is false for any other kind.
func (c Cell) Bool() (v, ok bool) {
	if c.kind != cellBool {
		return false, false
	}
	return c.b, true
}
