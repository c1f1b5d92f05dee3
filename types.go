package localdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Statement is one SQL text plus its ordered positional bind values.
// Bind values are bound to ? placeholders left to right. Supported value
// types are int64, float64, string, []byte and nil.
type Statement struct {
	SQL  string `json:"sql"`
	Bind []any  `json:"bind,omitempty"`
}

// Column is a single named value within a result row.
type Column struct {
	Name  string
	Value any
}

// Row is an ordered sequence of columns. Order follows the SELECT column
// order and survives a JSON round-trip, which a plain map would not give us.
type Row []Column

// Get returns the value of the named column and whether it is present.
func (r Row) Get(name string) (any, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as a JSON object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving its key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row must be a JSON object, got %v", tok)
	}

	var row Row
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("row key must be a string, got %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		row = append(row, Column{Name: key, Value: NormalizeValue(val)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = row
	return nil
}

// NormalizeValue maps a value decoded from JSON onto the statement value
// types. json.Number becomes int64 when the literal is integral, float64
// otherwise, so INTEGER columns bind and compare as integers.
func NormalizeValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return f
}

// NormalizeBind applies NormalizeValue to every bind value in place and
// returns the slice.
func NormalizeBind(bind []any) []any {
	for i, v := range bind {
		bind[i] = NormalizeValue(v)
	}
	return bind
}
