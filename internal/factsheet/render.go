package factsheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxPrettyValue is the number of characters of a value kept by Pretty.
	MaxPrettyValue = 800
	// Ellipsis replaces the remainder of a truncated value.
	Ellipsis = "…"
)

// Pretty renders one line per record as "<number>. <label> — <value>".
// Values longer than MaxPrettyValue characters are cut and end in Ellipsis.
// The unnumbered degradation record renders as "<label> — <value>".
func Pretty(records []Record) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		value := truncate(r.Value, MaxPrettyValue)
		if r.Number == nil {
			lines = append(lines, fmt.Sprintf("%s — %s", r.Label, value))
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s — %s", *r.Number, r.Label, value))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + Ellipsis
}

// Field is one entry of the structured mapping.
type Field struct {
	Field string `json:"Field"`
	Value string `json:"Value"`
}

// Structured is the field mapping keyed by the decimal field number. It
// keeps insertion order; a repeated key overwrites the earlier value but
// keeps its position.
type Structured struct {
	keys   []string
	fields map[string]Field
}

// NewStructured builds the mapping from sorted records. Records without a
// number are dropped.
func NewStructured(records []Record) *Structured {
	s := &Structured{fields: make(map[string]Field, len(records))}
	for _, r := range records {
		if r.Number == nil {
			continue
		}
		s.Set(strconv.Itoa(*r.Number), Field{Field: r.Label, Value: r.Value})
	}
	return s
}

// Set stores f under key.
func (s *Structured) Set(key string, f Field) {
	if s.fields == nil {
		s.fields = make(map[string]Field)
	}
	if _, ok := s.fields[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.fields[key] = f
}

// Get returns the field stored under key.
func (s *Structured) Get(key string) (Field, bool) {
	f, ok := s.fields[key]
	return f, ok
}

// Keys returns the keys in insertion order.
func (s *Structured) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of keys.
func (s *Structured) Len() int {
	return len(s.keys)
}

// MarshalJSON writes the mapping as a JSON object in insertion order without
// HTML escaping.
func (s *Structured) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(key)
		if err != nil {
			return nil, err
		}
		v, err := marshalNoEscape(s.fields[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the order of its keys.
func (s *Structured) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("structured fields: expected object, got %v", tok)
	}

	*s = Structured{fields: make(map[string]Field)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var f Field
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("structured fields: key %q: %w", key, err)
		}
		s.Set(key, f)
	}
	_, err = dec.Token()
	return err
}

// JSON renders the mapping with two-space indentation.
func (s *Structured) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
