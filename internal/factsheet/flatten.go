package factsheet

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlattenMapping turns a JSON object of broken key/value pairs, such as
// {"1. Name": "MANOJ KUMAR 2. eHRMS Code", ...}, back into one text blob by
// joining keys and values in document order. ok is false when raw is not a
// JSON object; callers then use raw as it is.
func FlattenMapping(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return "", false
	}

	var parts []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, ok := tok.(string)
		if !ok {
			return "", false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return "", false
		}
		parts = append(parts, key, rawString(value))
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return "", false
	}
	if dec.More() {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// rawString renders a JSON value the way it should appear in the text:
// strings unquoted, null empty, anything else as compact JSON.
func rawString(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}
