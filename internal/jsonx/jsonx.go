package jsonx

import (
	"bytes"
	stdjson "encoding/json"

	"github.com/goccy/go-json"
)

// Thin wrapper so hot paths can swap JSON implementations in one place.
var (
	Marshal    = json.Marshal
	Unmarshal  = json.Unmarshal
	NewDecoder = json.NewDecoder
	NewEncoder = json.NewEncoder
	Valid      = json.Valid
)

type RawMessage = json.RawMessage

// ValidStrict reports whether data is RFC 8259 JSON. Unlike Valid it rejects
// leading zeros, bare fraction points and raw control characters in strings.
func ValidStrict(data []byte) bool {
	return stdjson.Valid(data)
}

// Compact returns raw with insignificant whitespace removed, or raw unchanged
// when it cannot be compacted.
func Compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return buf.String()
}
