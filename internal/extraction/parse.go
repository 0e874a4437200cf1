package extraction

import (
	"bytes"
	"strings"

	"fission/internal/jsonx"
)

// ParseItems recovers a JSON array of task strings from raw model output.
//
// Stage A takes everything from the first '[' to the last ']'. If that span
// is not a valid JSON array, stage B takes the last ']' and the last '['
// before it. Reasoning text that itself contains brackets defeats stage A
// and is usually recovered by stage B.
func ParseItems(text string) ([]string, bool) {
	if span, ok := GreedySpan(text); ok {
		if items, ok := decodeItems(span); ok {
			return items, true
		}
	}
	if span, ok := LastBlockSpan(text); ok {
		if items, ok := decodeItems(span); ok {
			return items, true
		}
	}
	return nil, false
}

// GreedySpan returns text from the first '[' through the last ']'. It fails
// when either is missing or the last ']' precedes the first '['.
func GreedySpan(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// LastBlockSpan returns text from the last '[' that precedes the last ']'
// through that ']'.
func LastBlockSpan(text string) (string, bool) {
	end := strings.LastIndexByte(text, ']')
	if end < 0 {
		return "", false
	}
	start := strings.LastIndexByte(text[:end], '[')
	if start < 0 {
		return "", false
	}
	return text[start : end+1], true
}

// decodeItems parses span as a JSON array. Strings are kept as-is, nulls are
// dropped and any other element is kept as its compact JSON text. Spans that
// are not strictly valid JSON are rejected before decoding.
func decodeItems(span string) ([]string, bool) {
	if !jsonx.ValidStrict([]byte(span)) {
		return nil, false
	}
	var raw []jsonx.RawMessage
	if err := jsonx.Unmarshal([]byte(span), &raw); err != nil {
		return nil, false
	}

	items := make([]string, 0, len(raw))
	for _, element := range raw {
		trimmed := bytes.TrimSpace(element)
		switch {
		case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
			continue
		case trimmed[0] == '"':
			var s string
			if err := jsonx.Unmarshal(trimmed, &s); err != nil {
				return nil, false
			}
			items = append(items, s)
		default:
			items = append(items, jsonx.Compact(trimmed))
		}
	}
	return items, true
}
