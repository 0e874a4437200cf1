package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStrict(t *testing.T) {
	for _, in := range []string{`[]`, `["a", 1, null, {"b": [true]}]`, `["line\nbreak"]`, `[1.5e3]`} {
		assert.True(t, ValidStrict([]byte(in)), in)
	}
	for _, in := range []string{`[-]`, "[\"a\nb\"]", `[01]`, `[1.]`, `[{"a"}]`, `[[1,]]`, `["a",]`, ``} {
		assert.False(t, ValidStrict([]byte(in)), in)
	}
}

func TestCompact(t *testing.T) {
	assert.Equal(t, `{"a":[1,2]}`, Compact([]byte("{ \"a\" : [1, 2] }")))
}
