package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.input, tt.maxLen))
		})
	}
}

func TestFormatVariables(t *testing.T) {
	assert.Empty(t, formatVariables(nil))
	assert.Empty(t, formatVariables(map[string]any{}))

	out := formatVariables(map[string]any{"id": "0"})
	assert.Equal(t, "map[id:0]", out)

	long := formatVariables(map[string]any{"prefix": strings.Repeat("x", 500)})
	assert.Len(t, truncate(long, maxArgLogLen), maxArgLogLen)
}
