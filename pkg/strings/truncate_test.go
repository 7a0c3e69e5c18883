package strings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOneLine(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short", input: "Not Found", maxLen: 20, want: "Not Found"},
		{name: "exact length", input: "abcde", maxLen: 5, want: "abcde"},
		{name: "truncated", input: "abcdefghij", maxLen: 8, want: "abcde..."},
		{name: "html body", input: "<html>\n  <body>\n\tError 500\n  </body>\n</html>\n", maxLen: 100, want: "<html> <body> Error 500 </body> </html>"},
		{name: "whitespace only", input: " \n\t ", maxLen: 10, want: ""},
		{name: "unicode", input: "überprüfung fehlgeschlagen", maxLen: 10, want: "überpr..."},
		{name: "clamped", input: "abcdefgh", maxLen: 1, want: "a..."},
		{name: "negative", input: "abcdefgh", maxLen: -5, want: "a..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OneLine(tt.input, tt.maxLen))
		})
	}
}

func TestOneLine_DefaultMaxLen(t *testing.T) {
	got := OneLine(strings.Repeat("x", 1000), DefaultMaxLen)
	assert.Len(t, []rune(got), DefaultMaxLen)
	assert.True(t, strings.HasSuffix(got, "..."))
}
