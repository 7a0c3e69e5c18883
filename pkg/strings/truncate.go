package strings

import (
	"strings"
)

// DefaultMaxLen is the default maximum length of text quoted in log lines
// and error messages, such as response bodies.
const DefaultMaxLen = 200

// MinTruncateLen is the minimum maxLen value for OneLine.
// Smaller values would not leave room for content plus "...".
const MinTruncateLen = 4

// OneLine collapses all whitespace runs in s to single spaces and truncates
// the result to maxLen runes, ending it with "..." when cut.
//
// maxLen values below MinTruncateLen are clamped.
func OneLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
