// Package strings holds text helpers shared by the report and listing output.
package strings

import (
	"strings"
)

// DefaultDetailMaxLen is the width of detail columns in summary tables.
const DefaultDetailMaxLen = 60

// MinTruncateLen leaves room for one rune plus "...".
const MinTruncateLen = 4

// Truncate collapses s onto one line and cuts it to at most maxLen runes,
// ending in "..." when anything was cut. maxLen below MinTruncateLen is
// raised to it.
func Truncate(s string, maxLen int) string {
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
