package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLogMaxLen is the default maximum length for truncated log output (1KB).
// Full answers are kept in chat history; logs only carry a prefix.
const DefaultLogMaxLen = 1024

// TruncateLog truncates long strings for logging without splitting a UTF-8
// sequence. Prompts in Hindi or other Indic scripts are multi-byte.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is a convenience wrapper for TruncateLog that accepts []byte
// and uses DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// Preview shortens s to at most n runes, appending "..." when cut.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
