package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateLog_ShortString(t *testing.T) {
	input := "short log"
	if got := TruncateLog(input, DefaultLogMaxLen); got != input {
		t.Errorf("TruncateLog() should not truncate short strings, got %q", got)
	}
}

func TestTruncateLog_ExactLimit(t *testing.T) {
	input := "12345678901234567890"
	if got := TruncateLog(input, 20); got != input {
		t.Errorf("TruncateLog() should not truncate at exact limit, got %q", got)
	}
}

func TestTruncateLog_LongString(t *testing.T) {
	got := TruncateLog("1234567890abcdefghij", 10)
	if got != "1234567890... [truncated, 20 bytes total]" {
		t.Errorf("TruncateLog() = %q", got)
	}
}

func TestTruncateLog_DoesNotSplitRunes(t *testing.T) {
	input := "गेहूं में रतुआ रोग" // Devanagari, 3 bytes per rune
	got := TruncateLog(input, 4)
	prefix := got[:strings.Index(got, "...")]
	if !utf8.ValidString(prefix) {
		t.Fatalf("TruncateLog() produced invalid UTF-8 prefix %q", prefix)
	}
	if len(prefix) != 3 {
		t.Errorf("prefix length = %d, want 3", len(prefix))
	}
}

func TestTruncateBytes_LongBytes(t *testing.T) {
	input := []byte(strings.Repeat("x", 2000))
	got := TruncateBytes(input)
	if len(got) <= DefaultLogMaxLen {
		t.Errorf("TruncateBytes() result should be longer than maxLen due to suffix, got len=%d", len(got))
	}
	if got[:DefaultLogMaxLen] != string(input[:DefaultLogMaxLen]) {
		t.Error("TruncateBytes() should preserve first DefaultLogMaxLen bytes")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("wheat rust", 20); got != "wheat rust" {
		t.Errorf("Preview() = %q", got)
	}
	if got := Preview("पत्ती झुलसा", 4); got != "पत्ती"[:0]+string([]rune("पत्ती झुलसा")[:4])+"..." {
		t.Errorf("Preview() = %q", got)
	}
}
