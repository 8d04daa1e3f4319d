package logutil

import (
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"bob\nINFO fake entry", "bob INFO fake entry"},
		{"a\r\nb\tc", "a  b c"},
		{"bell\x07\x1b[31m", "bell[31m"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeForLog(tt.in); got != tt.want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeForLog_Truncates(t *testing.T) {
	got := SanitizeForLog(strings.Repeat("x", 1000))
	if len(got) != maxLogFieldLen+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("unexpected truncation: len=%d", len(got))
	}
}
