package logutil

import "strings"

// maxLogFieldLen caps how much of a client-supplied value reaches the log.
const maxLogFieldLen = 256

// SanitizeForLog flattens newlines and tabs to spaces, drops other control
// characters and truncates the result, so values such as usernames, target
// hosts or Referer headers cannot forge extra log lines.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(min(len(s), maxLogFieldLen))
	n := 0
	for _, r := range s {
		if n >= maxLogFieldLen {
			b.WriteString("...")
			break
		}
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
		n++
	}
	return b.String()
}
