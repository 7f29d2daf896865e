package logging

import (
	"strings"
)

// Helpers for sanitizing values before they hit the logs. Account usernames
// are email addresses, so anything identifying a mailbox goes through
// MaskEmail; raw protocol payloads are summarized rather than dumped.

// MaskEmail obscures the local part and domain labels of an address while
// keeping enough shape to correlate log lines ("a****e@e*****e.c*m").
func MaskEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}
	mask := func(part string) string {
		if len(part) <= 1 {
			return "*"
		}
		return part[:1] + strings.Repeat("*", max(0, len(part)-2)) + part[len(part)-1:]
	}
	labels := strings.Split(s[at+1:], ".")
	for i, l := range labels {
		labels[i] = mask(l)
	}
	return mask(s[:at]) + "@" + strings.Join(labels, ".")
}

// SummarizeWire reduces a protocol payload to its byte count for trace logs.
func SummarizeWire(data string) string {
	if len(data) == 0 {
		return ""
	}
	return "bytes=" + itoa(len(data))
}

// Minimal integer to string to avoid fmt in the trace hot path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := false
	if n < 0 {
		neg = true
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}
