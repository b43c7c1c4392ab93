package models

import (
	"strconv"
	"strings"
	"time"
)

// KeyPrefix namespaces counter keys in shared stores.
const KeyPrefix = "rl"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// so that identifiers containing ':' cannot address a neighbouring bucket.
//
// Example: an identifier "user:admin" becomes "user_admin".
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// Window is one fixed window: [Start, Start+Length).
type Window struct {
	Index  int64
	Start  time.Time
	Length time.Duration
}

// End is the instant the window stops counting.
func (w Window) End() time.Time {
	return w.Start.Add(w.Length)
}

// WindowAt returns the fixed window containing now. Windows are aligned to the Unix epoch
// so every instance computes the same index for the same instant.
func WindowAt(now time.Time, length time.Duration) Window {
	if length <= 0 {
		length = time.Minute
	}
	idx := now.UnixNano() / int64(length)
	return Window{
		Index:  idx,
		Start:  time.Unix(0, idx*int64(length)).UTC(),
		Length: length,
	}
}

// CounterKey builds "rl:{tenant}:{principal}:{class}:{window}". Anonymous subjects use
// the "anon" tenant segment and their client IP as the principal.
func CounterKey(s Subject, class EndpointClass, w Window) string {
	tenant := s.TenantID
	principal := s.PrincipalID
	if s.Anonymous {
		tenant = "anon"
		principal = s.ClientIP
	}
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteByte(':')
	b.WriteString(SanitizeKeySegment(tenant))
	b.WriteByte(':')
	b.WriteString(SanitizeKeySegment(principal))
	b.WriteByte(':')
	b.WriteString(SanitizeKeySegment(string(class)))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(w.Index, 10))
	return b.String()
}
