package retrypolicy

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRetryAfter accepts either a delta-seconds integer or an RFC 1123
// date, per spec.md §4.5's Retry-After rule. A negative delta or a date
// in the past yields (0, false).
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d <= 0 {
			return 0, false
		}
		return d, true
	}
	return 0, false
}
