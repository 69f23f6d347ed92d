package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// TruncateRange rounds both ends of a range down to bucket boundaries.
func TruncateRange(from, to time.Time, bucket time.Duration) (time.Time, time.Time) {
	if bucket <= 0 {
		bucket = time.Minute
	}
	return from.Truncate(bucket), to.Truncate(bucket)
}

// UTCDay formats t's UTC calendar day as YYYYMMDD, used to key daily counters.
func UTCDay(t time.Time) string {
	return t.UTC().Format("20060102")
}

// UntilNextUTCDay is the time left before the UTC day of t rolls over.
func UntilNextUTCDay(t time.Time) time.Duration {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(t)
}
