// Package clock converts wall-clock time into fixed-timezone calendar day
// keys. Every matching and expiry decision is bucketed by these keys, so the
// zone is pinned to UTC+9 regardless of host timezone: all participants see
// identical day boundaries, and the daily sweep at 15:00 UTC lines up with
// local midnight.
//
// Clock is injected rather than read from a global time source so that day
// boundary behavior is deterministic under test.
package clock

import "time"

// dayLayout is the calendar day key format.
const dayLayout = "2006-01-02"

// Zone is the fixed offset zone for all day computations (UTC+9).
var Zone = time.FixedZone("UTC+9", 9*60*60)

// Clock supplies the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock pinned to a single instant, for tests and replays.
type Fixed struct {
	T time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time { return f.T }

// DayKey returns the calendar day key (YYYY-MM-DD) of t in the fixed zone.
func DayKey(t time.Time) string {
	return t.In(Zone).Format(dayLayout)
}

// Today returns the calendar day key for c's current time.
func Today(c Clock) string {
	return DayKey(c.Now())
}

// PreviousDay returns the day key immediately before key. Malformed keys
// yield "" rather than a panic; callers treat that as no previous day.
func PreviousDay(key string) string {
	t, err := time.ParseInLocation(dayLayout, key, Zone)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dayLayout)
}
