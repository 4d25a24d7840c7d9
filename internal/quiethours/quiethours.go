// Package quiethours implements C3: deciding whether delivery of a
// notification must be deferred until the recipient's configured quiet
// hours window ends, and computing the UTC timestamp at which it ends.
package quiethours

import (
	"time"
)

// ClockTime is a time-of-day with no date or timezone component, held as an
// hour and a minute. The store keeps user_preferences.quiet_hours_start/end
// as "HH:MM" text and parses it into this type (spec.md §3).
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

// Before reports whether c occurs strictly before other on the same day.
func (c ClockTime) Before(other ClockTime) bool { return c.minutes() < other.minutes() }

// ComputeETA returns the UTC instant at which quiet hours end, or the zero
// Value and false if delivery may proceed immediately — either because no
// quiet-hours window is configured or nowUTC does not fall within it.
//
// Supports wrap-around windows that cross midnight (e.g. 22:00 -> 08:00),
// ported from the original quiet_hours.calculate_eta.
func ComputeETA(start, end *ClockTime, timezone string, nowUTC time.Time) (time.Time, bool, error) {
	if start == nil || end == nil {
		return time.Time{}, false, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, false, err
	}

	nowLocal := nowUTC.In(loc)
	current := ClockTime{Hour: nowLocal.Hour(), Minute: nowLocal.Minute()}

	if !isInQuietHours(current, *start, *end) {
		return time.Time{}, false, nil
	}

	endLocal := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), end.Hour, end.Minute, 0, 0, loc)
	if !endLocal.After(nowLocal) {
		endLocal = endLocal.AddDate(0, 0, 1)
	}

	return endLocal.UTC(), true, nil
}

// isInQuietHours reports whether current falls within [start, end),
// handling windows that wrap past midnight.
func isInQuietHours(current, start, end ClockTime) bool {
	if start.minutes() <= end.minutes() {
		return start.minutes() <= current.minutes() && current.minutes() < end.minutes()
	}
	return current.minutes() >= start.minutes() || current.minutes() < end.minutes()
}
