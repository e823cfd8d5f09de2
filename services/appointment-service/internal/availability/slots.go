package availability

import (
	"iter"
	"slices"
	"time"
)

const DefaultIncrementMinutes = 30

// Slots yields the bookable start times for date, in ascending order.
//
// The day is discretised into increment-minute steps; a step t is kept iff some active
// window for date's weekday satisfies Start <= t < End. When date is the calendar day of
// now (in now's location) every t at or before the current time of day is dropped.
// The returned sequence is pure and can be ranged over any number of times.
func Slots(windows []Window, date Date, increment int, now time.Time) iter.Seq[TimeOfDay] {
	if increment <= 0 || increment > MinutesPerDay {
		increment = DefaultIncrementMinutes
	}
	weekday := date.Weekday()
	active := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.Active && w.Weekday == weekday && w.Start < w.End {
			active = append(active, w)
		}
	}

	cutoff := -1
	if DateOf(now) == date {
		h, m, s := now.Clock()
		cutoff = h*3600 + m*60 + s
	}

	return func(yield func(TimeOfDay) bool) {
		if len(active) == 0 {
			return
		}
		for t := TimeOfDay(0); t < MinutesPerDay; t += TimeOfDay(increment) {
			if int(t)*60 <= cutoff {
				continue
			}
			if !coveredBy(active, t) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// GenerateSlots collects Slots into a slice. The result is never nil.
func GenerateSlots(windows []Window, date Date, increment int, now time.Time) []TimeOfDay {
	out := slices.Collect(Slots(windows, date, increment, now))
	if out == nil {
		out = []TimeOfDay{}
	}
	return out
}

// Covers reports whether every minute of [start, start+minutes) lies inside the union
// of the active windows for weekday.
func Covers(windows []Window, weekday Weekday, start TimeOfDay, minutes int) bool {
	if minutes <= 0 || start < 0 || int(start)+minutes > MinutesPerDay {
		return false
	}
	active := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.Active && w.Weekday == weekday {
			active = append(active, w)
		}
	}
	for t := start; t < start+TimeOfDay(minutes); t++ {
		if !coveredBy(active, t) {
			return false
		}
	}
	return true
}

func coveredBy(windows []Window, t TimeOfDay) bool {
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}
