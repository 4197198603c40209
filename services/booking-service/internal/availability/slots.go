package availability

import (
	"sort"
	"time"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// AvailableSlots returns slot start times within window where a booking of
// length duration fits without overlapping any busy interval. Candidates are
// taken every step from window.Start. Starts before notBefore are dropped; a
// zero notBefore keeps everything.
func AvailableSlots(window Interval, duration, step time.Duration, busy []Interval, notBefore time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !window.End.After(window.Start) || window.Start.Add(duration).After(window.End) {
		return nil
	}

	var slots []time.Time
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
		if !notBefore.IsZero() && t.Before(notBefore) {
			continue
		}
		if !overlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// SlotsForWindows runs AvailableSlots over every window and returns the
// starts ascending.
func SlotsForWindows(windows []Interval, duration, step time.Duration, busy []Interval, notBefore time.Time) []time.Time {
	var out []time.Time
	for _, w := range windows {
		out = append(out, AvailableSlots(w, duration, step, busy, notBefore)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Union merges several ascending slot lists, dropping duplicates.
func Union(lists ...[]time.Time) []time.Time {
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, list := range lists {
		for _, t := range list {
			k := t.UnixNano()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Fits reports whether [start, end) lies inside one window and clear of busy.
func Fits(windows []Interval, busy []Interval, start, end time.Time) bool {
	candidate := Interval{Start: start, End: end}
	inside := false
	for _, w := range windows {
		if w.Contains(candidate) {
			inside = true
			break
		}
	}
	return inside && !overlapsAny(candidate, busy)
}

// DropBefore removes starts earlier than notBefore.
func DropBefore(slots []time.Time, notBefore time.Time) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, t := range slots {
		if !t.Before(notBefore) {
			out = append(out, t)
		}
	}
	return out
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
