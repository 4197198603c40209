package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

// Reason explains an empty slot list that is not caused by occupancy.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonClosed       Reason = "closed"
	ReasonNotScheduled Reason = "not_scheduled"
)

const dateLayout = "2006-01-02"

// ParseDate returns local midnight of a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// DayBounds returns [midnight, next midnight) of day in its location.
func DayBounds(day time.Time) Interval {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

// BusinessHours resolves the business's open intervals on day. A closed or
// missing weekday yields ReasonClosed.
func BusinessHours(b model.Business, day time.Time) ([]Interval, Reason) {
	hours, ok := b.Schedule[day.Weekday()]
	if !ok || hours.Closed {
		return nil, ReasonClosed
	}
	out := toIntervals(day, hours.Ranges)
	if len(out) == 0 {
		return nil, ReasonClosed
	}
	return out, ReasonNone
}

// ProfessionalHours resolves a professional's open intervals on day. No entry
// for the weekday means the professional is not scheduled.
func ProfessionalHours(p model.Professional, day time.Time) ([]Interval, Reason) {
	hours, ok := p.Schedule[day.Weekday()]
	if !ok || hours.Closed {
		return nil, ReasonNotScheduled
	}
	out := toIntervals(day, hours.Ranges)
	if len(out) == 0 {
		return nil, ReasonNotScheduled
	}
	return out, ReasonNone
}

func toIntervals(day time.Time, ranges []model.TimeRange) []Interval {
	sorted := make([]model.TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var merged []model.TimeRange
	for _, r := range sorted {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}

	out := make([]Interval, 0, len(merged))
	for _, r := range merged {
		out = append(out, Interval{Start: clock(day, r.Start), End: clock(day, r.End)})
	}
	return out
}

// clock builds the wall-clock instant so DST shifts land on the right hour.
func clock(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}
