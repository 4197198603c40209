package model

import (
	"fmt"
	"sort"
	"time"
)

// TimeRange is a [Start, End) span of minutes since local midnight.
type TimeRange struct {
	Start int
	End   int
}

func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.End <= 24*60 && r.Start < r.End
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as end of day.
func ParseClock(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

type DayHours struct {
	Closed bool
	Ranges []TimeRange
}

// WeeklySchedule maps a weekday to its hours. A missing weekday means the
// owner does not work that day.
type WeeklySchedule map[time.Weekday]DayHours

// Validate checks every range and, when complete is set, that all seven
// weekdays are present.
func (s WeeklySchedule) Validate(complete bool) error {
	if complete && len(s) != 7 {
		return fmt.Errorf("schedule must have 7 weekday entries, got %d", len(s))
	}
	for day, hours := range s {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("invalid weekday %d", day)
		}
		if hours.Closed {
			continue
		}
		if len(hours.Ranges) == 0 {
			return fmt.Errorf("%s: open day without hours", day)
		}
		ranges := append([]TimeRange(nil), hours.Ranges...)
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
		for i, r := range ranges {
			if !r.Valid() {
				return fmt.Errorf("%s: open time must be before close time", day)
			}
			if i > 0 && r.Start < ranges[i-1].End {
				return fmt.Errorf("%s: overlapping ranges", day)
			}
		}
	}
	return nil
}

type Business struct {
	ID                     string
	Slug                   string
	Name                   string
	Timezone               string
	Schedule               WeeklySchedule
	DepositPercent         int
	GatewayAccount         string
	AutoConfirmOnDeposit   bool
	SlotGranularityMinutes int
}

// Location falls back to UTC for an empty timezone.
func (b Business) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Timezone)
}

func (b Business) GatewayLinked() bool {
	return b.GatewayAccount != ""
}

type Professional struct {
	ID            string
	BusinessID    string
	Name          string
	Schedule      WeeklySchedule
	CommissionBps int
	Active        bool
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	PriceCents      int64
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Client struct {
	ID         string
	BusinessID string
	Name       string
	Contact    string
	ExternalID string
}
