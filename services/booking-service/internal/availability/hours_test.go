package availability

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdays(open, close int) model.WeeklySchedule {
	s := model.WeeklySchedule{
		time.Saturday: {Closed: true},
		time.Sunday:   {Closed: true},
	}
	for d := time.Monday; d <= time.Friday; d++ {
		s[d] = model.DayHours{Ranges: []model.TimeRange{{Start: open, End: close}}}
	}
	return s
}

func TestBusinessHoursClosedDay(t *testing.T) {
	b := model.Business{Schedule: weekdays(540, 1080)}
	sunday := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	got, reason := BusinessHours(b, sunday)
	assert.Empty(t, got)
	assert.Equal(t, ReasonClosed, reason)

	got, reason = BusinessHours(b, sunday.AddDate(0, 0, 1))
	require.Len(t, got, 1)
	assert.Equal(t, ReasonNone, reason)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), got[0].Start)
	assert.Equal(t, time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), got[0].End)
}

func TestProfessionalHoursMissingEntryIsNotScheduled(t *testing.T) {
	p := model.Professional{Schedule: model.WeeklySchedule{
		time.Monday: {Ranges: []model.TimeRange{{Start: 780, End: 1080}, {Start: 540, End: 720}, {Start: 700, End: 760}}},
	}}

	_, reason := ProfessionalHours(p, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, ReasonNotScheduled, reason)

	got, reason := ProfessionalHours(p, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, ReasonNone, reason)
	require.Len(t, got, 2)
	assert.Equal(t, 9, got[0].Start.Hour())
	assert.Equal(t, 12, got[0].End.Hour())
	assert.Equal(t, 40, got[0].End.Minute())
	assert.Equal(t, 13, got[1].Start.Hour())
}

func TestHoursFollowBusinessTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	day, err := ParseDate("2026-03-02", loc)
	require.NoError(t, err)

	got, _ := BusinessHours(model.Business{Schedule: weekdays(540, 1080)}, day)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), got[0].Start.UTC())
}

func TestDayBounds(t *testing.T) {
	day := time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC)
	b := DayBounds(day)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), b.Start)
	assert.Equal(t, 24*time.Hour, b.End.Sub(b.Start))
}
