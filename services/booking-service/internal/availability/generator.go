package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/model"
)

type Catalog interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetProfessional(ctx context.Context, businessID, professionalID string) (model.Professional, error)
	ListProfessionals(ctx context.Context, businessID string) ([]model.Professional, error)
}

// Occupancy returns the intervals of non-cancelled appointments overlapping
// window, keyed by professional id. Business-level appointments use "".
type Occupancy interface {
	Occupied(ctx context.Context, businessID string, window Interval) (map[string][]Interval, error)
}

// Cache stores untruncated results; Generator re-applies the past-time cut
// on every hit. Set must write under the version Get reported, so a result
// computed before an invalidation is never served after it.
type Cache interface {
	Get(ctx context.Context, q Query) (Lookup, error)
	Set(ctx context.Context, q Query, version int64, r Result) error
}

// Lookup is a cache read. Version is the cache generation the read observed.
type Lookup struct {
	Result  Result
	Hit     bool
	Version int64
}

type Query struct {
	BusinessID         string
	ProfessionalID     string
	Date               string
	DurationMinutes    int
	GranularityMinutes int
}

type Result struct {
	Date     string      `json:"date"`
	Timezone string      `json:"timezone"`
	Slots    []time.Time `json:"slots"`
	Reason   Reason      `json:"reason,omitempty"`
}

type Generator struct {
	catalog     Catalog
	occupancy   Occupancy
	cache       Cache
	logger      *slog.Logger
	granularity int
	now         func() time.Time
}

func NewGenerator(catalog Catalog, occupancy Occupancy, cache Cache, logger *slog.Logger, defaultGranularityMinutes int) *Generator {
	if defaultGranularityMinutes <= 0 {
		defaultGranularityMinutes = 30
	}
	return &Generator{
		catalog:     catalog,
		occupancy:   occupancy,
		cache:       cache,
		logger:      logger,
		granularity: defaultGranularityMinutes,
		now:         time.Now,
	}
}

// Generate lists bookable start times for the query's business-local date.
// A nil ProfessionalID means any professional: a slot is listed when at
// least one professional can take it.
func (g *Generator) Generate(ctx context.Context, q Query) (Result, error) {
	if q.DurationMinutes <= 0 {
		return Result{}, apperr.Invalid("service_duration", "must be greater than zero")
	}
	if q.GranularityMinutes < 0 {
		return Result{}, apperr.Invalid("granularity", "must be greater than zero")
	}
	b, err := g.catalog.GetBusiness(ctx, q.BusinessID)
	if err != nil {
		return Result{}, err
	}
	if q.GranularityMinutes == 0 {
		q.GranularityMinutes = b.SlotGranularityMinutes
	}
	if q.GranularityMinutes <= 0 {
		q.GranularityMinutes = g.granularity
	}
	loc, err := b.Location()
	if err != nil {
		return Result{}, fmt.Errorf("business timezone: %w", err)
	}
	day, err := ParseDate(q.Date, loc)
	if err != nil {
		return Result{}, apperr.Invalid("date", "must be YYYY-MM-DD")
	}

	look, cacheable := g.cached(ctx, q)
	res := look.Result
	if !look.Hit {
		res, err = g.compute(ctx, b, q, day)
		if err != nil {
			return Result{}, err
		}
		if cacheable {
			if err := g.cache.Set(ctx, q, look.Version, res); err != nil {
				g.logger.Warn("slot cache write failed", "business_id", q.BusinessID, "err", err)
			}
		}
	}
	res.Slots = DropBefore(res.Slots, g.now())
	return res, nil
}

// cached reports false when the result must not be written back: no cache,
// or a failed read whose version is unknown.
func (g *Generator) cached(ctx context.Context, q Query) (Lookup, bool) {
	if g.cache == nil {
		return Lookup{}, false
	}
	look, err := g.cache.Get(ctx, q)
	if err != nil {
		g.logger.Warn("slot cache read failed", "business_id", q.BusinessID, "err", err)
		return Lookup{}, false
	}
	return look, true
}

func (g *Generator) compute(ctx context.Context, b model.Business, q Query, day time.Time) (Result, error) {
	res := Result{Date: FormatDate(day), Timezone: day.Location().String(), Slots: []time.Time{}}
	duration := time.Duration(q.DurationMinutes) * time.Minute
	step := time.Duration(q.GranularityMinutes) * time.Minute

	if q.ProfessionalID != "" {
		p, err := g.catalog.GetProfessional(ctx, b.ID, q.ProfessionalID)
		if err != nil {
			return Result{}, err
		}
		windows, reason := ProfessionalHours(p, day)
		if reason != ReasonNone {
			res.Reason = reason
			return res, nil
		}
		occupied, err := g.occupancy.Occupied(ctx, b.ID, DayBounds(day))
		if err != nil {
			return Result{}, err
		}
		res.Slots = SlotsForWindows(windows, duration, step, occupied[p.ID], time.Time{})
		return res, nil
	}

	pros, err := g.catalog.ListProfessionals(ctx, b.ID)
	if err != nil {
		return Result{}, err
	}
	windows, reason := BusinessHours(b, day)
	if reason != ReasonNone {
		res.Reason = reason
		return res, nil
	}
	occupied, err := g.occupancy.Occupied(ctx, b.ID, DayBounds(day))
	if err != nil {
		return Result{}, err
	}
	if len(pros) == 0 {
		res.Slots = SlotsForWindows(windows, duration, step, occupied[""], time.Time{})
		return res, nil
	}

	var lists [][]time.Time
	for _, p := range pros {
		pw, reason := ProfessionalHours(p, day)
		if reason != ReasonNone {
			continue
		}
		lists = append(lists, SlotsForWindows(pw, duration, step, occupied[p.ID], time.Time{}))
	}
	if len(lists) == 0 {
		res.Reason = ReasonNotScheduled
		return res, nil
	}
	if merged := Union(lists...); merged != nil {
		res.Slots = merged
	}
	return res, nil
}

// Candidates returns the professionals free for [start, end), least busy
// that day first, ties broken by id.
func (g *Generator) Candidates(ctx context.Context, b model.Business, start, end time.Time) ([]model.Professional, error) {
	pros, err := g.catalog.ListProfessionals(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	loc, err := b.Location()
	if err != nil {
		return nil, fmt.Errorf("business timezone: %w", err)
	}
	day := DayBounds(start.In(loc))
	occupied, err := g.occupancy.Occupied(ctx, b.ID, day)
	if err != nil {
		return nil, err
	}

	var free []model.Professional
	for _, p := range pros {
		windows, reason := ProfessionalHours(p, day.Start)
		if reason != ReasonNone {
			continue
		}
		if Fits(windows, occupied[p.ID], start, end) {
			free = append(free, p)
		}
	}
	sort.SliceStable(free, func(i, j int) bool {
		li, lj := len(occupied[free[i].ID]), len(occupied[free[j].ID])
		if li != lj {
			return li < lj
		}
		return free[i].ID < free[j].ID
	})
	return free, nil
}

// AvailableProfessionals answers "who can take this exact slot", with start
// given as a business-local HH:MM on date.
func (g *Generator) AvailableProfessionals(ctx context.Context, businessID, date, startClock string, durationMinutes int) ([]model.Professional, error) {
	if durationMinutes <= 0 {
		return nil, apperr.Invalid("service_duration", "must be greater than zero")
	}
	b, err := g.catalog.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	start, err := LocalStart(b, date, startClock)
	if err != nil {
		return nil, err
	}
	if start.Before(g.now()) {
		return []model.Professional{}, nil
	}
	return g.Candidates(ctx, b, start, start.Add(time.Duration(durationMinutes)*time.Minute))
}

// LocalStart resolves a business-local date and HH:MM clock to an instant.
func LocalStart(b model.Business, date, startClock string) (time.Time, error) {
	loc, err := b.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("business timezone: %w", err)
	}
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, apperr.Invalid("date", "must be YYYY-MM-DD")
	}
	minutes, err := model.ParseClock(startClock)
	if err != nil || minutes >= 24*60 {
		return time.Time{}, apperr.Invalid("start_time", "must be HH:MM")
	}
	return clock(day, minutes), nil
}
