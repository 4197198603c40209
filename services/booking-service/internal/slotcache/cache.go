package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/agenda/services/booking-service/internal/availability"
)

// Version keys outlive any cached entry so a bump is never lost to expiry.
const versionTTL = 7 * 24 * time.Hour

// Cache stores slot query results in Redis. Entries are keyed under a
// per-(business, date) version; Invalidate bumps the version, orphaning
// every entry written before it.
type Cache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
}

func New(client redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{redis: client, ttl: ttl, prefix: "agenda:slots"}
}

func (c *Cache) versionKey(businessID, date string) string {
	return fmt.Sprintf("%s:ver:%s:%s", c.prefix, businessID, date)
}

func (c *Cache) entryKey(q availability.Query, version int64) string {
	prof := q.ProfessionalID
	if prof == "" {
		prof = "*"
	}
	return fmt.Sprintf("%s:%s:%s:v%d:%s:%d:%d", c.prefix, q.BusinessID, q.Date, version, prof, q.DurationMinutes, q.GranularityMinutes)
}

func (c *Cache) version(ctx context.Context, businessID, date string) (int64, error) {
	v, err := c.redis.Get(ctx, c.versionKey(businessID, date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get reports the version it read alongside the entry. Pass that version
// to Set so a result computed before an Invalidate lands under the
// orphaned version.
func (c *Cache) Get(ctx context.Context, q availability.Query) (availability.Lookup, error) {
	v, err := c.version(ctx, q.BusinessID, q.Date)
	if err != nil {
		return availability.Lookup{}, err
	}
	look := availability.Lookup{Version: v}
	data, err := c.redis.Get(ctx, c.entryKey(q, v)).Bytes()
	if errors.Is(err, redis.Nil) {
		return look, nil
	}
	if err != nil {
		return availability.Lookup{}, err
	}
	if err := json.Unmarshal(data, &look.Result); err != nil {
		return availability.Lookup{}, fmt.Errorf("decode cached slots: %w", err)
	}
	look.Hit = true
	return look, nil
}

func (c *Cache) Set(ctx context.Context, q availability.Query, version int64, res availability.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, c.entryKey(q, version), data, c.ttl).Err()
}

// Invalidate bumps the version of each date for businessID.
func (c *Cache) Invalidate(ctx context.Context, businessID string, dates ...string) error {
	if len(dates) == 0 {
		return nil
	}
	_, err := c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, d := range dates {
			key := c.versionKey(businessID, d)
			p.Incr(ctx, key)
			p.Expire(ctx, key, versionTTL)
		}
		return nil
	})
	return err
}

// Dates lists the business-local dates an interval touches. end is
// exclusive.
func Dates(start, end time.Time, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	first := start.In(loc)
	last := end.In(loc)
	if end.After(start) {
		last = end.Add(-time.Nanosecond).In(loc)
	}
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	stop := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc)
	var out []string
	for !day.After(stop) {
		out = append(out, availability.FormatDate(day))
		day = day.AddDate(0, 0, 1)
	}
	return out
}
