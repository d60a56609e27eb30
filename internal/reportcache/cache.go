package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"deptportal/internal/attendance"
)

// Cache keeps computed student reports in Redis so the read path does not
// rescan sessions on every request. It is advisory: callers recompute on
// any miss or decode failure.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache with the given entry TTL.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func key(studentID string) string {
	return "deptportal:report:" + studentID
}

// Get returns the cached report for a student, or (nil, false) on miss.
func (c *Cache) Get(ctx context.Context, studentID string) ([]attendance.ReportEntry, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(studentID)).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []attendance.ReportEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// Put stores a computed report.
func (c *Cache) Put(ctx context.Context, studentID string, entries []attendance.ReportEntry) error {
	if c == nil || c.client == nil {
		return errors.New("cache not configured")
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(studentID), raw, c.ttl).Err()
}

// Invalidate drops a student's cached report.
func (c *Cache) Invalidate(ctx context.Context, studentID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key(studentID)).Err()
}
