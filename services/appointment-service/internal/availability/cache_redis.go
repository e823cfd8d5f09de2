package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache caches active windows per (doctor, weekday) as JSON.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

type cachedWindow struct {
	ID       string    `json:"id"`
	DoctorID string    `json:"doctor_id"`
	Weekday  Weekday   `json:"weekday"`
	Start    TimeOfDay `json:"start"`
	End      TimeOfDay `json:"end"`
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "avail", logger: logger}
}

// Entries are keyed by a per-doctor generation. Invalidate bumps the generation, so a
// read that raced an edit writes to a key nobody reads again.
func (c *RedisCache) key(doctorID string, version int64, weekday Weekday) string {
	return fmt.Sprintf("%s:%s:v%d:%d", c.prefix, doctorID, version, int(weekday))
}

func (c *RedisCache) genKey(doctorID string) string {
	return fmt.Sprintf("%s:%s:gen", c.prefix, doctorID)
}

func (c *RedisCache) version(ctx context.Context, doctorID string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.genKey(doctorID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// Get returns the cached windows and the generation they belong to. On a miss the
// generation is still returned so the caller can pass it to Set.
func (c *RedisCache) Get(ctx context.Context, doctorID string, weekday Weekday) ([]Window, int64, bool) {
	version, err := c.version(ctx, doctorID)
	if err != nil {
		c.logger.Warn("availability cache read failed", "err", err, "doctor_id", doctorID)
		return nil, -1, false
	}
	raw, err := c.rdb.Get(ctx, c.key(doctorID, version, weekday)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("availability cache read failed", "err", err, "doctor_id", doctorID)
		}
		return nil, version, false
	}
	var cached []cachedWindow
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.Warn("availability cache entry corrupt", "err", err, "doctor_id", doctorID)
		return nil, version, false
	}
	out := make([]Window, 0, len(cached))
	for _, cw := range cached {
		out = append(out, Window{ID: cw.ID, DoctorID: cw.DoctorID, Weekday: cw.Weekday, Start: cw.Start, End: cw.End, Active: true})
	}
	return out, version, true
}

// Set stores windows under the generation observed by Get. A negative version skips the write.
func (c *RedisCache) Set(ctx context.Context, doctorID string, weekday Weekday, version int64, windows []Window) {
	if version < 0 {
		return
	}
	cached := make([]cachedWindow, 0, len(windows))
	for _, w := range windows {
		cached = append(cached, cachedWindow{ID: w.ID, DoctorID: w.DoctorID, Weekday: w.Weekday, Start: w.Start, End: w.End})
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(doctorID, version, weekday), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "err", err, "doctor_id", doctorID)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, doctorID string) {
	if err := c.rdb.Incr(ctx, c.genKey(doctorID)).Err(); err != nil {
		c.logger.Warn("availability cache invalidate failed", "err", err, "doctor_id", doctorID)
	}
}
