// Package cache shares layout and statistics snapshots between the map
// sessions of one event through Redis. Payloads are msgpack encoded.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/venue-console/opmap/internal/filter"
	"github.com/venue-console/opmap/internal/models"
)

const keyPrefix = "opmap"

// DefaultTTL keeps snapshots short-lived: the backend stays the source of truth.
const DefaultTTL = 15 * time.Second

// store is the subset of *redis.Client the cache uses.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Snapshots is a Redis-backed snapshot cache. Cache failures are logged and
// treated as misses; they never fail a load.
type Snapshots struct {
	rdb    store
	ttl    time.Duration
	logger *slog.Logger
}

// NewSnapshots wraps a Redis client.
func NewSnapshots(rdb store, ttl time.Duration, logger *slog.Logger) *Snapshots {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshots{rdb: rdb, ttl: ttl, logger: logger}
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect dials Redis and pings it with a short timeout.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

func layoutKey(eventID string) string { return keyPrefix + ":layout:" + eventID }
func statsKey(eventID string) string  { return keyPrefix + ":stats:" + eventID }

// filterField names one server-side filter variant inside the layout hash.
func filterField(f models.LayoutFilter) string {
	f = filter.Normalize(f)
	status := "*"
	if f.Status != nil {
		status = f.Status.String()
	}
	return fmt.Sprintf("type=%s|status=%s|active=%t", f.AreaType, status, f.ActiveOnly)
}

// GetLayout returns the cached layout for an event and filter.
func (s *Snapshots) GetLayout(ctx context.Context, eventID string, f models.LayoutFilter) (*models.Layout, bool) {
	data, err := s.rdb.HGet(ctx, layoutKey(eventID), filterField(f)).Bytes()
	if err != nil {
		s.logMiss("layout", eventID, err)
		return nil, false
	}

	var layout models.Layout
	if err := decode(data, &layout); err != nil {
		s.logger.Warn("discarding undecodable cached layout", "event_id", eventID, "error", err)
		return nil, false
	}
	return &layout, true
}

// PutLayout stores a layout for an event and filter.
func (s *Snapshots) PutLayout(ctx context.Context, eventID string, f models.LayoutFilter, layout *models.Layout) {
	data, err := encode(layout)
	if err != nil {
		s.logger.Warn("encode layout for cache", "event_id", eventID, "error", err)
		return
	}

	key := layoutKey(eventID)
	if err := s.rdb.HSet(ctx, key, filterField(f), data).Err(); err != nil {
		s.logger.Warn("cache layout", "event_id", eventID, "error", err)
		return
	}
	if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.logger.Warn("expire cached layout", "event_id", eventID, "error", err)
	}
}

// GetStatistics returns the cached statistics of an event.
func (s *Snapshots) GetStatistics(ctx context.Context, eventID string) (*models.Statistics, bool) {
	data, err := s.rdb.Get(ctx, statsKey(eventID)).Bytes()
	if err != nil {
		s.logMiss("statistics", eventID, err)
		return nil, false
	}

	var stats models.Statistics
	if err := decode(data, &stats); err != nil {
		s.logger.Warn("discarding undecodable cached statistics", "event_id", eventID, "error", err)
		return nil, false
	}
	return &stats, true
}

// PutStatistics stores the statistics of an event.
func (s *Snapshots) PutStatistics(ctx context.Context, eventID string, stats *models.Statistics) {
	data, err := encode(stats)
	if err != nil {
		s.logger.Warn("encode statistics for cache", "event_id", eventID, "error", err)
		return
	}
	if err := s.rdb.Set(ctx, statsKey(eventID), data, s.ttl).Err(); err != nil {
		s.logger.Warn("cache statistics", "event_id", eventID, "error", err)
	}
}

// Invalidate drops every snapshot of an event.
func (s *Snapshots) Invalidate(ctx context.Context, eventID string) {
	if err := s.rdb.Del(ctx, layoutKey(eventID), statsKey(eventID)).Err(); err != nil {
		s.logger.Warn("invalidate cached snapshots", "event_id", eventID, "error", err)
	}
}

func (s *Snapshots) logMiss(kind, eventID string, err error) {
	if errors.Is(err, redis.Nil) {
		return
	}
	s.logger.Warn("read cached "+kind, "event_id", eventID, "error", err)
}

// encode uses the json field names so cached payloads match the API shape.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
