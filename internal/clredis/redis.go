package clredis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"littletrack/internal/models/clconfig"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "littletrack"
	dayFormat      = "2006-01-02"
	pageviewsField = "page_views"
	sightingsField = "sightings"
)

// DayCounts are the live counters of one day.
type DayCounts struct {
	Day            string `json:"day"`
	Sightings      int64  `json:"sightings"`
	PageViews      int64  `json:"page_views"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// CounterStore keeps per-day counters of sightings, pageviews and
// distinct visitors.
type CounterStore interface {
	Hit(ctx context.Context, day time.Time, visitor string, pageview bool) error
	Day(ctx context.Context, day time.Time) (DayCounts, error)
}

// Open connects to redis. It returns nil when no address is configured.
func Open(ctx context.Context, cfg clconfig.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.Db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewStore returns a redis backed store, or an in-process one when client
// is nil.
func NewStore(client *redis.Client) CounterStore {
	if client == nil {
		return NewMemStore()
	}
	return New(client)
}

type RedisStore struct {
	client     *redis.Client
	expiration time.Duration
}

func New(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:     client,
		expiration: 31 * 24 * time.Hour,
	}
}

func dailyKey(day time.Time) string {
	return keyPrefix + ":daily:" + day.Format(dayFormat)
}

func visitorsKey(day time.Time) string {
	return keyPrefix + ":visitors:" + day.Format(dayFormat)
}

func (r *RedisStore) Hit(ctx context.Context, day time.Time, visitor string, pageview bool) error {
	daily := dailyKey(day)
	visitors := visitorsKey(day)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, daily, sightingsField, 1)
		if pageview {
			pipe.HIncrBy(ctx, daily, pageviewsField, 1)
		}
		pipe.Expire(ctx, daily, r.expiration)
		pipe.SAdd(ctx, visitors, visitor)
		pipe.Expire(ctx, visitors, r.expiration)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis counters: %w", err)
	}
	return nil
}

func (r *RedisStore) Day(ctx context.Context, day time.Time) (DayCounts, error) {
	counts := DayCounts{Day: day.Format(dayFormat)}

	fields, err := r.client.HMGet(ctx, dailyKey(day), sightingsField, pageviewsField).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return counts, err
	}
	counts.Sightings = parseCount(fields, 0)
	counts.PageViews = parseCount(fields, 1)

	counts.UniqueVisitors, err = r.client.SCard(ctx, visitorsKey(day)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return counts, err
	}
	return counts, nil
}

func parseCount(fields []any, i int) int64 {
	if i >= len(fields) {
		return 0
	}
	s, ok := fields[i].(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// MemStore is the fallback when no redis is configured. Counters are lost
// on restart.
type MemStore struct {
	mu       sync.Mutex
	days     map[string]*DayCounts
	visitors map[string]map[string]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		days:     make(map[string]*DayCounts),
		visitors: make(map[string]map[string]struct{}),
	}
}

func (m *MemStore) Hit(_ context.Context, day time.Time, visitor string, pageview bool) error {
	key := day.Format(dayFormat)

	m.mu.Lock()
	defer m.mu.Unlock()

	counts, ok := m.days[key]
	if !ok {
		counts = &DayCounts{Day: key}
		m.days[key] = counts
		m.visitors[key] = make(map[string]struct{})
	}
	counts.Sightings++
	if pageview {
		counts.PageViews++
	}
	m.visitors[key][visitor] = struct{}{}
	counts.UniqueVisitors = int64(len(m.visitors[key]))
	return nil
}

func (m *MemStore) Day(_ context.Context, day time.Time) (DayCounts, error) {
	key := day.Format(dayFormat)

	m.mu.Lock()
	defer m.mu.Unlock()

	if counts, ok := m.days[key]; ok {
		return *counts, nil
	}
	return DayCounts{Day: key}, nil
}
