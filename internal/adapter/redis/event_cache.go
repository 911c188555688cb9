package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const eventCacheTTL = 1 * time.Hour

// EventCache is a read-through cache for event schedules in front of the document store:
// in-memory first, then Redis, then the wrapped repository. LoadEvent is not cached; it
// carries the comment graph, which the comment store keeps itself.
type EventCache struct {
	rdb     goredis.Cmdable
	events  domain.EventRepository
	mem     *memoryCache
	ttl     time.Duration
	metrics *metrics.RedisMetrics
}

// EventCacheOption configures an EventCache.
type EventCacheOption func(*EventCache)

// WithRedisTTL overrides how long schedules stay in Redis. Non-positive values are ignored.
func WithRedisTTL(ttl time.Duration) EventCacheOption {
	return func(c *EventCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewEventCache wraps events. memTTL bounds how stale an in-process entry may get; redisMetrics may be nil.
func NewEventCache(rdb goredis.Cmdable, events domain.EventRepository, clock clockwork.Clock, memTTL time.Duration, redisMetrics *metrics.RedisMetrics, opts ...EventCacheOption) *EventCache {
	c := &EventCache{
		rdb:     rdb,
		events:  events,
		mem:     newMemoryCache(clock, memTTL),
		ttl:     eventCacheTTL,
		metrics: redisMetrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartEvictionTimer periodically drops expired in-memory entries. Call the returned
// function to stop it.
func (c *EventCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.mem.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired event cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}

func (c *EventCache) GetEvent(ctx context.Context, ref domain.EventRef) (*domain.Event, error) {
	if event, ok := c.mem.get(ref); ok {
		c.hit("memory")
		return &event, nil
	}

	if event, ok := c.getCached(ctx, ref); ok {
		c.hit("redis")
		c.mem.set(ref, event)
		return &event, nil
	}

	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	event, err := c.events.GetEvent(ctx, ref)
	if err != nil {
		return nil, err
	}

	c.mem.set(ref, *event)
	c.writeCache(ctx, *event)
	return event, nil
}

func (c *EventCache) LoadEvent(ctx context.Context, ref domain.EventRef) (*domain.LoadedEvent, error) {
	return c.events.LoadEvent(ctx, ref)
}

func (c *EventCache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(layer).Inc()
	}
}

type cachedEvent struct {
	Kind        domain.EventKind `json:"kind"`
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	ScheduledAt time.Time        `json:"scheduledAt"`
	TimeOfDay   string           `json:"timeOfDay,omitempty"`
	Override    domain.Override  `json:"override"`
}

func (c *EventCache) writeCache(ctx context.Context, event domain.Event) {
	encoded, err := json.Marshal(cachedEvent{
		Kind:        event.Ref.Kind,
		ID:          event.Ref.ID,
		Title:       event.Title,
		ScheduledAt: event.ScheduledAt,
		TimeOfDay:   event.TimeOfDay,
		Override:    event.Override,
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to marshal event for Redis cache", "event", event.Ref.String(), "error", err)
		return
	}

	if err := c.rdb.Set(ctx, eventCacheKey(event.Ref), encoded, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to populate Redis event cache", "event", event.Ref.String(), "error", err)
	}
}

func (c *EventCache) getCached(ctx context.Context, ref domain.EventRef) (domain.Event, bool) {
	data, err := c.rdb.Get(ctx, eventCacheKey(ref)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Redis event cache GET failed", "event", ref.String(), "error", err)
		}
		return domain.Event{}, false
	}

	var cached cachedEvent
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached event", "event", ref.String(), "error", err)
		return domain.Event{}, false
	}

	return domain.Event{
		Ref:         domain.EventRef{Kind: cached.Kind, ID: cached.ID},
		Title:       cached.Title,
		ScheduledAt: cached.ScheduledAt,
		TimeOfDay:   cached.TimeOfDay,
		Override:    domain.ParseOverride(string(cached.Override)),
	}, true
}

func eventCacheKey(ref domain.EventRef) string {
	return "event_cache:" + string(ref.Kind) + ":" + ref.ID
}

// memoryCache is an in-memory L1 cache with TTL-based expiry.
type memoryCache struct {
	clock   clockwork.Clock
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[domain.EventRef]memoryCacheEntry
}

type memoryCacheEntry struct {
	event     domain.Event
	expiresAt time.Time
}

func newMemoryCache(clock clockwork.Clock, ttl time.Duration) *memoryCache {
	return &memoryCache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[domain.EventRef]memoryCacheEntry),
	}
}

func (c *memoryCache) get(ref domain.EventRef) (domain.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[ref]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return domain.Event{}, false
	}
	return entry.event, true
}

func (c *memoryCache) set(ref domain.EventRef, event domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ref] = memoryCacheEntry{event: event, expiresAt: c.clock.Now().Add(c.ttl)}
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for ref, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, ref)
			evicted++
		}
	}
	return evicted
}
