package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/its333/NoStressPlanner-sub000/internal/logger"
	"github.com/its333/NoStressPlanner-sub000/internal/metrics"
	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

const (
	tierShared = "shared"
	tierLocal  = "local"
)

// ViewCache memoizes composite event views per viewer fingerprint. Reads
// probe the shared tier first and fall back to the local tier; a mutation
// anywhere invalidates every fingerprint of the event at once, because one
// attendee's change alters what every other viewer should see.
//
// The cache is an optimization only: every failure path degrades to a
// recompute, never to an error.
type ViewCache interface {
	GetView(ctx context.Context, eventToken, fingerprint string) (*models.EventView, bool)
	SetView(ctx context.Context, eventToken, fingerprint string, view *models.EventView)
	InvalidateEvent(ctx context.Context, eventToken, operation string)
	Close()
}

type viewCache struct {
	shared  *redis.Client // nil when no shared tier is configured
	local   *LocalStore
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewViewCache creates the two-tier cache. shared may be nil, in which case
// only the local tier serves.
func NewViewCache(shared *redis.Client, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) ViewCache {
	return &viewCache{
		shared:  shared,
		local:   NewLocalStore(ttl),
		ttl:     ttl,
		log:     log,
		metrics: m,
	}
}

func viewKey(eventToken, fingerprint string) string {
	return fmt.Sprintf("view:%s:%s", eventToken, fingerprint)
}

func eventKeyPrefix(eventToken string) string {
	return fmt.Sprintf("view:%s:", eventToken)
}

func (c *viewCache) GetView(ctx context.Context, eventToken, fingerprint string) (*models.EventView, bool) {
	key := viewKey(eventToken, fingerprint)

	if c.shared != nil {
		raw, err := c.shared.Get(ctx, key).Bytes()
		if err == nil {
			if view := decodeView(raw); view != nil {
				c.metrics.RecordCacheLookup(tierShared, true)
				return view, true
			}
		} else if err != redis.Nil {
			c.log.WithEvent(eventToken).WithError(err).Warn("shared cache read failed")
		}
		c.metrics.RecordCacheLookup(tierShared, false)
	}

	if raw, ok := c.local.Get(key); ok {
		if view := decodeView(raw); view != nil {
			c.metrics.RecordCacheLookup(tierLocal, true)
			return view, true
		}
	}
	c.metrics.RecordCacheLookup(tierLocal, false)
	return nil, false
}

func (c *viewCache) SetView(ctx context.Context, eventToken, fingerprint string, view *models.EventView) {
	// an abandoned request must not publish a possibly half-built view
	if ctx.Err() != nil {
		return
	}

	raw, err := json.Marshal(view)
	if err != nil {
		c.log.WithEvent(eventToken).WithError(err).Warn("failed to encode view for cache")
		return
	}

	key := viewKey(eventToken, fingerprint)
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.WithEvent(eventToken).WithError(err).Warn("shared cache write failed")
		}
	}
	c.local.Set(key, raw, c.ttl)
}

func (c *viewCache) InvalidateEvent(ctx context.Context, eventToken, operation string) {
	prefix := eventKeyPrefix(eventToken)
	c.local.DeleteByPrefix(prefix)

	if c.shared != nil {
		if err := c.deleteSharedByPrefix(ctx, prefix); err != nil {
			// a stale read is tolerable; failing the mutation would not be
			c.log.WithEvent(eventToken).WithField("operation", operation).WithError(err).Warn("shared cache invalidation failed")
		}
	}

	c.metrics.CacheInvalidations.WithLabelValues(operation).Inc()
}

func (c *viewCache) deleteSharedByPrefix(ctx context.Context, prefix string) error {
	iter := c.shared.Scan(ctx, 0, prefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.shared.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

func (c *viewCache) Close() {
	c.local.Close()
}

func decodeView(raw []byte) *models.EventView {
	view := &models.EventView{}
	if err := json.Unmarshal(raw, view); err != nil {
		return nil
	}
	return view
}
