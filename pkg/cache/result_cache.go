package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_result_cache_hits_total",
		Help: "Number of analytics results served from cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_result_cache_misses_total",
		Help: "Number of analytics results that required computation",
	})
)

// ResultKey identifies one cached analytics result.
type ResultKey struct {
	UserID    int64
	Operation string
	Start     time.Time
	End       time.Time
	Frequency string
	Benchmark string
}

// String renders the Redis key. The user ID segment comes right after the
// prefix so InvalidateUser can match on it.
func (k ResultKey) String() string {
	return fmt.Sprintf("analytics:%d:%s:%s:%s:%s:%s",
		k.UserID, k.Operation, k.Start.UTC().Format("2006-01-02"), k.End.UTC().Format("2006-01-02"), k.Frequency, k.Benchmark)
}

// ResultCache memoizes expensive analytics computations with a TTL and a
// single-flight guarantee: concurrent misses on the same key run the
// computation exactly once. Storage failures degrade to direct computation;
// they are logged, never surfaced to the caller.
type ResultCache struct {
	store  Store
	group  singleflight.Group
	ttl    time.Duration
	logger *logrus.Logger
}

// NewResultCache creates a result cache with the given default TTL.
func NewResultCache(store Store, ttl time.Duration, logger *logrus.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// GetOrCompute returns the cached result for key into dest, or runs compute
// exactly once across concurrent callers, publishing the result only after
// the computation fully completes.
func (c *ResultCache) GetOrCompute(ctx context.Context, key ResultKey, dest interface{}, compute func(ctx context.Context) (interface{}, error)) error {
	cacheKey := key.String()

	if err := c.store.Get(ctx, cacheKey, dest); err == nil {
		cacheHits.Inc()
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		c.logger.WithError(err).Warn("Result cache read failed, computing directly")
	}

	cacheMisses.Inc()

	value, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, cacheKey, result, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Result cache write failed, serving uncached result")
		}
		return result, nil
	})
	if err != nil {
		return err
	}

	return assign(value, dest)
}

// InvalidateUser drops every cached result for a user, regardless of TTL.
// Called when a new snapshot is ingested.
func (c *ResultCache) InvalidateUser(ctx context.Context, userID int64) error {
	pattern := fmt.Sprintf("analytics:%d:*", userID)
	if err := c.store.DeleteByPattern(ctx, pattern); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("Result cache invalidation failed")
		return err
	}
	return nil
}

// assign copies a computed value into the caller's destination through a
// JSON round-trip, matching the shape a cache hit would produce.
func assign(value, dest interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal computed result: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to copy computed result: %w", err)
	}
	return nil
}
