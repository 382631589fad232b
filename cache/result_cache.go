// Package cache keeps completed analysis results in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"pushlytics/api/analytics"
	"pushlytics/api/logging"
	"pushlytics/api/metrics"
	"pushlytics/api/models"
)

const keyPrefix = "analytics:"

var errMiss = errors.New("cache miss")

// kv is the byte store behind the cache.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisKV struct {
	client *redis.Client
}

func (r redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errMiss
	}
	return b, err
}

func (r redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// ResultCache wraps an Analyzer and serves repeated requests from Redis.
// Degraded results and requests relative to "now" are never cached. Cache
// failures fall through to the wrapped analyzer.
type ResultCache struct {
	next analytics.Analyzer
	kv   kv
	ttl  time.Duration
}

var _ analytics.Analyzer = (*ResultCache)(nil)

func NewResultCache(next analytics.Analyzer, client *redis.Client, ttl time.Duration) *ResultCache {
	return newResultCache(next, redisKV{client: client}, ttl)
}

func newResultCache(next analytics.Analyzer, store kv, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{next: next, kv: store, ttl: ttl}
}

func (c *ResultCache) AnalyzeFunnel(ctx context.Context, req analytics.FunnelRequest) (*models.FunnelAnalysisResult, error) {
	if req.Range.End.IsZero() {
		return c.next.AnalyzeFunnel(ctx, req)
	}
	key := cacheKey(analytics.KindFunnel, req.OrgID, req.Hash())

	var cached models.FunnelAnalysisResult
	if c.load(ctx, analytics.KindFunnel, key, &cached) {
		cached.Metadata.Cached = true
		return &cached, nil
	}

	result, err := c.next.AnalyzeFunnel(ctx, req)
	if err != nil || result.Degraded {
		return result, err
	}
	c.store(ctx, key, result)
	return result, nil
}

func (c *ResultCache) AnalyzeCohort(ctx context.Context, req analytics.CohortRequest) (*models.CohortAnalysisResult, error) {
	if req.Definition.Range.End.IsZero() {
		return c.next.AnalyzeCohort(ctx, req)
	}
	key := cacheKey(analytics.KindCohort, req.OrgID, req.Hash())

	var cached models.CohortAnalysisResult
	if c.load(ctx, analytics.KindCohort, key, &cached) {
		cached.Metadata.Cached = true
		return &cached, nil
	}

	result, err := c.next.AnalyzeCohort(ctx, req)
	if err != nil || result.Degraded {
		return result, err
	}
	c.store(ctx, key, result)
	return result, nil
}

func (c *ResultCache) AnalyzePaths(ctx context.Context, req analytics.PathRequest) (*models.PathAnalysisResult, error) {
	return c.next.AnalyzePaths(ctx, req)
}

func cacheKey(kind analytics.AnalysisKind, orgID, hash string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, kind, orgID, hash)
}

func (c *ResultCache) load(ctx context.Context, kind analytics.AnalysisKind, key string, dst any) bool {
	raw, err := c.kv.Get(ctx, key)
	switch {
	case errors.Is(err, errMiss):
		metrics.RecordCacheLookup(string(kind), metrics.CacheMiss)
		return false
	case err != nil:
		metrics.RecordCacheLookup(string(kind), metrics.CacheError)
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("result cache read failed")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.RecordCacheLookup(string(kind), metrics.CacheError)
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return false
	}
	metrics.RecordCacheLookup(string(kind), metrics.CacheHit)
	return true
}

func (c *ResultCache) store(ctx context.Context, key string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to encode result for cache")
		return
	}
	if err := c.kv.Set(ctx, key, raw, c.ttl); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("result cache write failed")
	}
}
