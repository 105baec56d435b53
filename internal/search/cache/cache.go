// Package cache memoizes search responses in Redis. A singleflight
// group collapses concurrent misses for the same key so a popular query
// hits the store once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kontext/clipsearch/internal/search"
	"github.com/kontext/clipsearch/internal/tokenizer"
	"github.com/kontext/clipsearch/pkg/config"
	"github.com/kontext/clipsearch/pkg/metrics"
	"github.com/kontext/clipsearch/pkg/redis"
)

const (
	keyPrefix  = "clipsearch:query:"
	defaultTTL = 5 * time.Minute
)

// Searcher is the fragment of the search service the cache fronts.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Response, error)
}

// QueryCache wraps a Searcher with a Redis read-through cache.
type QueryCache struct {
	inner   Searcher
	redis   *redis.Client
	cfg     config.SearchConfig
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(inner Searcher, client *redis.Client, cfg config.SearchConfig, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *QueryCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &QueryCache{inner: inner, redis: client, cfg: cfg, ttl: ttl, metrics: m, logger: logger}
}

// Search serves from Redis when possible, otherwise runs the inner
// search exactly once per key and stores the result. Cache failures
// degrade to an uncached search rather than an error.
func (c *QueryCache) Search(ctx context.Context, params search.Params) (*search.Response, error) {
	key := c.key(params)

	if cached, ok := c.lookup(ctx, key); ok {
		c.countHit()
		return cached, nil
	}
	c.countMiss()

	value, err, _ := c.group.Do(key, func() (any, error) {
		response, err := c.inner.Search(ctx, params)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, response)
		return response, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*search.Response), nil
}

// Invalidate drops every cached query response. Called when ingestion
// finishes a video, since any cached result set may now be stale.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	deleted, err := c.redis.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("flushing query cache: %w", err)
	}
	c.logger.InfoContext(ctx, "query cache invalidated", "deleted_keys", deleted)
	return nil
}

func (c *QueryCache) lookup(ctx context.Context, key string) (*search.Response, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		if !redis.IsNilError(err) {
			c.logger.WarnContext(ctx, "cache lookup failed", "error", err)
		}
		return nil, false
	}
	var response search.Response
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key, "error", err)
		_ = c.redis.Del(ctx, key)
		return nil, false
	}
	return &response, true
}

func (c *QueryCache) put(ctx context.Context, key string, response *search.Response) {
	if c.redis == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, payload, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "cache store failed", "error", err)
	}
}

// key hashes the normalized query and the clamped knobs so
// spelling-equivalent queries and parameter spellings of the same
// effective search share one entry.
func (c *QueryCache) key(params search.Params) string {
	normalized := strings.Join(tokenizer.TokenizeQuery(params.Query), " ")
	limit := search.ClampLimit(params.Limit, c.cfg)
	preroll := search.ClampPreroll(params.PrerollSec, c.cfg)
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%g", normalized, limit, preroll))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

func (c *QueryCache) countHit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) countMiss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
