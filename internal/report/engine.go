package report

import (
	"context"
	"log"
	"time"

	"filmtrack/backend/internal/cache"
)

const (
	KeyCosts     = "costs"
	KeyDashboard = "dashboard"
	KeyStock     = "stock"
	KeyLowStock  = "low-stock"
)

var allKeys = []string{KeyCosts, KeyDashboard, KeyStock, KeyLowStock}

// Engine serves rollups through a read-through cache. Service writes call
// Invalidate so the next read rebuilds.
type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Engine{cache: cacheStore, cacheTTL: cacheTTL}
}

// Load returns the cached value for key or builds and caches it. Cache
// failures are logged and never fail the request.
func Load[T any](ctx context.Context, e *Engine, key string, build func(context.Context) (T, error)) (T, error) {
	var cached T
	if ok, err := e.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[report] WARN: cache get %s failed: %v", key, err)
	}

	value, err := build(ctx)
	if err != nil {
		return value, err
	}
	if err := e.cache.Set(ctx, key, value, e.cacheTTL); err != nil {
		log.Printf("[report] WARN: cache set %s failed: %v", key, err)
	}
	return value, nil
}

func (e *Engine) Invalidate(ctx context.Context) {
	if err := e.cache.Delete(ctx, allKeys...); err != nil {
		log.Printf("[report] WARN: cache invalidate failed: %v", err)
	}
}
