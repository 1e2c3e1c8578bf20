package cache

import (
	"context"
	"time"
)

// ReportCache stores JSON-encoded report snapshots. A miss is reported as
// (false, nil); only transport or decode failures return an error.
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
