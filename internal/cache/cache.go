package cache

import (
	"context"
	"time"

	"buysell/backend/internal/domain"
)

// ReportCache keeps recently built analytics snapshots so dashboard polling
// does not rescan the settlement ledger on every request.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.AnalyticsSnapshot, bool, error)
	Set(ctx context.Context, key string, value *domain.AnalyticsSnapshot, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.AnalyticsSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.AnalyticsSnapshot, _ time.Duration) error {
	return nil
}
