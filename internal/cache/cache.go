package cache

import (
	"context"
	"time"

	"bingopos/backend/internal/domain"
)

type WarningCache interface {
	Get(ctx context.Context, key string) (*domain.CashierWarning, bool, error)
	Set(ctx context.Context, key string, value *domain.CashierWarning, ttl time.Duration) error
}

type NoopWarningCache struct{}

func (NoopWarningCache) Get(_ context.Context, _ string) (*domain.CashierWarning, bool, error) {
	return nil, false, nil
}

func (NoopWarningCache) Set(_ context.Context, _ string, _ *domain.CashierWarning, _ time.Duration) error {
	return nil
}
