package cache

import (
	"context"
	"time"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

const SourcesKey = "recon:sources:v1"

// SourceCache holds the last fetched source snapshot so repeated loads skip
// the upstream stores.
type SourceCache interface {
	Get(ctx context.Context, key string) (*domain.SourceSnapshot, bool, error)
	Set(ctx context.Context, key string, value *domain.SourceSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopSourceCache struct{}

func (NoopSourceCache) Get(_ context.Context, _ string) (*domain.SourceSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopSourceCache) Set(_ context.Context, _ string, _ *domain.SourceSnapshot, _ time.Duration) error {
	return nil
}

func (NoopSourceCache) Delete(_ context.Context, _ string) error {
	return nil
}
