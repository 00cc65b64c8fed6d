package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

func TestRedisSourceCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisSourceCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, SourcesKey)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := &domain.SourceSnapshot{
		Orders:       []domain.RawRecord{{"order_id": "ORD1", "final_amount": 100.0}},
		Tables:       map[string][]domain.RawRecord{"razorpay": {{"order_id": "ORD1", "amount": 100.0}}},
		CreditNotes:  []domain.CreditNote{{"order_id": "ORD1"}},
		EditsEnabled: true,
	}
	require.NoError(t, c.Set(ctx, SourcesKey, snap, 30*time.Second))

	got, ok, err := c.Get(ctx, SourcesKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.EditsEnabled)
	assert.Equal(t, 100.0, got.Orders[0].Number("final_amount"))
	assert.Equal(t, "ORD1", got.Tables["razorpay"][0].String("order_id"))
	assert.Len(t, got.CreditNotes, 1)

	mr.FastForward(31 * time.Second)
	_, ok, err = c.Get(ctx, SourcesKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSourceCacheDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisSourceCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, SourcesKey, &domain.SourceSnapshot{}, time.Minute))
	require.NoError(t, c.Delete(ctx, SourcesKey))
	assert.False(t, mr.Exists(SourcesKey))

	require.NoError(t, c.Set(ctx, SourcesKey, nil, time.Minute))
	assert.False(t, mr.Exists(SourcesKey))
}

func TestNoopSourceCache(t *testing.T) {
	var c SourceCache = NoopSourceCache{}
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, SourcesKey, &domain.SourceSnapshot{}, time.Minute))
	_, ok, err := c.Get(ctx, SourcesKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Delete(ctx, SourcesKey))
}
