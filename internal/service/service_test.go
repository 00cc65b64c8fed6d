package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiac1617/payment-reconciliation/internal/cache"
	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
	"github.com/emiac1617/payment-reconciliation/internal/reconcile"
	"github.com/emiac1617/payment-reconciliation/internal/store"
	"github.com/emiac1617/payment-reconciliation/internal/store/memory"
)

// countingStore wraps the seeded store to observe and fail calls.
type countingStore struct {
	*memory.Store
	getOrders    atomic.Int32
	updates      atomic.Int32
	ordersErr    error
	updateErr    error
	failProvider string
}

func (c *countingStore) GetOrders(ctx context.Context) ([]domain.RawRecord, error) {
	c.getOrders.Add(1)
	if c.ordersErr != nil {
		return nil, c.ordersErr
	}
	return c.Store.GetOrders(ctx)
}

func (c *countingStore) UpdateOrder(ctx context.Context, orderID string, adj domain.OrderAdjustment) (domain.OrderAdjustment, error) {
	c.updates.Add(1)
	if c.updateErr != nil {
		return domain.OrderAdjustment{}, c.updateErr
	}
	return c.Store.UpdateOrder(ctx, orderID, adj)
}

func (c *countingStore) GetProviderRecords(ctx context.Context, name string) ([]domain.RawRecord, error) {
	if name == c.failProvider {
		return nil, errors.New("connection reset")
	}
	return c.Store.GetProviderRecords(ctx, name)
}

// gatedStore holds the first fetch of one provider until release is closed,
// after the orders of that fetch have been read.
type gatedStore struct {
	*countingStore
	provider   string
	ordersRead chan struct{}
	entered    chan struct{}
	release    chan struct{}
	readOnce   sync.Once
	gateOnce   sync.Once
}

func newGatedStore(inner *countingStore, providerName string) *gatedStore {
	return &gatedStore{
		countingStore: inner,
		provider:      providerName,
		ordersRead:    make(chan struct{}),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (g *gatedStore) GetOrders(ctx context.Context) ([]domain.RawRecord, error) {
	rows, err := g.countingStore.GetOrders(ctx)
	g.readOnce.Do(func() { close(g.ordersRead) })
	return rows, err
}

func (g *gatedStore) GetProviderRecords(ctx context.Context, name string) ([]domain.RawRecord, error) {
	if name == g.provider {
		g.gateOnce.Do(func() {
			<-g.ordersRead
			close(g.entered)
			<-g.release
		})
	}
	return g.countingStore.GetProviderRecords(ctx, name)
}

type fixture struct {
	svc   *Service
	repo  *countingStore
	hook  *test.Hook
	clock *time.Time
}

func newFixture(t *testing.T, sourceCache cache.SourceCache) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	repo := &countingStore{Store: memory.NewSeeded()}
	now := time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC)
	f := &fixture{repo: repo, hook: hook, clock: &now}
	f.svc = New(repo, repo, repo, sourceCache, provider.Default(), Options{
		CacheTTL: 30 * time.Second,
		Location: time.UTC,
		Logger:   logrus.NewEntry(logger),
		Now:      func() time.Time { return *f.clock },
	})
	return f
}

func findRecord(t *testing.T, records []domain.ReconciliationRecord, orderID string) domain.ReconciliationRecord {
	t.Helper()
	for _, rec := range records {
		if rec.OrderID == orderID {
			return rec
		}
	}
	t.Fatalf("record %s not found", orderID)
	return domain.ReconciliationRecord{}
}

func TestReconciliationOverSeed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	v, err := f.svc.Reconciliation(ctx, reconcile.Filter{}, 1, 50)
	require.NoError(t, err)
	assert.True(t, v.EditsEnabled)
	assert.Equal(t, 8, v.Records.Total)

	ord1 := findRecord(t, v.Records.Items, "ORD001")
	assert.Equal(t, 1000.0, ord1.OrderAmount)
	assert.Equal(t, 950.0, ord1.PaymentAmount)
	assert.Equal(t, 50.0, ord1.Difference)
	assert.Equal(t, domain.StatusDiscrepancy, ord1.Status)
	assert.Equal(t, []string{"razorpay"}, ord1.PaymentSources)
	assert.Equal(t, "2024-05-05", ord1.ShippingDate)

	assert.Equal(t, domain.StatusMatchPending, findRecord(t, v.Records.Items, "ORD003").Status)
	ord4 := findRecord(t, v.Records.Items, "ORD004")
	assert.Equal(t, domain.StatusOrphanedOrder, ord4.Status)
	assert.Equal(t, []string{"snapmint", "cred_pay"}, ord4.PaymentSources)
	assert.Equal(t, domain.StatusMatched, findRecord(t, v.Records.Items, "ORD007").Status)

	assert.Equal(t, domain.Stats{
		TotalOrders:         8,
		TotalReceivedAmount: 950 + 1499 + 2800 + 649.5 + 1200 + 3000 + 450,
		TotalOrderAmount:    1000 + 1499 + 799 + 2500 + 650 + 1200 + 3000 + 450,
		MatchPending:        1,
		Discrepancies:       1,
		Matched:             5,
		Orphaned:            1,
	}, v.Stats)
}

func TestEnrichedOrdersCarryShippingAndCapture(t *testing.T) {
	f := newFixture(t, nil)

	orders, err := f.svc.FilteredOrders(context.Background(), reconcile.Filter{Search: "ORD001"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Xpressbees", orders[0].ShippingPartner)
	assert.Equal(t, "2024-05-01T10:15:00.000Z", orders[0].PaymentCapturedDate)
	assert.Equal(t, "SHIP001", orders[0].ShippedOrderNumber)
	assert.Equal(t, "DELIVERED", orders[0].TransactionType)
}

func TestProviderFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.failProvider = "gokwik"

	records, err := f.svc.FilteredRecords(context.Background(), reconcile.Filter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatchPending, findRecord(t, records, "ORD002").Status)

	warned := false
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["provider"] == "gokwik" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestOrdersFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.ordersErr = errors.New("timeout")

	_, err := f.svc.Stats(context.Background(), reconcile.Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch orders")
}

func TestSnapshotReusedWithinTTL(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Load(ctx)
	require.NoError(t, err)
	_, err = f.svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.repo.getOrders.Load())

	*f.clock = f.clock.Add(time.Minute)
	_, err = f.svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.repo.getOrders.Load())

	_, err = f.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.repo.getOrders.Load())
}

func TestSourceCacheServesSecondInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	shared := cache.NewRedisSourceCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = shared.Close() })
	ctx := context.Background()

	first := newFixture(t, shared)
	_, err := first.svc.Load(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.SourcesKey))

	second := newFixture(t, shared)
	v, err := second.svc.Reconciliation(ctx, reconcile.Filter{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int32(0), second.repo.getOrders.Load())
	assert.Equal(t, domain.StatusDiscrepancy, findRecord(t, v.Records.Items, "ORD001").Status)
}

func TestSaveAdjustmentRequiresRemarkForChangedAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SaveAdjustment(ctx, "ORD001", "50", "   ")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Remark is required when adjusting the amount", err.Error())
	assert.Equal(t, int32(0), f.repo.updates.Load())

	records, err := f.svc.FilteredRecords(ctx, reconcile.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, findRecord(t, records, "ORD001").AdjustedAmount)
}

func TestSaveAdjustmentUnchangedAmountNeedsNoRemark(t *testing.T) {
	f := newFixture(t, nil)

	rec, err := f.svc.SaveAdjustment(context.Background(), "ORD001", "0", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDiscrepancy, rec.Status)
	assert.Equal(t, int32(1), f.repo.updates.Load())
}

func TestSaveAdjustmentPatchesRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})

	rec, err := f.svc.SaveAdjustment(ctx, "ORD001", "50", "manual correction")
	require.NoError(t, err)
	assert.Equal(t, 950.0, rec.OriginalPaymentAmount)
	assert.Equal(t, 1000.0, rec.PaymentAmount)
	assert.Equal(t, 50.0, rec.AdjustedAmount)
	assert.Equal(t, "manual correction", rec.Remark)
	assert.Equal(t, domain.StatusMatched, rec.Status)

	records, err := f.svc.FilteredRecords(ctx, reconcile.Filter{})
	require.NoError(t, err)
	assert.Equal(t, rec, findRecord(t, records, "ORD001"))

	detail, err := f.svc.OrderDetail(ctx, "ORD001")
	require.NoError(t, err)
	require.NotNil(t, detail.Order)
	assert.Equal(t, 50.0, detail.Order.AdjustedAmount)
	assert.Equal(t, "admin", f.hook.LastEntry().Data["actor"])
}

func TestSaveAdjustmentNegativeKeepsDiscrepancy(t *testing.T) {
	f := newFixture(t, nil)

	rec, err := f.svc.SaveAdjustment(context.Background(), "ORD001", "-950", "chargeback")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.PaymentAmount)
	assert.Equal(t, -950.0, rec.AdjustedAmount)
	assert.Equal(t, 1000.0, rec.Difference)
	assert.Equal(t, domain.StatusDiscrepancy, rec.Status)
}

func TestSaveAdjustmentLenientAmount(t *testing.T) {
	f := newFixture(t, nil)

	rec, err := f.svc.SaveAdjustment(context.Background(), "ORD003", "12abc", "partial")
	require.NoError(t, err)
	assert.Equal(t, 12.0, rec.AdjustedAmount)

	rec, err = f.svc.SaveAdjustment(context.Background(), "ORD003", "abc", "reset")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.AdjustedAmount)
	assert.Equal(t, domain.StatusMatchPending, rec.Status)
}

func TestSaveAdjustmentPersistenceErrorLeavesState(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.updateErr = errors.New("permission denied")
	ctx := context.Background()

	_, err := f.svc.SaveAdjustment(ctx, "ORD001", "50", "manual correction")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Database update failed: permission denied", err.Error())

	records, err := f.svc.FilteredRecords(ctx, reconcile.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 950.0, findRecord(t, records, "ORD001").PaymentAmount)
}

func TestSaveAdjustmentDisabledWithoutColumns(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.DropColumns("orders", "adjusted_amount")

	_, err := f.svc.SaveAdjustment(context.Background(), "ORD001", "50", "x")
	assert.ErrorIs(t, err, ErrEditsDisabled)
	assert.Equal(t, int32(0), f.repo.updates.Load())
}

func TestSaveAdjustmentValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SaveAdjustment(ctx, "  ", "1", "x")
	assert.ErrorIs(t, err, ErrValidation)

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.svc.SaveAdjustment(ctx, "ORD001", "1", string(long))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SaveAdjustment(ctx, "NOPE", "1", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, int32(0), f.repo.updates.Load())
}

func TestSaveAdjustmentInvalidatesSourceCache(t *testing.T) {
	mr := miniredis.RunT(t)
	shared := cache.NewRedisSourceCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = shared.Close() })
	f := newFixture(t, shared)

	_, err := f.svc.SaveAdjustment(context.Background(), "ORD001", "50", "manual correction")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.SourcesKey))
}

func TestAdjustmentSurvivesOverlappingRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	shared := cache.NewRedisSourceCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = shared.Close() })
	f := newFixture(t, shared)
	ctx := context.Background()

	_, err := f.svc.Load(ctx)
	require.NoError(t, err)

	gated := newGatedStore(f.repo, "razorpay")
	f.svc.orders = gated
	f.svc.providers = gated

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Refresh(ctx)
		done <- err
	}()
	<-gated.entered

	rec, err := f.svc.SaveAdjustment(ctx, "ORD001", "50", "manual correction")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatched, rec.Status)

	close(gated.release)
	require.NoError(t, <-done)

	detail, err := f.svc.OrderDetail(ctx, "ORD001")
	require.NoError(t, err)
	assert.Equal(t, 50.0, detail.Record.AdjustedAmount)
	assert.Equal(t, "manual correction", detail.Record.Remark)
	assert.Equal(t, domain.StatusMatched, detail.Record.Status)
	require.NotNil(t, detail.Order)
	assert.Equal(t, 50.0, detail.Order.AdjustedAmount)

	assert.False(t, mr.Exists(cache.SourcesKey))
	f.svc.mu.RLock()
	assert.Empty(t, f.svc.edits)
	assert.Empty(t, f.svc.inflight)
	f.svc.mu.RUnlock()

	*f.clock = f.clock.Add(time.Minute)
	records, err := f.svc.FilteredRecords(ctx, reconcile.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, findRecord(t, records, "ORD001").AdjustedAmount)
}

func TestAdjustmentRelinksCreditNotes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	before, err := f.svc.Load(ctx)
	require.NoError(t, err)

	_, err = f.svc.SaveAdjustment(ctx, "ORD005", "25", "courier refund")
	require.NoError(t, err)

	notes, err := f.svc.CreditNotes(ctx, reconcile.Filter{})
	require.NoError(t, err)
	var linked *domain.Order
	for _, n := range notes {
		if n.Note.Record().String("credit_note_id") == "CN002" {
			linked = n.Order
		}
	}
	require.NotNil(t, linked)
	assert.Equal(t, "ORD005", linked.OrderID)
	assert.Equal(t, 25.0, linked.AdjustedAmount)

	for _, n := range before.linked {
		if n.Order != nil && n.Order.OrderID == "ORD005" {
			assert.Equal(t, 0.0, n.Order.AdjustedAmount)
		}
	}
	order, ok := before.orderIdx.Lookup("ORD005", "")
	require.True(t, ok)
	assert.Equal(t, 0.0, order.AdjustedAmount)
}

func TestOrderDetailGroupsProviders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	detail, err := f.svc.OrderDetail(ctx, "ORD001")
	require.NoError(t, err)
	require.Len(t, detail.Gateways, 1)
	assert.Equal(t, "razorpay", detail.Gateways[0].Provider)
	require.Len(t, detail.Shipping, 1)
	assert.Equal(t, "shiprocket", detail.Shipping[0].Provider)
	require.Len(t, detail.Other, 1)
	assert.Equal(t, "shipway", detail.Other[0].Provider)
	assert.Empty(t, detail.CreditNotes)

	detail, err = f.svc.OrderDetail(ctx, "ORD005")
	require.NoError(t, err)
	require.Len(t, detail.CreditNotes, 1)
	assert.Equal(t, "CN002", detail.CreditNotes[0].Record().String("credit_note_id"))

	_, err = f.svc.OrderDetail(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInventoryUsesCreditNotesForScanIn(t *testing.T) {
	f := newFixture(t, nil)

	rows, err := f.svc.Inventory(context.Background(), reconcile.Filter{}, "tee-red")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].ScanOutQty)
	assert.Equal(t, 1, rows[0].ScanInQty)
	assert.Equal(t, 2, rows[0].TotalOrders)
}

func TestStoreViews(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	opts, err := f.svc.StoreOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreOptions{Column: "Store", Stores: []string{"Main Store", "Outlet"}}, opts)

	outlet, err := f.svc.OrdersByStore(ctx, " Outlet ")
	require.NoError(t, err)
	assert.Len(t, outlet, 3)

	bare := New(memory.New([]domain.RawRecord{{"order_id": "A"}}, nil, nil), memory.New(nil, nil, nil), nil, nil, nil, Options{})
	_, err = bare.OrdersByStore(ctx, "x")
	assert.ErrorIs(t, err, store.ErrUnknownColumn)
}

func TestProviderRecordsAndSources(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rows, err := f.svc.ProviderRecords(ctx, "razorpay", reconcile.Filter{Status: "discrepancy"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ORD001", rows[0].String("order_id"))

	all, err := f.svc.ProviderRecords(ctx, "shipway", reconcile.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.svc.ProviderRecords(ctx, "paytm", reconcile.Filter{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	sources, err := f.svc.PaymentSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bluedart", "cred_pay", "gokwik", "nimbus", "razorpay", "snapmint"}, sources)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"50":      50,
		" -12.5 ": -12.5,
		"12abc":   12,
		".5":      0.5,
		"1e3":     1000,
		"abc":     0,
		"":        0,
		"-":       0,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseAmount(raw), raw)
	}
}
