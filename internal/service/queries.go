package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
	"github.com/emiac1617/payment-reconciliation/internal/reconcile"
	"github.com/emiac1617/payment-reconciliation/internal/store"
)

type ReconciliationView struct {
	Records      reconcile.Page[domain.ReconciliationRecord] `json:"records"`
	Stats        domain.Stats                                `json:"stats"`
	EditsEnabled bool                                        `json:"edits_enabled"`
	SnapshotID   string                                      `json:"snapshot_id"`
}

type OrdersView struct {
	Orders reconcile.Page[domain.Order] `json:"orders"`
	Stats  domain.Stats                 `json:"stats"`
}

// view is one snapshot narrowed by a filter.
type view struct {
	snap    *Snapshot
	matcher *reconcile.Matcher
	records []domain.ReconciliationRecord
	orders  []domain.Order
}

func (s *Service) view(ctx context.Context, f reconcile.Filter) (*view, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	m := f.Compile(s.now(), s.loc)
	records := m.Records(snap.Records, snap.orderIdx)
	return &view{
		snap:    snap,
		matcher: m,
		records: records,
		orders:  m.Orders(snap.Orders, records),
	}, nil
}

func (s *Service) Reconciliation(ctx context.Context, f reconcile.Filter, page, perPage int) (ReconciliationView, error) {
	v, err := s.view(ctx, f)
	if err != nil {
		return ReconciliationView{}, err
	}
	return ReconciliationView{
		Records:      reconcile.Paginate(v.records, page, perPage),
		Stats:        reconcile.Summarize(v.records, v.orders),
		EditsEnabled: v.snap.EditsEnabled,
		SnapshotID:   v.snap.ID,
	}, nil
}

// FilteredRecords returns every record passing f, unpaginated.
func (s *Service) FilteredRecords(ctx context.Context, f reconcile.Filter) ([]domain.ReconciliationRecord, error) {
	v, err := s.view(ctx, f)
	if err != nil {
		return nil, err
	}
	return v.records, nil
}

func (s *Service) Orders(ctx context.Context, f reconcile.Filter, page, perPage int) (OrdersView, error) {
	v, err := s.view(ctx, f)
	if err != nil {
		return OrdersView{}, err
	}
	return OrdersView{
		Orders: reconcile.Paginate(v.orders, page, perPage),
		Stats:  reconcile.Summarize(v.records, v.orders),
	}, nil
}

func (s *Service) FilteredOrders(ctx context.Context, f reconcile.Filter) ([]domain.Order, error) {
	v, err := s.view(ctx, f)
	if err != nil {
		return nil, err
	}
	return v.orders, nil
}

// OrdersByStore returns orders whose store equals storeName after trimming.
func (s *Service) OrdersByStore(ctx context.Context, storeName string) ([]domain.Order, error) {
	column, err := s.orders.StoreColumn(ctx)
	if err != nil {
		return nil, err
	}
	if column == "" {
		return nil, fmt.Errorf("%w: orders have neither store nor Store", store.ErrUnknownColumn)
	}
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	storeName = strings.TrimSpace(storeName)
	out := make([]domain.Order, 0)
	for _, o := range snap.Orders {
		if strings.TrimSpace(o.Store) == storeName {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Service) StoreOptions(ctx context.Context) (domain.StoreOptions, error) {
	column, err := s.orders.StoreColumn(ctx)
	if err != nil {
		return domain.StoreOptions{}, err
	}
	opts := domain.StoreOptions{Column: column, Stores: []string{}}
	if column == "" {
		return opts, nil
	}
	snap, err := s.Load(ctx)
	if err != nil {
		return domain.StoreOptions{}, err
	}
	seen := make(map[string]bool)
	for _, o := range snap.Orders {
		name := strings.TrimSpace(o.Store)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		opts.Stores = append(opts.Stores, name)
	}
	sort.Strings(opts.Stores)
	return opts, nil
}

// Inventory groups the filtered orders by SKU token; scan-in counts come from
// the filtered credit notes.
func (s *Service) Inventory(ctx context.Context, f reconcile.Filter, skuSearch string) ([]domain.InventoryRow, error) {
	v, err := s.view(ctx, f)
	if err != nil {
		return nil, err
	}
	notes := v.matcher.CreditNotes(v.snap.linked)
	rows := reconcile.BuildInventory(v.orders, notes, s.loc)
	return reconcile.SearchInventory(rows, skuSearch), nil
}

func (s *Service) CreditNotes(ctx context.Context, f reconcile.Filter) ([]domain.LinkedCreditNote, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return f.Compile(s.now(), s.loc).CreditNotes(snap.linked), nil
}

// RawCreditNotes returns the credit notes exactly as read from the store.
func (s *Service) RawCreditNotes(ctx context.Context) ([]domain.CreditNote, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.CreditNotes, nil
}

func (s *Service) ProviderRecords(ctx context.Context, name string, f reconcile.Filter) ([]domain.RawRecord, error) {
	v, err := s.view(ctx, f)
	if err != nil {
		return nil, err
	}
	rows, ok := v.snap.Tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s", store.ErrNotFound, name)
	}
	if f.IsZero() {
		return rows, nil
	}
	return reconcile.FilterTables(reconcile.Tables{name: rows}, v.records)[name], nil
}

func (s *Service) Registry() *provider.Registry {
	return s.registry
}

// ProviderNames lists the loaded provider tables in canonical order.
func (s *Service) ProviderNames(ctx context.Context) ([]string, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.registry.Order(snap.Tables.Names()), nil
}

func (s *Service) Stats(ctx context.Context, f reconcile.Filter) (domain.Stats, error) {
	v, err := s.view(ctx, f)
	if err != nil {
		return domain.Stats{}, err
	}
	return reconcile.Summarize(v.records, v.orders), nil
}

func (s *Service) PaymentSources(ctx context.Context) ([]string, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.PaymentSources(snap.Records), nil
}

func (s *Service) OrderDetail(ctx context.Context, orderID string) (domain.OrderDetail, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	pos, ok := snap.recordPos[orderID]
	if !ok || orderID == "" {
		return domain.OrderDetail{}, fmt.Errorf("%w: order %s", store.ErrNotFound, orderID)
	}
	rec := snap.Records[pos]

	detail := domain.OrderDetail{Record: rec, CreditNotes: []domain.CreditNote{}}
	if order, ok := snap.orderIdx.Lookup(orderID, ""); ok {
		detail.Order = &order
	}
	detail.Gateways, detail.Shipping, detail.Other = snap.providerIdx.Split(s.registry, orderID)
	if rec.OrderNumber != "" && rec.OrderNumber != orderID {
		g, sh, o := snap.providerIdx.Split(s.registry, rec.OrderNumber)
		detail.Gateways = append(detail.Gateways, g...)
		detail.Shipping = append(detail.Shipping, sh...)
		detail.Other = append(detail.Other, o...)
	}
	for _, linked := range snap.linked {
		if linked.Order != nil && linked.Order.OrderID == orderID {
			detail.CreditNotes = append(detail.CreditNotes, linked.Note)
		}
	}
	return detail, nil
}

func (s *Service) EditsEnabled(ctx context.Context) (bool, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return snap.EditsEnabled, nil
}
