package reconcile

import (
	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
)

// ByOrderID groups each provider table by its order_id column.
func ByOrderID(tables Tables) map[string]map[string][]domain.RawRecord {
	out := make(map[string]map[string][]domain.RawRecord, len(tables))
	for name, rows := range tables {
		grouped := make(map[string][]domain.RawRecord)
		for _, rec := range rows {
			if id := rec.String("order_id"); id != "" {
				grouped[id] = append(grouped[id], rec)
			}
		}
		out[name] = grouped
	}
	return out
}

// ProviderIndex lists every provider record touching an order, keyed by
// order_id or, when that is empty, order_number.
type ProviderIndex map[string][]domain.ProviderEntry

func IndexProviders(reg *provider.Registry, tables Tables) ProviderIndex {
	idx := make(ProviderIndex)
	for _, name := range reg.Order(tables.Names()) {
		p := reg.Get(name)
		for _, rec := range tables[name] {
			key := rec.FirstString("order_id", "order_number")
			if key == "" {
				continue
			}
			idx[key] = append(idx[key], domain.ProviderEntry{
				Provider: name,
				Amount:   p.Amount(rec),
				Record:   rec,
			})
		}
	}
	return idx
}

// Split partitions the entries for key into gateway, shipping and other providers.
func (idx ProviderIndex) Split(reg *provider.Registry, key string) (gateways, shipping, other []domain.ProviderEntry) {
	gateways = []domain.ProviderEntry{}
	shipping = []domain.ProviderEntry{}
	other = []domain.ProviderEntry{}
	for _, entry := range idx[key] {
		switch reg.Kind(entry.Provider) {
		case provider.KindGateway:
			gateways = append(gateways, entry)
		case provider.KindShipping:
			shipping = append(shipping, entry)
		default:
			other = append(other, entry)
		}
	}
	return gateways, shipping, other
}

type OrderIndex struct {
	orders   []domain.Order
	byID     map[string]int
	byNumber map[string]int
}

func NewOrderIndex(orders []domain.Order) OrderIndex {
	idx := OrderIndex{
		orders:   orders,
		byID:     make(map[string]int, len(orders)),
		byNumber: make(map[string]int, len(orders)),
	}
	for i, o := range orders {
		if o.OrderID != "" {
			if _, seen := idx.byID[o.OrderID]; !seen {
				idx.byID[o.OrderID] = i
			}
		}
		if o.OrderNumber != "" {
			if _, seen := idx.byNumber[o.OrderNumber]; !seen {
				idx.byNumber[o.OrderNumber] = i
			}
		}
	}
	return idx
}

// Lookup joins on order_id first and order_number second.
func (idx OrderIndex) Lookup(orderID, orderNumber string) (domain.Order, bool) {
	if orderID != "" {
		if i, ok := idx.byID[orderID]; ok {
			return idx.orders[i], true
		}
	}
	if orderNumber != "" {
		if i, ok := idx.byNumber[orderNumber]; ok {
			return idx.orders[i], true
		}
	}
	return domain.Order{}, false
}

// WithOrders rebinds the index to orders, which must hold the same order IDs
// and numbers at the same offsets.
func (idx OrderIndex) WithOrders(orders []domain.Order) OrderIndex {
	idx.orders = orders
	return idx
}

// Position returns the slice offset of the order with orderID.
func (idx OrderIndex) Position(orderID string) (int, bool) {
	i, ok := idx.byID[orderID]
	return i, ok
}
