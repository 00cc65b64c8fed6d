package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
)

// Tables maps a provider name to the rows of its table.
type Tables map[string][]domain.RawRecord

func (t Tables) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}

// Aggregate sums strictly positive provider amounts per order_id. Sources
// keep one entry per contributing record, in canonical provider order.
func Aggregate(reg *provider.Registry, tables Tables) map[string]domain.PaymentAggregate {
	totals := make(map[string]decimal.Decimal)
	sources := make(map[string][]string)

	for _, name := range reg.Order(tables.Names()) {
		p := reg.Get(name)
		for _, rec := range tables[name] {
			orderID := rec.String("order_id")
			if orderID == "" {
				continue
			}
			amount := p.Amount(rec)
			if amount <= 0 {
				continue
			}
			totals[orderID] = totals[orderID].Add(decimal.NewFromFloat(amount))
			sources[orderID] = append(sources[orderID], name)
		}
	}

	out := make(map[string]domain.PaymentAggregate, len(totals))
	for orderID, total := range totals {
		out[orderID] = domain.PaymentAggregate{
			Total:   total.InexactFloat64(),
			Sources: sources[orderID],
		}
	}
	return out
}
