package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

var tolerance = decimal.NewFromInt(1)

// classifyInput holds the exact amounts a status rule is evaluated against.
type classifyInput struct {
	order    decimal.Decimal
	payment  decimal.Decimal
	adjusted decimal.Decimal
	diff     decimal.Decimal
}

type statusRule struct {
	status domain.Status
	match  func(classifyInput) bool
}

// statusRules are evaluated top to bottom; the first match wins.
var statusRules = []statusRule{
	{domain.StatusMatchPending, func(in classifyInput) bool {
		return in.payment.IsZero() && in.adjusted.IsZero()
	}},
	{domain.StatusMatched, func(in classifyInput) bool {
		return in.diff.Abs().LessThanOrEqual(tolerance)
	}},
	{domain.StatusDiscrepancy, func(in classifyInput) bool {
		return in.order.GreaterThan(in.payment) && in.diff.GreaterThan(tolerance)
	}},
	{domain.StatusOrphanedOrder, func(in classifyInput) bool {
		return in.order.LessThan(in.payment) && in.diff.Abs().GreaterThan(tolerance)
	}},
}

func classify(in classifyInput) domain.Status {
	for _, rule := range statusRules {
		if rule.match(in) {
			return rule.status
		}
	}
	return domain.StatusMatched
}

// Settle recomputes payment_amount, difference and status of one record from
// its order amount, original payment amount and adjustment.
func Settle(rec domain.ReconciliationRecord) domain.ReconciliationRecord {
	order := decimal.NewFromFloat(rec.OrderAmount)
	original := decimal.NewFromFloat(rec.OriginalPaymentAmount)
	adjusted := decimal.NewFromFloat(rec.AdjustedAmount)
	payment := original.Add(adjusted)
	diff := order.Sub(payment)

	rec.PaymentAmount = payment.InexactFloat64()
	rec.Difference = diff.InexactFloat64()
	rec.Status = classify(classifyInput{order: order, payment: payment, adjusted: adjusted, diff: diff})
	return rec
}

// Reconcile produces one record per order, in order. No order is dropped.
func Reconcile(orders []domain.Order, payments map[string]domain.PaymentAggregate) []domain.ReconciliationRecord {
	records := make([]domain.ReconciliationRecord, 0, len(orders))
	for _, o := range orders {
		agg := payments[o.OrderID]
		sources := make([]string, len(agg.Sources))
		copy(sources, agg.Sources)

		records = append(records, Settle(domain.ReconciliationRecord{
			OrderID:               o.OrderID,
			OrderNumber:           o.OrderNumber,
			Store:                 o.Store,
			ShippingDate:          o.ShippedDate,
			OrderAmount:           o.FinalAmount,
			OriginalPaymentAmount: agg.Total,
			PaymentSources:        sources,
			AdjustedAmount:        o.AdjustedAmount,
			Remark:                o.Remark,
		}))
	}
	return records
}
