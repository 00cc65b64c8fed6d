package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

const DefaultPerPage = 50

func Summarize(records []domain.ReconciliationRecord, orders []domain.Order) domain.Stats {
	stats := domain.Stats{TotalOrders: len(orders)}
	received := decimal.Zero
	for _, rec := range records {
		received = received.Add(decimal.NewFromFloat(rec.PaymentAmount))
		switch rec.Status {
		case domain.StatusMatchPending:
			stats.MatchPending++
		case domain.StatusDiscrepancy:
			stats.Discrepancies++
		case domain.StatusMatched:
			stats.Matched++
		case domain.StatusOrphanedOrder:
			stats.Orphaned++
		}
	}
	ordered := decimal.Zero
	for _, o := range orders {
		ordered = ordered.Add(decimal.NewFromFloat(o.FinalAmount))
	}
	stats.TotalReceivedAmount = received.InexactFloat64()
	stats.TotalOrderAmount = ordered.InexactFloat64()
	return stats
}

// PaymentSources returns the distinct provider names seen across records.
func PaymentSources(records []domain.ReconciliationRecord) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, rec := range records {
		for _, source := range rec.PaymentSources {
			if !seen[source] {
				seen[source] = true
				out = append(out, source)
			}
		}
	}
	sort.Strings(out)
	return out
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate slices items for a 1-based page, clamping out-of-range pages.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > total {
		end = total
	}
	return Page[T]{
		Items:      append([]T{}, items[start:end]...),
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}
