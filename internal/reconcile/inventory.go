package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

// SKUTokens splits a comma-separated sku field into trimmed lowercase tokens.
// Repeated tokens are kept.
func SKUTokens(sku string) []string {
	if strings.TrimSpace(sku) == "" {
		return nil
	}
	parts := strings.Split(sku, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if token := strings.ToLower(strings.TrimSpace(part)); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// LinkCreditNotes joins each note to its order by order_id, then order_number.
func LinkCreditNotes(notes []domain.CreditNote, idx OrderIndex) []domain.LinkedCreditNote {
	out := make([]domain.LinkedCreditNote, 0, len(notes))
	for _, note := range notes {
		linked := domain.LinkedCreditNote{Note: note}
		rec := note.Record()
		if order, ok := idx.Lookup(rec.String("order_id"), rec.String("order_number")); ok {
			o := order
			linked.Order = &o
		}
		out = append(out, linked)
	}
	return out
}

type inventoryGroup struct {
	row     domain.InventoryRow
	seen    map[int]bool
	revenue decimal.Decimal
	latest  time.Time
	hasDate bool
}

// BuildInventory groups orders by SKU token. Scan-out counts token
// occurrences in orders, scan-in counts token occurrences in the orders linked
// from notes. Rows are sorted by order count, descending, ties keeping first-seen order.
func BuildInventory(orders []domain.Order, notes []domain.LinkedCreditNote, loc *time.Location) []domain.InventoryRow {
	groups := make(map[string]*inventoryGroup)
	keys := make([]string, 0)

	group := func(sku string) *inventoryGroup {
		g, ok := groups[sku]
		if !ok {
			g = &inventoryGroup{
				row:  domain.InventoryRow{SKU: sku, Orders: []domain.Order{}},
				seen: make(map[int]bool),
			}
			groups[sku] = g
			keys = append(keys, sku)
		}
		return g
	}

	for i, order := range orders {
		for _, token := range SKUTokens(order.SKU) {
			g := group(token)
			g.row.ScanOutQty++
			if g.seen[i] {
				continue
			}
			g.seen[i] = true
			if len(g.row.Orders) == 0 {
				g.row.ProductName = order.ProductName
			}
			g.row.Orders = append(g.row.Orders, order)
			g.row.TotalQuantity += order.Quantity
			g.revenue = g.revenue.Add(decimal.NewFromFloat(order.FinalAmount))
			if t, ok := ParseDate(order.ShippedDate, loc); ok && (!g.hasDate || t.After(g.latest)) {
				g.latest = t
				g.hasDate = true
			}
		}
	}

	scanIn := make(map[string]int)
	for _, note := range notes {
		if note.Order == nil {
			continue
		}
		for _, token := range SKUTokens(note.Order.SKU) {
			scanIn[token]++
		}
	}

	rows := make([]domain.InventoryRow, 0, len(keys))
	for _, sku := range keys {
		g := groups[sku]
		row := g.row
		row.TotalOrders = len(row.Orders)
		row.ScanInQty = scanIn[sku]
		row.NetQty = row.ScanOutQty - row.ScanInQty
		row.TotalRevenue = g.revenue.InexactFloat64()
		if row.ProductName == "" {
			row.ProductName = "N/A"
		}
		if g.hasDate {
			latest := FormatISO(g.latest)
			row.LatestShippedDate = &latest
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalOrders > rows[j].TotalOrders
	})
	return rows
}

// SearchInventory keeps rows whose SKU contains term, case-insensitively.
func SearchInventory(rows []domain.InventoryRow, term string) []domain.InventoryRow {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return rows
	}
	out := make([]domain.InventoryRow, 0, len(rows))
	for _, row := range rows {
		if strings.Contains(row.SKU, term) {
			out = append(out, row)
		}
	}
	return out
}
