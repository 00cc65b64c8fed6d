package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

func TestSKUTokens(t *testing.T) {
	assert.Equal(t, []string{"x", "x", "y"}, SKUTokens(" X, x ,Y,, "))
	assert.Nil(t, SKUTokens("   "))
}

func TestInventoryCountsTokensNotOrders(t *testing.T) {
	orders := []domain.Order{
		{OrderID: "O1", SKU: "X,X,Y", Quantity: 5, FinalAmount: 300, ProductName: "Combo", ShippedDate: "2024-02-01"},
		{OrderID: "O2", SKU: "x", Quantity: 1, FinalAmount: 100, ProductName: "Single", ShippedDate: "2024-03-15T09:00:00Z"},
	}

	rows := BuildInventory(orders, nil, time.UTC)
	require.Len(t, rows, 2)

	x := rows[0]
	assert.Equal(t, "x", x.SKU)
	assert.Equal(t, 3, x.ScanOutQty)
	assert.Equal(t, 2, x.TotalOrders)
	assert.Len(t, x.Orders, 2)
	assert.Equal(t, 6, x.TotalQuantity)
	assert.Equal(t, 400.0, x.TotalRevenue)
	assert.Equal(t, "Combo", x.ProductName)
	require.NotNil(t, x.LatestShippedDate)
	assert.Equal(t, "2024-03-15T09:00:00.000Z", *x.LatestShippedDate)

	y := rows[1]
	assert.Equal(t, "y", y.SKU)
	assert.Equal(t, 1, y.ScanOutQty)
	assert.Equal(t, 1, y.TotalOrders)
	assert.Equal(t, 1, y.NetQty)
}

func TestInventoryScanInFromLinkedCreditNotes(t *testing.T) {
	orders := []domain.Order{
		{OrderID: "O1", OrderNumber: "#1001", SKU: "A,A,B"},
		{OrderID: "O2", SKU: "A"},
	}
	idx := NewOrderIndex(orders)
	notes := LinkCreditNotes([]domain.CreditNote{
		{"order_id": "O1"},
		{"order_id": "", "order_number": "#1001"},
		{"order_id": "missing"},
	}, idx)

	require.NotNil(t, notes[0].Order)
	require.NotNil(t, notes[1].Order)
	assert.Nil(t, notes[2].Order)

	rows := BuildInventory(orders, notes, time.UTC)
	require.Len(t, rows, 2)
	a := rows[0]
	assert.Equal(t, "a", a.SKU)
	assert.Equal(t, 3, a.ScanOutQty)
	assert.Equal(t, 4, a.ScanInQty)
	assert.Equal(t, -1, a.NetQty)
	assert.Nil(t, a.LatestShippedDate)
	assert.Equal(t, "N/A", a.ProductName)
}

func TestInventoryProductNameDefaultsAndSearch(t *testing.T) {
	rows := BuildInventory([]domain.Order{{OrderID: "O1", SKU: "TEE-RED"}, {OrderID: "O2", SKU: "MUG"}}, nil, time.UTC)
	require.Len(t, rows, 2)
	assert.Equal(t, "N/A", rows[0].ProductName)

	found := SearchInventory(rows, "Tee")
	require.Len(t, found, 1)
	assert.Equal(t, "tee-red", found[0].SKU)
	assert.Len(t, SearchInventory(rows, ""), 2)
}
