package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
)

const (
	missing = "N/A"

	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is one exported sheet. Cells hold strings or numbers; nil and ""
// are written as N/A.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

func ReconciliationTable(records []domain.ReconciliationRecord) Table {
	t := Table{
		Name:   "Reconciliation",
		Header: []string{"Order Number", "Store", "Order Amount", "Received Amount", "Original Payment Amount", "Difference", "Adjusted Amount", "Remark", "Payment Sources", "Shipping Date", "Status"},
		Rows:   make([][]any, 0, len(records)),
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []any{
			r.OrderNumber, r.Store, r.OrderAmount, r.PaymentAmount, r.OriginalPaymentAmount,
			r.Difference, r.AdjustedAmount, r.Remark, strings.Join(r.PaymentSources, ", "),
			r.ShippingDate, string(r.Status),
		})
	}
	return t
}

func OrdersTable(orders []domain.Order) Table {
	t := Table{
		Name: "Orders",
		Header: []string{"Order ID", "Order Number", "Store", "Order Date", "Shipped Date", "Delivered Date", "Payment Method", "Payment Source",
			"Final Amount", "Adjusted Amount", "Remark", "Shipping Partner", "Transaction Type", "Payment Captured Date", "SKU", "Product Name", "Quantity"},
		Rows: make([][]any, 0, len(orders)),
	}
	for _, o := range orders {
		t.Rows = append(t.Rows, []any{
			o.OrderID, o.OrderNumber, o.Store, o.OrderDate, o.ShippedDate, o.DeliveredDate, o.PaymentMethod, o.PaymentSource,
			o.FinalAmount, o.AdjustedAmount, o.Remark, o.ShippingPartner, o.TransactionType, o.PaymentCapturedDate, o.SKU, o.ProductName, o.Quantity,
		})
	}
	return t
}

var providerDateFields = []string{"created_at", "delivered_date", "pick_up_date", "pickup_date"}

// ProviderTable lists a provider's rows with the registry amount up front
// and every other raw column after it, sorted by name.
func ProviderTable(reg *provider.Registry, name string, rows []domain.RawRecord) Table {
	p := reg.Get(name)
	fixed := map[string]bool{"order_id": true, "order_number": true}
	extraSet := make(map[string]bool)
	for _, rec := range rows {
		for _, k := range rec.Keys() {
			if !fixed[k] {
				extraSet[k] = true
			}
		}
	}
	extra := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	t := Table{
		Name:   name,
		Header: append([]string{"Order ID", "Order Number", "Amount", "Date"}, extra...),
		Rows:   make([][]any, 0, len(rows)),
	}
	for _, rec := range rows {
		date := p.CapturedAt(rec)
		if date == "" {
			date = rec.FirstString(providerDateFields...)
		}
		row := []any{rec.String("order_id"), rec.String("order_number"), p.Amount(rec), date}
		for _, k := range extra {
			row = append(row, rec[k])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func InventoryTable(rows []domain.InventoryRow) Table {
	t := Table{
		Name:   "Inventory",
		Header: []string{"SKU", "Product Name", "Total Orders", "Total Quantity", "Scan Out", "Scan In", "Net Qty", "Total Revenue", "Latest Shipped Date"},
		Rows:   make([][]any, 0, len(rows)),
	}
	for _, r := range rows {
		var latest any
		if r.LatestShippedDate != nil {
			latest = *r.LatestShippedDate
		}
		t.Rows = append(t.Rows, []any{r.SKU, r.ProductName, r.TotalOrders, r.TotalQuantity, r.ScanOutQty, r.ScanInQty, r.NetQty, r.TotalRevenue, latest})
	}
	return t
}

// WriteCSV writes t prefixed with a UTF-8 byte order mark.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = missing
			if i < len(row) {
				record[i] = cellText(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes one sheet per table.
func WriteXLSX(w io.Writer, tables ...Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := sheetName(t.Name, i)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		for col, h := range t.Header {
			if err := setCell(f, sheet, col+1, 1, h); err != nil {
				return err
			}
		}
		for r, row := range t.Rows {
			for col := range t.Header {
				var v any
				if col < len(row) {
					v = row[col]
				}
				if err := setCell(f, sheet, col+1, r+2, cellValue(v)); err != nil {
					return err
				}
			}
		}
	}
	return f.Write(w)
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

// sheetName trims to Excel's 31 character limit and strips forbidden characters.
func sheetName(name string, i int) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func cellValue(v any) any {
	switch val := v.(type) {
	case float64, float32, int, int32, int64:
		return val
	default:
		return cellText(v)
	}
}

func cellText(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	}
	s := domain.ToString(v)
	if s == "" {
		return missing
	}
	return s
}
