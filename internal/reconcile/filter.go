package reconcile

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

type DateField string

const (
	DateFieldOrder           DateField = "order"
	DateFieldShipped         DateField = "shipped"
	DateFieldDelivered       DateField = "delivered"
	DateFieldScanned         DateField = "scanned"
	DateFieldPaymentCaptured DateField = "payment_captured"

	defaultDateField = DateFieldScanned
)

const (
	allSentinel = "all"
	endOfDay    = 24*time.Hour - time.Millisecond
)

type DateRange string

const (
	RangeAll          DateRange = "all"
	RangeCurrentMonth DateRange = "current_month"
	RangeLastMonth    DateRange = "last_month"
	RangeLastQuarter  DateRange = "last_quarter"
	RangeCustom       DateRange = "custom_range"
)

// Filter narrows the reconciliation, order, credit-note and provider views.
// Empty strings and "all" disable a predicate.
type Filter struct {
	Search         string
	Status         string
	DateField      DateField
	DateRange      DateRange
	CustomStart    string
	CustomEnd      string
	PaymentSource  string
	PaymentMethods []string
	OrderStatus    string
	Store          string
}

// IsZero reports whether no predicate is set.
func (f Filter) IsZero() bool {
	if active(f.Search) || active(f.Status) || active(f.PaymentSource) || active(f.OrderStatus) || active(f.Store) {
		return false
	}
	if active(string(f.DateRange)) {
		return false
	}
	for _, m := range f.PaymentMethods {
		if active(m) {
			return false
		}
	}
	return true
}

func active(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, allSentinel)
}

// Matcher is a Filter resolved against a clock and a location.
type Matcher struct {
	filter      Filter
	search      string
	fold        cases.Caser
	loc         *time.Location
	rangeActive bool
	rangeValid  bool
	start       time.Time
	end         time.Time
}

func (f Filter) Compile(now time.Time, loc *time.Location) *Matcher {
	if loc == nil {
		loc = time.Local
	}
	m := &Matcher{
		filter: f,
		search: strings.ToLower(strings.TrimSpace(f.Search)),
		fold:   cases.Fold(),
		loc:    loc,
	}
	if f.DateRange != "" && f.DateRange != RangeAll {
		m.rangeActive = true
		m.start, m.end, m.rangeValid = f.bounds(now.In(loc), loc)
	}
	return m
}

// bounds returns the first instant of the start day and the last millisecond
// of the end day.
func (f Filter) bounds(now time.Time, loc *time.Location) (time.Time, time.Time, bool) {
	year, month, _ := now.Date()
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	var start, lastDay time.Time
	switch f.DateRange {
	case RangeCurrentMonth:
		start = day(year, month, 1)
		lastDay = day(year, month+1, 0)
	case RangeLastMonth:
		start = day(year, month-1, 1)
		lastDay = day(year, month, 0)
	case RangeLastQuarter:
		quarterStart := time.Month((int(month)-1)/3*3 + 1)
		start = day(year, quarterStart-3, 1)
		lastDay = day(year, quarterStart, 0)
	case RangeCustom:
		s, okStart := ParseDate(f.CustomStart, loc)
		e, okEnd := ParseDate(f.CustomEnd, loc)
		if !okStart || !okEnd {
			return time.Time{}, time.Time{}, false
		}
		s = s.In(loc)
		e = e.In(loc)
		start = day(s.Year(), s.Month(), s.Day())
		lastDay = day(e.Year(), e.Month(), e.Day())
	default:
		return time.Time{}, time.Time{}, false
	}
	return start, lastDay.Add(endOfDay), true
}

func (m *Matcher) Search(orderID, orderNumber, productName, sku string) bool {
	if m.search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(orderID), m.search) ||
		strings.Contains(strings.ToLower(orderNumber), m.search) ||
		strings.Contains(strings.ToLower(productName), m.search) {
		return true
	}
	for _, token := range SKUTokens(sku) {
		if token == m.search {
			return true
		}
	}
	return strings.Contains(strings.ToLower(sku), m.search)
}

func (m *Matcher) Status(status domain.Status) bool {
	return !active(m.filter.Status) || string(status) == strings.TrimSpace(m.filter.Status)
}

// Order applies the predicates evaluated against an order. A nil order
// passes only when none of them is active.
func (m *Matcher) Order(o *domain.Order) bool {
	if o == nil {
		return !m.rangeActive &&
			!active(m.filter.PaymentSource) &&
			!m.methodsActive() &&
			!active(m.filter.OrderStatus) &&
			!active(m.filter.Store)
	}
	return m.date(*o) &&
		m.paymentSource(o.PaymentSource) &&
		m.paymentMethod(o.PaymentMethod) &&
		m.orderStatus(o.TransactionType) &&
		m.store(o.Store)
}

func (m *Matcher) date(o domain.Order) bool {
	if !m.rangeActive {
		return true
	}
	if !m.rangeValid {
		return false
	}
	t, ok := ParseDate(m.dateValue(o), m.loc)
	if !ok {
		return false
	}
	return !t.Before(m.start) && !t.After(m.end)
}

func (m *Matcher) dateValue(o domain.Order) string {
	field := m.filter.DateField
	if field == "" {
		field = defaultDateField
	}
	switch field {
	case DateFieldOrder:
		return o.OrderDate
	case DateFieldShipped:
		return o.ShippedDate
	case DateFieldDelivered:
		return o.DeliveredDate
	case DateFieldPaymentCaptured:
		return o.PaymentCapturedDate
	default:
		return o.ScannedDate
	}
}

func (m *Matcher) paymentSource(source string) bool {
	if !active(m.filter.PaymentSource) {
		return true
	}
	if source == "" {
		return false
	}
	return strings.Contains(strings.ToLower(source), strings.ToLower(strings.TrimSpace(m.filter.PaymentSource)))
}

func (m *Matcher) methodsActive() bool {
	if len(m.filter.PaymentMethods) == 0 {
		return false
	}
	for _, method := range m.filter.PaymentMethods {
		if strings.EqualFold(strings.TrimSpace(method), allSentinel) {
			return false
		}
	}
	return true
}

func isPrepaidAlias(v string) bool {
	return v == "ppd" || v == "prepaid" || v == "pre-paid"
}

func (m *Matcher) paymentMethod(method string) bool {
	if !m.methodsActive() {
		return true
	}
	have := strings.ToLower(strings.TrimSpace(method))
	if have == "" {
		return false
	}
	for _, want := range m.filter.PaymentMethods {
		want = strings.ToLower(strings.TrimSpace(want))
		if isPrepaidAlias(want) {
			if strings.Contains(have, "ppd") || strings.Contains(have, "prepaid") || strings.Contains(have, "pre-paid") {
				return true
			}
			continue
		}
		if strings.Contains(have, want) {
			return true
		}
	}
	return false
}

func (m *Matcher) orderStatus(transactionType string) bool {
	if !active(m.filter.OrderStatus) {
		return true
	}
	return m.fold.String(transactionType) == m.fold.String(strings.TrimSpace(m.filter.OrderStatus))
}

func (m *Matcher) store(store string) bool {
	if !active(m.filter.Store) {
		return true
	}
	store = strings.TrimSpace(store)
	if store == "" {
		return false
	}
	return m.fold.String(store) == m.fold.String(strings.TrimSpace(m.filter.Store))
}

func (m *Matcher) Records(records []domain.ReconciliationRecord, idx OrderIndex) []domain.ReconciliationRecord {
	out := make([]domain.ReconciliationRecord, 0, len(records))
	for _, rec := range records {
		var order *domain.Order
		if o, ok := idx.Lookup(rec.OrderID, ""); ok {
			order = &o
		}
		productName, sku := "", ""
		if order != nil {
			productName, sku = order.ProductName, order.SKU
		}
		if !m.Search(rec.OrderID, rec.OrderNumber, productName, sku) || !m.Status(rec.Status) || !m.Order(order) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Orders filters orders. When a status is selected, an order must also be
// among the filtered records.
func (m *Matcher) Orders(orders []domain.Order, filtered []domain.ReconciliationRecord) []domain.Order {
	var reconciled map[string]bool
	if active(m.filter.Status) {
		reconciled = make(map[string]bool, len(filtered))
		for _, rec := range filtered {
			reconciled[rec.OrderID] = true
		}
	}
	out := make([]domain.Order, 0, len(orders))
	for i := range orders {
		o := orders[i]
		if !m.Search(o.OrderID, o.OrderNumber, o.ProductName, o.SKU) || !m.Order(&o) {
			continue
		}
		if reconciled != nil && !reconciled[o.OrderID] {
			continue
		}
		out = append(out, o)
	}
	return out
}

// CreditNotes searches every note value and applies order predicates
// through the linked order.
func (m *Matcher) CreditNotes(notes []domain.LinkedCreditNote) []domain.LinkedCreditNote {
	out := make([]domain.LinkedCreditNote, 0, len(notes))
	for _, note := range notes {
		if !m.noteSearch(note.Note) || !m.Order(note.Order) {
			continue
		}
		out = append(out, note)
	}
	return out
}

func (m *Matcher) noteSearch(note domain.CreditNote) bool {
	if m.search == "" {
		return true
	}
	for _, v := range note {
		if strings.Contains(strings.ToLower(domain.ToString(v)), m.search) {
			return true
		}
	}
	return false
}

// FilterTables keeps provider rows whose order_id, else order_number, belongs to a filtered record.
func FilterTables(tables Tables, filtered []domain.ReconciliationRecord) Tables {
	keep := make(map[string]bool, len(filtered))
	for _, rec := range filtered {
		keep[rec.OrderID] = true
		if rec.OrderNumber != "" {
			keep[rec.OrderNumber] = true
		}
	}
	out := make(Tables, len(tables))
	for name, rows := range tables {
		kept := make([]domain.RawRecord, 0)
		for _, rec := range rows {
			if keep[rec.FirstString("order_id", "order_number")] {
				kept = append(kept, rec)
			}
		}
		out[name] = kept
	}
	return out
}
