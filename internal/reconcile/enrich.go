package reconcile

import (
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/provider"
)

var shippingDateFields = []string{"delivered_date", "created_at", "pick_up_date", "pickup_date"}

// PlaceholderPolicy fills identifiers the upstream order export does not carry.
type PlaceholderPolicy interface {
	ShippedOrderNumber(orderID string) string
	TransactionType(orderID string) string
}

// DefaultPlaceholders derives shipped order numbers from the order id and
// leaves unknown transaction types empty.
type DefaultPlaceholders struct{}

func (DefaultPlaceholders) ShippedOrderNumber(orderID string) string {
	if orderID == "" {
		orderID = "UNKNOWN"
	}
	var num string
	if strings.Contains(orderID, "ORD") {
		num = strings.Replace(orderID, "ORD", "", 1)
	} else if len(orderID) > 3 {
		num = orderID[len(orderID)-3:]
	} else {
		num = orderID
	}
	if len(num) < 3 {
		num = strings.Repeat("0", 3-len(num)) + num
	}
	return "SHIP" + num
}

func (DefaultPlaceholders) TransactionType(string) string {
	return ""
}

var DefaultTransactionVocabulary = []string{"RTO Delivered", "DELIVERED", "FAULT", "RTO", "NDR", "Scanned", "IN-TRANSIT"}

// VocabularyPlaceholders assigns a transaction type from a fixed vocabulary,
// chosen by hashing the order id so the same order always gets the same value.
type VocabularyPlaceholders struct {
	DefaultPlaceholders
	Vocabulary []string
}

func (v VocabularyPlaceholders) TransactionType(orderID string) string {
	vocab := v.Vocabulary
	if len(vocab) == 0 {
		vocab = DefaultTransactionVocabulary
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return vocab[int(h.Sum32()%uint32(len(vocab)))]
}

// DecodeOrder maps a raw orders row onto Order. The capitalised Store column
// wins over store when both exist.
func DecodeOrder(raw domain.RawRecord) domain.Order {
	store := raw.String("Store")
	if _, ok := raw["Store"]; !ok || raw["Store"] == nil {
		store = raw.String("store")
	}
	return domain.Order{
		ID:                  raw.String("id"),
		OrderID:             raw.String("order_id"),
		OrderNumber:         raw.String("order_number"),
		ShippedOrderNumber:  raw.String("shipped_order_number"),
		Store:               store,
		State:               raw.String("state"),
		CustomerName:        raw.String("customer_name"),
		CustomerEmail:       raw.String("customer_email"),
		CustomerPhone:       raw.String("customer_phone"),
		FinalAmount:         raw.Number("final_amount"),
		PrepaidAmount:       raw.Number("prepaid_amount"),
		CODAmount:           raw.Number("cod_amount"),
		ShippingAmount:      raw.Number("shipping_amount"),
		PaymentMethod:       raw.String("payment_method"),
		PaymentSource:       raw.String("payment_source"),
		PaymentStatus:       raw.String("payment_status"),
		TransactionType:     raw.String("transaction_type"),
		ShippingPartner:     raw.FirstString("Shipping Partner", "shipping_partner"),
		OrderDate:           raw.String("order_date"),
		ShippedDate:         raw.String("shipped_date"),
		DeliveredDate:       raw.String("delivered_date"),
		ScannedDate:         raw.String("scanned_date"),
		PaymentCapturedDate: raw.String("payment_captured_date"),
		ProductName:         raw.String("product_name"),
		SKU:                 raw.String("sku"),
		Quantity:            int(math.Round(raw.Number("quantity"))),
		AdjustedAmount:      raw.Number("adjusted_amount"),
		Remark:              raw.String("remark"),
	}
}

type Enricher struct {
	Registry     *provider.Registry
	Placeholders PlaceholderPolicy
	Location     *time.Location
}

// Enrich decodes raw orders and resolves shipping partner, shipped date,
// payment captured date and the placeholder identifiers. Inputs are not mutated.
func (e Enricher) Enrich(raws []domain.RawRecord, tables Tables) []domain.Order {
	policy := e.Placeholders
	if policy == nil {
		policy = DefaultPlaceholders{}
	}
	byOrder := ByOrderID(tables)

	out := make([]domain.Order, 0, len(raws))
	for _, raw := range raws {
		order := DecodeOrder(raw)

		if order.ShippedOrderNumber == "" {
			order.ShippedOrderNumber = policy.ShippedOrderNumber(raw.FirstString("order_id", "id"))
		}
		if order.TransactionType == "" {
			order.TransactionType = e.transactionType(order, policy)
		}

		e.resolveShipping(&order, byOrder)
		order.PaymentCapturedDate = e.capturedDate(order, byOrder)

		out = append(out, order)
	}
	return out
}

func (e Enricher) transactionType(order domain.Order, policy PlaceholderPolicy) string {
	switch strings.ToLower(order.PaymentStatus) {
	case "paid":
		return "DELIVERED"
	case "pending":
		return "IN-TRANSIT"
	}
	return policy.TransactionType(order.OrderID)
}

func (e Enricher) resolveShipping(order *domain.Order, byOrder map[string]map[string][]domain.RawRecord) {
	if order.OrderID == "" {
		return
	}
	for _, p := range e.Registry.ShippingPriority() {
		records := byOrder[p.Name][order.OrderID]
		if len(records) == 0 {
			continue
		}
		rec := records[0]
		order.ShippingPartner = p.Name
		if carrier := p.Carrier(rec); carrier != "" {
			order.ShippingPartner = carrier
		}
		if date := rec.FirstString(shippingDateFields...); date != "" {
			order.ShippedDate = date
		}
		return
	}
}

type dateCandidate struct {
	gateway string
	raw     string
}

func (e Enricher) capturedDate(order domain.Order, byOrder map[string]map[string][]domain.RawRecord) string {
	if order.OrderID == "" {
		return order.PaymentCapturedDate
	}

	candidates := make([]dateCandidate, 0, 4)
	for _, p := range e.Registry.Gateways() {
		for _, rec := range byOrder[p.Name][order.OrderID] {
			if raw := p.CapturedAt(rec); raw != "" {
				candidates = append(candidates, dateCandidate{gateway: p.Name, raw: raw})
			}
		}
	}
	if len(candidates) == 0 {
		return order.PaymentCapturedDate
	}

	preferred := e.Registry.PreferredGateways(order.PaymentSource)
	if len(preferred) > 0 {
		restricted := make([]dateCandidate, 0, len(candidates))
		for _, c := range candidates {
			if preferred[c.gateway] {
				restricted = append(restricted, c)
			}
		}
		if latest, ok := e.latest(restricted); ok {
			return FormatISO(latest)
		}
	}
	if latest, ok := e.latest(candidates); ok {
		return FormatISO(latest)
	}
	return order.PaymentCapturedDate
}

func (e Enricher) latest(candidates []dateCandidate) (time.Time, bool) {
	var best time.Time
	found := false
	for _, c := range candidates {
		t, ok := ParseDate(c.raw, e.Location)
		if !ok {
			continue
		}
		if !found || t.After(best) {
			best = t
			found = true
		}
	}
	return best, found
}
