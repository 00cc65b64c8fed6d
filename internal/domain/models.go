package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type Status string

const (
	StatusMatchPending  Status = "match_pending"
	StatusMatched       Status = "matched"
	StatusDiscrepancy   Status = "discrepancy"
	StatusOrphanedOrder Status = "orphaned_order"
)

func (s Status) Valid() bool {
	switch s {
	case StatusMatchPending, StatusMatched, StatusDiscrepancy, StatusOrphanedOrder:
		return true
	}
	return false
}

type Order struct {
	ID                  string  `json:"id,omitempty"`
	OrderID             string  `json:"order_id"`
	OrderNumber         string  `json:"order_number,omitempty"`
	ShippedOrderNumber  string  `json:"shipped_order_number,omitempty"`
	Store               string  `json:"store,omitempty"`
	State               string  `json:"state,omitempty"`
	CustomerName        string  `json:"customer_name,omitempty"`
	CustomerEmail       string  `json:"customer_email,omitempty"`
	CustomerPhone       string  `json:"customer_phone,omitempty"`
	FinalAmount         float64 `json:"final_amount"`
	PrepaidAmount       float64 `json:"prepaid_amount"`
	CODAmount           float64 `json:"cod_amount"`
	ShippingAmount      float64 `json:"shipping_amount"`
	PaymentMethod       string  `json:"payment_method,omitempty"`
	PaymentSource       string  `json:"payment_source,omitempty"`
	PaymentStatus       string  `json:"payment_status,omitempty"`
	TransactionType     string  `json:"transaction_type,omitempty"`
	ShippingPartner     string  `json:"shipping_partner,omitempty"`
	OrderDate           string  `json:"order_date,omitempty"`
	ShippedDate         string  `json:"shipped_date,omitempty"`
	DeliveredDate       string  `json:"delivered_date,omitempty"`
	ScannedDate         string  `json:"scanned_date,omitempty"`
	PaymentCapturedDate string  `json:"payment_captured_date,omitempty"`
	ProductName         string  `json:"product_name,omitempty"`
	SKU                 string  `json:"sku,omitempty"`
	Quantity            int     `json:"quantity"`
	AdjustedAmount      float64 `json:"adjusted_amount"`
	Remark              string  `json:"remark"`
}

// Key is the join key used by provider and credit-note lookups.
func (o Order) Key() string {
	if o.OrderID != "" {
		return o.OrderID
	}
	return o.OrderNumber
}

type PaymentAggregate struct {
	Total   float64  `json:"total"`
	Sources []string `json:"sources"`
}

type ReconciliationRecord struct {
	OrderID               string   `json:"order_id"`
	OrderNumber           string   `json:"order_number"`
	Store                 string   `json:"store,omitempty"`
	ShippingDate          string   `json:"shipping_date"`
	OrderAmount           float64  `json:"order_amount"`
	PaymentAmount         float64  `json:"payment_amount"`
	OriginalPaymentAmount float64  `json:"original_payment_amount"`
	Difference            float64  `json:"difference"`
	Status                Status   `json:"status"`
	PaymentSources        []string `json:"payment_sources"`
	AdjustedAmount        float64  `json:"adjusted_amount"`
	Remark                string   `json:"remark"`
}

type CreditNote RawRecord

func (c CreditNote) Record() RawRecord {
	return RawRecord(c)
}

type LinkedCreditNote struct {
	Note  CreditNote `json:"note"`
	Order *Order     `json:"order,omitempty"`
}

type InventoryRow struct {
	SKU               string  `json:"sku"`
	ProductName       string  `json:"product_name"`
	TotalOrders       int     `json:"totalOrders"`
	TotalQuantity     int     `json:"totalQuantity"`
	ScanOutQty        int     `json:"scanOutQty"`
	ScanInQty         int     `json:"scanInQty"`
	NetQty            int     `json:"netQty"`
	TotalRevenue      float64 `json:"totalRevenue"`
	LatestShippedDate *string `json:"latestShippedDate"`
	Orders            []Order `json:"orders"`
}

type Stats struct {
	TotalOrders         int     `json:"totalOrders"`
	TotalReceivedAmount float64 `json:"totalReceivedAmount"`
	TotalOrderAmount    float64 `json:"totalOrderAmount"`
	MatchPending        int     `json:"matchPending"`
	Discrepancies       int     `json:"discrepancies"`
	Matched             int     `json:"matched"`
	Orphaned            int     `json:"orphaned"`
}

type ProviderEntry struct {
	Provider string    `json:"provider"`
	Amount   float64   `json:"amount"`
	Record   RawRecord `json:"record"`
}

type OrderDetail struct {
	Record      ReconciliationRecord `json:"record"`
	Order       *Order               `json:"order,omitempty"`
	Gateways    []ProviderEntry      `json:"gateways"`
	Shipping    []ProviderEntry      `json:"shipping"`
	Other       []ProviderEntry      `json:"other"`
	CreditNotes []CreditNote         `json:"credit_notes"`
}

// OrderAdjustment is the persisted state of the two mutable reconciliation columns.
type OrderAdjustment struct {
	OrderID        string  `json:"order_id"`
	AdjustedAmount float64 `json:"adjusted_amount"`
	Remark         string  `json:"remark"`
}

// AmountInput keeps the raw text of an amount that may arrive as a JSON number or string.
type AmountInput string

func (a *AmountInput) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
		return nil
	}
	*a = AmountInput(raw)
	return nil
}

type AdjustmentRequest struct {
	AdjustedAmount AmountInput `json:"adjusted_amount"`
	Remark         string      `json:"remark" validate:"max=1000"`
}

type AdjustmentResponse struct {
	Record ReconciliationRecord `json:"record"`
}

type StoreOptions struct {
	Column string   `json:"column"`
	Stores []string `json:"stores"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceSnapshot is the raw input of one reconciliation load, as fetched from
// the order, provider and credit-note stores.
type SourceSnapshot struct {
	Orders       []RawRecord            `json:"orders"`
	Tables       map[string][]RawRecord `json:"tables"`
	CreditNotes  []CreditNote           `json:"credit_notes"`
	EditsEnabled bool                   `json:"edits_enabled"`
	FetchedAt    time.Time              `json:"fetched_at"`
}
