package provider

import (
	"sort"
	"strings"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

type Kind string

const (
	KindGateway  Kind = "gateway"
	KindShipping Kind = "shipping"
	KindOther    Kind = "other"
)

// AmountExtractor reads the provider-specific amount from one raw record.
type AmountExtractor func(domain.RawRecord) float64

type Provider struct {
	Name   string
	Kind   Kind
	Amount AmountExtractor
	// CapturedAtFields lists gateway date columns in priority order.
	CapturedAtFields []string
	// CarrierField names the column that overrides the table name as shipping partner.
	CarrierField string
	// SourceToken is matched against an order's lowercased payment_source.
	SourceToken string
}

func (p Provider) CapturedAt(rec domain.RawRecord) string {
	return rec.FirstString(p.CapturedAtFields...)
}

func (p Provider) Carrier(rec domain.RawRecord) string {
	if p.CarrierField == "" {
		return ""
	}
	return rec.String(p.CarrierField)
}

func Field(name string) AmountExtractor {
	return func(rec domain.RawRecord) float64 {
		return rec.Number(name)
	}
}

func FirstOf(names ...string) AmountExtractor {
	return func(rec domain.RawRecord) float64 {
		return rec.FirstNumber(names...)
	}
}

type Registry struct {
	byName           map[string]Provider
	order            []string
	shippingPriority []string
}

func NewRegistry(providers []Provider, shippingPriority []string) *Registry {
	r := &Registry{
		byName:           make(map[string]Provider, len(providers)),
		order:            make([]string, 0, len(providers)),
		shippingPriority: append([]string(nil), shippingPriority...),
	}
	for _, p := range providers {
		if p.Amount == nil {
			p.Amount = Field("amount")
		}
		if p.Kind == "" {
			p.Kind = KindOther
		}
		if _, exists := r.byName[p.Name]; !exists {
			r.order = append(r.order, p.Name)
		}
		r.byName[p.Name] = p
	}
	return r
}

func Default() *Registry {
	return NewRegistry([]Provider{
		{Name: "razorpay", Kind: KindGateway, Amount: Field("amount"), CapturedAtFields: []string{"createdAt", "created_at"}, SourceToken: "razor"},
		{Name: "gokwik", Kind: KindGateway, Amount: Field("Amount"), CapturedAtFields: []string{"Transaction Date", "created_at"}, SourceToken: "gok"},
		{Name: "shiprocket", Kind: KindShipping, Amount: Field("amount"), CarrierField: "courier"},
		{Name: "nimbus", Kind: KindShipping, Amount: Field("amount"), CarrierField: "carrier"},
		{Name: "bluedart", Kind: KindShipping, Amount: Field("amount"), CarrierField: "carrier"},
		{Name: "delhivery", Kind: KindShipping, Amount: Field("cod_amount"), CarrierField: "carrier"},
		{Name: "snapmint", Kind: KindGateway, Amount: Field("Order Value"), CapturedAtFields: []string{"created_at"}, SourceToken: "snap"},
		{Name: "shipway", Kind: KindOther, Amount: Field("Order Value")},
		{Name: "cred_pay", Kind: KindGateway, Amount: FirstOf("Credited Amount", "Amount"), CapturedAtFields: []string{"created_at", "Settlement_Time"}, SourceToken: "cred"},
		{Name: "india_post", Kind: KindShipping, Amount: Field("amount")},
	}, []string{"shiprocket", "nimbus", "bluedart", "delhivery"})
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Get returns the registered provider or an amount-only fallback.
func (r *Registry) Get(name string) Provider {
	if p, ok := r.byName[name]; ok {
		return p
	}
	return Provider{Name: name, Kind: KindOther, Amount: Field("amount")}
}

func (r *Registry) Amount(name string, rec domain.RawRecord) float64 {
	return r.Get(name).Amount(rec)
}

func (r *Registry) Kind(name string) Kind {
	return r.Get(name).Kind
}

// Names returns the registered provider names in canonical order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Order returns the table names of tables in canonical order, unknown names last and sorted.
func (r *Registry) Order(tables []string) []string {
	present := make(map[string]bool, len(tables))
	for _, name := range tables {
		present[name] = true
	}
	out := make([]string, 0, len(tables))
	for _, name := range r.order {
		if present[name] {
			out = append(out, name)
			delete(present, name)
		}
	}
	extra := make([]string, 0, len(present))
	for name := range present {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func (r *Registry) Gateways() []Provider {
	return r.ofKind(KindGateway)
}

func (r *Registry) ShippingPriority() []Provider {
	out := make([]Provider, 0, len(r.shippingPriority))
	for _, name := range r.shippingPriority {
		out = append(out, r.Get(name))
	}
	return out
}

// PreferredGateways returns the gateways whose token appears in paymentSource.
func (r *Registry) PreferredGateways(paymentSource string) map[string]bool {
	source := strings.ToLower(paymentSource)
	out := make(map[string]bool)
	if strings.TrimSpace(source) == "" {
		return out
	}
	for _, p := range r.Gateways() {
		if p.SourceToken != "" && strings.Contains(source, p.SourceToken) {
			out[p.Name] = true
		}
	}
	return out
}

func (r *Registry) ofKind(kind Kind) []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		if p := r.byName[name]; p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}
