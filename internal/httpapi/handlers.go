package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
	"github.com/emiac1617/payment-reconciliation/internal/export"
	"github.com/emiac1617/payment-reconciliation/internal/reconcile"
	"github.com/emiac1617/payment-reconciliation/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		a.writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token valid for the current hour bucket.
// Mutating requests send it back in X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// parseFilter reads the shared filter query parameters. payment_method may be
// repeated or comma separated.
func parseFilter(q url.Values) reconcile.Filter {
	var methods []string
	for _, raw := range q["payment_method"] {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				methods = append(methods, m)
			}
		}
	}
	return reconcile.Filter{
		Search:         strings.TrimSpace(q.Get("search")),
		Status:         strings.TrimSpace(q.Get("status")),
		DateField:      reconcile.DateField(strings.TrimSpace(q.Get("date_field"))),
		DateRange:      reconcile.DateRange(strings.TrimSpace(q.Get("date_range"))),
		CustomStart:    strings.TrimSpace(q.Get("start")),
		CustomEnd:      strings.TrimSpace(q.Get("end")),
		PaymentSource:  strings.TrimSpace(q.Get("payment_source")),
		PaymentMethods: methods,
		OrderStatus:    strings.TrimSpace(q.Get("order_status")),
		Store:          strings.TrimSpace(q.Get("store")),
	}
}

func parsePage(q url.Values) (int, int) {
	return parsePositiveLimit(q.Get("page"), 1, 0), parsePositiveLimit(q.Get("per_page"), reconcile.DefaultPerPage, maxPerPage)
}

func (a *API) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := parsePage(q)
	view, err := a.service.Reconciliation(r.Context(), parseFilter(q), page, perPage)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.Stats(r.Context(), parseFilter(r.URL.Query()))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	info, err := a.service.Refresh(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.OrderDetail(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := a.service.SaveAdjustment(r.Context(), chi.URLParam(r, "orderID"), req.AdjustedAmount, req.Remark)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.AdjustmentResponse{Record: record})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := parsePage(q)
	view, err := a.service.Orders(r.Context(), parseFilter(q), page, perPage)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleStoreOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := a.service.StoreOptions(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (a *API) handleOrdersByStore(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.OrdersByStore(r.Context(), chi.URLParam(r, "store"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	page, perPage := parsePage(r.URL.Query())
	writeJSON(w, http.StatusOK, map[string]any{"orders": reconcile.Paginate(orders, page, perPage)})
}

func (a *API) handlePaymentSources(w http.ResponseWriter, r *http.Request) {
	sources, err := a.service.PaymentSources(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_sources": sources})
}

func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := a.service.Inventory(r.Context(), parseFilter(q), q.Get("sku"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (a *API) handleCreditNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := a.service.CreditNotes(r.Context(), parseFilter(r.URL.Query()))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credit_notes": notes})
}

// handleRawCreditNotes serves the shape remote.CreditNoteClient reads, so one
// instance can act as another's credit-note source.
func (a *API) handleRawCreditNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := a.service.RawCreditNotes(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"creditNotes": notes})
}

func (a *API) handleProviders(w http.ResponseWriter, r *http.Request) {
	names, err := a.service.ProviderNames(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": names})
}

func (a *API) handleProviderRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	rows, err := a.service.ProviderRecords(r.Context(), name, parseFilter(r.URL.Query()))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": name, "records": rows})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported export format %q", format))
		return
	}

	table, err := a.exportTable(r, chi.URLParam(r, "view"), parseFilter(q))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	contentType := export.ContentTypeCSV
	if format == "xlsx" {
		contentType = export.ContentTypeXLSX
		err = export.WriteXLSX(&buf, table)
	} else {
		err = export.WriteCSV(&buf, table)
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", strings.ToLower(table.Name), time.Now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) exportTable(r *http.Request, view string, f reconcile.Filter) (export.Table, error) {
	ctx := r.Context()
	switch view {
	case "reconciliation":
		records, err := a.service.FilteredRecords(ctx, f)
		if err != nil {
			return export.Table{}, err
		}
		return export.ReconciliationTable(records), nil
	case "orders":
		orders, err := a.service.FilteredOrders(ctx, f)
		if err != nil {
			return export.Table{}, err
		}
		return export.OrdersTable(orders), nil
	case "inventory":
		rows, err := a.service.Inventory(ctx, f, r.URL.Query().Get("sku"))
		if err != nil {
			return export.Table{}, err
		}
		return export.InventoryTable(rows), nil
	case "provider":
		name := strings.TrimSpace(r.URL.Query().Get("provider"))
		if name == "" {
			return export.Table{}, &service.ValidationError{Message: "provider is required for the provider export"}
		}
		rows, err := a.service.ProviderRecords(ctx, name, f)
		if err != nil {
			return export.Table{}, err
		}
		return export.ProviderTable(a.service.Registry(), name, rows), nil
	default:
		return export.Table{}, &service.ValidationError{Message: fmt.Sprintf("unknown export view %q", view)}
	}
}
