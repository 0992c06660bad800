package api

import (
	"net/http"
	"strconv"

	"github.com/voxdeck/voxdeck/internal/console"
)

// billingHandler groups the subscription and payment HTTP handlers.
type billingHandler struct {
	store *console.Store
}

func newBillingHandler(store *console.Store) *billingHandler {
	return &billingHandler{store: store}
}

// Get handles GET /api/v1/billing (session).
func (h *billingHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.BillingSnapshot())
}

// Bootstrap handles POST /api/v1/billing/bootstrap (session). All four
// slices load concurrently; a failed slice reports its own error without
// failing the others.
func (h *billingHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	res := h.store.BillingBootstrap(r.Context())
	writeStoreResult(w, res, func() interface{} {
		return h.store.BillingSnapshot()
	})
}

// Refresh handles POST /api/v1/billing/refresh (session). Refreshes the
// subscription and usage slices only.
func (h *billingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.store.BillingRefreshCore(r.Context())
	writeJSON(w, http.StatusOK, h.store.BillingSnapshot())
}

// Payments handles GET /api/v1/billing/payments (session). A limit query
// reloads the first page; otherwise the cached list is returned.
func (h *billingHandler) Payments(w http.ResponseWriter, r *http.Request) {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		res := h.store.FetchPayments(r.Context(), console.PaymentsQuery{Limit: limit}, false)
		writeStoreResult(w, res, func() interface{} {
			return paymentsPayload(h.store.BillingSnapshot())
		})
		return
	}
	writeJSON(w, http.StatusOK, paymentsPayload(h.store.BillingSnapshot()))
}

// LoadMorePayments handles POST /api/v1/billing/payments/more (session).
// A no-op (exhausted pagination, in-flight load) returns the current page
// unchanged.
func (h *billingHandler) LoadMorePayments(w http.ResponseWriter, r *http.Request) {
	res := h.store.LoadMorePayments(r.Context())
	if !res.Success && res.Error == "" {
		writeJSON(w, http.StatusOK, paymentsPayload(h.store.BillingSnapshot()))
		return
	}
	writeStoreResult(w, res, func() interface{} {
		return paymentsPayload(h.store.BillingSnapshot())
	})
}

func paymentsPayload(b console.Billing) map[string]interface{} {
	return map[string]interface{}{
		"payments":       b.Payments,
		"has_more":       b.HasMorePayments,
		"total_payments": b.TotalPayments,
	}
}

type checkoutRequest struct {
	Plan      console.Plan `json:"plan"`
	ReturnURL string       `json:"return_url"`
}

// Checkout handles POST /api/v1/billing/checkout (session). The return
// URL anchors the success and cancel redirects; it defaults to the
// request origin.
func (h *billingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Plan.Name == "" && req.Plan.Code == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "plan is required")
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = r.Header.Get("Origin")
	}
	if returnURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		returnURL = scheme + "://" + r.Host
	}

	res := h.store.CreateCheckoutSession(r.Context(), req.Plan, returnURL)
	if !res.Success {
		writeError(w, http.StatusBadGateway, "checkout_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": res.URL})
}

// Downgrade handles POST /api/v1/billing/downgrade (session). Already
// being on the free plan counts as success.
func (h *billingHandler) Downgrade(w http.ResponseWriter, r *http.Request) {
	res := h.store.DowngradeToFree(r.Context())
	if !res.Success {
		writeError(w, http.StatusBadGateway, "downgrade_failed", res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"downgraded": true, "already": res.Already})
}
