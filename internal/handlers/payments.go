package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/platform/auth"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/services"
)

// PaymentHandlers exposes the payment provider webhook plus a development
// simulator that lets a logged-in customer mark their own order paid.
type PaymentHandlers struct {
	verifier      auth.Verifier
	orders        services.OrderService
	allowSimulate bool
}

// NewPaymentHandlers constructs the payment endpoint handlers.
func NewPaymentHandlers(verifier auth.Verifier, orders services.OrderService, allowSimulate bool) *PaymentHandlers {
	return &PaymentHandlers{verifier: verifier, orders: orders, allowSimulate: allowSimulate}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	r.Post("/webhook", h.webhook)
	if h.allowSimulate {
		r.With(auth.RequireAuth(h.verifier)).Post("/simulate", h.simulate)
	}
}

type paymentWebhookRequest struct {
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id"`
}

func (h *PaymentHandlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req paymentWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}
	if req.OrderID == "" || req.PaymentStatus == "" {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeMissingField, "order_id and payment_status are required"))
		return
	}

	order, err := h.orders.HandlePaymentResult(ctx, req.OrderID, req.PaymentStatus == "paid", req.TransactionID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{
		"order_id":       order.ID,
		"payment_status": string(order.PaymentStatus),
	})
}

type simulatePaymentRequest struct {
	OrderID string `json:"order_id"`
	Succeed *bool  `json:"succeed"`
}

func (h *PaymentHandlers) simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req simulatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	// Only the owning customer can simulate against their order.
	order, err := h.orders.GetForUser(ctx, identity.UserID, req.OrderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	succeed := true
	if req.Succeed != nil {
		succeed = *req.Succeed
	}
	updated, err := h.orders.HandlePaymentResult(ctx, order.ID, succeed, "sim_"+order.ID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toOrderView(updated, true))
}
