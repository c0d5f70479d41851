package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/platform/auth"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/pagination"
	"github.com/medassist/api/internal/services"
)

const maxIdempotencyKeyLength = 100

// OrderHandlers exposes customer-facing order endpoints.
type OrderHandlers struct {
	verifier auth.Verifier
	orders   services.OrderService
}

// NewOrderHandlers constructs the order endpoint handlers.
func NewOrderHandlers(verifier auth.Verifier, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{verifier: verifier, orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Use(auth.RequireAuth(h.verifier))
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Post("/{orderID}/cancel", h.cancel)
	r.Post("/{orderID}/rate", h.rate)
}

type createOrderRequest struct {
	Items           []orderLineInput `json:"items"`
	ShippingAddress addressView      `json:"shipping_address"`
}

type orderLineInput struct {
	MedicineID string `json:"medicine_id"`
	PharmacyID string `json:"pharmacy_id"`
	Qty        int    `json:"qty"`
}

func (h *OrderHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLength {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "idempotency key too long"))
		return
	}

	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	// Every line names its pharmacy; an order is fulfilled by exactly one.
	pharmacyID := ""
	lines := make([]services.ReserveLine, 0, len(req.Items))
	for _, item := range req.Items {
		if pharmacyID == "" {
			pharmacyID = item.PharmacyID
		} else if item.PharmacyID != pharmacyID {
			httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeBadRequest, "all items must come from the same pharmacy"))
			return
		}
		lines = append(lines, services.ReserveLine{MedicineID: item.MedicineID, Qty: item.Qty})
	}

	result, err := h.orders.Create(ctx, identity.UserID, services.CreateOrderInput{
		PharmacyID:      pharmacyID,
		Items:           lines,
		ShippingAddress: fromAddressView(req.ShippingAddress),
		IdempotencyKey:  key,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.WriteData(w, status, toOrderView(result.Order, true))
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	page, err := h.orders.ListForUser(ctx, identity.UserID, pagination.FromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"orders":     toOrderViews(page.Items, true),
		"pagination": toPageView(page.Info),
	})
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	order, err := h.orders.GetForUser(ctx, identity.UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toOrderView(order, true))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req cancelOrderRequest
	_ = decodeJSON(w, r, &req)

	order, err := h.orders.Cancel(ctx, identity.UserID, chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, toOrderView(order, true), "order cancelled")
}

type rateOrderRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (h *OrderHandlers) rate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req rateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	order, err := h.orders.Rate(ctx, identity.UserID, chi.URLParam(r, "orderID"), req.Rating, req.Review)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toOrderView(order, true))
}
