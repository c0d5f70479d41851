package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/auth"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/pagination"
	"github.com/medassist/api/internal/services"
)

// DriverHandlers exposes the courier endpoints.
type DriverHandlers struct {
	verifier   auth.Verifier
	deliveries services.DeliveryService
}

// NewDriverHandlers constructs the driver endpoint handlers.
func NewDriverHandlers(verifier auth.Verifier, deliveries services.DeliveryService) *DriverHandlers {
	return &DriverHandlers{verifier: verifier, deliveries: deliveries}
}

// Routes wires the /driver endpoints onto the provided router.
func (h *DriverHandlers) Routes(r chi.Router) {
	r.Use(auth.RequireAuth(h.verifier))
	r.Use(auth.RequireRole(domain.RoleDriver))

	r.Get("/deliveries", h.list)
	r.Get("/deliveries/{deliveryID}", h.get)
	r.Post("/deliveries/{deliveryID}/accept", h.accept)
	r.Post("/deliveries/{deliveryID}/status", h.updateStatus)
	r.Post("/deliveries/{deliveryID}/confirm", h.confirm)
	r.Post("/deliveries/{deliveryID}/location", h.updateLocation)
}

// list returns the driver's own deliveries, or the unclaimed pool when
// available=true.
func (h *DriverHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	available, _ := strconv.ParseBool(r.URL.Query().Get("available"))
	var (
		page domain.Page[domain.Delivery]
		err  error
	)
	if available {
		page, err = h.deliveries.ListAvailable(ctx, pagination.FromRequest(r))
	} else {
		page, err = h.deliveries.ListForDriver(ctx, identity.UserID, pagination.FromRequest(r))
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"deliveries": toDeliveryViews(page.Items),
		"pagination": toPageView(page.Info),
	})
}

func (h *DriverHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	detail, err := h.deliveries.GetForDriver(ctx, identity.UserID, chi.URLParam(r, "deliveryID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"delivery": toDeliveryView(detail.Delivery),
		"order":    toOrderSummaryView(detail.Order),
	})
}

func (h *DriverHandlers) accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	delivery, err := h.deliveries.Accept(ctx, identity.UserID, chi.URLParam(r, "deliveryID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toDeliveryView(delivery))
}

type deliveryStatusRequest struct {
	Status string `json:"status"`
}

func (h *DriverHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req deliveryStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	delivery, err := h.deliveries.UpdateStatus(ctx, identity.UserID, chi.URLParam(r, "deliveryID"), domain.DeliveryStatus(req.Status))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toDeliveryView(delivery))
}

type confirmDeliveryRequest struct {
	OTP string `json:"otp"`
}

func (h *DriverHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req confirmDeliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	delivery, err := h.deliveries.ConfirmHandover(ctx, identity.UserID, chi.URLParam(r, "deliveryID"), req.OTP)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, toDeliveryView(delivery), "delivery confirmed")
}

type locationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (h *DriverHandlers) updateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req locationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	if err := h.deliveries.UpdateLocation(ctx, identity.UserID, chi.URLParam(r, "deliveryID"), domain.GeoPoint{Lat: req.Lat, Lon: req.Lon}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, nil, "location updated")
}
