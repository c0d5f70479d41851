package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/auth"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/pagination"
	"github.com/medassist/api/internal/services"
)

// PharmacistHandlers exposes the pharmacy-operator endpoints: profile, stock
// and the pharmacy side of the order lifecycle.
type PharmacistHandlers struct {
	verifier   auth.Verifier
	pharmacist services.PharmacistService
}

// NewPharmacistHandlers constructs the pharmacist endpoint handlers.
func NewPharmacistHandlers(verifier auth.Verifier, pharmacist services.PharmacistService) *PharmacistHandlers {
	return &PharmacistHandlers{verifier: verifier, pharmacist: pharmacist}
}

// Routes wires the /pharmacist endpoints onto the provided router.
func (h *PharmacistHandlers) Routes(r chi.Router) {
	r.Use(auth.RequireAuth(h.verifier))
	r.Use(auth.RequireRole(domain.RolePharmacist))

	r.Get("/pharmacy", h.getPharmacy)
	r.Post("/pharmacy", h.registerPharmacy)
	r.Patch("/pharmacy", h.updatePharmacy)

	r.Get("/inventory", h.listInventory)
	r.Post("/inventory", h.addBatch)
	r.Get("/inventory/{inventoryID}", h.getBatch)
	r.Patch("/inventory/{inventoryID}", h.updateBatch)
	r.Delete("/inventory/{inventoryID}", h.deleteBatch)

	r.Get("/orders", h.listOrders)
	r.Post("/orders/{orderID}/accept", h.acceptOrder)
	r.Post("/orders/{orderID}/decline", h.declineOrder)
	r.Post("/orders/{orderID}/prepared", h.markPrepared)
}

func (h *PharmacistHandlers) getPharmacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	pharmacy, err := h.pharmacist.ResolvePharmacy(ctx, identity.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toPharmacyView(pharmacy))
}

type pharmacyRequest struct {
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Location     geoPointView `json:"location"`
	OpeningHours string       `json:"opening_hours"`
	ContactPhone string       `json:"contact_phone"`
}

func (h *PharmacistHandlers) registerPharmacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req pharmacyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	pharmacy, err := h.pharmacist.RegisterPharmacy(ctx, identity.UserID, services.PharmacyInput{
		Name:         req.Name,
		Address:      req.Address,
		Location:     domain.GeoPoint{Lat: req.Location.Lat, Lon: req.Location.Lon},
		OpeningHours: req.OpeningHours,
		ContactPhone: req.ContactPhone,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, toPharmacyView(pharmacy))
}

func (h *PharmacistHandlers) updatePharmacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req pharmacyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	pharmacy, err := h.pharmacist.UpdatePharmacy(ctx, identity.UserID, services.PharmacyInput{
		Name:         req.Name,
		Address:      req.Address,
		Location:     domain.GeoPoint{Lat: req.Location.Lat, Lon: req.Location.Lon},
		OpeningHours: req.OpeningHours,
		ContactPhone: req.ContactPhone,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toPharmacyView(pharmacy))
}

func (h *PharmacistHandlers) listInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	page, err := h.pharmacist.ListInventory(ctx, identity.UserID, pagination.FromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]inventoryView, 0, len(page.Items))
	for _, item := range page.Items {
		views = append(views, toInventoryView(item))
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"inventory":  views,
		"pagination": toPageView(page.Info),
	})
}

type batchRequest struct {
	MedicineID   string    `json:"medicine_id"`
	BatchNo      string    `json:"batch_no"`
	ExpiryDate   time.Time `json:"expiry_date"`
	AvailableQty *int      `json:"quantity_available"`
	MRP          float64   `json:"mrp"`
	SellingPrice float64   `json:"selling_price"`
}

func (req batchRequest) toInput() services.BatchInput {
	qty := -1
	if req.AvailableQty != nil {
		qty = *req.AvailableQty
	}
	return services.BatchInput{
		MedicineID:   req.MedicineID,
		BatchNo:      req.BatchNo,
		ExpiryDate:   req.ExpiryDate,
		AvailableQty: qty,
		MRP:          req.MRP,
		SellingPrice: req.SellingPrice,
	}
}

func (h *PharmacistHandlers) addBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}
	input := req.toInput()
	if req.AvailableQty == nil {
		input.AvailableQty = 0
	}

	item, err := h.pharmacist.AddBatch(ctx, identity.UserID, input)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, toInventoryView(item))
}

func (h *PharmacistHandlers) getBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	item, err := h.pharmacist.GetBatch(ctx, identity.UserID, chi.URLParam(r, "inventoryID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toInventoryView(item))
}

func (h *PharmacistHandlers) updateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	item, err := h.pharmacist.UpdateBatch(ctx, identity.UserID, chi.URLParam(r, "inventoryID"), req.toInput())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toInventoryView(item))
}

func (h *PharmacistHandlers) deleteBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	if err := h.pharmacist.DeleteBatch(ctx, identity.UserID, chi.URLParam(r, "inventoryID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, nil, "batch removed")
}

func (h *PharmacistHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	status := domain.OrderStatus(r.URL.Query().Get("status"))
	page, err := h.pharmacist.ListOrders(ctx, identity.UserID, status, pagination.FromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"orders":     toOrderViews(page.Items, false),
		"pagination": toPageView(page.Info),
	})
}

func (h *PharmacistHandlers) acceptOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	order, err := h.pharmacist.AcceptOrder(ctx, identity.UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toOrderView(order, false))
}

type declineOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *PharmacistHandlers) declineOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req declineOrderRequest
	_ = decodeJSON(w, r, &req)

	order, err := h.pharmacist.DeclineOrder(ctx, identity.UserID, chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toOrderView(order, false))
}

func (h *PharmacistHandlers) markPrepared(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	order, err := h.pharmacist.MarkOrderPrepared(ctx, identity.UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toOrderView(order, false))
}
