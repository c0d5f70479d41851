package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/platform/auth"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/services"
)

// UserHandlers exposes profile, address and cart endpoints for the current
// user.
type UserHandlers struct {
	verifier auth.Verifier
	users    services.UserService
}

// NewUserHandlers constructs the user endpoint handlers.
func NewUserHandlers(verifier auth.Verifier, users services.UserService) *UserHandlers {
	return &UserHandlers{verifier: verifier, users: users}
}

// Routes wires the /users endpoints onto the provided router.
func (h *UserHandlers) Routes(r chi.Router) {
	r.Use(auth.RequireAuth(h.verifier))
	r.Get("/me", h.profile)
	r.Patch("/me", h.updateProfile)
	r.Post("/me/addresses", h.addAddress)
	r.Get("/me/cart", h.getCart)
	r.Post("/me/cart", h.addCartItem)
	r.Delete("/me/cart/{medicineID}", h.removeCartItem)
	r.Delete("/me/cart", h.clearCart)
}

func (h *UserHandlers) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	user, err := h.users.GetProfile(ctx, identity.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toUserView(user))
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *UserHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	user, err := h.users.UpdateProfile(ctx, identity.UserID, services.ProfileUpdate{Name: req.Name, Email: req.Email})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toUserView(user))
}

func (h *UserHandlers) addAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req addressView
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	user, err := h.users.AddAddress(ctx, identity.UserID, fromAddressView(req))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, toUserView(user))
}

func (h *UserHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	cart, err := h.users.GetCart(ctx, identity.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{"items": toCartView(cart)})
}

type cartItemRequest struct {
	MedicineID string  `json:"medicine_id"`
	PharmacyID string  `json:"pharmacy_id"`
	Qty        int     `json:"qty"`
	Price      float64 `json:"price"`
}

func (h *UserHandlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	var req cartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	cart, err := h.users.AddCartItem(ctx, identity.UserID, services.CartItemInput{
		MedicineID: req.MedicineID,
		PharmacyID: req.PharmacyID,
		Qty:        req.Qty,
		Price:      req.Price,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{"items": toCartView(cart)})
}

func (h *UserHandlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	cart, err := h.users.RemoveCartItem(ctx, identity.UserID, chi.URLParam(r, "medicineID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{"items": toCartView(cart)})
}

func (h *UserHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.FromContext(ctx)

	if err := h.users.ClearCart(ctx, identity.UserID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, nil, "cart cleared")
}
