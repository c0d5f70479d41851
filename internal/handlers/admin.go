package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/auth"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/pagination"
	"github.com/medassist/api/internal/repositories"
	"github.com/medassist/api/internal/services"
)

// AdminHandlers exposes operator endpoints: staff provisioning, catalog
// writes and user listings.
type AdminHandlers struct {
	verifier auth.Verifier
	auth     services.AuthService
	catalog  services.CatalogService
	users    repositories.UserRepository
}

// NewAdminHandlers constructs the admin endpoint handlers.
func NewAdminHandlers(verifier auth.Verifier, authSvc services.AuthService, catalog services.CatalogService, users repositories.UserRepository) *AdminHandlers {
	return &AdminHandlers{verifier: verifier, auth: authSvc, catalog: catalog, users: users}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Use(auth.RequireAuth(h.verifier))
	r.Use(auth.RequireRole(domain.RoleAdmin))

	r.Post("/users", h.provisionUser)
	r.Get("/users", h.listUsers)
	r.Post("/create-pharmacist", h.createPharmacist)
	r.Post("/create-driver", h.createDriver)
	r.Post("/medicines", h.createMedicine)
}

type provisionUserRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *AdminHandlers) provisionUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req provisionUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	user, err := h.auth.Provision(ctx, services.ProvisionInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, toUserView(user))
}

type createPharmacistRequest struct {
	Name            string        `json:"name"`
	Phone           string        `json:"phone"`
	Email           string        `json:"email"`
	Password        string        `json:"password"`
	PharmacyName    string        `json:"pharmacy_name"`
	PharmacyAddress string        `json:"pharmacy_address"`
	Location        *geoPointView `json:"location"`
}

// createPharmacist provisions the pharmacist account together with the
// pharmacy they will operate.
func (h *AdminHandlers) createPharmacist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createPharmacistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	input := services.ProvisionPharmacistInput{
		Name:            req.Name,
		Phone:           req.Phone,
		Email:           req.Email,
		Password:        req.Password,
		PharmacyName:    req.PharmacyName,
		PharmacyAddress: req.PharmacyAddress,
	}
	if req.Location != nil {
		input.Location = domain.GeoPoint{Lat: req.Location.Lat, Lon: req.Location.Lon}
	}

	user, pharmacy, err := h.auth.ProvisionPharmacist(ctx, input)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, map[string]any{
		"user":     toUserView(user),
		"pharmacy": toPharmacyView(pharmacy),
	})
}

type createDriverRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// createDriver provisions a driver. The internal email is generated, never
// taken from the request.
func (h *AdminHandlers) createDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createDriverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	user, err := h.auth.ProvisionDriver(ctx, services.ProvisionDriverInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, toUserView(user))
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role := domain.Role(r.URL.Query().Get("role"))

	page, err := h.users.List(ctx, role, pagination.FromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]userView, 0, len(page.Items))
	for _, user := range page.Items {
		views = append(views, toUserView(user))
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"users":      views,
		"pagination": toPageView(page.Info),
	})
}

type createMedicineRequest struct {
	Name                 string   `json:"name"`
	Brand                string   `json:"brand"`
	GenericName          string   `json:"generic_name"`
	Salt                 string   `json:"salt"`
	DosageForm           string   `json:"dosage_form"`
	Strength             string   `json:"strength"`
	PrescriptionRequired bool     `json:"prescription_required"`
	Tags                 []string `json:"tags"`
	Synonyms             []string `json:"synonyms"`
	Manufacturer         string   `json:"manufacturer"`
}

func (h *AdminHandlers) createMedicine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createMedicineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	medicine, err := h.catalog.CreateMedicine(ctx, services.MedicineInput{
		Name:                 req.Name,
		Brand:                req.Brand,
		GenericName:          req.GenericName,
		Salt:                 req.Salt,
		DosageForm:           domain.DosageForm(req.DosageForm),
		Strength:             req.Strength,
		PrescriptionRequired: req.PrescriptionRequired,
		Tags:                 req.Tags,
		Synonyms:             req.Synonyms,
		Manufacturer:         req.Manufacturer,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, toMedicineView(medicine))
}
