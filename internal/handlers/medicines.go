package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/pagination"
	"github.com/medassist/api/internal/services"
)

// MedicineHandlers exposes the public catalog endpoints.
type MedicineHandlers struct {
	catalog services.CatalogService
}

// NewMedicineHandlers constructs the catalog endpoint handlers.
func NewMedicineHandlers(catalog services.CatalogService) *MedicineHandlers {
	return &MedicineHandlers{catalog: catalog}
}

// Routes wires the /medicines endpoints onto the provided router.
func (h *MedicineHandlers) Routes(r chi.Router) {
	r.Get("/", h.search)
	r.Get("/{medicineID}", h.get)
}

func (h *MedicineHandlers) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")

	page, err := h.catalog.SearchMedicines(ctx, query, pagination.FromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]medicineView, 0, len(page.Items))
	for _, medicine := range page.Items {
		views = append(views, toMedicineView(medicine))
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"medicines":  views,
		"pagination": toPageView(page.Info),
	})
}

func (h *MedicineHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	medicine, err := h.catalog.GetMedicine(ctx, chi.URLParam(r, "medicineID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, toMedicineView(medicine))
}

// PharmacyHandlers exposes the public pharmacy discovery endpoints.
type PharmacyHandlers struct {
	catalog services.CatalogService
}

// NewPharmacyHandlers constructs the pharmacy endpoint handlers.
func NewPharmacyHandlers(catalog services.CatalogService) *PharmacyHandlers {
	return &PharmacyHandlers{catalog: catalog}
}

// Routes wires the /pharmacies endpoints onto the provided router.
func (h *PharmacyHandlers) Routes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *PharmacyHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.PharmacyFilter{}
	latRaw, lonRaw := query.Get("lat"), query.Get("lon")
	if latRaw != "" && lonRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lon, lonErr := strconv.ParseFloat(lonRaw, 64)
		if latErr != nil || lonErr != nil {
			httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "lat and lon must be numeric"))
			return
		}
		filter.Near = &domain.GeoPoint{Lat: lat, Lon: lon}
		if radius, err := strconv.ParseFloat(query.Get("radius_km"), 64); err == nil {
			filter.RadiusKm = radius
		}
	}

	page, err := h.catalog.ListPharmacies(ctx, filter, pagination.FromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]pharmacyView, 0, len(page.Items))
	for _, pharmacy := range page.Items {
		views = append(views, toPharmacyView(pharmacy))
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"pharmacies": views,
		"pagination": toPageView(page.Info),
	})
}
