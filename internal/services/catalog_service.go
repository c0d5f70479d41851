package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/repositories"
)

const earthRadiusKm = 6371.0

var (
	// ErrMedicineNotFound indicates no such catalog entry.
	ErrMedicineNotFound = errors.New("catalog: medicine not found")
	// ErrCatalogInvalidInput signals invalid arguments.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
)

// MedicineInput captures an admin-created catalog entry.
type MedicineInput struct {
	Name                 string
	Brand                string
	GenericName          string
	Salt                 string
	DosageForm           domain.DosageForm
	Strength             string
	PrescriptionRequired bool
	Tags                 []string
	Synonyms             []string
	Manufacturer         string
}

// PharmacyFilter narrows pharmacy listings to a radius around a point.
type PharmacyFilter struct {
	Near     *domain.GeoPoint
	RadiusKm float64
}

// CatalogService is the read-mostly public surface: medicine search and
// pharmacy discovery.
type CatalogService interface {
	CreateMedicine(ctx context.Context, input MedicineInput) (domain.Medicine, error)
	GetMedicine(ctx context.Context, id string) (domain.Medicine, error)
	// SearchMedicines serves from the short-lived cache when the same query
	// was answered recently.
	SearchMedicines(ctx context.Context, query string, p domain.Pagination) (domain.Page[domain.Medicine], error)
	ListPharmacies(ctx context.Context, filter PharmacyFilter, p domain.Pagination) (domain.Page[domain.Pharmacy], error)
}

// CatalogServiceDeps bundles the collaborators required to construct a
// catalog service.
type CatalogServiceDeps struct {
	Medicines   repositories.MedicineRepository
	Pharmacies  repositories.PharmacyRepository
	Cache       *keyvalue.SearchCache
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	medicines  repositories.MedicineRepository
	pharmacies repositories.PharmacyRepository
	cache      *keyvalue.SearchCache
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Medicines == nil || deps.Pharmacies == nil {
		return nil, errors.New("catalog service: repositories are required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("catalog service: id generator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		medicines:  deps.Medicines,
		pharmacies: deps.Pharmacies,
		cache:      deps.Cache,
		clock:      func() time.Time { return clock().UTC() },
		newID:      deps.IDGenerator,
		logger:     logger,
	}, nil
}

func (s *catalogService) CreateMedicine(ctx context.Context, input MedicineInput) (domain.Medicine, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || input.DosageForm == "" {
		return domain.Medicine{}, ErrCatalogInvalidInput
	}

	medicine := domain.Medicine{
		ID:                   s.newID(),
		Name:                 name,
		Brand:                strings.TrimSpace(input.Brand),
		GenericName:          strings.TrimSpace(input.GenericName),
		Salt:                 strings.TrimSpace(input.Salt),
		DosageForm:           input.DosageForm,
		Strength:             strings.TrimSpace(input.Strength),
		PrescriptionRequired: input.PrescriptionRequired,
		Tags:                 input.Tags,
		Synonyms:             input.Synonyms,
		Manufacturer:         strings.TrimSpace(input.Manufacturer),
		CreatedAt:            s.clock(),
	}
	if err := s.medicines.Create(ctx, medicine); err != nil {
		return domain.Medicine{}, fmt.Errorf("catalog: create medicine: %w", err)
	}
	s.logger(ctx, "catalog.medicine_created", map[string]any{"medicine_id": medicine.ID})
	return medicine, nil
}

func (s *catalogService) GetMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	medicine, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Medicine{}, ErrMedicineNotFound
		}
		return domain.Medicine{}, fmt.Errorf("catalog: load medicine: %w", err)
	}
	return medicine, nil
}

func (s *catalogService) SearchMedicines(ctx context.Context, query string, p domain.Pagination) (domain.Page[domain.Medicine], error) {
	p = p.Normalise()
	query = strings.TrimSpace(query)
	cacheKey := fmt.Sprintf("%s|%d|%d", strings.ToLower(query), p.Page, p.Size)

	if s.cache != nil {
		if payload, err := s.cache.Get(ctx, cacheKey); err == nil {
			var page domain.Page[domain.Medicine]
			if err := json.Unmarshal(payload, &page); err == nil {
				return page, nil
			}
		} else if !errors.Is(err, keyvalue.ErrCacheMiss) {
			// Cache trouble never blocks the search path.
			s.logger(ctx, "catalog.cache_read_failed", map[string]any{"error": err.Error()})
		}
	}

	page, err := s.medicines.Search(ctx, query, p)
	if err != nil {
		return domain.Page[domain.Medicine]{}, fmt.Errorf("catalog: search: %w", err)
	}

	if s.cache != nil {
		if payload, err := json.Marshal(page); err == nil {
			if err := s.cache.Put(ctx, cacheKey, payload); err != nil {
				s.logger(ctx, "catalog.cache_write_failed", map[string]any{"error": err.Error()})
			}
		}
	}
	return page, nil
}

// ListPharmacies lists active pharmacies, optionally narrowed to a radius.
// The geo filter runs over the active page set and re-pages in memory; the
// active fleet is small enough that this beats maintaining a geo index.
func (s *catalogService) ListPharmacies(ctx context.Context, filter PharmacyFilter, p domain.Pagination) (domain.Page[domain.Pharmacy], error) {
	p = p.Normalise()
	if filter.Near == nil {
		page, err := s.pharmacies.ListActive(ctx, p)
		if err != nil {
			return domain.Page[domain.Pharmacy]{}, fmt.Errorf("catalog: list pharmacies: %w", err)
		}
		return page, nil
	}

	radius := filter.RadiusKm
	if radius <= 0 {
		radius = 10
	}

	all, err := s.pharmacies.ListActive(ctx, domain.Pagination{Page: 1, Size: 100}.Normalise())
	if err != nil {
		return domain.Page[domain.Pharmacy]{}, fmt.Errorf("catalog: list pharmacies: %w", err)
	}

	type scored struct {
		pharmacy domain.Pharmacy
		distance float64
	}
	var nearby []scored
	for _, pharmacy := range all.Items {
		d := haversineKm(*filter.Near, pharmacy.Location)
		if d <= radius {
			nearby = append(nearby, scored{pharmacy: pharmacy, distance: d})
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].distance < nearby[j].distance })

	total := int64(len(nearby))
	start := p.Offset()
	if start > len(nearby) {
		start = len(nearby)
	}
	end := start + p.Size
	if end > len(nearby) {
		end = len(nearby)
	}

	items := make([]domain.Pharmacy, 0, end-start)
	for _, entry := range nearby[start:end] {
		items = append(items, entry.pharmacy)
	}
	return domain.Page[domain.Pharmacy]{Items: items, Info: domain.NewPageInfo(p, total)}, nil
}

func haversineKm(a, b domain.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
