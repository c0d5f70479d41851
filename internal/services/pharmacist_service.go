package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/repositories"
)

var (
	// ErrNoPharmacy indicates the pharmacist has no pharmacy bound yet.
	ErrNoPharmacy = errors.New("pharmacist: no pharmacy")
	// ErrBatchExists indicates the (medicine, batch) pair is already stocked.
	ErrBatchExists = errors.New("pharmacist: batch exists")
	// ErrBatchNotFound indicates no such stocked batch at this pharmacy.
	ErrBatchNotFound = errors.New("pharmacist: batch not found")
	// ErrBatchReserved blocks deleting stock that still carries holds.
	ErrBatchReserved = errors.New("pharmacist: batch has reservations")
	// ErrPharmacistInvalidInput signals invalid arguments.
	ErrPharmacistInvalidInput = errors.New("pharmacist: invalid input")
)

// BatchInput captures a new or updated stocked batch.
type BatchInput struct {
	MedicineID   string
	BatchNo      string
	ExpiryDate   time.Time
	AvailableQty int
	MRP          float64
	SellingPrice float64
}

// PharmacyInput captures pharmacy registration and profile updates.
type PharmacyInput struct {
	Name         string
	Address      string
	Location     domain.GeoPoint
	OpeningHours string
	ContactPhone string
}

// PharmacistService is the pharmacy-operator surface: profile, stock and the
// pharmacy side of the order lifecycle.
type PharmacistService interface {
	ResolvePharmacy(ctx context.Context, pharmacistUserID string) (domain.Pharmacy, error)
	RegisterPharmacy(ctx context.Context, pharmacistUserID string, input PharmacyInput) (domain.Pharmacy, error)
	UpdatePharmacy(ctx context.Context, pharmacistUserID string, input PharmacyInput) (domain.Pharmacy, error)
	AddBatch(ctx context.Context, pharmacistUserID string, input BatchInput) (domain.InventoryItem, error)
	UpdateBatch(ctx context.Context, pharmacistUserID, inventoryID string, input BatchInput) (domain.InventoryItem, error)
	DeleteBatch(ctx context.Context, pharmacistUserID, inventoryID string) error
	GetBatch(ctx context.Context, pharmacistUserID, inventoryID string) (domain.InventoryItem, error)
	ListInventory(ctx context.Context, pharmacistUserID string, p domain.Pagination) (domain.Page[domain.InventoryItem], error)
	ListOrders(ctx context.Context, pharmacistUserID string, status domain.OrderStatus, p domain.Pagination) (domain.Page[domain.Order], error)
	AcceptOrder(ctx context.Context, pharmacistUserID, orderID string) (domain.Order, error)
	DeclineOrder(ctx context.Context, pharmacistUserID, orderID, reason string) (domain.Order, error)
	MarkOrderPrepared(ctx context.Context, pharmacistUserID, orderID string) (domain.Order, error)
}

// PharmacistServiceDeps bundles the collaborators required to construct a
// pharmacist service.
type PharmacistServiceDeps struct {
	Pharmacies  repositories.PharmacyRepository
	Inventory   repositories.InventoryRepository
	Medicines   repositories.MedicineRepository
	Orders      OrderService
	Events      events.Publisher
	Clock       func() time.Time
	IDGenerator func() string
	PharmacyID  func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type pharmacistService struct {
	pharmacies    repositories.PharmacyRepository
	inventory     repositories.InventoryRepository
	medicines     repositories.MedicineRepository
	orders        OrderService
	events        events.Publisher
	clock         func() time.Time
	newID         func() string
	newPharmacyID func() string
	logger        func(context.Context, string, map[string]any)
}

// NewPharmacistService wires dependencies into a concrete PharmacistService.
func NewPharmacistService(deps PharmacistServiceDeps) (PharmacistService, error) {
	if deps.Pharmacies == nil || deps.Inventory == nil || deps.Medicines == nil {
		return nil, errors.New("pharmacist service: repositories are required")
	}
	if deps.Orders == nil {
		return nil, errors.New("pharmacist service: order service is required")
	}
	if deps.IDGenerator == nil || deps.PharmacyID == nil {
		return nil, errors.New("pharmacist service: id generators are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pharmacistService{
		pharmacies:    deps.Pharmacies,
		inventory:     deps.Inventory,
		medicines:     deps.Medicines,
		orders:        deps.Orders,
		events:        deps.Events,
		clock:         func() time.Time { return clock().UTC() },
		newID:         deps.IDGenerator,
		newPharmacyID: deps.PharmacyID,
		logger:        logger,
	}, nil
}

func (s *pharmacistService) ResolvePharmacy(ctx context.Context, pharmacistUserID string) (domain.Pharmacy, error) {
	pharmacy, err := s.pharmacies.GetByPharmacist(ctx, pharmacistUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Pharmacy{}, ErrNoPharmacy
		}
		return domain.Pharmacy{}, fmt.Errorf("pharmacist: resolve pharmacy: %w", err)
	}
	return pharmacy, nil
}

func (s *pharmacistService) RegisterPharmacy(ctx context.Context, pharmacistUserID string, input PharmacyInput) (domain.Pharmacy, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Address) == "" {
		return domain.Pharmacy{}, ErrPharmacistInvalidInput
	}
	if _, err := s.ResolvePharmacy(ctx, pharmacistUserID); err == nil {
		// One pharmacy per pharmacist.
		return domain.Pharmacy{}, ErrPharmacistInvalidInput
	} else if !errors.Is(err, ErrNoPharmacy) {
		return domain.Pharmacy{}, err
	}

	now := s.clock()
	pharmacy := domain.Pharmacy{
		ID:               s.newPharmacyID(),
		PharmacistUserID: pharmacistUserID,
		Name:             strings.TrimSpace(input.Name),
		Address:          strings.TrimSpace(input.Address),
		Location:         input.Location,
		Active:           true,
		OpeningHours:     input.OpeningHours,
		ContactPhone:     input.ContactPhone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.pharmacies.Create(ctx, pharmacy); err != nil {
		return domain.Pharmacy{}, fmt.Errorf("pharmacist: create pharmacy: %w", err)
	}
	s.logger(ctx, "pharmacist.pharmacy_registered", map[string]any{"pharmacy_id": pharmacy.ID})
	return pharmacy, nil
}

func (s *pharmacistService) UpdatePharmacy(ctx context.Context, pharmacistUserID string, input PharmacyInput) (domain.Pharmacy, error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.Pharmacy{}, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		pharmacy.Name = name
	}
	if address := strings.TrimSpace(input.Address); address != "" {
		pharmacy.Address = address
	}
	if input.Location != (domain.GeoPoint{}) {
		pharmacy.Location = input.Location
	}
	if input.OpeningHours != "" {
		pharmacy.OpeningHours = input.OpeningHours
	}
	if input.ContactPhone != "" {
		pharmacy.ContactPhone = input.ContactPhone
	}
	pharmacy.UpdatedAt = s.clock()

	if err := s.pharmacies.Update(ctx, pharmacy); err != nil {
		return domain.Pharmacy{}, fmt.Errorf("pharmacist: update pharmacy: %w", err)
	}
	return pharmacy, nil
}

func (s *pharmacistService) AddBatch(ctx context.Context, pharmacistUserID string, input BatchInput) (domain.InventoryItem, error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if input.MedicineID == "" || strings.TrimSpace(input.BatchNo) == "" || input.AvailableQty < 0 || input.SellingPrice <= 0 {
		return domain.InventoryItem{}, ErrPharmacistInvalidInput
	}
	if _, err := s.medicines.GetByID(ctx, input.MedicineID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.InventoryItem{}, ErrPharmacistInvalidInput
		}
		return domain.InventoryItem{}, fmt.Errorf("pharmacist: load medicine: %w", err)
	}

	now := s.clock()
	item := domain.InventoryItem{
		ID:           s.newID(),
		PharmacyID:   pharmacy.ID,
		MedicineID:   input.MedicineID,
		BatchNo:      strings.TrimSpace(input.BatchNo),
		ExpiryDate:   input.ExpiryDate,
		AvailableQty: input.AvailableQty,
		MRP:          input.MRP,
		SellingPrice: input.SellingPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.inventory.Create(ctx, item); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return domain.InventoryItem{}, ErrBatchExists
		}
		return domain.InventoryItem{}, fmt.Errorf("pharmacist: create batch: %w", err)
	}

	s.publishStockChange(ctx, item)
	return item, nil
}

func (s *pharmacistService) UpdateBatch(ctx context.Context, pharmacistUserID, inventoryID string, input BatchInput) (domain.InventoryItem, error) {
	item, err := s.GetBatch(ctx, pharmacistUserID, inventoryID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if input.AvailableQty >= 0 {
		item.AvailableQty = input.AvailableQty
	}
	if !input.ExpiryDate.IsZero() {
		item.ExpiryDate = input.ExpiryDate
	}
	if input.MRP > 0 {
		item.MRP = input.MRP
	}
	if input.SellingPrice > 0 {
		item.SellingPrice = input.SellingPrice
	}
	item.UpdatedAt = s.clock()

	if err := s.inventory.Update(ctx, item); err != nil {
		return domain.InventoryItem{}, fmt.Errorf("pharmacist: update batch: %w", err)
	}
	s.publishStockChange(ctx, item)
	return item, nil
}

func (s *pharmacistService) DeleteBatch(ctx context.Context, pharmacistUserID, inventoryID string) error {
	item, err := s.GetBatch(ctx, pharmacistUserID, inventoryID)
	if err != nil {
		return err
	}
	if item.ReservedQty > 0 {
		return ErrBatchReserved
	}
	if err := s.inventory.Delete(ctx, inventoryID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrBatchNotFound
		}
		return fmt.Errorf("pharmacist: delete batch: %w", err)
	}
	item.AvailableQty = 0
	s.publishStockChange(ctx, item)
	return nil
}

func (s *pharmacistService) GetBatch(ctx context.Context, pharmacistUserID, inventoryID string) (domain.InventoryItem, error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	item, err := s.inventory.GetByID(ctx, inventoryID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.InventoryItem{}, ErrBatchNotFound
		}
		return domain.InventoryItem{}, fmt.Errorf("pharmacist: load batch: %w", err)
	}
	if item.PharmacyID != pharmacy.ID {
		return domain.InventoryItem{}, ErrBatchNotFound
	}
	return item, nil
}

func (s *pharmacistService) ListInventory(ctx context.Context, pharmacistUserID string, p domain.Pagination) (domain.Page[domain.InventoryItem], error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.Page[domain.InventoryItem]{}, err
	}
	page, err := s.inventory.ListByPharmacy(ctx, pharmacy.ID, p.Normalise())
	if err != nil {
		return domain.Page[domain.InventoryItem]{}, fmt.Errorf("pharmacist: list inventory: %w", err)
	}
	return page, nil
}

func (s *pharmacistService) ListOrders(ctx context.Context, pharmacistUserID string, status domain.OrderStatus, p domain.Pagination) (domain.Page[domain.Order], error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return s.orders.ListForPharmacy(ctx, pharmacy.ID, status, p)
}

func (s *pharmacistService) AcceptOrder(ctx context.Context, pharmacistUserID, orderID string) (domain.Order, error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.orders.Accept(ctx, pharmacy.ID, orderID)
}

func (s *pharmacistService) DeclineOrder(ctx context.Context, pharmacistUserID, orderID, reason string) (domain.Order, error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.orders.Decline(ctx, pharmacy.ID, orderID, reason)
}

func (s *pharmacistService) MarkOrderPrepared(ctx context.Context, pharmacistUserID, orderID string) (domain.Order, error) {
	pharmacy, err := s.ResolvePharmacy(ctx, pharmacistUserID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.orders.MarkPrepared(ctx, pharmacy.ID, orderID)
}

func (s *pharmacistService) publishStockChange(ctx context.Context, item domain.InventoryItem) {
	if s.events == nil {
		return
	}
	envelope, err := events.NewEnvelope("inventory.updated", map[string]any{
		"inventory_id": item.ID,
		"pharmacy_id":  item.PharmacyID,
		"medicine_id":  item.MedicineID,
		"available":    item.AvailableQty,
		"expiry_date":  item.ExpiryDate.Format(time.RFC3339),
	}, s.clock())
	if err != nil {
		s.logger(ctx, "pharmacist.event_frame_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := s.events.Publish(ctx, events.ExchangeInventory, events.KeyInventoryUpdate, envelope); err != nil {
		s.logger(ctx, "pharmacist.event_publish_failed", map[string]any{"error": err.Error()})
	}
}
