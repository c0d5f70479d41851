package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInsufficientStock indicates the requested quantity exceeds what is
	// available across all batches.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryLocked indicates another reservation currently holds the
	// stock cell lock; the caller should retry shortly.
	ErrInventoryLocked = errors.New("inventory: locked")
	// ErrInventoryNotFound indicates the stock cell has no batches at all.
	ErrInventoryNotFound = errors.New("inventory: not found")
)

// StockLocker serialises writers of one stock cell.
type StockLocker interface {
	Acquire(ctx context.Context, name, holder string) error
	Release(ctx context.Context, name, holder string) error
}

// Reservation records one batch-level hold taken for an order line.
type Reservation struct {
	InventoryID string
	MedicineID  string
	BatchNo     string
	Qty         int
	Price       float64
}

// ReserveLine is one requested (medicine, qty) pair.
type ReserveLine struct {
	MedicineID string
	Qty        int
}

// InventoryService coordinates stock movements for the order lifecycle.
type InventoryService interface {
	// Reserve holds stock for every line or nothing at all. Batches are
	// consumed soonest-expiry first, possibly splitting a line across
	// batches.
	Reserve(ctx context.Context, pharmacyID, orderID string, lines []ReserveLine) ([]Reservation, error)
	// Release returns previously reserved stock to availability.
	Release(ctx context.Context, reservations []Reservation) error
	// Commit burns previously reserved stock after fulfilment.
	Commit(ctx context.Context, reservations []Reservation) error
	// ReleaseItems releases the holds behind persisted order lines by
	// resolving each (medicine, batch) pair back to its stock document.
	ReleaseItems(ctx context.Context, pharmacyID string, items []domain.OrderItem) error
	// CommitItems burns the holds behind persisted order lines.
	CommitItems(ctx context.Context, pharmacyID string, items []domain.OrderItem) error
}

// InventoryServiceDeps bundles the collaborators required to construct an
// inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Locker    StockLocker
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	locker StockLocker
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}
	if deps.Locker == nil {
		return nil, errors.New("inventory service: stock locker is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:   deps.Inventory,
		locker: deps.Locker,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *inventoryService) Reserve(ctx context.Context, pharmacyID, orderID string, lines []ReserveLine) ([]Reservation, error) {
	if pharmacyID == "" || orderID == "" || len(lines) == 0 {
		return nil, ErrInventoryInvalidInput
	}
	for _, line := range lines {
		if line.MedicineID == "" || line.Qty <= 0 {
			return nil, ErrInventoryInvalidInput
		}
	}

	var reserved []Reservation
	for _, line := range lines {
		holds, err := s.reserveLine(ctx, pharmacyID, orderID, line)
		if err != nil {
			// All-or-nothing: roll back every hold taken so far.
			if releaseErr := s.Release(ctx, reserved); releaseErr != nil {
				s.logger(ctx, "inventory.rollback_failed", map[string]any{
					"order_id": orderID,
					"error":    releaseErr.Error(),
				})
			}
			return nil, err
		}
		reserved = append(reserved, holds...)
	}

	s.logger(ctx, "inventory.reserved", map[string]any{
		"order_id":    orderID,
		"pharmacy_id": pharmacyID,
		"holds":       len(reserved),
	})
	return reserved, nil
}

// reserveLine takes the cell lock for one (pharmacy, medicine) pair, then
// walks batches in expiry order taking conditional decrements. The lock only
// narrows the race window; the decrement guard is what prevents oversell.
func (s *inventoryService) reserveLine(ctx context.Context, pharmacyID, orderID string, line ReserveLine) ([]Reservation, error) {
	lockName := keyvalue.InventoryLockName(pharmacyID, line.MedicineID)
	if err := s.locker.Acquire(ctx, lockName, orderID); err != nil {
		if errors.Is(err, keyvalue.ErrLockHeld) {
			return nil, ErrInventoryLocked
		}
		return nil, fmt.Errorf("inventory: acquire lock: %w", err)
	}
	defer func() {
		if err := s.locker.Release(ctx, lockName, orderID); err != nil {
			s.logger(ctx, "inventory.unlock_failed", map[string]any{
				"lock":  lockName,
				"error": err.Error(),
			})
		}
	}()

	batches, err := s.repo.ListBatches(ctx, pharmacyID, line.MedicineID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list batches: %w", err)
	}
	if len(batches) == 0 {
		return nil, ErrInventoryNotFound
	}

	now := s.clock()
	remaining := line.Qty
	var holds []Reservation
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		if !batch.ExpiryDate.After(now) {
			// Expired stock never ships, even when nothing else is left.
			continue
		}
		take := min(remaining, batch.AvailableQty)
		if take == 0 {
			continue
		}
		if err := s.repo.Reserve(ctx, batch.ID, take); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				// Someone consumed the batch under us; skip it.
				continue
			}
			s.rollbackHolds(ctx, holds)
			return nil, fmt.Errorf("inventory: reserve batch %s: %w", batch.ID, err)
		}
		holds = append(holds, Reservation{
			InventoryID: batch.ID,
			MedicineID:  batch.MedicineID,
			BatchNo:     batch.BatchNo,
			Qty:         take,
			Price:       batch.SellingPrice,
		})
		remaining -= take
	}

	if remaining > 0 {
		s.rollbackHolds(ctx, holds)
		return nil, ErrInsufficientStock
	}
	return holds, nil
}

func (s *inventoryService) rollbackHolds(ctx context.Context, holds []Reservation) {
	if err := s.Release(ctx, holds); err != nil {
		s.logger(ctx, "inventory.rollback_failed", map[string]any{"error": err.Error()})
	}
}

func (s *inventoryService) Release(ctx context.Context, reservations []Reservation) error {
	var firstErr error
	for _, hold := range reservations {
		if err := s.repo.Release(ctx, hold.InventoryID, hold.Qty); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("inventory: release %s: %w", hold.InventoryID, err)
		}
	}
	return firstErr
}

func (s *inventoryService) ReleaseItems(ctx context.Context, pharmacyID string, items []domain.OrderItem) error {
	holds, err := s.resolveItems(ctx, pharmacyID, items)
	if err != nil {
		return err
	}
	return s.Release(ctx, holds)
}

func (s *inventoryService) CommitItems(ctx context.Context, pharmacyID string, items []domain.OrderItem) error {
	holds, err := s.resolveItems(ctx, pharmacyID, items)
	if err != nil {
		return err
	}
	return s.Commit(ctx, holds)
}

// resolveItems maps persisted order lines back to the stock documents their
// holds live on.
func (s *inventoryService) resolveItems(ctx context.Context, pharmacyID string, items []domain.OrderItem) ([]Reservation, error) {
	holds := make([]Reservation, 0, len(items))
	for _, item := range items {
		batches, err := s.repo.ListBatches(ctx, pharmacyID, item.MedicineID)
		if err != nil {
			return nil, fmt.Errorf("inventory: list batches: %w", err)
		}
		found := false
		for _, batch := range batches {
			if batch.BatchNo == item.BatchNo {
				holds = append(holds, Reservation{
					InventoryID: batch.ID,
					MedicineID:  item.MedicineID,
					BatchNo:     item.BatchNo,
					Qty:         item.Qty,
					Price:       item.Price,
				})
				found = true
				break
			}
		}
		if !found {
			return nil, ErrInventoryNotFound
		}
	}
	return holds, nil
}

func (s *inventoryService) Commit(ctx context.Context, reservations []Reservation) error {
	var firstErr error
	for _, hold := range reservations {
		if err := s.repo.Commit(ctx, hold.InventoryID, hold.Qty); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("inventory: commit %s: %w", hold.InventoryID, err)
		}
	}
	return firstErr
}
