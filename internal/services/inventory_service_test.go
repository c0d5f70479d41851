package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/repositories"
)

var (
	stockClock  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	freshExpiry = stockClock.AddDate(1, 0, 0)
)

func newInventoryService(t *testing.T, repo repositories.InventoryRepository, locker StockLocker) InventoryService {
	t.Helper()
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Locker:    locker,
		Clock:     func() time.Time { return stockClock },
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	return svc
}

func TestReserveSplitsLineAcrossBatchesByExpiry(t *testing.T) {
	reserves := map[string]int{}
	repo := &stubInventoryRepo{
		listBatchesFn: func(_ context.Context, pharmacyID, medicineID string) ([]domain.InventoryItem, error) {
			return []domain.InventoryItem{
				{ID: "inv-1", MedicineID: medicineID, BatchNo: "B-EARLY", ExpiryDate: freshExpiry, AvailableQty: 3, SellingPrice: 10},
				{ID: "inv-2", MedicineID: medicineID, BatchNo: "B-LATE", ExpiryDate: freshExpiry.AddDate(1, 0, 0), AvailableQty: 5, SellingPrice: 12},
			}, nil
		},
		reserveFn: func(_ context.Context, id string, qty int) error {
			reserves[id] += qty
			return nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	holds, err := svc.Reserve(context.Background(), "phc-1", "ord-1", []ReserveLine{{MedicineID: "med-1", Qty: 5}})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(holds) != 2 {
		t.Fatalf("expected 2 holds, got %d", len(holds))
	}
	if holds[0].InventoryID != "inv-1" || holds[0].Qty != 3 {
		t.Fatalf("expected soonest-expiry batch drained first, got %+v", holds[0])
	}
	if holds[1].InventoryID != "inv-2" || holds[1].Qty != 2 {
		t.Fatalf("expected remainder from later batch, got %+v", holds[1])
	}
	if reserves["inv-1"] != 3 || reserves["inv-2"] != 2 {
		t.Fatalf("unexpected repository reserves: %v", reserves)
	}
}

func TestReserveSkipsExpiredBatches(t *testing.T) {
	reserves := map[string]int{}
	repo := &stubInventoryRepo{
		listBatchesFn: func(_ context.Context, _, medicineID string) ([]domain.InventoryItem, error) {
			return []domain.InventoryItem{
				{ID: "inv-old", MedicineID: medicineID, BatchNo: "B-DEAD", ExpiryDate: stockClock.Add(-24 * time.Hour), AvailableQty: 10},
				{ID: "inv-new", MedicineID: medicineID, BatchNo: "B-LIVE", ExpiryDate: freshExpiry, AvailableQty: 10},
			}, nil
		},
		reserveFn: func(_ context.Context, id string, qty int) error {
			reserves[id] += qty
			return nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	holds, err := svc.Reserve(context.Background(), "phc-1", "ord-1", []ReserveLine{{MedicineID: "med-1", Qty: 4}})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(holds) != 1 || holds[0].InventoryID != "inv-new" || holds[0].Qty != 4 {
		t.Fatalf("expected full hold on the unexpired batch, got %+v", holds)
	}
	if reserves["inv-old"] != 0 {
		t.Fatalf("expired batch must never be decremented, got %v", reserves)
	}
}

func TestReserveOnlyExpiredStockIsInsufficient(t *testing.T) {
	repo := &stubInventoryRepo{
		listBatchesFn: func(_ context.Context, _, medicineID string) ([]domain.InventoryItem, error) {
			return []domain.InventoryItem{
				{ID: "inv-old", MedicineID: medicineID, BatchNo: "B-DEAD", ExpiryDate: stockClock.Add(-time.Hour), AvailableQty: 10},
			}, nil
		},
		reserveFn: func(_ context.Context, id string, _ int) error {
			t.Fatalf("unexpected reserve against %s", id)
			return nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	_, err := svc.Reserve(context.Background(), "phc-1", "ord-1", []ReserveLine{{MedicineID: "med-1", Qty: 1}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestReserveInsufficientStockRollsBackPartialHolds(t *testing.T) {
	var released []string
	repo := &stubInventoryRepo{
		listBatchesFn: func(_ context.Context, _, medicineID string) ([]domain.InventoryItem, error) {
			return []domain.InventoryItem{
				{ID: "inv-1", MedicineID: medicineID, BatchNo: "A", ExpiryDate: freshExpiry, AvailableQty: 3},
				{ID: "inv-2", MedicineID: medicineID, BatchNo: "B", ExpiryDate: freshExpiry, AvailableQty: 1},
			}, nil
		},
		releaseFn: func(_ context.Context, id string, qty int) error {
			released = append(released, id)
			return nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	_, err := svc.Reserve(context.Background(), "phc-1", "ord-1", []ReserveLine{{MedicineID: "med-1", Qty: 6}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("expected both partial holds released, got %v", released)
	}
}

func TestReserveAllOrNothingAcrossLines(t *testing.T) {
	var released []string
	repo := &stubInventoryRepo{
		listBatchesFn: func(_ context.Context, _, medicineID string) ([]domain.InventoryItem, error) {
			if medicineID == "med-1" {
				return []domain.InventoryItem{{ID: "inv-1", MedicineID: medicineID, BatchNo: "A", ExpiryDate: freshExpiry, AvailableQty: 10}}, nil
			}
			// Second line has no stock at all.
			return nil, nil
		},
		releaseFn: func(_ context.Context, id string, qty int) error {
			released = append(released, id)
			return nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	_, err := svc.Reserve(context.Background(), "phc-1", "ord-1", []ReserveLine{
		{MedicineID: "med-1", Qty: 2},
		{MedicineID: "med-2", Qty: 1},
	})
	if !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected ErrInventoryNotFound, got %v", err)
	}
	if len(released) != 1 || released[0] != "inv-1" {
		t.Fatalf("expected first line hold released, got %v", released)
	}
}

func TestReserveHeldLockMapsToInventoryLocked(t *testing.T) {
	locker := &stubLocker{
		acquireFn: func(context.Context, string, string) error { return keyvalue.ErrLockHeld },
	}
	svc := newInventoryService(t, &stubInventoryRepo{}, locker)

	_, err := svc.Reserve(context.Background(), "phc-1", "ord-1", []ReserveLine{{MedicineID: "med-1", Qty: 1}})
	if !errors.Is(err, ErrInventoryLocked) {
		t.Fatalf("expected ErrInventoryLocked, got %v", err)
	}
}

func TestReserveSkipsBatchConsumedUnderneath(t *testing.T) {
	repo := &stubInventoryRepo{
		listBatchesFn: func(_ context.Context, _, medicineID string) ([]domain.InventoryItem, error) {
			return []domain.InventoryItem{
				{ID: "inv-1", MedicineID: medicineID, BatchNo: "A", ExpiryDate: freshExpiry, AvailableQty: 5},
				{ID: "inv-2", MedicineID: medicineID, BatchNo: "B", ExpiryDate: freshExpiry, AvailableQty: 5},
			}, nil
		},
		reserveFn: func(_ context.Context, id string, qty int) error {
			if id == "inv-1" {
				// Another writer drained this batch after the listing.
				return repositories.ErrConflict
			}
			return nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	holds, err := svc.Reserve(context.Background(), "phc-1", "ord-1", []ReserveLine{{MedicineID: "med-1", Qty: 4}})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(holds) != 1 || holds[0].InventoryID != "inv-2" || holds[0].Qty != 4 {
		t.Fatalf("expected full quantity from surviving batch, got %+v", holds)
	}
}

func TestReserveValidatesInput(t *testing.T) {
	svc := newInventoryService(t, &stubInventoryRepo{}, &stubLocker{})
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, "", "ord-1", []ReserveLine{{MedicineID: "m", Qty: 1}}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for empty pharmacy, got %v", err)
	}
	if _, err := svc.Reserve(ctx, "phc-1", "ord-1", nil); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for empty lines, got %v", err)
	}
	if _, err := svc.Reserve(ctx, "phc-1", "ord-1", []ReserveLine{{MedicineID: "m", Qty: 0}}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for zero qty, got %v", err)
	}
}

func TestReleaseItemsResolvesBatchesByNumber(t *testing.T) {
	var released []string
	repo := &stubInventoryRepo{
		listBatchesFn: func(_ context.Context, _, medicineID string) ([]domain.InventoryItem, error) {
			return []domain.InventoryItem{
				{ID: "inv-1", MedicineID: medicineID, BatchNo: "A"},
				{ID: "inv-2", MedicineID: medicineID, BatchNo: "B"},
			}, nil
		},
		releaseFn: func(_ context.Context, id string, qty int) error {
			released = append(released, id)
			return nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	err := svc.ReleaseItems(context.Background(), "phc-1", []domain.OrderItem{
		{MedicineID: "med-1", BatchNo: "B", Qty: 2},
	})
	if err != nil {
		t.Fatalf("release items: %v", err)
	}
	if len(released) != 1 || released[0] != "inv-2" {
		t.Fatalf("expected release against inv-2, got %v", released)
	}
}

func TestCommitItemsFailsWhenBatchVanished(t *testing.T) {
	repo := &stubInventoryRepo{
		listBatchesFn: func(context.Context, string, string) ([]domain.InventoryItem, error) {
			return nil, nil
		},
	}
	svc := newInventoryService(t, repo, &stubLocker{})

	err := svc.CommitItems(context.Background(), "phc-1", []domain.OrderItem{
		{MedicineID: "med-1", BatchNo: "GONE", Qty: 1},
	})
	if !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected ErrInventoryNotFound, got %v", err)
	}
}
