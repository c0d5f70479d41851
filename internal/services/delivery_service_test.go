package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/repositories"
)

func newDeliveryService(t *testing.T, deps DeliveryServiceDeps) DeliveryService {
	t.Helper()
	if deps.Pharmacies == nil {
		deps.Pharmacies = &stubPharmacyRepo{}
	}
	if deps.Inventory == nil {
		deps.Inventory = &stubStockService{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "dlv_test" }
	}
	svc, err := NewDeliveryService(deps)
	if err != nil {
		t.Fatalf("new delivery service: %v", err)
	}
	return svc
}

func TestCreateForOrderSnapshotsLocations(t *testing.T) {
	var created domain.Delivery
	deliveries := &stubDeliveryRepo{
		createFn: func(_ context.Context, delivery domain.Delivery) error {
			created = delivery
			return nil
		},
	}
	pharmacies := &stubPharmacyRepo{
		getByIDFn: func(context.Context, string) (domain.Pharmacy, error) {
			return domain.Pharmacy{ID: "phc-1", Location: domain.GeoPoint{Lat: 12.97, Lon: 77.59}}, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{
		Deliveries: deliveries,
		Pharmacies: pharmacies,
		Orders:     &stubOrderMover{},
	})

	order := domain.Order{
		ID:         "ord-1",
		PharmacyID: "phc-1",
		ShippingAddress: domain.Address{
			Location: &domain.GeoPoint{Lat: 12.93, Lon: 77.62},
		},
	}
	delivery, err := svc.CreateForOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("create for order: %v", err)
	}
	if delivery.Status != domain.DeliveryStatusAssigned {
		t.Fatalf("expected assigned status, got %s", delivery.Status)
	}
	if created.PickupLocation == nil || created.PickupLocation.Lat != 12.97 {
		t.Fatalf("pickup location not snapshotted: %+v", created.PickupLocation)
	}
	if created.DeliveryLocation == nil || created.DeliveryLocation.Lon != 77.62 {
		t.Fatalf("delivery location not snapshotted: %+v", created.DeliveryLocation)
	}
}

func TestCreateForOrderReusesExistingDelivery(t *testing.T) {
	existing := domain.Delivery{ID: "dlv-existing", OrderID: "ord-1"}
	deliveries := &stubDeliveryRepo{
		createFn: func(context.Context, domain.Delivery) error { return repositories.ErrDuplicate },
		getByOrderIDFn: func(context.Context, string) (domain.Delivery, error) {
			return existing, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{
		Deliveries: deliveries,
		Pharmacies: &stubPharmacyRepo{
			getByIDFn: func(context.Context, string) (domain.Pharmacy, error) {
				return domain.Pharmacy{ID: "phc-1", Active: true}, nil
			},
		},
		Orders: &stubOrderMover{},
	})

	delivery, err := svc.CreateForOrder(context.Background(), domain.Order{ID: "ord-1", PharmacyID: "phc-1"})
	if err != nil {
		t.Fatalf("create for order: %v", err)
	}
	if delivery.ID != "dlv-existing" {
		t.Fatalf("expected existing delivery reused, got %s", delivery.ID)
	}
}

func TestAcceptRequiresPreparedOrder(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", Status: domain.DeliveryStatusAssigned}, nil
		},
	}
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", Status: domain.OrderStatusAcceptedByPharmacy}, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: orders})

	_, err := svc.Accept(context.Background(), "usr-driver", "dlv-1")
	if !errors.Is(err, ErrDeliveryNotReady) {
		t.Fatalf("expected ErrDeliveryNotReady, got %v", err)
	}
}

func TestAcceptClaimConflictMapsToNotClaimable(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", Status: domain.DeliveryStatusAssigned}, nil
		},
		claimFn: func(context.Context, string, string, time.Time) error {
			return repositories.ErrConflict
		},
	}
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", Status: domain.OrderStatusPrepared}, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: orders})

	_, err := svc.Accept(context.Background(), "usr-driver", "dlv-1")
	if !errors.Is(err, ErrDeliveryNotClaimable) {
		t.Fatalf("expected ErrDeliveryNotClaimable, got %v", err)
	}
}

func TestAcceptClaimsAndBindsOrder(t *testing.T) {
	var claimedBy string
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", Status: domain.DeliveryStatusAssigned, DriverID: claimedBy}, nil
		},
		claimFn: func(_ context.Context, _, driverID string, _ time.Time) error {
			claimedBy = driverID
			return nil
		},
	}
	var orderMove struct{ from, to domain.OrderStatus }
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", Status: domain.OrderStatusPrepared}, nil
		},
		transitionFn: func(_ context.Context, _ string, from, to domain.OrderStatus) error {
			orderMove.from, orderMove.to = from, to
			return nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: orders})

	if _, err := svc.Accept(context.Background(), "usr-driver", "dlv-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if claimedBy != "usr-driver" {
		t.Fatalf("expected claim by usr-driver, got %q", claimedBy)
	}
	if orderMove.from != domain.OrderStatusPrepared || orderMove.to != domain.OrderStatusDriverAssigned {
		t.Fatalf("unexpected order move %s -> %s", orderMove.from, orderMove.to)
	}
}

func TestAcceptAnnouncesJobOnCreatedKey(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", PharmacyID: "phc-1", Status: domain.DeliveryStatusAssigned}, nil
		},
	}
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", Status: domain.OrderStatusPrepared}, nil
		},
	}
	publisher := &capturePublisher{}
	svc := newDeliveryService(t, DeliveryServiceDeps{
		Deliveries: deliveries,
		Orders:     orders,
		Events:     publisher,
	})

	if _, err := svc.Accept(context.Background(), "usr-driver", "dlv-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.published))
	}
	event := publisher.published[0]
	if event.Key != events.KeyDeliveryCreated || event.Envelope.Type != "delivery.created" {
		t.Fatalf("expected delivery.created on the created key, got %s/%s", event.Key, event.Envelope.Type)
	}
}

func TestUpdateStatusPickedUpMovesOrderInTransit(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", DriverID: "usr-driver", Status: domain.DeliveryStatusAssigned}, nil
		},
	}
	var orderMove struct{ from, to domain.OrderStatus }
	orders := &stubOrderMover{
		transitionFn: func(_ context.Context, _ string, from, to domain.OrderStatus) error {
			orderMove.from, orderMove.to = from, to
			return nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: orders})

	if _, err := svc.UpdateStatus(context.Background(), "usr-driver", "dlv-1", domain.DeliveryStatusPickedUp); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if orderMove.from != domain.OrderStatusDriverAssigned || orderMove.to != domain.OrderStatusInTransit {
		t.Fatalf("expected order driver_assigned -> in_transit on pickup, got %s -> %s", orderMove.from, orderMove.to)
	}
}

func TestUpdateStatusRefusesDeliveredWithoutCode(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", DriverID: "usr-driver", Status: domain.DeliveryStatusInTransit}, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: &stubOrderMover{}})

	_, err := svc.UpdateStatus(context.Background(), "usr-driver", "dlv-1", domain.DeliveryStatusDelivered)
	if !errors.Is(err, ErrDeliveryInvalidTransition) {
		t.Fatalf("expected ErrDeliveryInvalidTransition, got %v", err)
	}
}

func TestUpdateStatusFailedReturnsStockAndFailsOrder(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", DriverID: "usr-driver", Status: domain.DeliveryStatusInTransit}, nil
		},
	}
	var orderMove struct{ from, to domain.OrderStatus }
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{
				ID:         "ord-1",
				PharmacyID: "phc-1",
				Status:     domain.OrderStatusInTransit,
				Items:      []domain.OrderItem{{MedicineID: "med-1", BatchNo: "B1", Qty: 1}},
			}, nil
		},
		transitionFn: func(_ context.Context, _ string, from, to domain.OrderStatus) error {
			orderMove.from, orderMove.to = from, to
			return nil
		},
	}
	released := false
	stock := &stubStockService{
		releaseItemsFn: func(context.Context, string, []domain.OrderItem) error {
			released = true
			return nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{
		Deliveries: deliveries,
		Orders:     orders,
		Inventory:  stock,
	})

	if _, err := svc.UpdateStatus(context.Background(), "usr-driver", "dlv-1", domain.DeliveryStatusFailed); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if orderMove.to != domain.OrderStatusFailed {
		t.Fatalf("expected order failed, got move to %s", orderMove.to)
	}
	if !released {
		t.Fatal("expected reserved stock returned")
	}
}

func TestConfirmHandoverChecksCode(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", DriverID: "usr-driver", Status: domain.DeliveryStatusInTransit}, nil
		},
	}
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", DeliveryOTP: "424242", Status: domain.OrderStatusInTransit}, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: orders})

	_, err := svc.ConfirmHandover(context.Background(), "usr-driver", "dlv-1", "111111")
	if !errors.Is(err, ErrDeliveryOTPMismatch) {
		t.Fatalf("expected ErrDeliveryOTPMismatch, got %v", err)
	}
}

func TestConfirmHandoverCompletesAndBurnsStock(t *testing.T) {
	var deliveryMove struct{ from, to domain.DeliveryStatus }
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", DriverID: "usr-driver", Status: domain.DeliveryStatusInTransit}, nil
		},
		transitionFn: func(_ context.Context, _ string, from, to domain.DeliveryStatus, _ time.Time) error {
			deliveryMove.from, deliveryMove.to = from, to
			return nil
		},
	}
	var orderMove struct{ from, to domain.OrderStatus }
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{
				ID:          "ord-1",
				PharmacyID:  "phc-1",
				DeliveryOTP: "424242",
				Status:      domain.OrderStatusInTransit,
				Items:       []domain.OrderItem{{MedicineID: "med-1", BatchNo: "B1", Qty: 2}},
			}, nil
		},
		transitionFn: func(_ context.Context, _ string, from, to domain.OrderStatus) error {
			orderMove.from, orderMove.to = from, to
			return nil
		},
	}
	committed := false
	stock := &stubStockService{
		commitItemsFn: func(_ context.Context, pharmacyID string, items []domain.OrderItem) error {
			if pharmacyID != "phc-1" || len(items) != 1 {
				t.Fatalf("unexpected commit %s %v", pharmacyID, items)
			}
			committed = true
			return nil
		},
	}
	publisher := &capturePublisher{}
	svc := newDeliveryService(t, DeliveryServiceDeps{
		Deliveries: deliveries,
		Orders:     orders,
		Inventory:  stock,
		Events:     publisher,
	})

	if _, err := svc.ConfirmHandover(context.Background(), "usr-driver", "dlv-1", "424242"); err != nil {
		t.Fatalf("confirm handover: %v", err)
	}
	if deliveryMove.from != domain.DeliveryStatusInTransit || deliveryMove.to != domain.DeliveryStatusDelivered {
		t.Fatalf("unexpected delivery move %s -> %s", deliveryMove.from, deliveryMove.to)
	}
	if orderMove.to != domain.OrderStatusDelivered {
		t.Fatalf("expected order delivered, got move to %s", orderMove.to)
	}
	if !committed {
		t.Fatal("expected reserved stock burned")
	}
	if len(publisher.published) == 0 || publisher.published[len(publisher.published)-1].Envelope.Type != "delivery.delivered" {
		t.Fatalf("expected delivery.delivered event, got %+v", publisher.published)
	}
}

func TestConfirmHandoverAcceptedStraightFromPickup(t *testing.T) {
	var deliveryMove struct{ from, to domain.DeliveryStatus }
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", DriverID: "usr-driver", Status: domain.DeliveryStatusPickedUp}, nil
		},
		transitionFn: func(_ context.Context, _ string, from, to domain.DeliveryStatus, _ time.Time) error {
			deliveryMove.from, deliveryMove.to = from, to
			return nil
		},
	}
	orders := &stubOrderMover{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord-1", DeliveryOTP: "424242", Status: domain.OrderStatusInTransit}, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: orders})

	if _, err := svc.ConfirmHandover(context.Background(), "usr-driver", "dlv-1", "424242"); err != nil {
		t.Fatalf("confirm handover: %v", err)
	}
	if deliveryMove.from != domain.DeliveryStatusPickedUp || deliveryMove.to != domain.DeliveryStatusDelivered {
		t.Fatalf("unexpected delivery move %s -> %s", deliveryMove.from, deliveryMove.to)
	}
}

func TestDriverScopingHidesOthersDeliveries(t *testing.T) {
	deliveries := &stubDeliveryRepo{
		getByIDFn: func(context.Context, string) (domain.Delivery, error) {
			return domain.Delivery{ID: "dlv-1", OrderID: "ord-1", DriverID: "usr-other", Status: domain.DeliveryStatusInTransit}, nil
		},
	}
	svc := newDeliveryService(t, DeliveryServiceDeps{Deliveries: deliveries, Orders: &stubOrderMover{}})

	if _, err := svc.UpdateStatus(context.Background(), "usr-driver", "dlv-1", domain.DeliveryStatusFailed); !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
	if err := svc.UpdateLocation(context.Background(), "usr-driver", "dlv-1", domain.GeoPoint{}); !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}
