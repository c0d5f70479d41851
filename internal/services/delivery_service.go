package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/repositories"
)

var (
	// ErrDeliveryNotFound indicates no such courier job visible to the caller.
	ErrDeliveryNotFound = errors.New("delivery: not found")
	// ErrDeliveryNotClaimable indicates another driver already holds the job
	// or it left the assignable state.
	ErrDeliveryNotClaimable = errors.New("delivery: not claimable")
	// ErrDeliveryInvalidTransition indicates the courier lifecycle does not
	// admit the requested move.
	ErrDeliveryInvalidTransition = errors.New("delivery: invalid transition")
	// ErrDeliveryOTPMismatch indicates the handover code does not match.
	ErrDeliveryOTPMismatch = errors.New("delivery: otp mismatch")
	// ErrDeliveryNotReady indicates the order has not been prepared yet.
	ErrDeliveryNotReady = errors.New("delivery: order not prepared")
)

// DeliveryDetail pairs a delivery with the condensed order view drivers see.
type DeliveryDetail struct {
	Delivery domain.Delivery
	Order    domain.OrderSummary
}

// DeliveryService owns the courier-side lifecycle.
type DeliveryService interface {
	DeliveryCreator
	ListAvailable(ctx context.Context, p domain.Pagination) (domain.Page[domain.Delivery], error)
	ListForDriver(ctx context.Context, driverID string, p domain.Pagination) (domain.Page[domain.Delivery], error)
	GetForDriver(ctx context.Context, driverID, deliveryID string) (DeliveryDetail, error)
	// Accept claims an unassigned job for the driver and moves the order to
	// its driver-bound state.
	Accept(ctx context.Context, driverID, deliveryID string) (domain.Delivery, error)
	// UpdateStatus applies picked_up, in_transit or failed.
	UpdateStatus(ctx context.Context, driverID, deliveryID string, to domain.DeliveryStatus) (domain.Delivery, error)
	// ConfirmHandover completes the delivery against the customer's code and
	// burns the reserved stock.
	ConfirmHandover(ctx context.Context, driverID, deliveryID, otp string) (domain.Delivery, error)
	UpdateLocation(ctx context.Context, driverID, deliveryID string, location domain.GeoPoint) error
}

// OrderMover is the slice of the order lifecycle the courier flow drives.
type OrderMover interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Transition(ctx context.Context, orderID string, from, to domain.OrderStatus) error
}

// DeliveryServiceDeps bundles the collaborators required to construct a
// delivery service.
type DeliveryServiceDeps struct {
	Deliveries  repositories.DeliveryRepository
	Pharmacies  repositories.PharmacyRepository
	Orders      OrderMover
	Inventory   InventoryService
	Events      events.Publisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type deliveryService struct {
	deliveries repositories.DeliveryRepository
	pharmacies repositories.PharmacyRepository
	orders     OrderMover
	inventory  InventoryService
	events     events.Publisher
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewDeliveryService wires dependencies into a concrete DeliveryService.
func NewDeliveryService(deps DeliveryServiceDeps) (DeliveryService, error) {
	if deps.Deliveries == nil {
		return nil, errors.New("delivery service: delivery repository is required")
	}
	if deps.Pharmacies == nil {
		return nil, errors.New("delivery service: pharmacy repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("delivery service: order mover is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("delivery service: inventory service is required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("delivery service: id generator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &deliveryService{
		deliveries: deps.Deliveries,
		pharmacies: deps.Pharmacies,
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		events:     deps.Events,
		clock:      func() time.Time { return clock().UTC() },
		newID:      deps.IDGenerator,
		logger:     logger,
	}, nil
}

func (s *deliveryService) CreateForOrder(ctx context.Context, order domain.Order) (domain.Delivery, error) {
	pharmacy, err := s.pharmacies.GetByID(ctx, order.PharmacyID)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("delivery: load pharmacy: %w", err)
	}

	delivery := domain.Delivery{
		ID:             s.newID(),
		OrderID:        order.ID,
		PharmacyID:     order.PharmacyID,
		Status:         domain.DeliveryStatusAssigned,
		AssignedAt:     s.clock(),
		PickupLocation: &domain.GeoPoint{Lat: pharmacy.Location.Lat, Lon: pharmacy.Location.Lon},
	}
	if loc := order.ShippingAddress.Location; loc != nil {
		delivery.DeliveryLocation = &domain.GeoPoint{Lat: loc.Lat, Lon: loc.Lon}
	}

	if err := s.deliveries.Create(ctx, delivery); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			// A delivery already exists for this order; reuse it.
			return s.deliveries.GetByOrderID(ctx, order.ID)
		}
		return domain.Delivery{}, fmt.Errorf("delivery: persist: %w", err)
	}

	s.publish(ctx, events.KeyDeliveryCreated, "delivery.created", map[string]any{
		"delivery_id": delivery.ID,
		"order_id":    order.ID,
		"pharmacy_id": order.PharmacyID,
	})
	return delivery, nil
}

func (s *deliveryService) ListAvailable(ctx context.Context, p domain.Pagination) (domain.Page[domain.Delivery], error) {
	page, err := s.deliveries.List(ctx, repositories.DeliveryQuery{Available: true}, p.Normalise())
	if err != nil {
		return domain.Page[domain.Delivery]{}, fmt.Errorf("delivery: list: %w", err)
	}
	return page, nil
}

func (s *deliveryService) ListForDriver(ctx context.Context, driverID string, p domain.Pagination) (domain.Page[domain.Delivery], error) {
	page, err := s.deliveries.List(ctx, repositories.DeliveryQuery{DriverID: driverID}, p.Normalise())
	if err != nil {
		return domain.Page[domain.Delivery]{}, fmt.Errorf("delivery: list: %w", err)
	}
	return page, nil
}

func (s *deliveryService) GetForDriver(ctx context.Context, driverID, deliveryID string) (DeliveryDetail, error) {
	delivery, err := s.loadForDriver(ctx, driverID, deliveryID)
	if err != nil {
		return DeliveryDetail{}, err
	}
	order, err := s.orders.Get(ctx, delivery.OrderID)
	if err != nil {
		return DeliveryDetail{}, fmt.Errorf("delivery: load order: %w", err)
	}
	return DeliveryDetail{
		Delivery: delivery,
		Order: domain.OrderSummary{
			ID:              order.ID,
			TotalAmount:     order.TotalAmount,
			Status:          order.Status,
			ShippingAddress: order.ShippingAddress,
			ItemsCount:      len(order.Items),
		},
	}, nil
}

func (s *deliveryService) Accept(ctx context.Context, driverID, deliveryID string) (domain.Delivery, error) {
	delivery, err := s.load(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}

	order, err := s.orders.Get(ctx, delivery.OrderID)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("delivery: load order: %w", err)
	}
	if order.Status != domain.OrderStatusPrepared {
		return domain.Delivery{}, ErrDeliveryNotReady
	}

	if err := s.deliveries.Claim(ctx, deliveryID, driverID, s.clock()); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return domain.Delivery{}, ErrDeliveryNotFound
		case errors.Is(err, repositories.ErrConflict):
			return domain.Delivery{}, ErrDeliveryNotClaimable
		}
		return domain.Delivery{}, fmt.Errorf("delivery: claim: %w", err)
	}

	if err := s.orders.Transition(ctx, order.ID, domain.OrderStatusPrepared, domain.OrderStatusDriverAssigned); err != nil {
		// The claim stands; the order edge lost a race and will be retried
		// by the next status update.
		s.logger(ctx, "delivery.order_bind_failed", map[string]any{
			"delivery_id": deliveryID,
			"error":       err.Error(),
		})
	}

	s.publish(ctx, events.KeyDeliveryCreated, "delivery.created", map[string]any{
		"delivery_id": deliveryID,
		"order_id":    order.ID,
		"pharmacy_id": delivery.PharmacyID,
		"driver_id":   driverID,
	})
	return s.load(ctx, deliveryID)
}

func (s *deliveryService) UpdateStatus(ctx context.Context, driverID, deliveryID string, to domain.DeliveryStatus) (domain.Delivery, error) {
	delivery, err := s.loadForDriver(ctx, driverID, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if !CanTransitionDelivery(delivery.Status, to) {
		return domain.Delivery{}, ErrDeliveryInvalidTransition
	}
	if to == domain.DeliveryStatusDelivered {
		// Handover completion must present the customer code.
		return domain.Delivery{}, ErrDeliveryInvalidTransition
	}

	if err := s.deliveries.Transition(ctx, deliveryID, delivery.Status, to, s.clock()); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return domain.Delivery{}, ErrDeliveryInvalidTransition
		}
		return domain.Delivery{}, fmt.Errorf("delivery: transition: %w", err)
	}

	switch to {
	case domain.DeliveryStatusPickedUp, domain.DeliveryStatusInTransit:
		// Both courier moves read as "on the way" from the customer's side.
		if err := s.orders.Transition(ctx, delivery.OrderID, domain.OrderStatusDriverAssigned, domain.OrderStatusInTransit); err != nil {
			s.logger(ctx, "delivery.order_move_failed", map[string]any{
				"delivery_id": deliveryID,
				"error":       err.Error(),
			})
		}
	case domain.DeliveryStatusFailed:
		s.failOrder(ctx, delivery)
	}

	s.publish(ctx, events.KeyDeliveryUpdated, "delivery.updated", map[string]any{
		"delivery_id": deliveryID,
		"order_id":    delivery.OrderID,
		"status":      string(to),
		"user_id":     driverID,
	})
	return s.load(ctx, deliveryID)
}

func (s *deliveryService) ConfirmHandover(ctx context.Context, driverID, deliveryID, otp string) (domain.Delivery, error) {
	delivery, err := s.loadForDriver(ctx, driverID, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if delivery.Status != domain.DeliveryStatusPickedUp && delivery.Status != domain.DeliveryStatusInTransit {
		return domain.Delivery{}, ErrDeliveryInvalidTransition
	}

	order, err := s.orders.Get(ctx, delivery.OrderID)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("delivery: load order: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(order.DeliveryOTP), []byte(otp)) != 1 {
		return domain.Delivery{}, ErrDeliveryOTPMismatch
	}

	if err := s.deliveries.Transition(ctx, deliveryID, delivery.Status, domain.DeliveryStatusDelivered, s.clock()); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return domain.Delivery{}, ErrDeliveryInvalidTransition
		}
		return domain.Delivery{}, fmt.Errorf("delivery: transition: %w", err)
	}
	if err := s.orders.Transition(ctx, order.ID, domain.OrderStatusInTransit, domain.OrderStatusDelivered); err != nil {
		s.logger(ctx, "delivery.order_move_failed", map[string]any{
			"delivery_id": deliveryID,
			"error":       err.Error(),
		})
	}

	if err := s.inventory.CommitItems(ctx, order.PharmacyID, order.Items); err != nil {
		s.logger(ctx, "delivery.commit_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}

	s.publish(ctx, events.KeyDeliveryUpdated, "delivery.delivered", map[string]any{
		"delivery_id": deliveryID,
		"order_id":    order.ID,
		"status":      string(domain.DeliveryStatusDelivered),
		"user_id":     driverID,
	})
	return s.load(ctx, deliveryID)
}

func (s *deliveryService) UpdateLocation(ctx context.Context, driverID, deliveryID string, location domain.GeoPoint) error {
	if _, err := s.loadForDriver(ctx, driverID, deliveryID); err != nil {
		return err
	}
	if err := s.deliveries.UpdateLocation(ctx, deliveryID, location); err != nil {
		return fmt.Errorf("delivery: update location: %w", err)
	}
	return nil
}

// failOrder pushes the order to failed and returns the reserved stock.
func (s *deliveryService) failOrder(ctx context.Context, delivery domain.Delivery) {
	order, err := s.orders.Get(ctx, delivery.OrderID)
	if err != nil {
		s.logger(ctx, "delivery.order_load_failed", map[string]any{
			"delivery_id": delivery.ID,
			"error":       err.Error(),
		})
		return
	}
	if err := s.orders.Transition(ctx, order.ID, order.Status, domain.OrderStatusFailed); err != nil {
		s.logger(ctx, "delivery.order_move_failed", map[string]any{
			"delivery_id": delivery.ID,
			"error":       err.Error(),
		})
	}
	if err := s.inventory.ReleaseItems(ctx, order.PharmacyID, order.Items); err != nil {
		s.logger(ctx, "delivery.release_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}

func (s *deliveryService) load(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	delivery, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Delivery{}, ErrDeliveryNotFound
		}
		return domain.Delivery{}, fmt.Errorf("delivery: load: %w", err)
	}
	return delivery, nil
}

func (s *deliveryService) loadForDriver(ctx context.Context, driverID, deliveryID string) (domain.Delivery, error) {
	delivery, err := s.load(ctx, deliveryID)
	if err != nil {
		return domain.Delivery{}, err
	}
	if delivery.DriverID != driverID {
		return domain.Delivery{}, ErrDeliveryNotFound
	}
	return delivery, nil
}

func (s *deliveryService) publish(ctx context.Context, key, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	envelope, err := events.NewEnvelope(eventType, payload, s.clock())
	if err != nil {
		s.logger(ctx, "delivery.event_frame_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := s.events.Publish(ctx, events.ExchangeDeliveries, key, envelope); err != nil {
		s.logger(ctx, "delivery.event_publish_failed", map[string]any{
			"event": eventType,
			"error": err.Error(),
		})
	}
}
