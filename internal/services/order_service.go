package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/repositories"
)

// taxRate is applied per line on the selling price.
const taxRate = 0.18

// maxLineQty caps a single order line.
const maxLineQty = 100

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates no such order visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderCannotCancel indicates the order left the cancellable window.
	ErrOrderCannotCancel = errors.New("order: cannot cancel")
	// ErrOrderInvalidTransition indicates the lifecycle does not admit the
	// requested move from the order's current state.
	ErrOrderInvalidTransition = errors.New("order: invalid transition")
	// ErrOrderNotDelivered indicates rating requires a delivered order.
	ErrOrderNotDelivered = errors.New("order: not delivered")
	// ErrPharmacyNotFound indicates the target pharmacy does not exist or is
	// inactive.
	ErrPharmacyNotFound = errors.New("order: pharmacy not found")
)

// CreateOrderInput captures a checkout request. All items must be fulfilled
// by the one named pharmacy.
type CreateOrderInput struct {
	PharmacyID      string
	Items           []ReserveLine
	ShippingAddress domain.Address
	IdempotencyKey  string
}

// CreateOrderResult wraps the order with a replay marker so the gateway can
// pick the right status code.
type CreateOrderResult struct {
	Order    domain.Order
	Replayed bool
}

// DeliveryCreator materialises the courier job for a paid order.
type DeliveryCreator interface {
	CreateForOrder(ctx context.Context, order domain.Order) (domain.Delivery, error)
}

// OrderService owns the order lifecycle from checkout to terminal state.
type OrderService interface {
	Create(ctx context.Context, userID string, input CreateOrderInput) (CreateOrderResult, error)
	GetForUser(ctx context.Context, userID, orderID string) (domain.Order, error)
	ListForUser(ctx context.Context, userID string, p domain.Pagination) (domain.Page[domain.Order], error)
	ListForPharmacy(ctx context.Context, pharmacyID string, status domain.OrderStatus, p domain.Pagination) (domain.Page[domain.Order], error)
	Cancel(ctx context.Context, userID, orderID, reason string) (domain.Order, error)
	// Accept, Decline and MarkPrepared are the pharmacy-side lifecycle
	// moves; callers must have resolved pharmacy ownership already.
	Accept(ctx context.Context, pharmacyID, orderID string) (domain.Order, error)
	Decline(ctx context.Context, pharmacyID, orderID, reason string) (domain.Order, error)
	MarkPrepared(ctx context.Context, pharmacyID, orderID string) (domain.Order, error)
	// Transition applies a lifecycle edge on behalf of trusted internal
	// callers such as the delivery flow.
	Transition(ctx context.Context, orderID string, from, to domain.OrderStatus) error
	HandlePaymentResult(ctx context.Context, orderID string, succeeded bool, transactionID string) (domain.Order, error)
	Rate(ctx context.Context, userID, orderID string, rating int, review string) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
}

// OrderServiceDeps bundles the collaborators required to construct an order
// service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Pharmacies  repositories.PharmacyRepository
	Inventory   InventoryService
	Deliveries  DeliveryCreator
	Events      events.Publisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	pharmacies repositories.PharmacyRepository
	inventory  InventoryService
	deliveries DeliveryCreator
	events     events.Publisher
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Pharmacies == nil {
		return nil, errors.New("order service: pharmacy repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("order service: id generator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		pharmacies: deps.Pharmacies,
		inventory:  deps.Inventory,
		deliveries: deps.Deliveries,
		events:     deps.Events,
		clock:      func() time.Time { return clock().UTC() },
		newID:      deps.IDGenerator,
		logger:     logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, userID string, input CreateOrderInput) (CreateOrderResult, error) {
	if userID == "" || input.PharmacyID == "" || len(input.Items) == 0 {
		return CreateOrderResult{}, ErrOrderInvalidInput
	}
	for _, item := range input.Items {
		if item.MedicineID == "" || item.Qty <= 0 || item.Qty > maxLineQty {
			return CreateOrderResult{}, ErrOrderInvalidInput
		}
	}

	// Replay path: a key the caller used before returns the stored outcome
	// verbatim, including the original delivery code.
	if input.IdempotencyKey != "" {
		existing, err := s.orders.GetByIdempotencyKey(ctx, userID, input.IdempotencyKey)
		if err == nil {
			return CreateOrderResult{Order: existing, Replayed: true}, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return CreateOrderResult{}, fmt.Errorf("order: idempotency lookup: %w", err)
		}
	}

	pharmacy, err := s.pharmacies.GetByID(ctx, input.PharmacyID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return CreateOrderResult{}, ErrPharmacyNotFound
		}
		return CreateOrderResult{}, fmt.Errorf("order: load pharmacy: %w", err)
	}
	if !pharmacy.Active {
		return CreateOrderResult{}, ErrPharmacyNotFound
	}

	orderID := s.newID()
	holds, err := s.inventory.Reserve(ctx, pharmacy.ID, orderID, input.Items)
	if err != nil {
		return CreateOrderResult{}, err
	}

	items := make([]domain.OrderItem, 0, len(holds))
	total := 0.0
	for _, hold := range holds {
		lineTax := round2(hold.Price * float64(hold.Qty) * taxRate)
		items = append(items, domain.OrderItem{
			MedicineID: hold.MedicineID,
			BatchNo:    hold.BatchNo,
			Qty:        hold.Qty,
			Price:      hold.Price,
			Tax:        lineTax,
		})
		total += hold.Price*float64(hold.Qty) + lineTax
	}

	otp, err := generateOTP()
	if err != nil {
		s.releaseQuietly(ctx, holds)
		return CreateOrderResult{}, err
	}

	now := s.clock()
	order := domain.Order{
		ID:              orderID,
		UserID:          userID,
		PharmacyID:      pharmacy.ID,
		Items:           items,
		TotalAmount:     round2(total),
		Status:          domain.OrderStatusCreated,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: input.ShippingAddress,
		IdempotencyKey:  input.IdempotencyKey,
		DeliveryOTP:     otp,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseQuietly(ctx, holds)
		if errors.Is(err, repositories.ErrDuplicate) && input.IdempotencyKey != "" {
			// Lost a race against a concurrent identical request; surface
			// the winner's order.
			existing, lookupErr := s.orders.GetByIdempotencyKey(ctx, userID, input.IdempotencyKey)
			if lookupErr == nil {
				return CreateOrderResult{Order: existing, Replayed: true}, nil
			}
		}
		return CreateOrderResult{}, fmt.Errorf("order: persist: %w", err)
	}

	eventItems := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		eventItems = append(eventItems, map[string]any{
			"medicine_id": item.MedicineID,
			"batch_no":    item.BatchNo,
			"qty":         item.Qty,
			"price":       item.Price,
		})
	}
	s.publish(ctx, events.ExchangeOrders, events.KeyOrderCreated, "order.created", map[string]any{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"pharmacy_id": order.PharmacyID,
		"items":       eventItems,
		"total":       order.TotalAmount,
	})
	s.logger(ctx, "order.created", map[string]any{
		"order_id": order.ID,
		"total":    order.TotalAmount,
	})
	return CreateOrderResult{Order: order}, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("order: load: %w", err)
	}
	return order, nil
}

func (s *orderService) GetForUser(ctx context.Context, userID, orderID string) (domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		// Hide existence from other customers.
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListForUser(ctx context.Context, userID string, p domain.Pagination) (domain.Page[domain.Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderQuery{UserID: userID}, p.Normalise())
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("order: list: %w", err)
	}
	return page, nil
}

func (s *orderService) ListForPharmacy(ctx context.Context, pharmacyID string, status domain.OrderStatus, p domain.Pagination) (domain.Page[domain.Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderQuery{PharmacyID: pharmacyID, Status: status}, p.Normalise())
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("order: list: %w", err)
	}
	return page, nil
}

func (s *orderService) Cancel(ctx context.Context, userID, orderID, reason string) (domain.Order, error) {
	order, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !CustomerCanCancel(order.Status) {
		return domain.Order{}, ErrOrderCannotCancel
	}
	return s.cancel(ctx, order, reason)
}

func (s *orderService) Accept(ctx context.Context, pharmacyID, orderID string) (domain.Order, error) {
	return s.pharmacyMove(ctx, pharmacyID, orderID, domain.OrderStatusCreated, domain.OrderStatusAcceptedByPharmacy)
}

func (s *orderService) MarkPrepared(ctx context.Context, pharmacyID, orderID string) (domain.Order, error) {
	return s.pharmacyMove(ctx, pharmacyID, orderID, domain.OrderStatusAcceptedByPharmacy, domain.OrderStatusPrepared)
}

func (s *orderService) Decline(ctx context.Context, pharmacyID, orderID, reason string) (domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.PharmacyID != pharmacyID {
		return domain.Order{}, ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusCreated {
		return domain.Order{}, ErrOrderInvalidTransition
	}
	return s.cancel(ctx, order, reason)
}

func (s *orderService) pharmacyMove(ctx context.Context, pharmacyID, orderID string, from, to domain.OrderStatus) (domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.PharmacyID != pharmacyID {
		return domain.Order{}, ErrOrderNotFound
	}
	if err := s.Transition(ctx, orderID, from, to); err != nil {
		return domain.Order{}, err
	}
	return s.Get(ctx, orderID)
}

// cancel applies the cancelled edge and returns the reserved stock. Release
// runs after the transition wins so a concurrent cancel cannot double-release.
func (s *orderService) cancel(ctx context.Context, order domain.Order, reason string) (domain.Order, error) {
	err := s.orders.Transition(ctx, order.ID, order.Status, domain.OrderStatusCancelled, repositories.OrderUpdate{
		CancellationReason: reason,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return domain.Order{}, ErrOrderCannotCancel
		}
		return domain.Order{}, fmt.Errorf("order: cancel: %w", err)
	}

	if err := s.inventory.ReleaseItems(ctx, order.PharmacyID, order.Items); err != nil {
		s.logger(ctx, "order.release_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}

	s.publish(ctx, events.ExchangeOrders, events.KeyOrderCancelled, "order.cancelled", map[string]any{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"pharmacy_id": order.PharmacyID,
		"reason":      reason,
	})
	return s.Get(ctx, order.ID)
}

func (s *orderService) Transition(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	if !CanTransition(from, to) {
		return ErrOrderInvalidTransition
	}
	if err := s.orders.Transition(ctx, orderID, from, to, repositories.OrderUpdate{}); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return ErrOrderNotFound
		case errors.Is(err, repositories.ErrConflict):
			return ErrOrderInvalidTransition
		}
		return fmt.Errorf("order: transition: %w", err)
	}
	return nil
}

func (s *orderService) HandlePaymentResult(ctx context.Context, orderID string, succeeded bool, transactionID string) (domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.Terminal() {
		// Late webhook for a finished order; record nothing.
		return order, nil
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		// Duplicate webhook delivery.
		return order, nil
	}

	if !succeeded {
		if err := s.orders.SetPayment(ctx, orderID, domain.PaymentStatusFailed, transactionID); err != nil {
			return domain.Order{}, fmt.Errorf("order: record payment: %w", err)
		}
		return s.Get(ctx, orderID)
	}

	if err := s.orders.SetPayment(ctx, orderID, domain.PaymentStatusPaid, transactionID); err != nil {
		return domain.Order{}, fmt.Errorf("order: record payment: %w", err)
	}

	deliveryID := order.DeliveryID
	if s.deliveries != nil && deliveryID == "" {
		delivery, err := s.deliveries.CreateForOrder(ctx, order)
		if err != nil {
			s.logger(ctx, "order.delivery_create_failed", map[string]any{
				"order_id": orderID,
				"error":    err.Error(),
			})
		} else if err := s.orders.SetDelivery(ctx, orderID, delivery.ID); err != nil {
			return domain.Order{}, fmt.Errorf("order: bind delivery: %w", err)
		} else {
			deliveryID = delivery.ID
		}
	}

	s.publish(ctx, events.ExchangeOrders, events.KeyOrderPaid, "order.paid", map[string]any{
		"order_id":       orderID,
		"delivery_id":    deliveryID,
		"pharmacy_id":    order.PharmacyID,
		"total":          order.TotalAmount,
		"transaction_id": transactionID,
	})
	return s.Get(ctx, orderID)
}

func (s *orderService) Rate(ctx context.Context, userID, orderID string, rating int, review string) (domain.Order, error) {
	if rating < 1 || rating > 5 {
		return domain.Order{}, ErrOrderInvalidInput
	}
	order, err := s.GetForUser(ctx, userID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusDelivered {
		return domain.Order{}, ErrOrderNotDelivered
	}
	if err := s.orders.SetRating(ctx, orderID, rating, review); err != nil {
		return domain.Order{}, fmt.Errorf("order: rate: %w", err)
	}
	return s.Get(ctx, orderID)
}

func (s *orderService) releaseQuietly(ctx context.Context, holds []Reservation) {
	if err := s.inventory.Release(ctx, holds); err != nil {
		s.logger(ctx, "order.release_failed", map[string]any{"error": err.Error()})
	}
}

func (s *orderService) publish(ctx context.Context, exchange, key, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	envelope, err := events.NewEnvelope(eventType, payload, s.clock())
	if err != nil {
		s.logger(ctx, "order.event_frame_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := s.events.Publish(ctx, exchange, key, envelope); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
