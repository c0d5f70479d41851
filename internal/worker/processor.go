// Package worker consumes the event fabric and runs the asynchronous side
// effects of the order platform: notifications, stock watermark checks and
// search re-indexing signals.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/repositories"
)

const (
	lowStockThreshold = 10
	nearExpiryWindow  = 30 * 24 * time.Hour
)

// SearchIndexer signals the external search engine that a document changed.
type SearchIndexer interface {
	ReindexMedicine(ctx context.Context, medicineID string) error
}

// Notifier delivers user-facing notifications. The development build logs
// them.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// Processor owns the handler set bound to the event exchanges.
type Processor struct {
	orders     repositories.OrderRepository
	inventory  repositories.InventoryRepository
	pharmacies repositories.PharmacyRepository
	users      repositories.UserRepository
	indexer    SearchIndexer
	notifier   Notifier
	logger     *zap.Logger
	clock      func() time.Time
}

// ProcessorDeps bundles the collaborators required to construct a Processor.
type ProcessorDeps struct {
	Orders     repositories.OrderRepository
	Inventory  repositories.InventoryRepository
	Pharmacies repositories.PharmacyRepository
	Users      repositories.UserRepository
	Indexer    SearchIndexer
	Notifier   Notifier
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewProcessor wires dependencies into a Processor.
func NewProcessor(deps ProcessorDeps) (*Processor, error) {
	if deps.Orders == nil || deps.Inventory == nil {
		return nil, errors.New("worker: repositories are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Processor{
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		pharmacies: deps.Pharmacies,
		users:      deps.Users,
		indexer:    deps.Indexer,
		notifier:   deps.Notifier,
		logger:     logger,
		clock:      func() time.Time { return clock().UTC() },
	}, nil
}

// Bindings returns the queue bindings the worker consumes.
func (p *Processor) Bindings() []events.Binding {
	return []events.Binding{
		{Exchange: events.ExchangeOrders, Key: events.KeyOrderCreated, Queue: "worker.orders.created", Handle: p.handleOrderCreated},
		{Exchange: events.ExchangeOrders, Key: events.KeyOrderPaid, Queue: "worker.orders.paid", Handle: p.handleOrderPaid},
		{Exchange: events.ExchangeOrders, Key: events.KeyOrderCancelled, Queue: "worker.orders.cancelled", Handle: p.handleOrderCancelled},
		{Exchange: events.ExchangeDeliveries, Key: "#", Queue: "worker.deliveries", Handle: p.handleDeliveryEvent},
		{Exchange: events.ExchangeInventory, Key: events.KeyInventoryUpdate, Queue: "worker.inventory.updated", Handle: p.handleInventoryUpdated},
	}
}

type orderEventPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	PharmacyID string `json:"pharmacy_id"`
	Reason     string `json:"reason"`
}

func (p *Processor) handleOrderCreated(ctx context.Context, envelope events.Envelope) error {
	var payload orderEventPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("worker: decode payload: %w", err)
	}

	order, err := p.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Order vanished; nothing to notify about.
			return nil
		}
		return fmt.Errorf("worker: load order: %w", err)
	}

	p.notify(ctx, order.UserID, fmt.Sprintf("order %s placed, awaiting pharmacy confirmation", order.ID))
	p.notifyPharmacy(ctx, order.PharmacyID, fmt.Sprintf("new order %s awaiting confirmation", order.ID))
	p.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.Float64("total", order.TotalAmount),
	)
	return nil
}

func (p *Processor) handleOrderPaid(ctx context.Context, envelope events.Envelope) error {
	var payload orderEventPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("worker: decode payload: %w", err)
	}

	order, err := p.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("worker: load order: %w", err)
	}

	p.notify(ctx, order.UserID, fmt.Sprintf("payment received for order %s", order.ID))
	return nil
}

func (p *Processor) handleOrderCancelled(ctx context.Context, envelope events.Envelope) error {
	var payload orderEventPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("worker: decode payload: %w", err)
	}

	order, err := p.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("worker: load order: %w", err)
	}

	p.notify(ctx, order.UserID, fmt.Sprintf("order %s was cancelled", order.ID))
	return nil
}

type deliveryEventPayload struct {
	DeliveryID string `json:"delivery_id"`
	OrderID    string `json:"order_id"`
	DriverID   string `json:"driver_id"`
	Status     string `json:"status"`
}

func (p *Processor) handleDeliveryEvent(ctx context.Context, envelope events.Envelope) error {
	var payload deliveryEventPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("worker: decode payload: %w", err)
	}

	if envelope.Type == "delivery.created" {
		// A job hit the pool; every verified driver hears about it.
		p.broadcastToDrivers(ctx, fmt.Sprintf("delivery %s is available for pickup", payload.DeliveryID))
	}

	if payload.OrderID != "" {
		order, err := p.orders.GetByID(ctx, payload.OrderID)
		if err == nil {
			p.notify(ctx, order.UserID, fmt.Sprintf("delivery update for order %s: %s", order.ID, envelope.Type))
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("worker: load order: %w", err)
		}
	}

	p.logger.Info("delivery event",
		zap.String("delivery_id", payload.DeliveryID),
		zap.String("event_type", envelope.Type),
	)
	return nil
}

type inventoryEventPayload struct {
	InventoryID string `json:"inventory_id"`
	PharmacyID  string `json:"pharmacy_id"`
	MedicineID  string `json:"medicine_id"`
	Available   int    `json:"available"`
	ExpiryDate  string `json:"expiry_date"`
}

// handleInventoryUpdated checks watermarks and signals the search engine so
// storefront availability stays fresh.
func (p *Processor) handleInventoryUpdated(ctx context.Context, envelope events.Envelope) error {
	var payload inventoryEventPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("worker: decode payload: %w", err)
	}

	item, err := p.inventory.GetByID(ctx, payload.InventoryID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Deleted batch; still worth re-indexing the medicine.
			p.reindex(ctx, payload.MedicineID)
			return nil
		}
		return fmt.Errorf("worker: load inventory: %w", err)
	}

	p.checkWatermarks(item)
	p.reindex(ctx, item.MedicineID)
	return nil
}

func (p *Processor) checkWatermarks(item domain.InventoryItem) {
	if item.AvailableQty <= lowStockThreshold {
		p.logger.Warn("low stock",
			zap.String("inventory_id", item.ID),
			zap.String("pharmacy_id", item.PharmacyID),
			zap.String("medicine_id", item.MedicineID),
			zap.Int("available", item.AvailableQty),
		)
	}
	if !item.ExpiryDate.IsZero() && item.ExpiryDate.Before(p.clock().Add(nearExpiryWindow)) {
		p.logger.Warn("batch near expiry",
			zap.String("inventory_id", item.ID),
			zap.String("batch_no", item.BatchNo),
			zap.Time("expiry_date", item.ExpiryDate),
		)
	}
}

func (p *Processor) reindex(ctx context.Context, medicineID string) {
	if p.indexer == nil || medicineID == "" {
		return
	}
	if err := p.indexer.ReindexMedicine(ctx, medicineID); err != nil {
		p.logger.Warn("reindex failed",
			zap.String("medicine_id", medicineID),
			zap.Error(err),
		)
	}
}

// notifyPharmacy resolves the pharmacy's owning pharmacist and notifies them.
func (p *Processor) notifyPharmacy(ctx context.Context, pharmacyID, message string) {
	if p.pharmacies == nil || pharmacyID == "" {
		return
	}
	pharmacy, err := p.pharmacies.GetByID(ctx, pharmacyID)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			p.logger.Warn("load pharmacy failed",
				zap.String("pharmacy_id", pharmacyID),
				zap.Error(err),
			)
		}
		return
	}
	p.notify(ctx, pharmacy.PharmacistUserID, message)
}

// broadcastToDrivers fans a message out to every verified driver.
func (p *Processor) broadcastToDrivers(ctx context.Context, message string) {
	if p.users == nil {
		return
	}
	paging := domain.Pagination{Page: 1, Size: 100}
	for {
		page, err := p.users.List(ctx, domain.RoleDriver, paging)
		if err != nil {
			p.logger.Warn("list drivers failed", zap.Error(err))
			return
		}
		for _, driver := range page.Items {
			if !driver.Verified {
				continue
			}
			p.notify(ctx, driver.ID, message)
		}
		if int64(paging.Page) >= page.Info.Pages {
			return
		}
		paging.Page++
	}
}

func (p *Processor) notify(ctx context.Context, userID, message string) {
	if p.notifier == nil || userID == "" {
		return
	}
	if err := p.notifier.Notify(ctx, userID, message); err != nil {
		p.logger.Warn("notify failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
