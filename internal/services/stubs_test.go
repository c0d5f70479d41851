package services

import (
	"context"
	"errors"
	"time"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/repositories"
)

type stubOrderRepo struct {
	createFn      func(ctx context.Context, order domain.Order) error
	getByIDFn     func(ctx context.Context, id string) (domain.Order, error)
	getByKeyFn    func(ctx context.Context, userID, key string) (domain.Order, error)
	listFn        func(ctx context.Context, q repositories.OrderQuery, p domain.Pagination) (domain.Page[domain.Order], error)
	transitionFn  func(ctx context.Context, id string, from, to domain.OrderStatus, update repositories.OrderUpdate) error
	setPaymentFn  func(ctx context.Context, id string, status domain.PaymentStatus, transactionID string) error
	setDeliveryFn func(ctx context.Context, id, deliveryID string) error
	setRatingFn   func(ctx context.Context, id string, rating int, review string) error
}

func (s *stubOrderRepo) Create(ctx context.Context, order domain.Order) error {
	if s.createFn != nil {
		return s.createFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) GetByID(ctx context.Context, id string) (domain.Order, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return domain.Order{}, repositories.ErrNotFound
}

func (s *stubOrderRepo) GetByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	if s.getByKeyFn != nil {
		return s.getByKeyFn(ctx, userID, key)
	}
	return domain.Order{}, repositories.ErrNotFound
}

func (s *stubOrderRepo) List(ctx context.Context, q repositories.OrderQuery, p domain.Pagination) (domain.Page[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, q, p)
	}
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderRepo) Transition(ctx context.Context, id string, from, to domain.OrderStatus, update repositories.OrderUpdate) error {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, id, from, to, update)
	}
	return nil
}

func (s *stubOrderRepo) SetPayment(ctx context.Context, id string, status domain.PaymentStatus, transactionID string) error {
	if s.setPaymentFn != nil {
		return s.setPaymentFn(ctx, id, status, transactionID)
	}
	return nil
}

func (s *stubOrderRepo) SetDelivery(ctx context.Context, id, deliveryID string) error {
	if s.setDeliveryFn != nil {
		return s.setDeliveryFn(ctx, id, deliveryID)
	}
	return nil
}

func (s *stubOrderRepo) SetRating(ctx context.Context, id string, rating int, review string) error {
	if s.setRatingFn != nil {
		return s.setRatingFn(ctx, id, rating, review)
	}
	return nil
}

type stubPharmacyRepo struct {
	createFn          func(ctx context.Context, pharmacy domain.Pharmacy) error
	getByIDFn         func(ctx context.Context, id string) (domain.Pharmacy, error)
	getByPharmacistFn func(ctx context.Context, pharmacistUserID string) (domain.Pharmacy, error)
	updateFn          func(ctx context.Context, pharmacy domain.Pharmacy) error
	listActiveFn      func(ctx context.Context, p domain.Pagination) (domain.Page[domain.Pharmacy], error)
}

func (s *stubPharmacyRepo) Create(ctx context.Context, pharmacy domain.Pharmacy) error {
	if s.createFn != nil {
		return s.createFn(ctx, pharmacy)
	}
	return nil
}

func (s *stubPharmacyRepo) GetByID(ctx context.Context, id string) (domain.Pharmacy, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return domain.Pharmacy{}, repositories.ErrNotFound
}

func (s *stubPharmacyRepo) GetByPharmacist(ctx context.Context, pharmacistUserID string) (domain.Pharmacy, error) {
	if s.getByPharmacistFn != nil {
		return s.getByPharmacistFn(ctx, pharmacistUserID)
	}
	return domain.Pharmacy{}, repositories.ErrNotFound
}

func (s *stubPharmacyRepo) Update(ctx context.Context, pharmacy domain.Pharmacy) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, pharmacy)
	}
	return nil
}

func (s *stubPharmacyRepo) ListActive(ctx context.Context, p domain.Pagination) (domain.Page[domain.Pharmacy], error) {
	if s.listActiveFn != nil {
		return s.listActiveFn(ctx, p)
	}
	return domain.Page[domain.Pharmacy]{}, nil
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, name string) (int64, error)
	seq    int64
}

func (s *stubCounterRepo) Next(ctx context.Context, name string) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, name)
	}
	s.seq++
	return s.seq, nil
}

type stubInventoryRepo struct {
	createFn      func(ctx context.Context, item domain.InventoryItem) error
	getByIDFn     func(ctx context.Context, id string) (domain.InventoryItem, error)
	updateFn      func(ctx context.Context, item domain.InventoryItem) error
	deleteFn      func(ctx context.Context, id string) error
	listFn        func(ctx context.Context, pharmacyID string, p domain.Pagination) (domain.Page[domain.InventoryItem], error)
	listBatchesFn func(ctx context.Context, pharmacyID, medicineID string) ([]domain.InventoryItem, error)
	reserveFn     func(ctx context.Context, id string, qty int) error
	releaseFn     func(ctx context.Context, id string, qty int) error
	commitFn      func(ctx context.Context, id string, qty int) error
}

func (s *stubInventoryRepo) Create(ctx context.Context, item domain.InventoryItem) error {
	if s.createFn != nil {
		return s.createFn(ctx, item)
	}
	return nil
}

func (s *stubInventoryRepo) GetByID(ctx context.Context, id string) (domain.InventoryItem, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return domain.InventoryItem{}, repositories.ErrNotFound
}

func (s *stubInventoryRepo) Update(ctx context.Context, item domain.InventoryItem) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, item)
	}
	return nil
}

func (s *stubInventoryRepo) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

func (s *stubInventoryRepo) ListByPharmacy(ctx context.Context, pharmacyID string, p domain.Pagination) (domain.Page[domain.InventoryItem], error) {
	if s.listFn != nil {
		return s.listFn(ctx, pharmacyID, p)
	}
	return domain.Page[domain.InventoryItem]{}, nil
}

func (s *stubInventoryRepo) ListBatches(ctx context.Context, pharmacyID, medicineID string) ([]domain.InventoryItem, error) {
	if s.listBatchesFn != nil {
		return s.listBatchesFn(ctx, pharmacyID, medicineID)
	}
	return nil, nil
}

func (s *stubInventoryRepo) Reserve(ctx context.Context, id string, qty int) error {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, id, qty)
	}
	return nil
}

func (s *stubInventoryRepo) Release(ctx context.Context, id string, qty int) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, id, qty)
	}
	return nil
}

func (s *stubInventoryRepo) Commit(ctx context.Context, id string, qty int) error {
	if s.commitFn != nil {
		return s.commitFn(ctx, id, qty)
	}
	return nil
}

type stubUserRepo struct {
	createFn      func(ctx context.Context, user domain.User) error
	getByIDFn     func(ctx context.Context, id string) (domain.User, error)
	getByPhoneFn  func(ctx context.Context, phone string) (domain.User, error)
	getByEmailFn  func(ctx context.Context, email string) (domain.User, error)
	updateFn      func(ctx context.Context, user domain.User) error
	setVerifiedFn func(ctx context.Context, id string) error
	replaceCartFn func(ctx context.Context, id string, cart []domain.CartEntry) error
	listFn        func(ctx context.Context, role domain.Role, p domain.Pagination) (domain.Page[domain.User], error)
}

func (s *stubUserRepo) Create(ctx context.Context, user domain.User) error {
	if s.createFn != nil {
		return s.createFn(ctx, user)
	}
	return nil
}

func (s *stubUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return domain.User{}, repositories.ErrNotFound
}

func (s *stubUserRepo) GetByPhone(ctx context.Context, phone string) (domain.User, error) {
	if s.getByPhoneFn != nil {
		return s.getByPhoneFn(ctx, phone)
	}
	return domain.User{}, repositories.ErrNotFound
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	if s.getByEmailFn != nil {
		return s.getByEmailFn(ctx, email)
	}
	return domain.User{}, repositories.ErrNotFound
}

func (s *stubUserRepo) Update(ctx context.Context, user domain.User) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, user)
	}
	return nil
}

func (s *stubUserRepo) SetVerified(ctx context.Context, id string) error {
	if s.setVerifiedFn != nil {
		return s.setVerifiedFn(ctx, id)
	}
	return nil
}

func (s *stubUserRepo) ReplaceCart(ctx context.Context, id string, cart []domain.CartEntry) error {
	if s.replaceCartFn != nil {
		return s.replaceCartFn(ctx, id, cart)
	}
	return nil
}

func (s *stubUserRepo) List(ctx context.Context, role domain.Role, p domain.Pagination) (domain.Page[domain.User], error) {
	if s.listFn != nil {
		return s.listFn(ctx, role, p)
	}
	return domain.Page[domain.User]{}, nil
}

type stubDeliveryRepo struct {
	createFn         func(ctx context.Context, delivery domain.Delivery) error
	getByIDFn        func(ctx context.Context, id string) (domain.Delivery, error)
	getByOrderIDFn   func(ctx context.Context, orderID string) (domain.Delivery, error)
	listFn           func(ctx context.Context, q repositories.DeliveryQuery, p domain.Pagination) (domain.Page[domain.Delivery], error)
	claimFn          func(ctx context.Context, id, driverID string, acceptedAt time.Time) error
	transitionFn     func(ctx context.Context, id string, from, to domain.DeliveryStatus, at time.Time) error
	updateLocationFn func(ctx context.Context, id string, location domain.GeoPoint) error
}

func (s *stubDeliveryRepo) Create(ctx context.Context, delivery domain.Delivery) error {
	if s.createFn != nil {
		return s.createFn(ctx, delivery)
	}
	return nil
}

func (s *stubDeliveryRepo) GetByID(ctx context.Context, id string) (domain.Delivery, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return domain.Delivery{}, repositories.ErrNotFound
}

func (s *stubDeliveryRepo) GetByOrderID(ctx context.Context, orderID string) (domain.Delivery, error) {
	if s.getByOrderIDFn != nil {
		return s.getByOrderIDFn(ctx, orderID)
	}
	return domain.Delivery{}, repositories.ErrNotFound
}

func (s *stubDeliveryRepo) List(ctx context.Context, q repositories.DeliveryQuery, p domain.Pagination) (domain.Page[domain.Delivery], error) {
	if s.listFn != nil {
		return s.listFn(ctx, q, p)
	}
	return domain.Page[domain.Delivery]{}, nil
}

func (s *stubDeliveryRepo) Claim(ctx context.Context, id, driverID string, acceptedAt time.Time) error {
	if s.claimFn != nil {
		return s.claimFn(ctx, id, driverID, acceptedAt)
	}
	return nil
}

func (s *stubDeliveryRepo) Transition(ctx context.Context, id string, from, to domain.DeliveryStatus, at time.Time) error {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, id, from, to, at)
	}
	return nil
}

func (s *stubDeliveryRepo) UpdateLocation(ctx context.Context, id string, location domain.GeoPoint) error {
	if s.updateLocationFn != nil {
		return s.updateLocationFn(ctx, id, location)
	}
	return nil
}

// stubStockService satisfies InventoryService for order and delivery tests.
type stubStockService struct {
	reserveFn      func(ctx context.Context, pharmacyID, orderID string, lines []ReserveLine) ([]Reservation, error)
	releaseFn      func(ctx context.Context, reservations []Reservation) error
	commitFn       func(ctx context.Context, reservations []Reservation) error
	releaseItemsFn func(ctx context.Context, pharmacyID string, items []domain.OrderItem) error
	commitItemsFn  func(ctx context.Context, pharmacyID string, items []domain.OrderItem) error
}

func (s *stubStockService) Reserve(ctx context.Context, pharmacyID, orderID string, lines []ReserveLine) ([]Reservation, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, pharmacyID, orderID, lines)
	}
	return nil, errors.New("reserve not stubbed")
}

func (s *stubStockService) Release(ctx context.Context, reservations []Reservation) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, reservations)
	}
	return nil
}

func (s *stubStockService) Commit(ctx context.Context, reservations []Reservation) error {
	if s.commitFn != nil {
		return s.commitFn(ctx, reservations)
	}
	return nil
}

func (s *stubStockService) ReleaseItems(ctx context.Context, pharmacyID string, items []domain.OrderItem) error {
	if s.releaseItemsFn != nil {
		return s.releaseItemsFn(ctx, pharmacyID, items)
	}
	return nil
}

func (s *stubStockService) CommitItems(ctx context.Context, pharmacyID string, items []domain.OrderItem) error {
	if s.commitItemsFn != nil {
		return s.commitItemsFn(ctx, pharmacyID, items)
	}
	return nil
}

type stubLocker struct {
	acquireFn func(ctx context.Context, name, holder string) error
	releaseFn func(ctx context.Context, name, holder string) error
}

func (s *stubLocker) Acquire(ctx context.Context, name, holder string) error {
	if s.acquireFn != nil {
		return s.acquireFn(ctx, name, holder)
	}
	return nil
}

func (s *stubLocker) Release(ctx context.Context, name, holder string) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, name, holder)
	}
	return nil
}

type publishedEvent struct {
	Exchange string
	Key      string
	Envelope events.Envelope
}

type capturePublisher struct {
	published []publishedEvent
}

func (c *capturePublisher) Publish(_ context.Context, exchange, key string, envelope events.Envelope) error {
	c.published = append(c.published, publishedEvent{Exchange: exchange, Key: key, Envelope: envelope})
	return nil
}

type stubDeliveryCreator struct {
	createFn func(ctx context.Context, order domain.Order) (domain.Delivery, error)
}

func (s *stubDeliveryCreator) CreateForOrder(ctx context.Context, order domain.Order) (domain.Delivery, error) {
	if s.createFn != nil {
		return s.createFn(ctx, order)
	}
	return domain.Delivery{}, errors.New("create not stubbed")
}

type stubOrderMover struct {
	getFn        func(ctx context.Context, orderID string) (domain.Order, error)
	transitionFn func(ctx context.Context, orderID string, from, to domain.OrderStatus) error
}

func (s *stubOrderMover) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, ErrOrderNotFound
}

func (s *stubOrderMover) Transition(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, orderID, from, to)
	}
	return nil
}
