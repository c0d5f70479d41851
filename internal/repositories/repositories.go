package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/medassist/api/internal/domain"
)

// Sentinel errors repositories translate storage failures into. Services
// branch on these, never on driver errors.
var (
	ErrNotFound  = errors.New("repositories: not found")
	ErrDuplicate = errors.New("repositories: duplicate")
	// ErrConflict is returned when a conditional write found the document in
	// a different state than required.
	ErrConflict = errors.New("repositories: conflict")
)

// UserRepository persists principals.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByPhone(ctx context.Context, phone string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
	SetVerified(ctx context.Context, id string) error
	ReplaceCart(ctx context.Context, id string, cart []domain.CartEntry) error
	List(ctx context.Context, role domain.Role, p domain.Pagination) (domain.Page[domain.User], error)
}

// CounterRepository hands out monotonic per-name sequence numbers.
type CounterRepository interface {
	// Next increments and returns the named sequence, starting at 1 on
	// first use.
	Next(ctx context.Context, name string) (int64, error)
}

// PharmacyRepository persists dispensing locations.
type PharmacyRepository interface {
	Create(ctx context.Context, pharmacy domain.Pharmacy) error
	GetByID(ctx context.Context, id string) (domain.Pharmacy, error)
	GetByPharmacist(ctx context.Context, pharmacistUserID string) (domain.Pharmacy, error)
	Update(ctx context.Context, pharmacy domain.Pharmacy) error
	ListActive(ctx context.Context, p domain.Pagination) (domain.Page[domain.Pharmacy], error)
}

// MedicineRepository persists the global catalog.
type MedicineRepository interface {
	Create(ctx context.Context, medicine domain.Medicine) error
	GetByID(ctx context.Context, id string) (domain.Medicine, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Medicine, error)
	Search(ctx context.Context, query string, p domain.Pagination) (domain.Page[domain.Medicine], error)
}

// InventoryRepository persists stocked batches and performs the atomic
// quantity movements the reservation protocol depends on.
type InventoryRepository interface {
	Create(ctx context.Context, item domain.InventoryItem) error
	GetByID(ctx context.Context, id string) (domain.InventoryItem, error)
	Update(ctx context.Context, item domain.InventoryItem) error
	Delete(ctx context.Context, id string) error
	ListByPharmacy(ctx context.Context, pharmacyID string, p domain.Pagination) (domain.Page[domain.InventoryItem], error)
	// ListBatches returns the stocked batches for one medicine at one
	// pharmacy ordered soonest-expiry first.
	ListBatches(ctx context.Context, pharmacyID, medicineID string) ([]domain.InventoryItem, error)
	// Reserve moves qty from available to reserved. Fails with ErrConflict
	// when available is below qty at write time.
	Reserve(ctx context.Context, id string, qty int) error
	// Release moves qty from reserved back to available.
	Release(ctx context.Context, id string, qty int) error
	// Commit burns qty out of reserved after a sale completes.
	Commit(ctx context.Context, id string, qty int) error
}

// OrderQuery filters order listings.
type OrderQuery struct {
	UserID     string
	PharmacyID string
	Status     domain.OrderStatus
}

// OrderRepository persists orders. Status moves are compare-and-set on the
// current status so concurrent actors cannot double-apply a transition.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error)
	List(ctx context.Context, q OrderQuery, p domain.Pagination) (domain.Page[domain.Order], error)
	// Transition moves the order from to the new status only when its stored
	// status equals from, applying updates atomically with the move.
	Transition(ctx context.Context, id string, from, to domain.OrderStatus, update OrderUpdate) error
	SetPayment(ctx context.Context, id string, status domain.PaymentStatus, transactionID string) error
	SetDelivery(ctx context.Context, id, deliveryID string) error
	SetRating(ctx context.Context, id string, rating int, review string) error
}

// OrderUpdate carries the optional fields applied alongside a transition.
type OrderUpdate struct {
	CancellationReason string
	PaymentStatus      domain.PaymentStatus
}

// DeliveryQuery filters delivery listings.
type DeliveryQuery struct {
	DriverID  string
	Available bool
	Status    domain.DeliveryStatus
}

// DeliveryRepository persists courier jobs.
type DeliveryRepository interface {
	Create(ctx context.Context, delivery domain.Delivery) error
	GetByID(ctx context.Context, id string) (domain.Delivery, error)
	GetByOrderID(ctx context.Context, orderID string) (domain.Delivery, error)
	List(ctx context.Context, q DeliveryQuery, p domain.Pagination) (domain.Page[domain.Delivery], error)
	// Claim binds the driver to an unclaimed assigned delivery. Fails with
	// ErrConflict when another driver already claimed it.
	Claim(ctx context.Context, id, driverID string, acceptedAt time.Time) error
	// Transition moves the delivery between statuses with compare-and-set
	// semantics, stamping the matching timestamp.
	Transition(ctx context.Context, id string, from, to domain.DeliveryStatus, at time.Time) error
	UpdateLocation(ctx context.Context, id string, location domain.GeoPoint) error
}
