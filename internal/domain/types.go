package domain

import (
	"time"
)

// Pagination defines standard page/size paging inputs for list operations.
type Pagination struct {
	Page int
	Size int
}

// Normalise clamps the paging inputs into the supported window.
func (p Pagination) Normalise() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

// Offset returns the number of documents to skip for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Size
}

// Page bundles a page of items with the pagination summary returned to clients.
type Page[T any] struct {
	Items []T
	Info  PageInfo
}

// PageInfo summarises the position of a page within the full result set.
type PageInfo struct {
	Page  int
	Size  int
	Total int64
	Pages int64
}

// NewPageInfo derives the page summary from the paging inputs and total count.
func NewPageInfo(p Pagination, total int64) PageInfo {
	pages := int64(0)
	if p.Size > 0 {
		pages = (total + int64(p.Size) - 1) / int64(p.Size)
	}
	return PageInfo{Page: p.Page, Size: p.Size, Total: total, Pages: pages}
}

// Role enumerates the principal roles recognised by the platform.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RolePharmacist Role = "pharmacist"
	RoleDriver     Role = "driver"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Address is a shipping or contact address snapshot.
type Address struct {
	Label    string
	Line1    string
	Line2    string
	City     string
	State    string
	Pincode  string
	Location *GeoPoint
}

// User is a registered principal: customer, admin, pharmacist or driver.
type User struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	PasswordHash  string
	Roles         []Role
	Verified      bool
	Addresses     []Address
	Cart          []CartEntry
	WalletBalance float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasRole reports whether the user carries the given role.
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CartEntry records one line of a user's cart. Prices captured at add time are
// advisory only; checkout re-prices against live inventory.
type CartEntry struct {
	MedicineID string
	PharmacyID string
	Qty        int
	PriceAtAdd float64
	AddedAt    time.Time
}

// Pharmacy is a stocked dispensing location owned by a pharmacist user.
type Pharmacy struct {
	ID               string
	PharmacistUserID string
	Name             string
	Address          string
	Location         GeoPoint
	Active           bool
	OpeningHours     string
	ContactPhone     string
	Rating           float64
	RatingCount      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DosageForm enumerates the supported medicine presentation forms.
type DosageForm string

const (
	DosageFormTablet    DosageForm = "tablet"
	DosageFormCapsule   DosageForm = "capsule"
	DosageFormSyrup     DosageForm = "syrup"
	DosageFormInjection DosageForm = "injection"
	DosageFormCream     DosageForm = "cream"
	DosageFormDrops     DosageForm = "drops"
	DosageFormOther     DosageForm = "other"
)

// Medicine is a global, read-mostly catalog row.
type Medicine struct {
	ID                   string
	Name                 string
	Brand                string
	GenericName          string
	Salt                 string
	DosageForm           DosageForm
	Strength             string
	PrescriptionRequired bool
	Tags                 []string
	Synonyms             []string
	Manufacturer         string
	CreatedAt            time.Time
}

// InventoryItem is one batch of a medicine stocked at a pharmacy. The
// (pharmacy, medicine, batch) triple is unique.
type InventoryItem struct {
	ID           string
	PharmacyID   string
	MedicineID   string
	BatchNo      string
	ExpiryDate   time.Time
	AvailableQty int
	ReservedQty  int
	MRP          float64
	SellingPrice float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusCreated            OrderStatus = "created"
	OrderStatusAcceptedByPharmacy OrderStatus = "accepted_by_pharmacy"
	OrderStatusPrepared           OrderStatus = "prepared"
	OrderStatusDriverAssigned     OrderStatus = "driver_assigned"
	OrderStatusInTransit          OrderStatus = "in_transit"
	OrderStatusDelivered          OrderStatus = "delivered"
	OrderStatusCancelled          OrderStatus = "cancelled"
	OrderStatusFailed             OrderStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// PaymentStatus tracks the payment attribute parallel to the order lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderItem is one order line with the batch and unit price captured at
// reservation time.
type OrderItem struct {
	MedicineID string
	BatchNo    string
	Qty        int
	Price      float64
	Tax        float64
}

// Order is the authoritative record of a checkout and its lifecycle.
type Order struct {
	ID                 string
	UserID             string
	PharmacyID         string
	Items              []OrderItem
	TotalAmount        float64
	Status             OrderStatus
	PaymentStatus      PaymentStatus
	TransactionID      string
	ShippingAddress    Address
	IdempotencyKey     string
	DeliveryOTP        string
	DeliveryID         string
	Rating             int
	Review             string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DeliveryStatus enumerates the delivery lifecycle states.
type DeliveryStatus string

const (
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusPickedUp  DeliveryStatus = "picked_up"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Delivery is the courier-facing record materialised for each paid order.
// The order owns the relationship; the delivery keeps order_id as a lookup key.
type Delivery struct {
	ID               string
	OrderID          string
	PharmacyID       string
	DriverID         string
	Status           DeliveryStatus
	AssignedAt       time.Time
	AcceptedAt       *time.Time
	PickupAt         *time.Time
	DeliveredAt      *time.Time
	PickupLocation   *GeoPoint
	DeliveryLocation *GeoPoint
	CurrentLocation  *GeoPoint
	Notes            string
}

// OrderSummary is the condensed order view attached to driver delivery detail.
type OrderSummary struct {
	ID              string
	TotalAmount     float64
	Status          OrderStatus
	ShippingAddress Address
	ItemsCount      int
}
