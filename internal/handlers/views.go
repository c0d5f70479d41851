package handlers

import (
	"time"

	"github.com/medassist/api/internal/domain"
)

// View types shape the JSON bodies inside the response envelope. Sensitive
// fields (password hashes, delivery codes on non-owner views) never appear.

type pageView struct {
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func toPageView(info domain.PageInfo) pageView {
	return pageView{Page: info.Page, Size: info.Size, Total: info.Total, Pages: info.Pages}
}

type geoPointView struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type addressView struct {
	Label    string        `json:"label,omitempty"`
	Line1    string        `json:"line1"`
	Line2    string        `json:"line2,omitempty"`
	City     string        `json:"city"`
	State    string        `json:"state"`
	Pincode  string        `json:"pincode"`
	Location *geoPointView `json:"location,omitempty"`
}

func toAddressView(addr domain.Address) addressView {
	view := addressView{
		Label:   addr.Label,
		Line1:   addr.Line1,
		Line2:   addr.Line2,
		City:    addr.City,
		State:   addr.State,
		Pincode: addr.Pincode,
	}
	if addr.Location != nil {
		view.Location = &geoPointView{Lat: addr.Location.Lat, Lon: addr.Location.Lon}
	}
	return view
}

func fromAddressView(view addressView) domain.Address {
	addr := domain.Address{
		Label:   view.Label,
		Line1:   view.Line1,
		Line2:   view.Line2,
		City:    view.City,
		State:   view.State,
		Pincode: view.Pincode,
	}
	if view.Location != nil {
		addr.Location = &domain.GeoPoint{Lat: view.Location.Lat, Lon: view.Location.Lon}
	}
	return addr
}

type userView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email,omitempty"`
	Phone     string        `json:"phone"`
	Roles     []string      `json:"roles"`
	Verified  bool          `json:"verified"`
	Addresses []addressView `json:"addresses,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func toUserView(user domain.User) userView {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	addresses := make([]addressView, 0, len(user.Addresses))
	for _, addr := range user.Addresses {
		addresses = append(addresses, toAddressView(addr))
	}
	return userView{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		Roles:     roles,
		Verified:  user.Verified,
		Addresses: addresses,
		CreatedAt: user.CreatedAt,
	}
}

type cartEntryView struct {
	MedicineID string    `json:"medicine_id"`
	PharmacyID string    `json:"pharmacy_id"`
	Qty        int       `json:"qty"`
	PriceAtAdd float64   `json:"price_at_add"`
	AddedAt    time.Time `json:"added_at"`
}

func toCartView(cart []domain.CartEntry) []cartEntryView {
	views := make([]cartEntryView, 0, len(cart))
	for _, entry := range cart {
		views = append(views, cartEntryView(entry))
	}
	return views
}

type medicineView struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Brand                string   `json:"brand,omitempty"`
	GenericName          string   `json:"generic_name,omitempty"`
	Salt                 string   `json:"salt,omitempty"`
	DosageForm           string   `json:"dosage_form"`
	Strength             string   `json:"strength,omitempty"`
	PrescriptionRequired bool     `json:"prescription_required"`
	Tags                 []string `json:"tags,omitempty"`
	Manufacturer         string   `json:"manufacturer,omitempty"`
}

func toMedicineView(medicine domain.Medicine) medicineView {
	return medicineView{
		ID:                   medicine.ID,
		Name:                 medicine.Name,
		Brand:                medicine.Brand,
		GenericName:          medicine.GenericName,
		Salt:                 medicine.Salt,
		DosageForm:           string(medicine.DosageForm),
		Strength:             medicine.Strength,
		PrescriptionRequired: medicine.PrescriptionRequired,
		Tags:                 medicine.Tags,
		Manufacturer:         medicine.Manufacturer,
	}
}

type pharmacyView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Location     geoPointView `json:"location"`
	Active       bool         `json:"active"`
	OpeningHours string       `json:"opening_hours,omitempty"`
	ContactPhone string       `json:"contact_phone,omitempty"`
	Rating       float64      `json:"rating"`
}

func toPharmacyView(pharmacy domain.Pharmacy) pharmacyView {
	return pharmacyView{
		ID:           pharmacy.ID,
		Name:         pharmacy.Name,
		Address:      pharmacy.Address,
		Location:     geoPointView{Lat: pharmacy.Location.Lat, Lon: pharmacy.Location.Lon},
		Active:       pharmacy.Active,
		OpeningHours: pharmacy.OpeningHours,
		ContactPhone: pharmacy.ContactPhone,
		Rating:       pharmacy.Rating,
	}
}

type inventoryView struct {
	ID           string    `json:"id"`
	PharmacyID   string    `json:"pharmacy_id"`
	MedicineID   string    `json:"medicine_id"`
	BatchNo      string    `json:"batch_no"`
	ExpiryDate   time.Time `json:"expiry_date"`
	AvailableQty int       `json:"quantity_available"`
	ReservedQty  int       `json:"reserved_qty"`
	MRP          float64   `json:"mrp"`
	SellingPrice float64   `json:"selling_price"`
}

func toInventoryView(item domain.InventoryItem) inventoryView {
	return inventoryView{
		ID:           item.ID,
		PharmacyID:   item.PharmacyID,
		MedicineID:   item.MedicineID,
		BatchNo:      item.BatchNo,
		ExpiryDate:   item.ExpiryDate,
		AvailableQty: item.AvailableQty,
		ReservedQty:  item.ReservedQty,
		MRP:          item.MRP,
		SellingPrice: item.SellingPrice,
	}
}

type orderItemView struct {
	MedicineID string  `json:"medicine_id"`
	BatchNo    string  `json:"batch_no"`
	Qty        int     `json:"qty"`
	Price      float64 `json:"price"`
	Tax        float64 `json:"tax"`
}

type orderView struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	PharmacyID         string          `json:"pharmacy_id"`
	Items              []orderItemView `json:"items"`
	TotalAmount        float64         `json:"total_amount"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"payment_status"`
	ShippingAddress    addressView     `json:"shipping_address"`
	DeliveryOTP        string          `json:"otp_for_delivery,omitempty"`
	DeliveryID         string          `json:"delivery_id,omitempty"`
	Rating             int             `json:"rating,omitempty"`
	Review             string          `json:"review,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// toOrderView renders an order. The delivery handover code is included only
// for the owning customer.
func toOrderView(order domain.Order, includeOTP bool) orderView {
	items := make([]orderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemView(item))
	}
	view := orderView{
		ID:                 order.ID,
		UserID:             order.UserID,
		PharmacyID:         order.PharmacyID,
		Items:              items,
		TotalAmount:        order.TotalAmount,
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		ShippingAddress:    toAddressView(order.ShippingAddress),
		DeliveryID:         order.DeliveryID,
		Rating:             order.Rating,
		Review:             order.Review,
		CancellationReason: order.CancellationReason,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
	if includeOTP {
		view.DeliveryOTP = order.DeliveryOTP
	}
	return view
}

func toOrderViews(orders []domain.Order, includeOTP bool) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order, includeOTP))
	}
	return views
}

type deliveryView struct {
	ID               string        `json:"id"`
	OrderID          string        `json:"order_id"`
	PharmacyID       string        `json:"pharmacy_id"`
	DriverID         string        `json:"driver_id,omitempty"`
	Status           string        `json:"status"`
	AssignedAt       time.Time     `json:"assigned_at"`
	AcceptedAt       *time.Time    `json:"accepted_at,omitempty"`
	PickupAt         *time.Time    `json:"pickup_at,omitempty"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	PickupLocation   *geoPointView `json:"pickup_location,omitempty"`
	DeliveryLocation *geoPointView `json:"delivery_location,omitempty"`
	CurrentLocation  *geoPointView `json:"current_location,omitempty"`
}

func toDeliveryView(delivery domain.Delivery) deliveryView {
	return deliveryView{
		ID:               delivery.ID,
		OrderID:          delivery.OrderID,
		PharmacyID:       delivery.PharmacyID,
		DriverID:         delivery.DriverID,
		Status:           string(delivery.Status),
		AssignedAt:       delivery.AssignedAt,
		AcceptedAt:       delivery.AcceptedAt,
		PickupAt:         delivery.PickupAt,
		DeliveredAt:      delivery.DeliveredAt,
		PickupLocation:   toGeoView(delivery.PickupLocation),
		DeliveryLocation: toGeoView(delivery.DeliveryLocation),
		CurrentLocation:  toGeoView(delivery.CurrentLocation),
	}
}

func toDeliveryViews(deliveries []domain.Delivery) []deliveryView {
	views := make([]deliveryView, 0, len(deliveries))
	for _, delivery := range deliveries {
		views = append(views, toDeliveryView(delivery))
	}
	return views
}

func toGeoView(point *domain.GeoPoint) *geoPointView {
	if point == nil {
		return nil
	}
	return &geoPointView{Lat: point.Lat, Lon: point.Lon}
}

type orderSummaryView struct {
	ID              string      `json:"id"`
	TotalAmount     float64     `json:"total_amount"`
	Status          string      `json:"status"`
	ShippingAddress addressView `json:"shipping_address"`
	ItemsCount      int         `json:"items_count"`
}

func toOrderSummaryView(summary domain.OrderSummary) orderSummaryView {
	return orderSummaryView{
		ID:              summary.ID,
		TotalAmount:     summary.TotalAmount,
		Status:          string(summary.Status),
		ShippingAddress: toAddressView(summary.ShippingAddress),
		ItemsCount:      summary.ItemsCount,
	}
}
