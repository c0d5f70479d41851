package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/repositories"
)

type orderDoc struct {
	ID                 string         `bson:"_id"`
	UserID             string         `bson:"user_id"`
	PharmacyID         string         `bson:"pharmacy_id"`
	Items              []orderItemDoc `bson:"items"`
	TotalAmount        float64        `bson:"total_amount"`
	Status             string         `bson:"status"`
	PaymentStatus      string         `bson:"payment_status"`
	TransactionID      string         `bson:"transaction_id,omitempty"`
	ShippingAddress    addressDoc     `bson:"shipping_address"`
	IdempotencyKey     string         `bson:"idempotency_key,omitempty"`
	DeliveryOTP        string         `bson:"otp_for_delivery,omitempty"`
	DeliveryID         string         `bson:"delivery_id,omitempty"`
	Rating             int            `bson:"rating,omitempty"`
	Review             string         `bson:"review,omitempty"`
	CancellationReason string         `bson:"cancellation_reason,omitempty"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
}

type orderItemDoc struct {
	MedicineID string  `bson:"medicine_id"`
	BatchNo    string  `bson:"batch_no"`
	Qty        int     `bson:"qty"`
	Price      float64 `bson:"price"`
	Tax        float64 `bson:"tax"`
}

// OrderRepository is the Mongo-backed order store. Transition is a
// compare-and-set on the stored status so each lifecycle edge applies at
// most once.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository binds the repository to its collection.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(collOrders)}
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.coll.InsertOne(ctx, toOrderDoc(order))
	return mapError(err)
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	return r.findOne(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "idempotency_key", Value: key},
	})
}

func (r *OrderRepository) List(ctx context.Context, q repositories.OrderQuery, p domain.Pagination) (domain.Page[domain.Order], error) {
	filter := bson.D{}
	if q.UserID != "" {
		filter = append(filter, bson.E{Key: "user_id", Value: q.UserID})
	}
	if q.PharmacyID != "" {
		filter = append(filter, bson.E{Key: "pharmacy_id", Value: q.PharmacyID})
	}
	if q.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: string(q.Status)})
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, mapError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Size))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.Page[domain.Order]{}, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.Order]{}, mapError(err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, fromOrderDoc(doc))
	}
	return domain.Page[domain.Order]{Items: orders, Info: domain.NewPageInfo(p, total)}, nil
}

func (r *OrderRepository) Transition(ctx context.Context, id string, from, to domain.OrderStatus, update repositories.OrderUpdate) error {
	set := bson.D{
		{Key: "status", Value: string(to)},
		{Key: "updated_at", Value: time.Now().UTC()},
	}
	if update.CancellationReason != "" {
		set = append(set, bson.E{Key: "cancellation_reason", Value: update.CancellationReason})
	}
	if update.PaymentStatus != "" {
		set = append(set, bson.E{Key: "payment_status", Value: string(update.PaymentStatus)})
	}

	result, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: string(from)},
		},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		count, countErr := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
		if countErr == nil && count == 0 {
			return repositories.ErrNotFound
		}
		return repositories.ErrConflict
	}
	return nil
}

func (r *OrderRepository) SetPayment(ctx context.Context, id string, status domain.PaymentStatus, transactionID string) error {
	return r.setFields(ctx, id, bson.D{
		{Key: "payment_status", Value: string(status)},
		{Key: "transaction_id", Value: transactionID},
	})
}

func (r *OrderRepository) SetDelivery(ctx context.Context, id, deliveryID string) error {
	return r.setFields(ctx, id, bson.D{{Key: "delivery_id", Value: deliveryID}})
}

func (r *OrderRepository) SetRating(ctx context.Context, id string, rating int, review string) error {
	return r.setFields(ctx, id, bson.D{
		{Key: "rating", Value: rating},
		{Key: "review", Value: review},
	})
}

func (r *OrderRepository) setFields(ctx context.Context, id string, set bson.D) error {
	set = append(set, bson.E{Key: "updated_at", Value: time.Now().UTC()})
	result, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.D) (domain.Order, error) {
	var doc orderDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Order{}, mapError(err)
	}
	return fromOrderDoc(doc), nil
}

func toOrderDoc(order domain.Order) orderDoc {
	items := make([]orderItemDoc, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDoc(item))
	}
	return orderDoc{
		ID:                 order.ID,
		UserID:             order.UserID,
		PharmacyID:         order.PharmacyID,
		Items:              items,
		TotalAmount:        order.TotalAmount,
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		TransactionID:      order.TransactionID,
		ShippingAddress:    toAddressDoc(order.ShippingAddress),
		IdempotencyKey:     order.IdempotencyKey,
		DeliveryOTP:        order.DeliveryOTP,
		DeliveryID:         order.DeliveryID,
		Rating:             order.Rating,
		Review:             order.Review,
		CancellationReason: order.CancellationReason,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func fromOrderDoc(doc orderDoc) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem(item))
	}
	return domain.Order{
		ID:                 doc.ID,
		UserID:             doc.UserID,
		PharmacyID:         doc.PharmacyID,
		Items:              items,
		TotalAmount:        doc.TotalAmount,
		Status:             domain.OrderStatus(doc.Status),
		PaymentStatus:      domain.PaymentStatus(doc.PaymentStatus),
		TransactionID:      doc.TransactionID,
		ShippingAddress:    fromAddressDoc(doc.ShippingAddress),
		IdempotencyKey:     doc.IdempotencyKey,
		DeliveryOTP:        doc.DeliveryOTP,
		DeliveryID:         doc.DeliveryID,
		Rating:             doc.Rating,
		Review:             doc.Review,
		CancellationReason: doc.CancellationReason,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}
