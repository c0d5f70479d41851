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

type deliveryDoc struct {
	ID               string       `bson:"_id"`
	OrderID          string       `bson:"order_id"`
	PharmacyID       string       `bson:"pharmacy_id"`
	DriverID         string       `bson:"driver_id,omitempty"`
	Status           string       `bson:"status"`
	AssignedAt       time.Time    `bson:"assigned_at"`
	AcceptedAt       *time.Time   `bson:"accepted_at,omitempty"`
	PickupAt         *time.Time   `bson:"pickup_at,omitempty"`
	DeliveredAt      *time.Time   `bson:"delivered_at,omitempty"`
	PickupLocation   *geoPointDoc `bson:"pickup_location,omitempty"`
	DeliveryLocation *geoPointDoc `bson:"delivery_location,omitempty"`
	CurrentLocation  *geoPointDoc `bson:"current_location,omitempty"`
	Notes            string       `bson:"notes,omitempty"`
}

// DeliveryRepository is the Mongo-backed courier job store. Claim binds a
// driver with a compare-and-set on the unclaimed state so a job is never
// double-assigned.
type DeliveryRepository struct {
	coll *mongo.Collection
}

// NewDeliveryRepository binds the repository to its collection.
func NewDeliveryRepository(db *mongo.Database) *DeliveryRepository {
	return &DeliveryRepository{coll: db.Collection(collDeliveries)}
}

func (r *DeliveryRepository) Create(ctx context.Context, delivery domain.Delivery) error {
	_, err := r.coll.InsertOne(ctx, toDeliveryDoc(delivery))
	return mapError(err)
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (domain.Delivery, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *DeliveryRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Delivery, error) {
	return r.findOne(ctx, bson.D{{Key: "order_id", Value: orderID}})
}

func (r *DeliveryRepository) List(ctx context.Context, q repositories.DeliveryQuery, p domain.Pagination) (domain.Page[domain.Delivery], error) {
	filter := bson.D{}
	if q.Available {
		filter = append(filter,
			bson.E{Key: "status", Value: string(domain.DeliveryStatusAssigned)},
			bson.E{Key: "driver_id", Value: bson.D{{Key: "$in", Value: bson.A{nil, ""}}}},
		)
	} else {
		if q.DriverID != "" {
			filter = append(filter, bson.E{Key: "driver_id", Value: q.DriverID})
		}
		if q.Status != "" {
			filter = append(filter, bson.E{Key: "status", Value: string(q.Status)})
		}
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.Delivery]{}, mapError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "assigned_at", Value: -1}}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Size))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.Page[domain.Delivery]{}, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []deliveryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.Delivery]{}, mapError(err)
	}

	deliveries := make([]domain.Delivery, 0, len(docs))
	for _, doc := range docs {
		deliveries = append(deliveries, fromDeliveryDoc(doc))
	}
	return domain.Page[domain.Delivery]{Items: deliveries, Info: domain.NewPageInfo(p, total)}, nil
}

func (r *DeliveryRepository) Claim(ctx context.Context, id, driverID string, acceptedAt time.Time) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "status", Value: string(domain.DeliveryStatusAssigned)},
			{Key: "driver_id", Value: bson.D{{Key: "$in", Value: bson.A{nil, ""}}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "driver_id", Value: driverID},
			{Key: "accepted_at", Value: acceptedAt},
		}}},
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

func (r *DeliveryRepository) Transition(ctx context.Context, id string, from, to domain.DeliveryStatus, at time.Time) error {
	set := bson.D{{Key: "status", Value: string(to)}}
	switch to {
	case domain.DeliveryStatusPickedUp:
		set = append(set, bson.E{Key: "pickup_at", Value: at})
	case domain.DeliveryStatusDelivered:
		set = append(set, bson.E{Key: "delivered_at", Value: at})
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

func (r *DeliveryRepository) UpdateLocation(ctx context.Context, id string, location domain.GeoPoint) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "current_location", Value: geoPointDoc{Lat: location.Lat, Lon: location.Lon}},
		}}},
	)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *DeliveryRepository) findOne(ctx context.Context, filter bson.D) (domain.Delivery, error) {
	var doc deliveryDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Delivery{}, mapError(err)
	}
	return fromDeliveryDoc(doc), nil
}

func toDeliveryDoc(delivery domain.Delivery) deliveryDoc {
	return deliveryDoc{
		ID:               delivery.ID,
		OrderID:          delivery.OrderID,
		PharmacyID:       delivery.PharmacyID,
		DriverID:         delivery.DriverID,
		Status:           string(delivery.Status),
		AssignedAt:       delivery.AssignedAt,
		AcceptedAt:       delivery.AcceptedAt,
		PickupAt:         delivery.PickupAt,
		DeliveredAt:      delivery.DeliveredAt,
		PickupLocation:   toGeoPointDoc(delivery.PickupLocation),
		DeliveryLocation: toGeoPointDoc(delivery.DeliveryLocation),
		CurrentLocation:  toGeoPointDoc(delivery.CurrentLocation),
		Notes:            delivery.Notes,
	}
}

func fromDeliveryDoc(doc deliveryDoc) domain.Delivery {
	return domain.Delivery{
		ID:               doc.ID,
		OrderID:          doc.OrderID,
		PharmacyID:       doc.PharmacyID,
		DriverID:         doc.DriverID,
		Status:           domain.DeliveryStatus(doc.Status),
		AssignedAt:       doc.AssignedAt,
		AcceptedAt:       doc.AcceptedAt,
		PickupAt:         doc.PickupAt,
		DeliveredAt:      doc.DeliveredAt,
		PickupLocation:   fromGeoPointDoc(doc.PickupLocation),
		DeliveryLocation: fromGeoPointDoc(doc.DeliveryLocation),
		CurrentLocation:  fromGeoPointDoc(doc.CurrentLocation),
		Notes:            doc.Notes,
	}
}

func toGeoPointDoc(point *domain.GeoPoint) *geoPointDoc {
	if point == nil {
		return nil
	}
	return &geoPointDoc{Lat: point.Lat, Lon: point.Lon}
}

func fromGeoPointDoc(doc *geoPointDoc) *domain.GeoPoint {
	if doc == nil {
		return nil
	}
	return &domain.GeoPoint{Lat: doc.Lat, Lon: doc.Lon}
}
