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

type inventoryDoc struct {
	ID           string    `bson:"_id"`
	PharmacyID   string    `bson:"pharmacy_id"`
	MedicineID   string    `bson:"medicine_id"`
	BatchNo      string    `bson:"batch_no"`
	ExpiryDate   time.Time `bson:"expiry_date"`
	AvailableQty int       `bson:"quantity_available"`
	ReservedQty  int       `bson:"reserved_qty"`
	MRP          float64   `bson:"mrp"`
	SellingPrice float64   `bson:"selling_price"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// InventoryRepository is the Mongo-backed stock store. Reserve, Release and
// Commit are single conditional updates so quantities never go negative even
// under concurrent writers.
type InventoryRepository struct {
	coll *mongo.Collection
}

// NewInventoryRepository binds the repository to its collection.
func NewInventoryRepository(db *mongo.Database) *InventoryRepository {
	return &InventoryRepository{coll: db.Collection(collInventory)}
}

func (r *InventoryRepository) Create(ctx context.Context, item domain.InventoryItem) error {
	_, err := r.coll.InsertOne(ctx, toInventoryDoc(item))
	return mapError(err)
}

func (r *InventoryRepository) GetByID(ctx context.Context, id string) (domain.InventoryItem, error) {
	var doc inventoryDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		return domain.InventoryItem{}, mapError(err)
	}
	return fromInventoryDoc(doc), nil
}

func (r *InventoryRepository) Update(ctx context.Context, item domain.InventoryItem) error {
	result, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: item.ID}}, toInventoryDoc(item))
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *InventoryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return mapError(err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *InventoryRepository) ListByPharmacy(ctx context.Context, pharmacyID string, p domain.Pagination) (domain.Page[domain.InventoryItem], error) {
	filter := bson.D{{Key: "pharmacy_id", Value: pharmacyID}}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.InventoryItem]{}, mapError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "medicine_id", Value: 1}, {Key: "expiry_date", Value: 1}}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Size))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.Page[domain.InventoryItem]{}, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []inventoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.InventoryItem]{}, mapError(err)
	}

	items := make([]domain.InventoryItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, fromInventoryDoc(doc))
	}
	return domain.Page[domain.InventoryItem]{Items: items, Info: domain.NewPageInfo(p, total)}, nil
}

// ListBatches returns batches soonest-expiry first so reservation consumes
// stock in FIFO order by expiry.
func (r *InventoryRepository) ListBatches(ctx context.Context, pharmacyID, medicineID string) ([]domain.InventoryItem, error) {
	filter := bson.D{
		{Key: "pharmacy_id", Value: pharmacyID},
		{Key: "medicine_id", Value: medicineID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "expiry_date", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []inventoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	items := make([]domain.InventoryItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, fromInventoryDoc(doc))
	}
	return items, nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, id string, qty int) error {
	return r.move(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "quantity_available", Value: bson.D{{Key: "$gte", Value: qty}}},
		},
		bson.D{
			{Key: "quantity_available", Value: -qty},
			{Key: "reserved_qty", Value: qty},
		},
	)
}

func (r *InventoryRepository) Release(ctx context.Context, id string, qty int) error {
	return r.move(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "reserved_qty", Value: bson.D{{Key: "$gte", Value: qty}}},
		},
		bson.D{
			{Key: "quantity_available", Value: qty},
			{Key: "reserved_qty", Value: -qty},
		},
	)
}

func (r *InventoryRepository) Commit(ctx context.Context, id string, qty int) error {
	return r.move(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "reserved_qty", Value: bson.D{{Key: "$gte", Value: qty}}},
		},
		bson.D{
			{Key: "reserved_qty", Value: -qty},
		},
	)
}

func (r *InventoryRepository) move(ctx context.Context, filter, increments bson.D) error {
	update := bson.D{
		{Key: "$inc", Value: increments},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		// Either the document is gone or the guard failed; disambiguate.
		count, countErr := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: filter[0].Value}})
		if countErr == nil && count == 0 {
			return repositories.ErrNotFound
		}
		return repositories.ErrConflict
	}
	return nil
}

func toInventoryDoc(item domain.InventoryItem) inventoryDoc {
	return inventoryDoc{
		ID:           item.ID,
		PharmacyID:   item.PharmacyID,
		MedicineID:   item.MedicineID,
		BatchNo:      item.BatchNo,
		ExpiryDate:   item.ExpiryDate,
		AvailableQty: item.AvailableQty,
		ReservedQty:  item.ReservedQty,
		MRP:          item.MRP,
		SellingPrice: item.SellingPrice,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}

func fromInventoryDoc(doc inventoryDoc) domain.InventoryItem {
	return domain.InventoryItem{
		ID:           doc.ID,
		PharmacyID:   doc.PharmacyID,
		MedicineID:   doc.MedicineID,
		BatchNo:      doc.BatchNo,
		ExpiryDate:   doc.ExpiryDate,
		AvailableQty: doc.AvailableQty,
		ReservedQty:  doc.ReservedQty,
		MRP:          doc.MRP,
		SellingPrice: doc.SellingPrice,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
