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

type pharmacyDoc struct {
	ID               string      `bson:"_id"`
	PharmacistUserID string      `bson:"pharmacist_user_id"`
	Name             string      `bson:"name"`
	Address          string      `bson:"address"`
	Location         geoPointDoc `bson:"location"`
	Active           bool        `bson:"active"`
	OpeningHours     string      `bson:"opening_hours,omitempty"`
	ContactPhone     string      `bson:"contact_phone,omitempty"`
	Rating           float64     `bson:"rating"`
	RatingCount      int         `bson:"rating_count"`
	CreatedAt        time.Time   `bson:"created_at"`
	UpdatedAt        time.Time   `bson:"updated_at"`
}

// PharmacyRepository is the Mongo-backed pharmacy store.
type PharmacyRepository struct {
	coll *mongo.Collection
}

// NewPharmacyRepository binds the repository to its collection.
func NewPharmacyRepository(db *mongo.Database) *PharmacyRepository {
	return &PharmacyRepository{coll: db.Collection(collPharmacies)}
}

func (r *PharmacyRepository) Create(ctx context.Context, pharmacy domain.Pharmacy) error {
	_, err := r.coll.InsertOne(ctx, toPharmacyDoc(pharmacy))
	return mapError(err)
}

func (r *PharmacyRepository) GetByID(ctx context.Context, id string) (domain.Pharmacy, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *PharmacyRepository) GetByPharmacist(ctx context.Context, pharmacistUserID string) (domain.Pharmacy, error) {
	return r.findOne(ctx, bson.D{{Key: "pharmacist_user_id", Value: pharmacistUserID}})
}

func (r *PharmacyRepository) Update(ctx context.Context, pharmacy domain.Pharmacy) error {
	result, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: pharmacy.ID}}, toPharmacyDoc(pharmacy))
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *PharmacyRepository) ListActive(ctx context.Context, p domain.Pagination) (domain.Page[domain.Pharmacy], error) {
	filter := bson.D{{Key: "active", Value: true}}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.Pharmacy]{}, mapError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Size))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.Page[domain.Pharmacy]{}, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []pharmacyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.Pharmacy]{}, mapError(err)
	}

	pharmacies := make([]domain.Pharmacy, 0, len(docs))
	for _, doc := range docs {
		pharmacies = append(pharmacies, fromPharmacyDoc(doc))
	}
	return domain.Page[domain.Pharmacy]{Items: pharmacies, Info: domain.NewPageInfo(p, total)}, nil
}

func (r *PharmacyRepository) findOne(ctx context.Context, filter bson.D) (domain.Pharmacy, error) {
	var doc pharmacyDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Pharmacy{}, mapError(err)
	}
	return fromPharmacyDoc(doc), nil
}

func toPharmacyDoc(pharmacy domain.Pharmacy) pharmacyDoc {
	return pharmacyDoc{
		ID:               pharmacy.ID,
		PharmacistUserID: pharmacy.PharmacistUserID,
		Name:             pharmacy.Name,
		Address:          pharmacy.Address,
		Location:         geoPointDoc{Lat: pharmacy.Location.Lat, Lon: pharmacy.Location.Lon},
		Active:           pharmacy.Active,
		OpeningHours:     pharmacy.OpeningHours,
		ContactPhone:     pharmacy.ContactPhone,
		Rating:           pharmacy.Rating,
		RatingCount:      pharmacy.RatingCount,
		CreatedAt:        pharmacy.CreatedAt,
		UpdatedAt:        pharmacy.UpdatedAt,
	}
}

func fromPharmacyDoc(doc pharmacyDoc) domain.Pharmacy {
	return domain.Pharmacy{
		ID:               doc.ID,
		PharmacistUserID: doc.PharmacistUserID,
		Name:             doc.Name,
		Address:          doc.Address,
		Location:         domain.GeoPoint{Lat: doc.Location.Lat, Lon: doc.Location.Lon},
		Active:           doc.Active,
		OpeningHours:     doc.OpeningHours,
		ContactPhone:     doc.ContactPhone,
		Rating:           doc.Rating,
		RatingCount:      doc.RatingCount,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}
