package mongodb

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medassist/api/internal/domain"
)

type medicineDoc struct {
	ID                   string    `bson:"_id"`
	Name                 string    `bson:"name"`
	Brand                string    `bson:"brand,omitempty"`
	GenericName          string    `bson:"generic_name,omitempty"`
	Salt                 string    `bson:"salt,omitempty"`
	DosageForm           string    `bson:"dosage_form"`
	Strength             string    `bson:"strength,omitempty"`
	PrescriptionRequired bool      `bson:"prescription_required"`
	Tags                 []string  `bson:"tags,omitempty"`
	Synonyms             []string  `bson:"synonyms,omitempty"`
	Manufacturer         string    `bson:"manufacturer,omitempty"`
	CreatedAt            time.Time `bson:"created_at"`
}

// MedicineRepository is the Mongo-backed catalog store.
type MedicineRepository struct {
	coll *mongo.Collection
}

// NewMedicineRepository binds the repository to its collection.
func NewMedicineRepository(db *mongo.Database) *MedicineRepository {
	return &MedicineRepository{coll: db.Collection(collMedicines)}
}

func (r *MedicineRepository) Create(ctx context.Context, medicine domain.Medicine) error {
	_, err := r.coll.InsertOne(ctx, toMedicineDoc(medicine))
	return mapError(err)
}

func (r *MedicineRepository) GetByID(ctx context.Context, id string) (domain.Medicine, error) {
	var doc medicineDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		return domain.Medicine{}, mapError(err)
	}
	return fromMedicineDoc(doc), nil
}

func (r *MedicineRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Medicine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []medicineDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	medicines := make([]domain.Medicine, 0, len(docs))
	for _, doc := range docs {
		medicines = append(medicines, fromMedicineDoc(doc))
	}
	return medicines, nil
}

// Search matches name, generic name and synonyms case-insensitively.
func (r *MedicineRepository) Search(ctx context.Context, query string, p domain.Pagination) (domain.Page[domain.Medicine], error) {
	filter := bson.D{}
	if query != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
		filter = bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "name", Value: pattern}},
			bson.D{{Key: "generic_name", Value: pattern}},
			bson.D{{Key: "synonyms", Value: pattern}},
		}}}
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.Medicine]{}, mapError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Size))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.Page[domain.Medicine]{}, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []medicineDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.Medicine]{}, mapError(err)
	}

	medicines := make([]domain.Medicine, 0, len(docs))
	for _, doc := range docs {
		medicines = append(medicines, fromMedicineDoc(doc))
	}
	return domain.Page[domain.Medicine]{Items: medicines, Info: domain.NewPageInfo(p, total)}, nil
}

func toMedicineDoc(medicine domain.Medicine) medicineDoc {
	return medicineDoc{
		ID:                   medicine.ID,
		Name:                 medicine.Name,
		Brand:                medicine.Brand,
		GenericName:          medicine.GenericName,
		Salt:                 medicine.Salt,
		DosageForm:           string(medicine.DosageForm),
		Strength:             medicine.Strength,
		PrescriptionRequired: medicine.PrescriptionRequired,
		Tags:                 medicine.Tags,
		Synonyms:             medicine.Synonyms,
		Manufacturer:         medicine.Manufacturer,
		CreatedAt:            medicine.CreatedAt,
	}
}

func fromMedicineDoc(doc medicineDoc) domain.Medicine {
	return domain.Medicine{
		ID:                   doc.ID,
		Name:                 doc.Name,
		Brand:                doc.Brand,
		GenericName:          doc.GenericName,
		Salt:                 doc.Salt,
		DosageForm:           domain.DosageForm(doc.DosageForm),
		Strength:             doc.Strength,
		PrescriptionRequired: doc.PrescriptionRequired,
		Tags:                 doc.Tags,
		Synonyms:             doc.Synonyms,
		Manufacturer:         doc.Manufacturer,
		CreatedAt:            doc.CreatedAt,
	}
}
