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

type userDoc struct {
	ID            string         `bson:"_id"`
	Name          string         `bson:"name"`
	Email         string         `bson:"email,omitempty"`
	Phone         string         `bson:"phone"`
	PasswordHash  string         `bson:"password_hash"`
	Roles         []string       `bson:"roles"`
	Verified      bool           `bson:"verified"`
	Addresses     []addressDoc   `bson:"addresses,omitempty"`
	Cart          []cartEntryDoc `bson:"cart,omitempty"`
	WalletBalance float64        `bson:"wallet_balance"`
	CreatedAt     time.Time      `bson:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at"`
}

type addressDoc struct {
	Label    string       `bson:"label,omitempty"`
	Line1    string       `bson:"line1"`
	Line2    string       `bson:"line2,omitempty"`
	City     string       `bson:"city"`
	State    string       `bson:"state"`
	Pincode  string       `bson:"pincode"`
	Location *geoPointDoc `bson:"location,omitempty"`
}

type cartEntryDoc struct {
	MedicineID string    `bson:"medicine_id"`
	PharmacyID string    `bson:"pharmacy_id"`
	Qty        int       `bson:"qty"`
	PriceAtAdd float64   `bson:"price_at_add"`
	AddedAt    time.Time `bson:"added_at"`
}

type geoPointDoc struct {
	Lat float64 `bson:"lat"`
	Lon float64 `bson:"lon"`
}

// UserRepository is the Mongo-backed user store.
type UserRepository struct {
	coll *mongo.Collection
}

// NewUserRepository binds the repository to its collection.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(collUsers)}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	_, err := r.coll.InsertOne(ctx, toUserDoc(user))
	return mapError(err)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "phone", Value: phone}})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	result, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: user.ID}}, toUserDoc(user))
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "verified", Value: true},
			{Key: "updated_at", Value: time.Now().UTC()},
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

func (r *UserRepository) ReplaceCart(ctx context.Context, id string, cart []domain.CartEntry) error {
	docs := make([]cartEntryDoc, 0, len(cart))
	for _, entry := range cart {
		docs = append(docs, cartEntryDoc(entry))
	}
	result, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "cart", Value: docs},
			{Key: "updated_at", Value: time.Now().UTC()},
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

func (r *UserRepository) List(ctx context.Context, role domain.Role, p domain.Pagination) (domain.Page[domain.User], error) {
	filter := bson.D{}
	if role != "" {
		filter = bson.D{{Key: "roles", Value: string(role)}}
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.User]{}, mapError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(p.Offset())).
		SetLimit(int64(p.Size))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.Page[domain.User]{}, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.User]{}, mapError(err)
	}

	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, fromUserDoc(doc))
	}
	return domain.Page[domain.User]{Items: users, Info: domain.NewPageInfo(p, total)}, nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.D) (domain.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.User{}, mapError(err)
	}
	return fromUserDoc(doc), nil
}

func toUserDoc(user domain.User) userDoc {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	addresses := make([]addressDoc, 0, len(user.Addresses))
	for _, addr := range user.Addresses {
		addresses = append(addresses, toAddressDoc(addr))
	}
	cart := make([]cartEntryDoc, 0, len(user.Cart))
	for _, entry := range user.Cart {
		cart = append(cart, cartEntryDoc(entry))
	}
	return userDoc{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		Phone:         user.Phone,
		PasswordHash:  user.PasswordHash,
		Roles:         roles,
		Verified:      user.Verified,
		Addresses:     addresses,
		Cart:          cart,
		WalletBalance: user.WalletBalance,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func fromUserDoc(doc userDoc) domain.User {
	roles := make([]domain.Role, 0, len(doc.Roles))
	for _, role := range doc.Roles {
		roles = append(roles, domain.Role(role))
	}
	addresses := make([]domain.Address, 0, len(doc.Addresses))
	for _, addr := range doc.Addresses {
		addresses = append(addresses, fromAddressDoc(addr))
	}
	cart := make([]domain.CartEntry, 0, len(doc.Cart))
	for _, entry := range doc.Cart {
		cart = append(cart, domain.CartEntry(entry))
	}
	return domain.User{
		ID:            doc.ID,
		Name:          doc.Name,
		Email:         doc.Email,
		Phone:         doc.Phone,
		PasswordHash:  doc.PasswordHash,
		Roles:         roles,
		Verified:      doc.Verified,
		Addresses:     addresses,
		Cart:          cart,
		WalletBalance: doc.WalletBalance,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func toAddressDoc(addr domain.Address) addressDoc {
	doc := addressDoc{
		Label:   addr.Label,
		Line1:   addr.Line1,
		Line2:   addr.Line2,
		City:    addr.City,
		State:   addr.State,
		Pincode: addr.Pincode,
	}
	if addr.Location != nil {
		doc.Location = &geoPointDoc{Lat: addr.Location.Lat, Lon: addr.Location.Lon}
	}
	return doc
}

func fromAddressDoc(doc addressDoc) domain.Address {
	addr := domain.Address{
		Label:   doc.Label,
		Line1:   doc.Line1,
		Line2:   doc.Line2,
		City:    doc.City,
		State:   doc.State,
		Pincode: doc.Pincode,
	}
	if doc.Location != nil {
		addr.Location = &domain.GeoPoint{Lat: doc.Location.Lat, Lon: doc.Location.Lon}
	}
	return addr
}
