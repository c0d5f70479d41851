package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// CounterRepository hands out monotonic sequence numbers backed by a single
// atomically incremented document per sequence name.
type CounterRepository struct {
	coll *mongo.Collection
}

// NewCounterRepository binds the repository to its collection.
func NewCounterRepository(db *mongo.Database) *CounterRepository {
	return &CounterRepository{coll: db.Collection(collCounters)}
}

// Next increments and returns the named sequence, creating it at 1 on first
// use. The upserted $inc makes concurrent callers see distinct values.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc counterDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: 1}}}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, mapError(err)
	}
	return doc.Seq, nil
}
