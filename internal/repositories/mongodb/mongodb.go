// Package mongodb implements the repository interfaces over a Mongo
// document store. Every write the concurrency model relies on is expressed
// as a single conditional document update.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medassist/api/internal/repositories"
)

// Collection names.
const (
	collUsers      = "users"
	collPharmacies = "pharmacies"
	collMedicines  = "medicines"
	collInventory  = "inventory"
	collOrders     = "orders"
	collDeliveries = "deliveries"
	collCounters   = "counters"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repositories.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return repositories.ErrDuplicate
	}
	return fmt.Errorf("mongodb: %w", err)
}

// EnsureIndexes creates the unique and query indexes the repositories
// depend on. Safe to call on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "roles", Value: 1}}},
		},
		collPharmacies: {
			{Keys: bson.D{{Key: "pharmacist_user_id", Value: 1}}},
			{Keys: bson.D{{Key: "active", Value: 1}}},
		},
		collMedicines: {
			{Keys: bson.D{{Key: "name", Value: 1}}},
			{Keys: bson.D{{Key: "generic_name", Value: 1}}},
		},
		collInventory: {
			{
				Keys: bson.D{
					{Key: "pharmacy_id", Value: 1},
					{Key: "medicine_id", Value: 1},
					{Key: "batch_no", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "pharmacy_id", Value: 1}, {Key: "medicine_id", Value: 1}, {Key: "expiry_date", Value: 1}}},
		},
		collOrders: {
			{
				Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "idempotency_key", Value: bson.D{{Key: "$gt", Value: ""}}}}),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "pharmacy_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		collDeliveries: {
			{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}

	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongodb: ensure indexes for %s: %w", name, err)
		}
	}
	return nil
}
