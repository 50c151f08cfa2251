package mongo

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection      = "products"
	ordersCollection        = "orders"
	countersCollection      = "counters"
	cartsCollection         = "carts"
	notificationsCollection = "notifications"
)

// Connect opens a client and checks the server is reachable.
// Reconciliation uses multi-document transactions, which need a replica set.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping mongo")
	}
	return client.Database(database), nil
}

// EnsureIndexes creates the indexes the repositories rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		productsCollection: {
			{Keys: bson.D{{Key: "categoryId", Value: 1}}},
			{Keys: bson.D{{Key: "sold", Value: -1}}},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "stockReconciled", Value: 1}}},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "failed to create indexes on %s", collection)
		}
	}
	return nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	value, err := primitive.ParseDecimal128(d.String())
	return value, errors.WithStack(err)
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(d.String())
	return value, errors.WithStack(err)
}

func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]T, error) {
	defer cursor.Close(ctx)
	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.WithStack(err)
	}
	return docs, nil
}
