package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/pkg/cart/domain/model"
	"storefront/pkg/common/domain"
)

type cartItemDocument struct {
	ProductID   string               `bson:"productId"`
	ProductName string               `bson:"productName"`
	Image       *imageDocument       `bson:"image,omitempty"`
	Price       primitive.Decimal128 `bson:"price"`
	Quantity    int                  `bson:"quantity"`
}

type cartDocument struct {
	UserID    string             `bson:"_id"`
	Items     []cartItemDocument `bson:"items"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func NewCartRepository(db *mongo.Database) model.CartRepository {
	return &cartRepository{collection: db.Collection(cartsCollection)}
}

type cartRepository struct {
	collection *mongo.Collection
}

func (r *cartRepository) Find(ctx context.Context, userID string) (*model.Cart, error) {
	var doc cartDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrCartNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find cart")
	}

	cart := &model.Cart{UserID: doc.UserID, UpdatedAt: doc.UpdatedAt, Items: make([]model.Item, 0, len(doc.Items))}
	for _, itemDoc := range doc.Items {
		productID, err := uuid.Parse(itemDoc.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid product id in cart of user %s", userID)
		}
		price, err := fromDecimal128(itemDoc.Price)
		if err != nil {
			return nil, err
		}
		item := model.Item{ProductID: productID, ProductName: itemDoc.ProductName, Price: price, Quantity: itemDoc.Quantity}
		if itemDoc.Image != nil {
			image := domain.Image(*itemDoc.Image)
			item.Image = &image
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart *model.Cart) error {
	doc := cartDocument{UserID: cart.UserID, UpdatedAt: cart.UpdatedAt, Items: make([]cartItemDocument, 0, len(cart.Items))}
	for _, item := range cart.Items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return err
		}
		itemDoc := cartItemDocument{
			ProductID:   item.ProductID.String(),
			ProductName: item.ProductName,
			Price:       price,
			Quantity:    item.Quantity,
		}
		if item.Image != nil {
			image := imageDocument(*item.Image)
			itemDoc.Image = &image
		}
		doc.Items = append(doc.Items, itemDoc)
	}

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.UserID}, doc, options.Replace().SetUpsert(true))
	return errors.Wrap(err, "failed to save cart")
}

func (r *cartRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return errors.Wrap(err, "failed to delete cart")
	}
	if result.DeletedCount == 0 {
		return model.ErrCartNotFound
	}
	return nil
}
