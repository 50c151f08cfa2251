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

	"storefront/pkg/catalog/domain/model"
	"storefront/pkg/common/domain"
)

type imageDocument struct {
	URL string `bson:"url"`
	Key string `bson:"key"`
}

type productDocument struct {
	ID               string               `bson:"_id"`
	Name             string               `bson:"name"`
	Price            primitive.Decimal128 `bson:"price"`
	ShortDescription string               `bson:"shortDescription"`
	FullDescription  string               `bson:"fullDescription"`
	StockQuantity    int                  `bson:"stockQuantity"`
	Sold             int                  `bson:"sold"`
	CategoryID       string               `bson:"categoryId"`
	Discount         int                  `bson:"discount"`
	HasDiscount      bool                 `bson:"hasDiscount"`
	Images           []imageDocument      `bson:"images"`
	VideoLink        string               `bson:"videoLink"`
	Rating           *float64             `bson:"rating,omitempty"`
	CreatedAt        time.Time            `bson:"createdAt"`
	UpdatedAt        time.Time            `bson:"updatedAt"`
}

func newProductDocument(p *model.Product) (productDocument, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDocument{}, err
	}
	images := make([]imageDocument, 0, len(p.Images))
	for _, image := range p.Images {
		images = append(images, imageDocument(image))
	}
	return productDocument{
		ID:               p.ID.String(),
		Name:             p.Name,
		Price:            price,
		ShortDescription: p.ShortDescription,
		FullDescription:  p.FullDescription,
		StockQuantity:    p.StockQuantity,
		Sold:             p.Sold,
		CategoryID:       p.CategoryID,
		Discount:         p.Discount,
		HasDiscount:      p.HasDiscount,
		Images:           images,
		VideoLink:        p.VideoLink,
		Rating:           p.Rating,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}, nil
}

func (d productDocument) toModel() (model.Product, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return model.Product{}, errors.Wrapf(err, "invalid product id %q", d.ID)
	}
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return model.Product{}, err
	}
	images := make([]domain.Image, 0, len(d.Images))
	for _, image := range d.Images {
		images = append(images, domain.Image(image))
	}
	return model.Product{
		ID:               id,
		Name:             d.Name,
		Price:            price,
		ShortDescription: d.ShortDescription,
		FullDescription:  d.FullDescription,
		StockQuantity:    d.StockQuantity,
		Sold:             d.Sold,
		CategoryID:       d.CategoryID,
		Discount:         d.Discount,
		HasDiscount:      d.HasDiscount,
		Images:           images,
		VideoLink:        d.VideoLink,
		Rating:           d.Rating,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

func NewProductRepository(db *mongo.Database) model.ProductRepository {
	return &productRepository{collection: db.Collection(productsCollection)}
}

type productRepository struct {
	collection *mongo.Collection
}

func (r *productRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	doc, err := newProductDocument(product)
	if err != nil {
		return err
	}
	_, err = r.collection.InsertOne(ctx, doc)
	return errors.Wrap(err, "failed to insert product")
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	doc, err := newProductDocument(product)
	if err != nil {
		return err
	}
	result, err := r.collection.UpdateByID(ctx, doc.ID, bson.M{"$set": bson.M{
		"name":             doc.Name,
		"price":            doc.Price,
		"shortDescription": doc.ShortDescription,
		"fullDescription":  doc.FullDescription,
		"categoryId":       doc.CategoryID,
		"discount":         doc.Discount,
		"hasDiscount":      doc.HasDiscount,
		"images":           doc.Images,
		"videoLink":        doc.VideoLink,
		"rating":           doc.Rating,
		"updatedAt":        doc.UpdatedAt,
	}})
	if err != nil {
		return errors.Wrap(err, "failed to update product")
	}
	if result.MatchedCount == 0 {
		return model.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) Find(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var doc productDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find product")
	}
	product, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindMany(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	query := bson.M{}
	if filter.CategoryID != "" {
		query["categoryId"] = filter.CategoryID
	}
	switch filter.Discount {
	case model.OnlyDiscounted:
		query["hasDiscount"] = true
	case model.OnlyFullPrice:
		query["hasDiscount"] = false
	}
	return r.find(ctx, query, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *productRepository) BestSellers(ctx context.Context, limit int) ([]model.Product, error) {
	return r.find(ctx, bson.M{}, options.Find().
		SetSort(bson.D{{Key: "sold", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)))
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return errors.Wrap(err, "failed to delete product")
	}
	if result.DeletedCount == 0 {
		return model.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) SetStock(ctx context.Context, id uuid.UUID, quantity int) error {
	result, err := r.collection.UpdateByID(ctx, id.String(), bson.M{"$set": bson.M{
		"stockQuantity": quantity,
		"updatedAt":     time.Now().UTC(),
	}})
	if err != nil {
		return errors.Wrap(err, "failed to set product stock")
	}
	if result.MatchedCount == 0 {
		return model.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) ConsumeStock(ctx context.Context, id uuid.UUID, quantity int) (model.StockChange, error) {
	var doc productDocument
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "stockQuantity": bson.M{"$gte": quantity}},
		bson.M{
			"$inc": bson.M{"stockQuantity": -quantity, "sold": quantity},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		count, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id.String()})
		if countErr != nil {
			return model.StockChange{}, errors.WithStack(countErr)
		}
		if count == 0 {
			return model.StockChange{}, model.ErrProductNotFound
		}
		return model.StockChange{}, model.ErrInsufficientStock
	}
	if err != nil {
		return model.StockChange{}, errors.Wrap(err, "failed to consume stock")
	}
	return model.StockChange{
		ProductID:     id,
		Quantity:      quantity,
		StockQuantity: doc.StockQuantity,
		Sold:          doc.Sold,
	}, nil
}

func (r *productRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]model.Product, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find products")
	}
	docs, err := decodeAll[productDocument](ctx, cursor)
	if err != nil {
		return nil, err
	}
	products := make([]model.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}
