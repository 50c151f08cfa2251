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

	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
)

const orderNumberCounter = "order_number"

type paymentDocument struct {
	CashOnDelivery bool          `bson:"cashOnDelivery"`
	Image          imageDocument `bson:"image"`
}

type lineItemDocument struct {
	Line           int                  `bson:"line"`
	ProductID      string               `bson:"productId"`
	ProductName    string               `bson:"productName"`
	Quantity       int                  `bson:"quantity"`
	Price          primitive.Decimal128 `bson:"price"`
	ProductImage   *imageDocument       `bson:"productImage,omitempty"`
	ReconcileState string               `bson:"reconcileState"`
	Shortfall      int                  `bson:"shortfall"`
}

type orderDocument struct {
	ID              string               `bson:"_id"`
	Number          int64                `bson:"number"`
	UserID          string               `bson:"userId"`
	Name            string               `bson:"name"`
	Avatar          string               `bson:"avatar"`
	Amount          primitive.Decimal128 `bson:"amount"`
	Status          string               `bson:"status"`
	PhoneNumber     string               `bson:"phoneNumber"`
	DeliveryAddress string               `bson:"deliveryAddress"`
	PaymentProof    paymentDocument      `bson:"paymentProof"`
	Items           []lineItemDocument   `bson:"items"`
	StockReconciled bool                 `bson:"stockReconciled"`
	Version         int                  `bson:"version"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

func newOrderDocument(o *model.Order) (orderDocument, error) {
	amount, err := toDecimal128(o.Amount)
	if err != nil {
		return orderDocument{}, err
	}
	doc := orderDocument{
		ID:              o.ID.String(),
		Number:          o.Number,
		UserID:          o.UserID,
		Name:            o.Name,
		Avatar:          o.Avatar,
		Amount:          amount,
		Status:          string(o.Status),
		PhoneNumber:     o.PhoneNumber,
		DeliveryAddress: o.DeliveryAddress,
		PaymentProof: paymentDocument{
			CashOnDelivery: o.PaymentProof.CashOnDelivery,
			Image:          imageDocument(o.PaymentProof.Image),
		},
		Items:           make([]lineItemDocument, 0, len(o.Items)),
		StockReconciled: o.StockReconciled,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return orderDocument{}, err
		}
		itemDoc := lineItemDocument{
			Line:           item.Line,
			ProductID:      item.ProductID.String(),
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			Price:          price,
			ReconcileState: string(item.ReconcileState),
			Shortfall:      item.Shortfall,
		}
		if item.ProductImage != nil {
			image := imageDocument(*item.ProductImage)
			itemDoc.ProductImage = &image
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	return doc, nil
}

func (d orderDocument) toModel() (model.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return model.Order{}, errors.Wrapf(err, "invalid order id %q", d.ID)
	}
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return model.Order{}, err
	}
	o := model.Order{
		ID:              id,
		Number:          d.Number,
		UserID:          d.UserID,
		Name:            d.Name,
		Avatar:          d.Avatar,
		Amount:          amount,
		Status:          model.Status(d.Status),
		PhoneNumber:     d.PhoneNumber,
		DeliveryAddress: d.DeliveryAddress,
		PaymentProof: model.PaymentProof{
			CashOnDelivery: d.PaymentProof.CashOnDelivery,
			Image:          domain.Image(d.PaymentProof.Image),
		},
		Items:           make([]model.LineItem, 0, len(d.Items)),
		StockReconciled: d.StockReconciled,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, itemDoc := range d.Items {
		productID, err := uuid.Parse(itemDoc.ProductID)
		if err != nil {
			return model.Order{}, errors.Wrapf(err, "invalid product id in order %d", d.Number)
		}
		price, err := fromDecimal128(itemDoc.Price)
		if err != nil {
			return model.Order{}, err
		}
		item := model.LineItem{
			Line:           itemDoc.Line,
			ProductID:      productID,
			ProductName:    itemDoc.ProductName,
			Quantity:       itemDoc.Quantity,
			Price:          price,
			ReconcileState: model.LineItemState(itemDoc.ReconcileState),
			Shortfall:      itemDoc.Shortfall,
		}
		if itemDoc.ProductImage != nil {
			image := domain.Image(*itemDoc.ProductImage)
			item.ProductImage = &image
		}
		o.Items = append(o.Items, item)
	}
	return o, nil
}

// NewOrderRepository returns the order store, which also reconciles line items
// against the products collection inside a transaction.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{
		client:   db.Client(),
		orders:   db.Collection(ordersCollection),
		counters: db.Collection(countersCollection),
		products: db.Collection(productsCollection),
	}
}

type OrderRepository struct {
	client   *mongo.Client
	orders   *mongo.Collection
	counters *mongo.Collection
	products *mongo.Collection
}

var (
	_ model.OrderRepository    = &OrderRepository{}
	_ model.LineItemReconciler = &OrderRepository{}
)

func (r *OrderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *OrderRepository) NextNumber(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": orderNumberCounter},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate order number")
	}
	return counter.Value, nil
}

func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	doc, err := newOrderDocument(order)
	if err != nil {
		return err
	}
	_, err = r.orders.InsertOne(ctx, doc)
	return errors.Wrap(err, "failed to insert order")
}

func (r *OrderRepository) Update(ctx context.Context, order *model.Order) error {
	doc, err := newOrderDocument(order)
	if err != nil {
		return err
	}
	result, err := r.orders.UpdateOne(ctx,
		bson.M{"_id": doc.ID, "version": doc.Version - 1},
		bson.M{"$set": bson.M{
			"name":            doc.Name,
			"avatar":          doc.Avatar,
			"amount":          doc.Amount,
			"status":          doc.Status,
			"phoneNumber":     doc.PhoneNumber,
			"deliveryAddress": doc.DeliveryAddress,
			"paymentProof":    doc.PaymentProof,
			"version":         doc.Version,
			"updatedAt":       doc.UpdatedAt,
		}})
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	if result.MatchedCount > 0 {
		return nil
	}

	count, err := r.orders.CountDocuments(ctx, bson.M{"_id": doc.ID})
	if err != nil {
		return errors.WithStack(err)
	}
	if count == 0 {
		return model.ErrOrderNotFound
	}
	return model.ErrOptimisticLock
}

func (r *OrderRepository) Find(ctx context.Context, number int64) (*model.Order, error) {
	return r.findOne(ctx, bson.M{"number": number})
}

func (r *OrderRepository) FindForUser(ctx context.Context, number int64, userID string) (*model.Order, error) {
	return r.findOne(ctx, bson.M{"number": number, "userId": userID})
}

func (r *OrderRepository) FindAll(ctx context.Context) ([]model.Order, error) {
	return r.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return r.find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
}

func (r *OrderRepository) FindUnreconciled(ctx context.Context, limit int) ([]model.Order, error) {
	return r.find(ctx,
		bson.M{"status": string(model.Delivered), "stockReconciled": false},
		options.Find().SetSort(bson.D{{Key: "number", Value: 1}}).SetLimit(int64(limit)))
}

func (r *OrderRepository) MarkReconciled(ctx context.Context, orderID uuid.UUID) error {
	result, err := r.orders.UpdateByID(ctx, orderID.String(), bson.M{"$set": bson.M{"stockReconciled": true}})
	if err != nil {
		return errors.Wrap(err, "failed to mark order reconciled")
	}
	if result.MatchedCount == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, number int64) (*model.Order, error) {
	var doc orderDocument
	err := r.orders.FindOneAndDelete(ctx, bson.M{"number": number}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete order")
	}
	order, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.orders.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete orders")
	}
	return result.DeletedCount, nil
}

// ReconcileLineItem claims the pending line item and moves stock to sold in one
// multi-document transaction. The claim filter matches only a pending item, so a
// concurrent or repeated claim finds nothing to update.
func (r *OrderRepository) ReconcileLineItem(ctx context.Context, orderID uuid.UUID, item model.LineItem) (model.StockMovement, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return model.StockMovement{}, errors.Wrap(err, "failed to start session")
	}
	defer session.EndSession(ctx)

	movement := model.StockMovement{ProductID: item.ProductID, Quantity: item.Quantity}
	productMissing := false

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		productMissing = false
		itemFilter := bson.M{
			"_id":   orderID.String(),
			"items": bson.M{"$elemMatch": bson.M{"line": item.Line, "reconcileState": string(model.LineItemPending)}},
		}
		result, err := r.orders.UpdateOne(sc, itemFilter,
			bson.M{"$set": bson.M{"items.$.reconcileState": string(model.LineItemApplied)}})
		if err != nil {
			return nil, errors.Wrap(err, "failed to claim order item")
		}
		if result.MatchedCount == 0 {
			count, err := r.orders.CountDocuments(sc, bson.M{"_id": orderID.String(), "items.line": item.Line})
			if err != nil {
				return nil, errors.WithStack(err)
			}
			if count == 0 {
				return nil, model.ErrOrderNotFound
			}
			return nil, model.ErrLineItemAlreadyReconciled
		}

		claimed := bson.M{"_id": orderID.String(), "items.line": item.Line}
		var before productDocument
		err = r.products.FindOneAndUpdate(sc,
			bson.M{"_id": item.ProductID.String()},
			mongo.Pipeline{{{Key: "$set", Value: bson.D{
				{Key: "stockQuantity", Value: bson.D{{Key: "$max", Value: bson.A{0, bson.D{{Key: "$subtract", Value: bson.A{"$stockQuantity", item.Quantity}}}}}}},
				{Key: "sold", Value: bson.D{{Key: "$add", Value: bson.A{"$sold", item.Quantity}}}},
				{Key: "updatedAt", Value: time.Now().UTC()},
			}}}},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&before)
		if errors.Is(err, mongo.ErrNoDocuments) {
			productMissing = true
			_, err = r.orders.UpdateOne(sc, claimed,
				bson.M{"$set": bson.M{"items.$.reconcileState": string(model.LineItemProductNotFound)}})
			return nil, errors.Wrap(err, "failed to record missing product")
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to move stock")
		}

		movement.Shortfall = max(item.Quantity-before.StockQuantity, 0)
		movement.StockQuantity = max(before.StockQuantity-item.Quantity, 0)
		movement.Sold = before.Sold + item.Quantity
		if movement.Shortfall > 0 {
			if _, err := r.orders.UpdateOne(sc, claimed,
				bson.M{"$set": bson.M{"items.$.shortfall": movement.Shortfall}}); err != nil {
				return nil, errors.Wrap(err, "failed to record shortfall")
			}
		}
		return nil, nil
	})
	if err != nil {
		return model.StockMovement{}, err
	}
	if productMissing {
		return model.StockMovement{}, model.ErrProductNotFound
	}
	return movement, nil
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (*model.Order, error) {
	var doc orderDocument
	err := r.orders.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find order")
	}
	order, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Order, error) {
	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find orders")
	}
	docs, err := decodeAll[orderDocument](ctx, cursor)
	if err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
