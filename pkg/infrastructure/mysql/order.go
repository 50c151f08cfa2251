package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"storefront/pkg/common/domain"
	"storefront/pkg/order/domain/model"
)

const orderNumberCounter = "order_number"

type orderRow struct {
	ID              uuid.UUID       `db:"id"`
	Number          int64           `db:"number"`
	UserID          string          `db:"user_id"`
	Name            string          `db:"name"`
	Avatar          string          `db:"avatar"`
	Amount          decimal.Decimal `db:"amount"`
	Status          string          `db:"status"`
	PhoneNumber     string          `db:"phone_number"`
	DeliveryAddress string          `db:"delivery_address"`
	PaymentProof    []byte          `db:"payment_proof"`
	StockReconciled bool            `db:"stock_reconciled"`
	Version         int             `db:"version"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

type orderItemRow struct {
	OrderID        uuid.UUID       `db:"order_id"`
	Line           int             `db:"line"`
	ProductID      uuid.UUID       `db:"product_id"`
	ProductName    string          `db:"product_name"`
	Quantity       int             `db:"quantity"`
	Price          decimal.Decimal `db:"price"`
	ProductImage   []byte          `db:"product_image"`
	ReconcileState string          `db:"reconcile_state"`
	Shortfall      int             `db:"shortfall"`
}

const (
	orderColumns = `id, number, user_id, name, avatar, amount, status, phone_number, delivery_address,
	payment_proof, stock_reconciled, version, created_at, updated_at`
	orderItemColumns = `order_id, line, product_id, product_name, quantity, price, product_image,
	reconcile_state, shortfall`
)

func newOrderRow(o *model.Order) (orderRow, error) {
	proof, err := json.Marshal(o.PaymentProof)
	if err != nil {
		return orderRow{}, errors.WithStack(err)
	}
	return orderRow{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Name:            o.Name,
		Avatar:          o.Avatar,
		Amount:          o.Amount,
		Status:          string(o.Status),
		PhoneNumber:     o.PhoneNumber,
		DeliveryAddress: o.DeliveryAddress,
		PaymentProof:    proof,
		StockReconciled: o.StockReconciled,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}, nil
}

func newOrderItemRow(orderID uuid.UUID, item model.LineItem) (orderItemRow, error) {
	row := orderItemRow{
		OrderID:        orderID,
		Line:           item.Line,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		Quantity:       item.Quantity,
		Price:          item.Price,
		ReconcileState: string(item.ReconcileState),
		Shortfall:      item.Shortfall,
	}
	if item.ProductImage != nil {
		image, err := json.Marshal(item.ProductImage)
		if err != nil {
			return orderItemRow{}, errors.WithStack(err)
		}
		row.ProductImage = image
	}
	return row, nil
}

func (r orderRow) toModel(items []orderItemRow) (model.Order, error) {
	o := model.Order{
		ID:              r.ID,
		Number:          r.Number,
		UserID:          r.UserID,
		Name:            r.Name,
		Avatar:          r.Avatar,
		Amount:          r.Amount,
		Status:          model.Status(r.Status),
		PhoneNumber:     r.PhoneNumber,
		DeliveryAddress: r.DeliveryAddress,
		StockReconciled: r.StockReconciled,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Items:           make([]model.LineItem, 0, len(items)),
	}
	if err := json.Unmarshal(r.PaymentProof, &o.PaymentProof); err != nil {
		return model.Order{}, errors.Wrapf(err, "corrupt payment proof of order %d", r.Number)
	}
	for _, itemRow := range items {
		item := model.LineItem{
			Line:           itemRow.Line,
			ProductID:      itemRow.ProductID,
			ProductName:    itemRow.ProductName,
			Quantity:       itemRow.Quantity,
			Price:          itemRow.Price,
			ReconcileState: model.LineItemState(itemRow.ReconcileState),
			Shortfall:      itemRow.Shortfall,
		}
		if len(itemRow.ProductImage) > 0 {
			var image domain.Image
			if err := json.Unmarshal(itemRow.ProductImage, &image); err != nil {
				return model.Order{}, errors.Wrapf(err, "corrupt product image of order %d", r.Number)
			}
			item.ProductImage = &image
		}
		o.Items = append(o.Items, item)
	}
	return o, nil
}

// NewOrderRepository returns the order store. The returned value also reconciles
// line items against the products table, since both must change in one transaction.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type OrderRepository struct {
	db *sqlx.DB
}

var (
	_ model.OrderRepository    = &OrderRepository{}
	_ model.LineItemReconciler = &OrderRepository{}
)

func (r *OrderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

// NextNumber increments a counter row; LAST_INSERT_ID(expr) makes the new value
// visible to this connection only, so concurrent callers never see the same number.
func (r *OrderRepository) NextNumber(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `INSERT INTO counters (name, value) VALUES (?, LAST_INSERT_ID(1))
		ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1)`, orderNumberCounter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate order number")
	}
	number, err := result.LastInsertId()
	return number, errors.WithStack(err)
}

func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	row, err := newOrderRow(order)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES (
			:id, :number, :user_id, :name, :avatar, :amount, :status, :phone_number, :delivery_address,
			:payment_proof, :stock_reconciled, :version, :created_at, :updated_at)`, row); err != nil {
			return errors.Wrap(err, "failed to insert order")
		}
		for _, item := range order.Items {
			itemRow, err := newOrderItemRow(order.ID, item)
			if err != nil {
				return err
			}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO order_items (`+orderItemColumns+`) VALUES (
				:order_id, :line, :product_id, :product_name, :quantity, :price, :product_image,
				:reconcile_state, :shortfall)`, itemRow); err != nil {
				return errors.Wrap(err, "failed to insert order item")
			}
		}
		return nil
	})
}

func (r *OrderRepository) Update(ctx context.Context, order *model.Order) error {
	row, err := newOrderRow(order)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `UPDATE orders SET
		name = ?, avatar = ?, amount = ?, status = ?, phone_number = ?, delivery_address = ?,
		payment_proof = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		row.Name, row.Avatar, row.Amount, row.Status, row.PhoneNumber, row.DeliveryAddress,
		row.PaymentProof, row.Version, row.UpdatedAt, row.ID, row.Version-1)
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)`, row.ID); err != nil {
		return errors.WithStack(err)
	}
	if !exists {
		return model.ErrOrderNotFound
	}
	return model.ErrOptimisticLock
}

func (r *OrderRepository) Find(ctx context.Context, number int64) (*model.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = ?`, number)
}

func (r *OrderRepository) FindForUser(ctx context.Context, number int64, userID string) (*model.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = ? AND user_id = ?`, number, userID)
}

func (r *OrderRepository) FindAll(ctx context.Context) ([]model.Order, error) {
	return r.findMany(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY number`)
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return r.findMany(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY number`, userID)
}

func (r *OrderRepository) FindUnreconciled(ctx context.Context, limit int) ([]model.Order, error) {
	return r.findMany(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND stock_reconciled = 0 ORDER BY number LIMIT ?`, string(model.Delivered), limit)
}

func (r *OrderRepository) MarkReconciled(ctx context.Context, orderID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE orders SET stock_reconciled = 1 WHERE id = ?`, orderID)
	if err != nil {
		return errors.Wrap(err, "failed to mark order reconciled")
	}
	return expectAffected(result, model.ErrOrderNotFound)
}

func (r *OrderRepository) Delete(ctx context.Context, number int64) (*model.Order, error) {
	order, err := r.Find(ctx, number)
	if err != nil {
		return nil, err
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, order.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete order")
	}
	if err := expectAffected(result, model.ErrOrderNotFound); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete orders")
	}
	n, err := result.RowsAffected()
	return n, errors.WithStack(err)
}

// ReconcileLineItem claims the pending line item and moves its quantity from stock
// to sold in the same transaction. The product row is locked while the shortfall
// is computed, so concurrent deliveries of the same product serialize here.
func (r *OrderRepository) ReconcileLineItem(ctx context.Context, orderID uuid.UUID, item model.LineItem) (model.StockMovement, error) {
	movement := model.StockMovement{ProductID: item.ProductID, Quantity: item.Quantity}
	productMissing := false

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE order_items SET reconcile_state = ?
			WHERE order_id = ? AND line = ? AND reconcile_state = ?`,
			string(model.LineItemApplied), orderID, item.Line, string(model.LineItemPending))
		if err != nil {
			return errors.Wrap(err, "failed to claim order item")
		}
		if n, err := result.RowsAffected(); err != nil {
			return errors.WithStack(err)
		} else if n == 0 {
			var state string
			err := tx.GetContext(ctx, &state, `SELECT reconcile_state FROM order_items WHERE order_id = ? AND line = ?`,
				orderID, item.Line)
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrOrderNotFound
			}
			if err != nil {
				return errors.WithStack(err)
			}
			return model.ErrLineItemAlreadyReconciled
		}

		var stock struct {
			Quantity int `db:"stock_quantity"`
			Sold     int `db:"sold"`
		}
		err = tx.GetContext(ctx, &stock, `SELECT stock_quantity, sold FROM products WHERE id = ? FOR UPDATE`, item.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			productMissing = true
			_, err = tx.ExecContext(ctx, `UPDATE order_items SET reconcile_state = ? WHERE order_id = ? AND line = ?`,
				string(model.LineItemProductNotFound), orderID, item.Line)
			return errors.Wrap(err, "failed to record missing product")
		}
		if err != nil {
			return errors.Wrap(err, "failed to lock product")
		}

		movement.Shortfall = max(item.Quantity-stock.Quantity, 0)
		movement.StockQuantity = max(stock.Quantity-item.Quantity, 0)
		movement.Sold = stock.Sold + item.Quantity

		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock_quantity = ?, sold = ?, updated_at = ? WHERE id = ?`,
			movement.StockQuantity, movement.Sold, time.Now().UTC(), item.ProductID); err != nil {
			return errors.Wrap(err, "failed to move stock")
		}
		if movement.Shortfall > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE order_items SET shortfall = ? WHERE order_id = ? AND line = ?`,
				movement.Shortfall, orderID, item.Line); err != nil {
				return errors.Wrap(err, "failed to record shortfall")
			}
		}
		return nil
	})
	if err != nil {
		return model.StockMovement{}, err
	}
	if productMissing {
		return model.StockMovement{}, model.ErrProductNotFound
	}
	return movement, nil
}

func (r *OrderRepository) findOne(ctx context.Context, query string, args ...interface{}) (*model.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select order")
	}
	orders, err := r.withItems(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]model.Order, error) {
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to select orders")
	}
	return r.withItems(ctx, rows)
}

func (r *OrderRepository) withItems(ctx context.Context, rows []orderRow) ([]model.Order, error) {
	orders := make([]model.Order, 0, len(rows))
	if len(rows) == 0 {
		return orders, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	query, args, err := sqlx.In(`SELECT `+orderItemColumns+` FROM order_items WHERE order_id IN (?) ORDER BY line`, ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var itemRows []orderItemRow
	if err := r.db.SelectContext(ctx, &itemRows, r.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "failed to select order items")
	}

	byOrder := make(map[uuid.UUID][]orderItemRow, len(rows))
	for _, item := range itemRows {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for _, row := range rows {
		order, err := row.toModel(byOrder[row.ID])
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
