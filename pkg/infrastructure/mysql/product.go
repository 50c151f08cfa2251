package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"storefront/pkg/catalog/domain/model"
	"storefront/pkg/common/domain"
)

type productRow struct {
	ID               uuid.UUID       `db:"id"`
	Name             string          `db:"name"`
	Price            decimal.Decimal `db:"price"`
	ShortDescription string          `db:"short_description"`
	FullDescription  string          `db:"full_description"`
	StockQuantity    int             `db:"stock_quantity"`
	Sold             int             `db:"sold"`
	CategoryID       string          `db:"category_id"`
	Discount         int             `db:"discount"`
	HasDiscount      bool            `db:"has_discount"`
	Images           []byte          `db:"images"`
	VideoLink        string          `db:"video_link"`
	Rating           sql.NullFloat64 `db:"rating"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

const productColumns = `id, name, price, short_description, full_description, stock_quantity, sold,
	category_id, discount, has_discount, images, video_link, rating, created_at, updated_at`

func newProductRow(p *model.Product) (productRow, error) {
	images := p.Images
	if images == nil {
		images = []domain.Image{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return productRow{}, errors.WithStack(err)
	}
	row := productRow{
		ID:               p.ID,
		Name:             p.Name,
		Price:            p.Price,
		ShortDescription: p.ShortDescription,
		FullDescription:  p.FullDescription,
		StockQuantity:    p.StockQuantity,
		Sold:             p.Sold,
		CategoryID:       p.CategoryID,
		Discount:         p.Discount,
		HasDiscount:      p.HasDiscount,
		Images:           encoded,
		VideoLink:        p.VideoLink,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.Rating != nil {
		row.Rating = sql.NullFloat64{Float64: *p.Rating, Valid: true}
	}
	return row, nil
}

func (r productRow) toModel() (model.Product, error) {
	p := model.Product{
		ID:               r.ID,
		Name:             r.Name,
		Price:            r.Price,
		ShortDescription: r.ShortDescription,
		FullDescription:  r.FullDescription,
		StockQuantity:    r.StockQuantity,
		Sold:             r.Sold,
		CategoryID:       r.CategoryID,
		Discount:         r.Discount,
		HasDiscount:      r.HasDiscount,
		VideoLink:        r.VideoLink,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Images, &p.Images); err != nil {
		return model.Product{}, errors.Wrapf(err, "corrupt images of product %s", r.ID)
	}
	if r.Rating.Valid {
		rating := r.Rating.Float64
		p.Rating = &rating
	}
	return p, nil
}

func NewProductRepository(db *sqlx.DB) model.ProductRepository {
	return &productRepository{db: db}
}

type productRepository struct {
	db *sqlx.DB
}

func (r *productRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	row, err := newProductRow(product)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `INSERT INTO products (`+productColumns+`) VALUES (
		:id, :name, :price, :short_description, :full_description, :stock_quantity, :sold,
		:category_id, :discount, :has_discount, :images, :video_link, :rating, :created_at, :updated_at)`, row)
	return errors.Wrap(err, "failed to insert product")
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	row, err := newProductRow(product)
	if err != nil {
		return err
	}
	result, err := r.db.NamedExecContext(ctx, `UPDATE products SET
		name = :name, price = :price, short_description = :short_description,
		full_description = :full_description, category_id = :category_id, discount = :discount,
		has_discount = :has_discount, images = :images, video_link = :video_link, rating = :rating,
		updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return errors.Wrap(err, "failed to update product")
	}
	return expectAffected(result, model.ErrProductNotFound)
}

func (r *productRepository) Find(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select product")
	}
	product, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindMany(ctx context.Context, filter model.ProductFilter) ([]model.Product, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.CategoryID != "" {
		conditions = append(conditions, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	switch filter.Discount {
	case model.OnlyDiscounted:
		conditions = append(conditions, "has_discount = 1")
	case model.OnlyFullPrice:
		conditions = append(conditions, "has_discount = 0")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	return r.selectProducts(ctx, query, args...)
}

func (r *productRepository) BestSellers(ctx context.Context, limit int) ([]model.Product, error) {
	return r.selectProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY sold DESC, id LIMIT ?`, limit)
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete product")
	}
	return expectAffected(result, model.ErrProductNotFound)
}

func (r *productRepository) SetStock(ctx context.Context, id uuid.UUID, quantity int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET stock_quantity = ?, updated_at = ? WHERE id = ?`, quantity, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "failed to set product stock")
	}
	return expectAffected(result, model.ErrProductNotFound)
}

func (r *productRepository) ConsumeStock(ctx context.Context, id uuid.UUID, quantity int) (model.StockChange, error) {
	change := model.StockChange{ProductID: id, Quantity: quantity}
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE products
			SET stock_quantity = stock_quantity - ?, sold = sold + ?, updated_at = ?
			WHERE id = ? AND stock_quantity >= ?`, quantity, quantity, time.Now().UTC(), id, quantity)
		if err != nil {
			return errors.Wrap(err, "failed to consume stock")
		}
		if n, err := result.RowsAffected(); err != nil {
			return errors.WithStack(err)
		} else if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`, id); err != nil {
				return errors.WithStack(err)
			}
			if !exists {
				return model.ErrProductNotFound
			}
			return model.ErrInsufficientStock
		}
		return errors.WithStack(tx.QueryRowxContext(ctx,
			`SELECT stock_quantity, sold FROM products WHERE id = ?`, id).Scan(&change.StockQuantity, &change.Sold))
	})
	if err != nil {
		return model.StockChange{}, err
	}
	return change, nil
}

func (r *productRepository) selectProducts(ctx context.Context, query string, args ...interface{}) ([]model.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to select products")
	}
	products := make([]model.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func expectAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
