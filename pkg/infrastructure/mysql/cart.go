package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"storefront/pkg/cart/domain/model"
)

type cartRow struct {
	UserID    string    `db:"user_id"`
	Items     []byte    `db:"items"`
	UpdatedAt time.Time `db:"updated_at"`
}

func NewCartRepository(db *sqlx.DB) model.CartRepository {
	return &cartRepository{db: db}
}

type cartRepository struct {
	db *sqlx.DB
}

func (r *cartRepository) Find(ctx context.Context, userID string) (*model.Cart, error) {
	var row cartRow
	err := r.db.GetContext(ctx, &row, `SELECT user_id, items, updated_at FROM carts WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCartNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select cart")
	}

	cart := &model.Cart{UserID: row.UserID, UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal(row.Items, &cart.Items); err != nil {
		return nil, errors.Wrapf(err, "corrupt cart of user %s", userID)
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart *model.Cart) error {
	items := cart.Items
	if items == nil {
		items = []model.Item{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO carts (user_id, items, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE items = VALUES(items), updated_at = VALUES(updated_at)`,
		cart.UserID, encoded, cart.UpdatedAt)
	return errors.Wrap(err, "failed to save cart")
}

func (r *cartRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = ?`, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete cart")
	}
	return expectAffected(result, model.ErrCartNotFound)
}
