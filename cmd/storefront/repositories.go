package main

import (
	"context"

	"github.com/pkg/errors"

	cartmodel "storefront/pkg/cart/domain/model"
	catalogmodel "storefront/pkg/catalog/domain/model"
	"storefront/pkg/infrastructure/mongo"
	"storefront/pkg/infrastructure/mysql"
	notificationmodel "storefront/pkg/notification/domain/model"
	ordermodel "storefront/pkg/order/domain/model"
)

type repositories struct {
	products      catalogmodel.ProductRepository
	orders        ordermodel.OrderRepository
	reconciler    ordermodel.LineItemReconciler
	carts         cartmodel.CartRepository
	notifications notificationmodel.NotificationRepository
	close         func(ctx context.Context) error
}

func openRepositories(ctx context.Context, c *config) (*repositories, error) {
	if c.StorageDriver == driverMongo {
		db, err := mongo.Connect(ctx, c.MongoURI, c.MongoDatabase)
		if err != nil {
			return nil, err
		}
		orders := mongo.NewOrderRepository(db)
		return &repositories{
			products:      mongo.NewProductRepository(db),
			orders:        orders,
			reconciler:    orders,
			carts:         mongo.NewCartRepository(db),
			notifications: mongo.NewNotificationRepository(db),
			close:         db.Client().Disconnect,
		}, nil
	}

	db, err := mysql.Open(ctx, mysql.Config{
		DSN:             c.DBDSN,
		MaxConnections:  c.DBMaxConn,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	orders := mysql.NewOrderRepository(db)
	return &repositories{
		products:      mysql.NewProductRepository(db),
		orders:        orders,
		reconciler:    orders,
		carts:         mysql.NewCartRepository(db),
		notifications: mysql.NewNotificationRepository(db),
		close: func(context.Context) error {
			return errors.WithStack(db.Close())
		},
	}, nil
}

func migrateStorage(ctx context.Context, c *config) error {
	if c.StorageDriver == driverMongo {
		db, err := mongo.Connect(ctx, c.MongoURI, c.MongoDatabase)
		if err != nil {
			return err
		}
		defer db.Client().Disconnect(ctx)
		return mongo.EnsureIndexes(ctx, db)
	}

	db, err := mysql.Open(ctx, mysql.Config{DSN: c.DBDSN, MaxConnections: 1, ConnMaxLifetime: c.DBConnMaxLifetime})
	if err != nil {
		return err
	}
	defer db.Close()
	return mysql.Migrate(db)
}
