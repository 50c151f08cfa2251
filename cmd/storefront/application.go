package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	cartcatalog "storefront/pkg/cart/infrastructure/catalog"
	cartservice "storefront/pkg/cart/domain/service"
	catalogservice "storefront/pkg/catalog/domain/service"
	"storefront/pkg/common/domain"
	"storefront/pkg/infrastructure/amqp"
	"storefront/pkg/infrastructure/s3"
	notificationservice "storefront/pkg/notification/domain/service"
	ordercatalog "storefront/pkg/order/infrastructure/catalog"
	orderservice "storefront/pkg/order/domain/service"
)

const reconcileRetryInterval = 200 * time.Millisecond

// application holds the wired services shared by the commands.
type application struct {
	products      catalogservice.ProductService
	orders        orderservice.OrderService
	carts         cartservice.CartService
	notifications notificationservice.NotificationService
	closers       []func() error
}

func newApplication(ctx context.Context, cfg *config) (*application, error) {
	app := &application{}

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() error { return repos.close(context.Background()) })

	var broker domain.EventDispatcher = amqp.LogDispatcher{}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			app.close()
			return nil, err
		}
		app.closers = append(app.closers, publisher.Close)
		broker = publisher
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		app.close()
		return nil, err
	}

	app.notifications = notificationservice.NewNotificationService(repos.notifications, broker, notificationservice.WithStoreTimeout(cfg.IOTimeout))
	dispatcher := domain.Dispatchers{broker, app.notifications}

	app.products = catalogservice.NewProductService(repos.products, storage, dispatcher)
	app.orders = orderservice.NewOrderService(
		repos.orders,
		repos.reconciler,
		ordercatalog.NewProductCatalog(repos.products),
		storage,
		dispatcher,
		orderservice.WithRetry(cfg.ReconcileRetries, reconcileRetryInterval),
	)
	app.carts = cartservice.NewCartService(repos.carts, cartcatalog.NewProductCatalog(repos.products))
	return app, nil
}

func newObjectStorage(ctx context.Context, cfg *config) (*s3.Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}
	s3Config := s3.Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}
	client, err := s3.NewClient(ctx, s3Config)
	if err != nil {
		return nil, err
	}
	return s3.NewStorage(client, s3Config), nil
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Warn("failed to release resource")
		}
	}
}
