package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/pkg/notification/domain/model"
)

type notificationDocument struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	OrderNumber int64     `bson:"orderNumber"`
	Message     string    `bson:"message"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func NewNotificationRepository(db *mongo.Database) model.NotificationRepository {
	return &notificationRepository{collection: db.Collection(notificationsCollection)}
}

type notificationRepository struct {
	collection *mongo.Collection
}

func (r *notificationRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	_, err := r.collection.InsertOne(ctx, notificationDocument{
		ID:          notification.ID.String(),
		UserID:      notification.UserID,
		OrderNumber: notification.OrderNumber,
		Message:     notification.Message,
		CreatedAt:   notification.CreatedAt,
	})
	return errors.Wrap(err, "failed to insert notification")
}

func (r *notificationRepository) FindByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to find notifications")
	}
	docs, err := decodeAll[notificationDocument](ctx, cursor)
	if err != nil {
		return nil, err
	}

	notifications := make([]model.Notification, 0, len(docs))
	for _, doc := range docs {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid notification id %q", doc.ID)
		}
		notifications = append(notifications, model.Notification{
			ID:          id,
			UserID:      doc.UserID,
			OrderNumber: doc.OrderNumber,
			Message:     doc.Message,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return notifications, nil
}
