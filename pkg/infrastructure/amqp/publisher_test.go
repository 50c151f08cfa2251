package amqp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/pkg/order/domain/model"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "storefront.order_status_changed", RoutingKey(model.OrderStatusChanged{}))
	assert.Equal(t, "storefront.stock_shortfall_detected", RoutingKey(model.StockShortfallDetected{}))
}

func TestNewPublishing(t *testing.T) {
	productID := uuid.New()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := model.StockShortfallDetected{OrderNumber: 3, ProductID: productID, Requested: 5, Shortfall: 4}

	msg, err := newPublishing(event, now)

	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "StockShortfallDetected", msg.Type)
	assert.Equal(t, now, msg.Timestamp)

	var decoded model.StockShortfallDetected
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event, decoded)
}

func TestLogDispatcherNeverFails(t *testing.T) {
	assert.NoError(t, LogDispatcher{}.Dispatch(model.OrderDeleted{OrderNumber: 1}))
}
