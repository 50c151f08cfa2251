package amqp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"storefront/pkg/common/domain"
)

const (
	dialAttempts   = 5
	publishTimeout = 5 * time.Second
	routingPrefix  = "storefront."
)

// Publisher dispatches domain events to a topic exchange as JSON messages.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

var _ domain.EventDispatcher = &Publisher{}

func Dial(url, exchange string) (*Publisher, error) {
	var conn *amqp.Connection
	dial := func() error {
		var err error
		conn, err = amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warn("rabbitmq is not reachable, retrying")
		}
		return err
	}
	if err := backoff.Retry(dial, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), dialAttempts)); err != nil {
		return nil, errors.Wrap(err, "failed to connect to rabbitmq")
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}
	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to declare exchange %s", exchange)
	}
	return &Publisher{conn: conn, channel: channel, exchange: exchange}, nil
}

func (p *Publisher) Dispatch(event domain.Event) error {
	msg, err := newPublishing(event, time.Now().UTC())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Wrapf(
		p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(event), false, false, msg),
		"failed to publish %s", event.Type(),
	)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		log.WithError(err).Warn("failed to close channel")
	}
	return p.conn.Close()
}

// RoutingKey maps an event type like OrderStatusChanged to storefront.order_status_changed.
func RoutingKey(event domain.Event) string {
	var b strings.Builder
	b.WriteString(routingPrefix)
	for i, r := range event.Type() {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func newPublishing(event domain.Event, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, errors.Wrapf(err, "failed to encode %s", event.Type())
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type(),
		Timestamp:    now,
		Body:         body,
	}, nil
}
