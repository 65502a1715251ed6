// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// DefaultTopic receives OrderPlaced events.
const DefaultTopic = "order-placed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.EventPublisher = (*Publisher)(nil)

// Publisher writes order events to a Kafka topic, keyed by order number so
// events for one order stay on one partition.
type Publisher struct {
	w messageWriter
}

// NewPublisher creates a Publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// OrderPlaced publishes the committed order.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(o.OrderNumber),
		Value: EncodeOrderPlaced(o),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("OrderPlaced")},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish order %s", o.OrderNumber)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// EncodeOrderPlaced renders the event payload.
func EncodeOrderPlaced(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Int64(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.OrderNumber)
	e.FieldStart("userId")
	if o.UserID != nil {
		e.Int64(*o.UserID)
	} else {
		e.Null()
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	e.Str(money.String(o.Total))
	e.FieldStart("couponCode")
	if o.CouponCode != "" {
		e.Str(o.CouponCode)
	} else {
		e.Null()
	}
	e.FieldStart("shippingMethod")
	e.Str(string(o.ShippingMethod))
	e.FieldStart("isNextDayDelivery")
	e.Bool(o.IsNextDayDelivery)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		e.Str(money.String(it.Price))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

// Sink receives order events and is closed on shutdown.
type Sink interface {
	OrderPlaced(ctx context.Context, o *order.Order) error
	Close() error
}

// Open returns a Kafka publisher, or Discard when brokers is empty.
func Open(brokers []string, topic string) Sink {
	if len(brokers) == 0 {
		return Discard{}
	}
	return NewPublisher(brokers, topic)
}

// Discard drops events. It is used when no brokers are configured.
type Discard struct{}

// OrderPlaced does nothing.
func (Discard) OrderPlaced(context.Context, *order.Order) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }
