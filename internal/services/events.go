package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/logger"
)

// Event types published for request lifecycle changes.
const (
	EventRequestCreated       = "request.created"
	EventRequestStatusChanged = "request.status_changed"
)

// RequestEvent describes a lifecycle change of a request.
type RequestEvent struct {
	Type        string      `json:"type"`
	RequestType RequestType `json:"request_type"`
	RequestID   uuid.UUID   `json:"request_id"`
	UserID      uuid.UUID   `json:"user_id"`
	Status      string      `json:"status"`
	PrevStatus  string      `json:"prev_status,omitempty"`
	NetAmount   float64     `json:"net_amount"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// RoutingKey is the topic routing key, e.g. request.repair.status_changed.
func (e RequestEvent) RoutingKey() string {
	return fmt.Sprintf("request.%s.%s", e.RequestType, strings.TrimPrefix(e.Type, "request."))
}

// EventPublisher delivers request events to an external broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev RequestEvent) error
	Close() error
}

// NewEventPublisher builds the publisher selected by EVENTS_DRIVER.
func NewEventPublisher(cfg *config.Config) (EventPublisher, error) {
	switch strings.ToLower(cfg.EventsDriver) {
	case "", "none":
		return NoopPublisher{}, nil
	case "amqp", "rabbitmq":
		return NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
}

// NoopPublisher drops events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, RequestEvent) error { return nil }
func (NoopPublisher) Close() error                                { return nil }

// AMQPPublisher publishes events to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}

	logger.Log.Info().Str("exchange", exchange).Msg("connected to RabbitMQ")
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends ev as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev RequestEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(ctx, p.exchange, ev.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// KafkaPublisher writes events to a topic keyed by request id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

// Publish writes ev; messages of one request share a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, ev RequestEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RequestID.String()),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
