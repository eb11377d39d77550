package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultAMQPQueue is the queue events are routed to when no routing key
// is configured.
const DefaultAMQPQueue = "session.audit"

// Publisher is the part of *amqp.Channel used by AMQPSink.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes each event as a persistent JSON message. Publish
// failures are logged and counted; they never reach the emitter.
type AMQPSink struct {
	pub        Publisher
	exchange   string
	routingKey string
	timeout    time.Duration
	logger     *slog.Logger
	failed     func()

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPSink publishes through pub. An empty routingKey uses
// DefaultAMQPQueue on the default exchange.
func NewAMQPSink(pub Publisher, exchange, routingKey string, logger *slog.Logger) *AMQPSink {
	if routingKey == "" {
		routingKey = DefaultAMQPQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPSink{
		pub:        pub,
		exchange:   exchange,
		routingKey: routingKey,
		timeout:    5 * time.Second,
		logger:     logger,
	}
}

// DialAMQPSink connects to url, declares a durable queue named routingKey
// when publishing to the default exchange, and returns a sink owning the
// connection.
func DialAMQPSink(url, exchange, routingKey string, logger *slog.Logger) (*AMQPSink, error) {
	if url == "" {
		return nil, errors.New("audit: amqp url is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("audit: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit: amqp channel: %w", err)
	}

	s := NewAMQPSink(ch, exchange, routingKey, logger)
	if exchange == "" {
		if _, err := ch.QueueDeclare(s.routingKey, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("audit: amqp queue declare: %w", err)
		}
	}
	s.conn, s.ch = conn, ch
	return s, nil
}

// OnFailure registers fn to be called after each failed publish.
func (s *AMQPSink) OnFailure(fn func()) { s.failed = fn }

func (s *AMQPSink) Emit(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.pub.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         event.EventType,
		Body:         body,
	})
	if err != nil {
		s.logger.Warn("audit: amqp publish failed", "event", event.EventType, "err", err)
		if s.failed != nil {
			s.failed()
		}
	}
}

// Close releases the connection opened by DialAMQPSink.
func (s *AMQPSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	chErr := s.ch.Close()
	connErr := s.conn.Close()
	return errors.Join(chErr, connErr)
}
