package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"contentplanner/pkg/metrics"
	"contentplanner/pkg/otel"
	"contentplanner/pkg/trace"
)

// ErrDeliveriesClosed is returned by StartConsuming when the broker closes the
// delivery stream without Stop being called.
var ErrDeliveriesClosed = errors.New("mq: delivery channel closed")

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// QueueOptions controls how the consumer queue is declared. An empty Name with
// Exclusive set gives a server-named queue that disappears with the connection.
type QueueOptions struct {
	Name      string
	Exclusive bool
	// Requeue failed messages. Exclusive queues usually leave this off so a
	// poisoned message does not spin.
	Requeue bool
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger
	requeue    bool

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewConsumer creates a consumer bound to routingKey on the events exchange.
func NewConsumer(url string, opts QueueOptions, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		opts.Name,
		!opts.Exclusive, // durable
		opts.Exclusive,  // auto-delete
		opts.Exclusive,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", q.Name),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
		requeue:    opts.Requeue,
		stopped:    make(chan struct{}),
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// Stop closes the channel and connection; StartConsuming then returns nil.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		if c.channel != nil {
			_ = c.channel.Close()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Close is an alias for Stop.
func (c *Consumer) Close() {
	c.Stop()
}

// StartConsuming blocks until ctx is done, Stop is called or the broker drops
// the delivery stream. Every message is acked or nacked exactly once.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return nil
		case <-c.stopped:
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				select {
				case <-c.stopped:
					return nil
				default:
					return ErrDeliveriesClosed
				}
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	ctx = deliveryContext(ctx, msg.Headers)
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", msg.RoutingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			if err := msg.Nack(false, c.requeue); err != nil {
				c.logger.Error("Failed to nack message after panic", zap.Error(err))
			}
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		c.logger.Error("Handler error",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		if err := msg.Nack(false, c.requeue); err != nil {
			c.logger.Error("Failed to nack message", zap.Error(err))
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
		return
	}
	metrics.RecordMQConsumeLatency(ExchangeName, time.Since(start))
}

// deliveryContext restores the trace id and span context sent by publishHeaders.
func deliveryContext(ctx context.Context, headers amqp091.Table) context.Context {
	if traceID, ok := headers[trace.HeaderName()].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	return otel.ExtractMQ(ctx, headers)
}
