package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"docvault/internal/config"
	"docvault/internal/model"
)

// rabbitPublisher publishes events to a durable topic exchange. The channel is
// re-established lazily: a publish after a dropped connection reconnects and
// redeclares the topology before sending.
type rabbitPublisher struct {
	cfg    config.RabbitMQConfig
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitMQ connects to the broker and declares the exchange, queue and
// binding. The initial connection failure is returned so startup can decide
// whether to proceed; later drops are handled by reconnect-on-publish.
func NewRabbitMQ(cfg config.RabbitMQConfig, logger *zap.Logger) (Publisher, error) {
	p := &rabbitPublisher{cfg: cfg, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials the broker and declares the topology. Caller holds no lock.
func (p *rabbitPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked()
}

func (p *rabbitPublisher) connectLocked() error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(p.cfg.Queue, "document.*", p.cfg.Exchange, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("bind queue: %w", err)
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info("connected to event bus",
		zap.String("exchange", p.cfg.Exchange),
		zap.String("queue", p.cfg.Queue),
	)
	return nil
}

// channel returns a live channel, reconnecting if the previous one dropped.
func (p *rabbitPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p.ch, nil
}

// Publish sends one event. Errors are returned for the caller to log; they
// must never be escalated past the orchestrator boundary.
func (p *rabbitPublisher) Publish(ctx context.Context, eventType string, data any, routingKey string) error {
	ch, err := p.channel()
	if err != nil {
		p.logger.Error("event bus unavailable", zap.String("event_type", eventType), zap.Error(err))
		return err
	}

	correlationID := ""
	if v, ok := ctx.Value(correlationIDKey{}).(string); ok {
		correlationID = v
	}
	env := NewEnvelope(eventType, data, correlationID)

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if routingKey == "" {
		routingKey = RoutingKey(eventType)
	}

	err = ch.PublishWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Timestamp:     env.Timestamp,
		Body:          body,
	})
	if err != nil {
		p.logger.Error("publish failed",
			zap.String("event_type", eventType),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info("published event",
		zap.String("event_type", eventType),
		zap.String("routing_key", routingKey),
		zap.String("event_id", env.EventID),
	)
	return nil
}

func (p *rabbitPublisher) DocumentUploaded(ctx context.Context, e model.UploadedEvent) error {
	return p.Publish(ctx, "uploaded", e, "")
}

func (p *rabbitPublisher) DocumentScanned(ctx context.Context, e model.ScannedEvent) error {
	return p.Publish(ctx, "scanned", e, "")
}

func (p *rabbitPublisher) DocumentDeleted(ctx context.Context, e model.DeletedEvent) error {
	return p.Publish(ctx, "deleted", e, "")
}

func (p *rabbitPublisher) DocumentUpdated(ctx context.Context, e model.UpdatedEvent) error {
	return p.Publish(ctx, "updated", e, "")
}

func (p *rabbitPublisher) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("event bus disconnected")
	}
	return nil
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

// correlationIDKey carries a request correlation id through context into the
// event envelope.
type correlationIDKey struct{}

// WithCorrelationID returns ctx carrying the given correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// publishTimeout bounds a fire-and-forget publish so it cannot stall callers.
const publishTimeout = 5 * time.Second

// FireAndForget publishes in a background goroutine with its own deadline.
// The primary workflow never waits on, nor fails from, the publish.
func FireAndForget(pub Publisher, fn func(ctx context.Context, pub Publisher) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		_ = fn(ctx, pub)
	}()
}
