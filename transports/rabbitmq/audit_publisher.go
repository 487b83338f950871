package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Rizky-Iqbal36/raw-blogs/interceptors"
)

// Channel is the subset of *amqp.Channel the publisher needs
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AuditPublisher publishes audit records as JSON messages
type AuditPublisher struct {
	ch             Channel
	conn           io.Closer
	exchange       string
	exchangeType   string
	routingPrefix  string
	publishTimeout time.Duration
	logger         *slog.Logger
}

// PublisherOption configures the publisher
type PublisherOption func(*AuditPublisher)

// WithExchange sets the exchange name
func WithExchange(name string) PublisherOption {
	return func(p *AuditPublisher) {
		p.exchange = name
	}
}

// WithExchangeType sets the exchange kind used by Declare
func WithExchangeType(kind string) PublisherOption {
	return func(p *AuditPublisher) {
		p.exchangeType = kind
	}
}

// WithRoutingPrefix sets the first segment of the routing key
func WithRoutingPrefix(prefix string) PublisherOption {
	return func(p *AuditPublisher) {
		p.routingPrefix = prefix
	}
}

// WithPublishTimeout sets the publish timeout used when ctx has no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *AuditPublisher) {
		p.publishTimeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *AuditPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewAuditPublisher creates a publisher on an open channel
func NewAuditPublisher(ch Channel, options ...PublisherOption) *AuditPublisher {
	p := &AuditPublisher{
		ch:             ch,
		exchange:       "interceptors.audit",
		exchangeType:   amqp.ExchangeTopic,
		routingPrefix:  "audit",
		publishTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Dial connects to RabbitMQ, opens a channel and declares the exchange
func Dial(url string, options ...PublisherOption) (*AuditPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := NewAuditPublisher(ch, options...)
	p.conn = conn

	if err := p.Declare(); err != nil {
		p.Close()
		return nil, err
	}

	p.logger.Info("audit publisher connected", "exchange", p.exchange)
	return p, nil
}

// Declare declares the durable audit exchange
func (p *AuditPublisher) Declare() error {
	if err := p.ch.ExchangeDeclare(p.exchange, p.exchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

// RoutingKey returns the routing key for a record: prefix.target.method
func (p *AuditPublisher) RoutingKey(record interceptors.AuditRecord) string {
	target := record.Target
	if target == "" {
		target = "unknown"
	}
	return fmt.Sprintf("%s.%s.%s", p.routingPrefix, target, record.Method)
}

// PublishAudit implements interceptors.AuditPublisher
func (p *AuditPublisher) PublishAudit(ctx context.Context, record interceptors.AuditRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.InvocationID,
		Timestamp:    record.StartedAt,
		Type:         "interceptors.AuditRecord",
		Headers: amqp.Table{
			"x-target":  record.Target,
			"x-method":  record.Method,
			"x-success": record.Success,
		},
		Body: body,
	}

	key := p.RoutingKey(record)
	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish audit record %s to %s/%s: %w", record.InvocationID, p.exchange, key, err)
	}

	p.logger.Debug("audit record published",
		"invocationId", record.InvocationID,
		"routingKey", key,
	)
	return nil
}

// Close closes the channel and, when owned, the connection
func (p *AuditPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ interceptors.AuditPublisher = (*AuditPublisher)(nil)
