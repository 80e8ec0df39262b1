package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig configures the RabbitMQ broker.
type AMQPConfig struct {
	URL        string
	Exchange   string
	MaxBackoff time.Duration
}

// AMQPBroker fans changes out through a durable fanout exchange. Each
// consumer binds its own server-named exclusive queue, so every process sees
// every change.
type AMQPBroker struct {
	cfg    AMQPConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewAMQPBroker creates a broker; connections are opened lazily.
func NewAMQPBroker(cfg AMQPConfig, logger *slog.Logger) *AMQPBroker {
	if cfg.Exchange == "" {
		cfg.Exchange = "companion.changes"
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPBroker{cfg: cfg, logger: logger.With("component", "realtime.amqp", "exchange", cfg.Exchange)}
}

// Publish sends c to the exchange with the table as routing key.
func (b *AMQPBroker) Publish(ctx context.Context, c Change) error {
	body, err := Encode(c)
	if err != nil {
		return err
	}
	ch, err := b.publishChannel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, b.cfg.Exchange, c.Table, false, false, amqp.Publishing{
		ContentType: "application/msgpack",
		Timestamp:   c.OccurredAt,
		Body:        body,
	})
	if err != nil {
		b.resetPublisher()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff.
func (b *AMQPBroker) Run(ctx context.Context, handler Handler) error {
	backoff := time.Second
	for {
		err := b.consume(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if b.isClosed() {
			return ErrBrokerClosed
		}
		b.logger.WarnContext(ctx, "amqp consumer stopped, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < b.cfg.MaxBackoff {
			backoff *= 2
			if backoff > b.cfg.MaxBackoff {
				backoff = b.cfg.MaxBackoff
			}
		}
	}
}

func (b *AMQPBroker) consume(ctx context.Context, handler Handler) error {
	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := b.declare(ch); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	b.logger.InfoContext(ctx, "amqp consumer attached", "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			change, err := Decode(d.Body)
			if err != nil {
				b.logger.WarnContext(ctx, "skipping undecodable delivery", "error", err)
				continue
			}
			if err := handler(ctx, change); err != nil {
				b.logger.WarnContext(ctx, "change handler failed", "error", err, "table", change.Table)
			}
		}
	}
}

func (b *AMQPBroker) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(b.cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return nil
}

func (b *AMQPBroker) publishChannel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	if b.ch != nil && !b.ch.IsClosed() {
		return b.ch, nil
	}
	if b.conn == nil || b.conn.IsClosed() {
		conn, err := amqp.Dial(b.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}
		b.conn = conn
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := b.declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	b.ch = ch
	return ch, nil
}

func (b *AMQPBroker) resetPublisher() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
}

func (b *AMQPBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close releases the publishing connection.
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	var errs []error
	if b.ch != nil {
		errs = append(errs, b.ch.Close())
		b.ch = nil
	}
	if b.conn != nil {
		errs = append(errs, b.conn.Close())
		b.conn = nil
	}
	return errors.Join(errs...)
}
