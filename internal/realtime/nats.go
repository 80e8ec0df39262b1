package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

// NATSBroker publishes changes on "<prefix>.<table>" subjects.
type NATSBroker struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// DialNATS connects to url and returns a broker on the given subject prefix.
func DialNATS(url, prefix string, logger *slog.Logger) (*NATSBroker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("companion"),
		nats.MaxReconnects(-1),
		nats.DrainTimeout(5*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, s *nats.Subscription, err error) {
			if s != nil {
				logger.Error("async NATS error", "error", err, "subject", s.Subject)
				return
			}
			logger.Error("async NATS error outside subscription", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNATSBroker(conn, prefix, logger), nil
}

// NewNATSBroker wraps an existing connection.
func NewNATSBroker(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSBroker {
	if prefix == "" {
		prefix = "companion.changes"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBroker{conn: conn, prefix: prefix, logger: logger.With("component", "realtime.nats")}
}

// Publish sends c on the subject of its table.
func (b *NATSBroker) Publish(ctx context.Context, c Change) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	subject := SubjectFor(b.prefix, c.Table)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	b.logger.DebugContext(ctx, "published change", "subject", subject, "record_id", c.RecordID)
	return nil
}

// Run subscribes to every table subject until ctx is cancelled.
func (b *NATSBroker) Run(ctx context.Context, handler Handler) error {
	sub, err := b.conn.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		change, err := Decode(msg.Data)
		if err != nil {
			b.logger.WarnContext(ctx, "skipping undecodable message", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, change); err != nil {
			b.logger.WarnContext(ctx, "change handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

// Close drains the connection.
func (b *NATSBroker) Close() error {
	return b.conn.Drain()
}

// SubjectFor builds the subject of a table; dots and spaces in the table
// name are replaced so they do not create extra subject tokens.
func SubjectFor(prefix, table string) string {
	safe := strings.NewReplacer(".", "_", " ", "_").Replace(table)
	return prefix + "." + safe
}
