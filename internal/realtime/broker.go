package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Handler consumes changes delivered by a broker.
type Handler func(ctx context.Context, c Change) error

// Broker carries changes between server processes.
type Broker interface {
	Publish(ctx context.Context, c Change) error
	// Run delivers every change published by any process to handler until ctx
	// is cancelled.
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// ErrBrokerClosed is returned by operations on a closed broker.
var ErrBrokerClosed = errors.New("realtime: broker closed")

// LocalBroker delivers changes within the process. It is the broker of a
// single-node deployment.
type LocalBroker struct {
	mu       sync.RWMutex
	handlers map[int]runHandler
	next     int
	closed   bool
}

type runHandler struct {
	ctx     context.Context
	handler Handler
}

// NewLocalBroker creates an in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: make(map[int]runHandler)}
}

// Publish hands c to every running consumer synchronously.
func (b *LocalBroker) Publish(ctx context.Context, c Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	var errs []error
	for _, h := range b.handlers {
		if err := h.handler(h.ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run registers handler until ctx is done.
func (b *LocalBroker) Run(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	id := b.next
	b.next++
	b.handlers[id] = runHandler{ctx: ctx, handler: handler}
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
	return nil
}

// Close stops accepting publications.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Relay publishes through a broker and feeds everything the broker delivers
// into a hub, so local subscribers see changes from every process.
type Relay struct {
	broker Broker
	hub    *Hub
	logger *slog.Logger
}

// NewRelay wires broker deliveries into hub.
func NewRelay(broker Broker, hub *Hub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{broker: broker, hub: hub, logger: logger.With("component", "realtime.relay")}
}

// Publish sends c to the broker.
func (r *Relay) Publish(ctx context.Context, c Change) error {
	if r == nil || r.broker == nil {
		return nil
	}
	return r.broker.Publish(ctx, c)
}

// Hub returns the hub local subscribers attach to.
func (r *Relay) Hub() *Hub {
	return r.hub
}

// Run consumes the broker until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "realtime relay started")
	err := r.broker.Run(ctx, r.hub.Publish)
	r.logger.InfoContext(ctx, "realtime relay stopped", "error", err)
	return err
}
