package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store persists audit events for later inspection.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRider(ctx context.Context, riderID string) ([]Event, error)
}

// Sink forwards events to an external system (Kafka, SIEM). Optional.
type Sink interface {
	Produce(ctx context.Context, event Event) error
}

// Publisher fans audit events out to a store and, when configured, an
// external sink. Emission must never fail a domain operation: errors are
// logged and swallowed.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger

	buffer chan Event
	wg     sync.WaitGroup
	closed chan struct{}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with the given buffer size.
// Events are drained by a background worker; Close flushes the buffer.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = make(chan Event, size)
	}
}

// WithSink attaches an external sink alongside the store.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

// WithLogger sets the logger used for emission failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a Publisher writing to store. Without options it is
// synchronous and store-only.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. In async mode a full buffer drops the event with a
// warning rather than blocking the caller.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.buffer == nil {
		p.deliver(ctx, event)
		return nil
	}
	select {
	case p.buffer <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

// List returns stored events for a rider.
func (p *Publisher) List(ctx context.Context, riderID string) ([]Event, error) {
	return p.store.ListByRider(ctx, riderID)
}

// Close stops the async worker and flushes any buffered events.
func (p *Publisher) Close() {
	if p.buffer != nil {
		close(p.closed)
		p.wg.Wait()
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.buffer:
			p.deliver(context.Background(), event)
		case <-p.closed:
			for {
				select {
				case event := <-p.buffer:
					p.deliver(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.Error("audit store append failed", "action", event.Action, "error", err)
	}
	if p.sink != nil {
		if err := p.sink.Produce(ctx, event); err != nil {
			p.logger.Error("audit sink produce failed", "action", event.Action, "error", err)
		}
	}
}
