// Package events implements the in-process domain event dispatcher. Event
// types are a statically-known set; Publish returns once handlers are
// scheduled, delivery is in-memory at-least-once, and the bus drains all
// in-flight handlers before the process shuts down.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Type identifies a domain event
type Type string

// The full set of domain events. The audit recorder subscribes to all of them.
const (
	CredentialCreated   Type = "db-credential.created"
	CredentialRecreated Type = "db-credential.recreated"
	CredentialDeleted   Type = "db-credential.deleted"

	DatabaseCreated Type = "db.created"
	DatabaseUpdated Type = "db.updated"
	DatabaseDeleted Type = "db.deleted"

	TeamCreated Type = "team.created"
	TeamUpdated Type = "team.updated"
	TeamDeleted Type = "team.deleted"

	MemberCreated Type = "member.created"
	MemberDeleted Type = "member.deleted"
)

// AdminScoped reports whether an event type is resolved against admin grants
// rather than ordinary team membership.
func (t Type) AdminScoped() bool {
	switch t {
	case DatabaseCreated, DatabaseUpdated, DatabaseDeleted:
		return true
	}
	return false
}

// Event is one published domain event: the type tag, the original request
// payload, and the acting identity.
type Event struct {
	Type       Type
	Payload    any
	ActorEmail string
}

// Handler consumes one event. Handlers run on their own goroutine and must
// not block indefinitely.
type Handler interface {
	Handle(ctx context.Context, event Event)
}

// Bus dispatches events to subscribed handlers asynchronously. The zero
// value is not usable; construct with NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	inflight sync.WaitGroup
	closed   bool
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for the given event types. Subscribe is meant
// for startup wiring and not safe to race with Publish on the same types.
func (b *Bus) Subscribe(handler Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Publish schedules delivery of the event to every subscriber and returns
// immediately. Each handler runs on its own goroutine with panic recovery,
// on a context detached from the caller's cancelation. Delivery is
// at-least-once while the process lives; events published just before a
// crash can be lost.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		slog.Warn("event dropped after bus shutdown", "type", string(event.Type))
		return
	}

	// Handlers outlive the publishing request. Detach from its cancelation
	// so an audit write is not aborted the moment the HTTP response goes
	// out; context values (request id) still flow through.
	ctx = context.WithoutCancel(ctx)

	for _, h := range b.handlers[event.Type] {
		handler := h
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("recovered panic in event handler", "type", string(event.Type), "panic", r)
				}
			}()
			handler.Handle(ctx, event)
		}()
	}
}

// Shutdown stops accepting new events and blocks until all in-flight handlers
// finish or the context expires.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, event Event)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, event Event) {
	f(ctx, event)
}
