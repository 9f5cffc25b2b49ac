package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
)

// EventHandler processes one intake event.
type EventHandler func(ctx context.Context, event *Event) error

// Emitter is the live fan-out leg of the triple-write. Listeners run
// best-effort and in isolation: a failing handler is logged and the rest
// still run; nothing here rolls back the durable event store write.
type Emitter struct {
	handlers map[EventType][]EventHandler
	all      []EventHandler
	mu       sync.RWMutex
}

// NewEmitter creates an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register registers a handler for a specific event type.
func (e *Emitter) Register(eventType EventType, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], handler)
}

// RegisterAll registers a handler that receives every event.
func (e *Emitter) RegisterAll(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, handler)
}

// Emit fans an event out to all matching handlers sequentially. Handler
// failures are logged; the first error is returned for observability but
// callers on the write path ignore it.
func (e *Emitter) Emit(ctx context.Context, event *Event) error {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.all)+len(e.handlers[event.Type]))
	handlers = append(handlers, e.all...)
	handlers = append(handlers, e.handlers[event.Type]...)
	e.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := safeInvoke(ctx, handler, event); err != nil {
			logger.Error("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.EventID),
				zap.String("submission_id", event.SubmissionID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.Type, err)
			}
		}
	}
	return firstErr
}

// safeInvoke isolates a panicking listener from its siblings.
func safeInvoke(ctx context.Context, handler EventHandler, event *Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return handler(ctx, event)
}
