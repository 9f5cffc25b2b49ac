// Package store provides the primary record stores of the submission core:
// the append-only per-submission event log and the indexed submission store.
// The in-memory implementations are the default; a bbolt-backed event store
// provides durability across restarts.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

// EventFilter narrows event reads. Zero value matches everything.
type EventFilter struct {
	Types     []domain.EventType
	ActorKind domain.ActorKind
	Since     *time.Time // inclusive
	Until     *time.Time // inclusive
	Limit     *int       // nil = unlimited; 0 = empty page (count still full)
	Offset    int
}

func (f EventFilter) matches(ev *domain.Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if ev.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ActorKind != "" && ev.Actor.Kind != f.ActorKind {
		return false
	}
	if f.Since != nil && ev.TS.Before(*f.Since) {
		return false
	}
	if f.Until != nil && ev.TS.After(*f.Until) {
		return false
	}
	return true
}

// EventStore is the durable leg of the triple-write.
type EventStore interface {
	// Append persists one event. The event's version must be exactly one
	// past the last stored version for its submission, and its ID unique.
	Append(ctx context.Context, ev *domain.Event) error

	// List returns matching events in version order, with resume tokens
	// redacted from payloads.
	List(ctx context.Context, submissionID string, filter EventFilter) ([]*domain.Event, error)

	// Count returns the number of matching events ignoring pagination.
	Count(ctx context.Context, submissionID string, filter EventFilter) (int, error)
}

// MemoryEventStore is the default EventStore.
type MemoryEventStore struct {
	mu       sync.RWMutex
	events   map[string][]*domain.Event
	eventIDs map[string]bool
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events:   make(map[string][]*domain.Event),
		eventIDs: make(map[string]bool),
	}
}

// Append implements EventStore.
func (s *MemoryEventStore) Append(_ context.Context, ev *domain.Event) error {
	if ev.SubmissionID == "" || ev.EventID == "" {
		return apperrors.StorageError("event is missing submission or event id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventIDs[ev.EventID] {
		return apperrors.Conflict(fmt.Sprintf("duplicate event id %s", ev.EventID))
	}
	log := s.events[ev.SubmissionID]
	if want := int64(len(log)) + 1; ev.Version != want {
		return apperrors.Conflict(fmt.Sprintf("event version %d for %s, want %d", ev.Version, ev.SubmissionID, want))
	}

	s.events[ev.SubmissionID] = append(log, ev)
	s.eventIDs[ev.EventID] = true
	return nil
}

// List implements EventStore.
func (s *MemoryEventStore) List(_ context.Context, submissionID string, filter EventFilter) ([]*domain.Event, error) {
	s.mu.RLock()
	log := s.events[submissionID]
	matched := make([]*domain.Event, 0, len(log))
	for _, ev := range log {
		if filter.matches(ev) {
			matched = append(matched, ev)
		}
	}
	s.mu.RUnlock()

	return paginate(matched, filter), nil
}

// Count implements EventStore.
func (s *MemoryEventStore) Count(_ context.Context, submissionID string, filter EventFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ev := range s.events[submissionID] {
		if filter.matches(ev) {
			n++
		}
	}
	return n, nil
}

// paginate applies offset/limit and redacts credential material.
func paginate(matched []*domain.Event, filter EventFilter) []*domain.Event {
	if filter.Offset >= len(matched) {
		return []*domain.Event{}
	}
	matched = matched[filter.Offset:]
	if filter.Limit != nil && *filter.Limit < len(matched) {
		matched = matched[:*filter.Limit]
	}
	out := make([]*domain.Event, len(matched))
	for i, ev := range matched {
		out[i] = ev.Redacted()
	}
	return out
}
