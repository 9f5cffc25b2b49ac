package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

// Stats is a snapshot of the store's incremental counters.
type Stats struct {
	Total         int                  `json:"total"`
	States        map[domain.State]int `json:"states"`
	Intakes       map[string]int       `json:"intakes"`
	PendingReview int                  `json:"pendingReview"`
}

// SubmissionStore owns submission records exclusively. Primary index by id,
// secondary by current resume token and by (tenant, intake, idempotency
// key). All counters are maintained incrementally on save, never by scan.
type SubmissionStore struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Submission
	byToken   map[string]string
	byIdemKey map[string]string

	stateCounts   map[domain.State]int
	intakeCounts  map[string]int
	pendingReview int
}

// NewSubmissionStore creates an empty store.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		byID:         make(map[string]*domain.Submission),
		byToken:      make(map[string]string),
		byIdemKey:    make(map[string]string),
		stateCounts:  make(map[domain.State]int),
		intakeCounts: make(map[string]int),
	}
}

func idemKey(tenantID, intakeID, key string) string {
	return tenantID + "\x00" + intakeID + "\x00" + key
}

// Save inserts or updates a submission. The record update, old token index
// removal and new token index insertion happen under one lock, so readers
// observe the rotation as a single step.
func (s *SubmissionStore) Save(sub *domain.Submission) error {
	if sub == nil || sub.ID == "" {
		return apperrors.StorageError("submission is missing an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.byID[sub.ID]
	stored := sub.Clone()

	if old != nil {
		if old.ResumeToken != stored.ResumeToken {
			delete(s.byToken, old.ResumeToken)
		}
		s.stateCounts[old.State]--
		if old.State == domain.StateNeedsReview {
			s.pendingReview--
		}
	} else {
		s.intakeCounts[stored.IntakeID]++
		if stored.IdempotencyKey != "" {
			s.byIdemKey[idemKey(stored.TenantID, stored.IntakeID, stored.IdempotencyKey)] = stored.ID
		}
	}

	s.byID[stored.ID] = stored
	s.byToken[stored.ResumeToken] = stored.ID
	s.stateCounts[stored.State]++
	if stored.State == domain.StateNeedsReview {
		s.pendingReview++
	}
	return nil
}

// Get returns a copy of the submission. When tenantID is non-empty, records
// belonging to a different tenant surface as not found so cross-tenant
// probing cannot confirm existence.
func (s *SubmissionStore) Get(id, tenantID string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := s.byID[id]
	if sub == nil || (tenantID != "" && sub.TenantID != tenantID) {
		return nil, apperrors.NotFound(fmt.Sprintf("submission %s not found", id))
	}
	return sub.Clone(), nil
}

// GetByResumeToken is the O(1) token index lookup.
func (s *SubmissionStore) GetByResumeToken(token string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, apperrors.NotFound("no submission for this resume token")
	}
	return s.byID[id].Clone(), nil
}

// GetByIdempotencyKey returns the submission created under (tenant, intake,
// key), or nil when none exists.
func (s *SubmissionStore) GetByIdempotencyKey(tenantID, intakeID, key string) *domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdemKey[idemKey(tenantID, intakeID, key)]
	if !ok {
		return nil
	}
	if sub := s.byID[id]; sub != nil {
		return sub.Clone()
	}
	return nil
}

// ListExpired returns non-terminal submissions whose TTL boundary passed.
func (s *SubmissionStore) ListExpired(now time.Time) []*domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Submission
	for _, sub := range s.byID {
		if !sub.State.Terminal() && sub.IsExpired(now) {
			out = append(out, sub.Clone())
		}
	}
	return out
}

// Size returns the number of stored submissions.
func (s *SubmissionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Stats returns a snapshot of the incremental counters.
func (s *SubmissionStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Total:         len(s.byID),
		States:        make(map[domain.State]int, len(s.stateCounts)),
		Intakes:       make(map[string]int, len(s.intakeCounts)),
		PendingReview: s.pendingReview,
	}
	for k, v := range s.stateCounts {
		if v > 0 {
			st.States[k] = v
		}
	}
	for k, v := range s.intakeCounts {
		if v > 0 {
			st.Intakes[k] = v
		}
	}
	return st
}

// Evict removes oldest terminal-state submissions by updatedAt until the
// store holds at most maxEntries records. Returns the number removed.
func (s *SubmissionStore) Evict(maxEntries int) int {
	if maxEntries <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := len(s.byID) - maxEntries
	if excess <= 0 {
		return 0
	}

	terminal := make([]*domain.Submission, 0)
	for _, sub := range s.byID {
		if sub.State.Terminal() {
			terminal = append(terminal, sub)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.Before(terminal[j].UpdatedAt)
	})

	removed := 0
	for _, sub := range terminal {
		if removed >= excess {
			break
		}
		s.remove(sub)
		removed++
	}
	return removed
}

// CleanupExpired removes terminal submissions that are past their TTL
// boundary. Idempotent: repeated calls are no-ops once clean.
func (s *SubmissionStore) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, sub := range s.byID {
		if sub.State.Terminal() && sub.IsExpired(now) {
			s.remove(sub)
			removed++
		}
	}
	return removed
}

// remove deletes a record and unwinds every index and counter. Caller holds
// the write lock.
func (s *SubmissionStore) remove(sub *domain.Submission) {
	delete(s.byID, sub.ID)
	delete(s.byToken, sub.ResumeToken)
	if sub.IdempotencyKey != "" {
		delete(s.byIdemKey, idemKey(sub.TenantID, sub.IntakeID, sub.IdempotencyKey))
	}
	s.stateCounts[sub.State]--
	s.intakeCounts[sub.IntakeID]--
	if sub.State == domain.StateNeedsReview {
		s.pendingReview--
	}
}
