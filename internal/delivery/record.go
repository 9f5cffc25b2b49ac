// Package delivery implements the webhook delivery queue and engine:
// at-least-once signed delivery with exponential-backoff retries and a
// background scheduler that resumes deliveries after process restart.
package delivery

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

// Status is the state of one delivery record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record tracks one webhook delivery. The prepared request (method, URL,
// headers, body) is captured at enqueue time so retries, including retries
// after a restart, send the exact payload that was accepted for delivery.
type Record struct {
	DeliveryID     string     `json:"deliveryId"`
	SubmissionID   string     `json:"submissionId"`
	DestinationURL string     `json:"destinationUrl"`
	Status         Status     `json:"status"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastAttemptAt  *time.Time `json:"lastAttemptAt,omitempty"`
	NextRetryAt    *time.Time `json:"nextRetryAt,omitempty"`
	StatusCode     int        `json:"statusCode,omitempty"`
	Error          string     `json:"error,omitempty"`

	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body"`
}

func (r *Record) clone() *Record {
	cp := *r
	if r.LastAttemptAt != nil {
		t := *r.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	if r.NextRetryAt != nil {
		t := *r.NextRetryAt
		cp.NextRetryAt = &t
	}
	cp.Headers = make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		cp.Headers[k] = v
	}
	cp.Body = append([]byte(nil), r.Body...)
	return &cp
}

// QueueStats summarizes the queue by status.
type QueueStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Queue stores delivery records, indexed by delivery ID and submission ID.
type Queue interface {
	Enqueue(rec *Record) error
	Get(deliveryID string) (*Record, error)
	GetBySubmission(submissionID string) []*Record
	Update(rec *Record) error
	// GetPendingRetries returns pending records whose nextRetryAt has
	// passed, or which carry no nextRetryAt but have stalled (restart
	// recovery).
	GetPendingRetries(now time.Time) []*Record
	Stats() QueueStats
}

// MemoryQueue is the default in-memory Queue.
type MemoryQueue struct {
	mu           sync.RWMutex
	byID         map[string]*Record
	bySubmission map[string][]string
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		byID:         make(map[string]*Record),
		bySubmission: make(map[string][]string),
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(rec *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byID[rec.DeliveryID]; exists {
		return apperrors.Conflict(fmt.Sprintf("delivery %s already enqueued", rec.DeliveryID))
	}
	q.byID[rec.DeliveryID] = rec.clone()
	q.bySubmission[rec.SubmissionID] = append(q.bySubmission[rec.SubmissionID], rec.DeliveryID)
	return nil
}

// Get implements Queue.
func (q *MemoryQueue) Get(deliveryID string) (*Record, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	rec, ok := q.byID[deliveryID]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("delivery %s not found", deliveryID))
	}
	return rec.clone(), nil
}

// GetBySubmission implements Queue.
func (q *MemoryQueue) GetBySubmission(submissionID string) []*Record {
	q.mu.RLock()
	defer q.mu.RUnlock()
	ids := q.bySubmission[submissionID]
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := q.byID[id]; ok {
			out = append(out, rec.clone())
		}
	}
	return out
}

// Update implements Queue.
func (q *MemoryQueue) Update(rec *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[rec.DeliveryID]; !ok {
		return apperrors.NotFound(fmt.Sprintf("delivery %s not found", rec.DeliveryID))
	}
	q.byID[rec.DeliveryID] = rec.clone()
	return nil
}

// GetPendingRetries implements Queue.
func (q *MemoryQueue) GetPendingRetries(now time.Time) []*Record {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []*Record
	for _, rec := range q.byID {
		if rec.Status != StatusPending {
			continue
		}
		if rec.NextRetryAt != nil && rec.NextRetryAt.After(now) {
			continue
		}
		if rec.NextRetryAt == nil && rec.Attempts == 0 {
			// Freshly enqueued; its processor owns it unless it stalls.
			if now.Sub(rec.CreatedAt) < time.Minute {
				continue
			}
		}
		out = append(out, rec.clone())
	}
	return out
}

// Stats implements Queue.
func (q *MemoryQueue) Stats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	st := QueueStats{Total: len(q.byID)}
	for _, rec := range q.byID {
		switch rec.Status {
		case StatusPending:
			st.Pending++
		case StatusSucceeded:
			st.Succeeded++
		case StatusFailed:
			st.Failed++
		}
	}
	return st
}
