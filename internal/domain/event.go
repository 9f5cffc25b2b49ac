package domain

import "time"

// EventType defines the type of an intake event.
type EventType string

const (
	EventSubmissionCreated   EventType = "submission.created"
	EventFieldUpdated        EventType = "field.updated"
	EventValidationPassed    EventType = "validation.passed"
	EventValidationFailed    EventType = "validation.failed"
	EventUploadRequested     EventType = "upload.requested"
	EventUploadCompleted     EventType = "upload.completed"
	EventUploadFailed        EventType = "upload.failed"
	EventSubmissionSubmitted EventType = "submission.submitted"
	EventReviewRequested     EventType = "review.requested"
	EventReviewApproved      EventType = "review.approved"
	EventReviewRejected      EventType = "review.rejected"
	EventDeliveryAttempted   EventType = "delivery.attempted"
	EventDeliverySucceeded   EventType = "delivery.succeeded"
	EventDeliveryFailed      EventType = "delivery.failed"
	EventSubmissionFinalized EventType = "submission.finalized"
	EventSubmissionCancelled EventType = "submission.cancelled"
	EventSubmissionExpired   EventType = "submission.expired"
	EventHandoffLinkIssued   EventType = "handoff.link_issued"
	EventHandoffResumed      EventType = "handoff.resumed"
)

// Event is an immutable, versioned record of one state-affecting action.
// Version is per-submission and strictly increasing with no gaps.
type Event struct {
	EventID      string         `json:"eventId"`
	Type         EventType      `json:"type"`
	SubmissionID string         `json:"submissionId"`
	TS           time.Time      `json:"ts"`
	Actor        Actor          `json:"actor"`
	State        State          `json:"state"`
	Payload      map[string]any `json:"payload,omitempty"`
	Version      int64          `json:"version"`
}

// redactedPayloadKeys are stripped from payloads on read paths. The current
// resume token never leaves through event history.
var redactedPayloadKeys = map[string]bool{
	"resumeToken":  true,
	"resume_token": true,
	"token":        true,
}

// Redacted returns a copy with credential material removed from the payload.
// Events without such keys are returned as-is.
func (e *Event) Redacted() *Event {
	if e == nil || len(e.Payload) == 0 {
		return e
	}
	dirty := false
	for k := range e.Payload {
		if redactedPayloadKeys[k] {
			dirty = true
			break
		}
	}
	if !dirty {
		return e
	}
	cp := *e
	cp.Payload = make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		if redactedPayloadKeys[k] {
			continue
		}
		cp.Payload[k] = v
	}
	return &cp
}
