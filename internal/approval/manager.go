package approval

import (
	"context"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/metrics"
)

// Session is a locked, pre-flighted view of a submission under review. The
// submission workflow hands one out after loading the record, applying
// tenant scope, comparing the resume token in constant time and checking
// the state is needs_review. Close releases the lock.
type Session interface {
	Submission() *domain.Submission

	// Commit applies the transition, records the review event through the
	// triple-write, rotates the resume token and persists. It returns the
	// rotated token.
	Commit(ctx context.Context, actor domain.Actor, to domain.State, eventType domain.EventType, payload map[string]any) (string, error)

	// EnqueueDelivery enqueues webhook delivery to the intake's
	// destination and returns the delivery ID, or "" when the intake has
	// no destination.
	EnqueueDelivery(ctx context.Context) (string, error)

	Close()
}

// Workflow is the slice of the submission manager the reviewer actions
// need.
type Workflow interface {
	BeginReview(ctx context.Context, submissionID, tenantID, resumeToken string) (Session, error)
}

// WebhookNotifier informs reviewers' counterparts of negative outcomes. It
// is called outside the submission lock and must not block on it.
type WebhookNotifier interface {
	ReviewRejected(ctx context.Context, sub *domain.Submission, actor domain.Actor, comment string)
	ChangesRequested(ctx context.Context, sub *domain.Submission, actor domain.Actor, comment string)
}

// ActionParams identifies the submission and reviewer for one decision.
type ActionParams struct {
	SubmissionID string
	TenantID     string
	ResumeToken  string
	Actor        domain.Actor
	Comment      string
}

// Result is the outcome of a reviewer action.
type Result struct {
	SubmissionID string       `json:"submissionId"`
	State        domain.State `json:"state"`
	ResumeToken  string       `json:"resumeToken"`
	DeliveryID   string       `json:"deliveryId,omitempty"`
}

// Manager orchestrates the reviewer actions gating transitions out of
// needs_review.
type Manager struct {
	workflow Workflow
	notifier WebhookNotifier
}

// NewManager creates an approval manager. notifier may be nil.
func NewManager(workflow Workflow) *Manager {
	return &Manager{workflow: workflow}
}

// SetNotifier wires the reviewer notifier after construction.
func (m *Manager) SetNotifier(n WebhookNotifier) {
	m.notifier = n
}

// Approve transitions needs_review to approved and enqueues delivery.
func (m *Manager) Approve(ctx context.Context, p ActionParams) (*Result, error) {
	sess, err := m.workflow.BeginReview(ctx, p.SubmissionID, p.TenantID, p.ResumeToken)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	token, err := sess.Commit(ctx, p.Actor, domain.StateApproved, domain.EventReviewApproved, reviewPayload("approved", p))
	if err != nil {
		return nil, err
	}
	metrics.ReviewDecisions.WithLabelValues("approved").Inc()

	deliveryID, err := sess.EnqueueDelivery(ctx)
	if err != nil {
		// The approval itself stands; delivery recovery is the retry
		// scheduler's problem.
		logger.Error("delivery enqueue after approval failed",
			zap.String("submission_id", p.SubmissionID),
			zap.Error(err),
		)
	}

	return &Result{
		SubmissionID: p.SubmissionID,
		State:        domain.StateApproved,
		ResumeToken:  token,
		DeliveryID:   deliveryID,
	}, nil
}

// Reject transitions needs_review to rejected, a terminal state.
func (m *Manager) Reject(ctx context.Context, p ActionParams) (*Result, error) {
	sess, err := m.workflow.BeginReview(ctx, p.SubmissionID, p.TenantID, p.ResumeToken)
	if err != nil {
		return nil, err
	}

	token, err := sess.Commit(ctx, p.Actor, domain.StateRejected, domain.EventReviewRejected, reviewPayload("rejected", p))
	sub := sess.Submission()
	sess.Close()
	if err != nil {
		return nil, err
	}
	metrics.ReviewDecisions.WithLabelValues("rejected").Inc()

	if m.notifier != nil {
		m.notifier.ReviewRejected(ctx, sub, p.Actor, p.Comment)
	}

	return &Result{
		SubmissionID: p.SubmissionID,
		State:        domain.StateRejected,
		ResumeToken:  token,
	}, nil
}

// RequestChanges sends the submission back to in_progress for rework.
func (m *Manager) RequestChanges(ctx context.Context, p ActionParams) (*Result, error) {
	sess, err := m.workflow.BeginReview(ctx, p.SubmissionID, p.TenantID, p.ResumeToken)
	if err != nil {
		return nil, err
	}

	token, err := sess.Commit(ctx, p.Actor, domain.StateInProgress, domain.EventReviewRequested, reviewPayload("changes_requested", p))
	sub := sess.Submission()
	sess.Close()
	if err != nil {
		return nil, err
	}
	metrics.ReviewDecisions.WithLabelValues("changes_requested").Inc()

	if m.notifier != nil {
		m.notifier.ChangesRequested(ctx, sub, p.Actor, p.Comment)
	}

	return &Result{
		SubmissionID: p.SubmissionID,
		State:        domain.StateInProgress,
		ResumeToken:  token,
	}, nil
}

func reviewPayload(decision string, p ActionParams) map[string]any {
	payload := map[string]any{
		"decision": decision,
		"reviewer": p.Actor.ID,
	}
	if p.Comment != "" {
		payload["comment"] = p.Comment
	}
	return payload
}
