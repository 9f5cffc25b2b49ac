package submission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/metrics"
	"github.com/amitpaz1/formbridge-sub001/internal/store"
)

// View is the read shape returned to clients resuming a submission. Schema
// comes from the intake so a renderer can continue without a second
// round-trip.
type View struct {
	SubmissionID     string                          `json:"submissionId"`
	IntakeID         string                          `json:"intakeId"`
	State            domain.State                    `json:"state"`
	ResumeToken      string                          `json:"resumeToken"`
	Fields           map[string]any                  `json:"fields"`
	FieldAttribution map[string]domain.Actor         `json:"fieldAttribution"`
	ExpiresAt        *time.Time                      `json:"expiresAt,omitempty"`
	Uploads          map[string]*domain.UploadRecord `json:"uploads,omitempty"`
	Schema           *domain.FieldSchema             `json:"schema,omitempty"`
}

func (m *Manager) view(sub *domain.Submission, schema *domain.FieldSchema) *View {
	return &View{
		SubmissionID:     sub.ID,
		IntakeID:         sub.IntakeID,
		State:            sub.State,
		ResumeToken:      sub.ResumeToken,
		Fields:           sub.Fields,
		FieldAttribution: sub.FieldAttribution,
		ExpiresAt:        sub.ExpiresAt,
		Uploads:          sub.Uploads,
		Schema:           schema,
	}
}

// GetByResumeToken resolves a bearer token to the submission view. The
// token is the credential; expired submissions surface as 410.
func (m *Manager) GetByResumeToken(ctx context.Context, token string) (*View, error) {
	sub, err := m.store.GetByResumeToken(token)
	if err != nil {
		return nil, err
	}
	if sub.IsExpired(time.Now().UTC()) {
		return nil, apperrors.Expired("this resume link has expired")
	}
	intake, err := m.registry.Get(sub.IntakeID)
	if err != nil {
		return nil, err
	}
	return m.view(sub, intake.Schema), nil
}

// Get returns the submission view for an authenticated read. The intake ID
// must match the record, so a submission cannot be read through another
// intake's route.
func (m *Manager) Get(ctx context.Context, intakeID, submissionID, tenantID string) (*View, error) {
	sub, err := m.store.Get(submissionID, tenantID)
	if err != nil {
		return nil, err
	}
	if intakeID != "" && sub.IntakeID != intakeID {
		return nil, apperrors.NotFound(fmt.Sprintf("submission %s not found", submissionID))
	}
	return m.view(sub, nil), nil
}

// HandoffResult carries a token-embedded URL for transferring control of a
// submission to another actor.
type HandoffResult struct {
	URL          string       `json:"url"`
	SubmissionID string       `json:"submissionId"`
	State        domain.State `json:"state"`
	ResumeToken  string       `json:"resumeToken"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
}

// GenerateHandoffURL rotates the resume token and returns a URL embedding
// the new one. The previous token stops resolving immediately.
func (m *Manager) GenerateHandoffURL(ctx context.Context, submissionID, tenantID string, actor domain.Actor) (*HandoffResult, error) {
	mu := m.lockFor(submissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.store.Get(submissionID, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.State.Terminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot hand off a submission in state %s", sub.State))
	}

	rotate(sub, actor, time.Now().UTC())
	ev := m.newEvent(sub, domain.EventHandoffLinkIssued, actor, map[string]any{
		"issuedBy": actor.ID,
	})
	if err := m.commit(ctx, sub, ev); err != nil {
		return nil, err
	}

	return &HandoffResult{
		URL:          fmt.Sprintf("%s/submissions/resume/%s", strings.TrimRight(m.cfg.BaseURL, "/"), sub.ResumeToken),
		SubmissionID: sub.ID,
		State:        sub.State,
		ResumeToken:  sub.ResumeToken,
		ExpiresAt:    sub.ExpiresAt,
	}, nil
}

// EmitHandoffResumed records that an actor opened a handoff link. The token
// does not rotate: the opener continues with the same credential.
func (m *Manager) EmitHandoffResumed(ctx context.Context, token string, actor domain.Actor) error {
	sub, err := m.store.GetByResumeToken(token)
	if err != nil {
		return err
	}
	if sub.IsExpired(time.Now().UTC()) {
		return apperrors.Expired("this resume link has expired")
	}

	mu := m.lockFor(sub.ID)
	mu.Lock()
	defer mu.Unlock()

	// Reload under the lock; the token may have rotated in between.
	sub, err = m.store.GetByResumeToken(token)
	if err != nil {
		return err
	}
	ev := m.newEvent(sub, domain.EventHandoffResumed, actor, map[string]any{
		"actorKind": string(actor.Kind),
	})
	return m.commit(ctx, sub, ev)
}

// Cancel moves a non-terminal submission to cancelled.
func (m *Manager) Cancel(ctx context.Context, p MutateParams, reason string) (*Result, error) {
	mu := m.lockFor(p.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.preflight(p.SubmissionID, p.TenantID, p.ResumeToken)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(sub.State, domain.StateCancelled) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot cancel a submission in state %s", sub.State))
	}

	sub.State = domain.StateCancelled
	rotate(sub, p.Actor, time.Now().UTC())
	payload := map[string]any{}
	if reason != "" {
		payload["reason"] = reason
	}
	ev := m.newEvent(sub, domain.EventSubmissionCancelled, p.Actor, payload)
	if err := m.commit(ctx, sub, ev); err != nil {
		return nil, err
	}
	logger.Info("submission cancelled", zap.String("submission_id", sub.ID))
	return resultOf(sub), nil
}

// ExpireDue marks every non-terminal submission whose TTL boundary passed
// as expired. Called by the expiry scheduler; idempotent, already-terminal
// records are never re-expired.
func (m *Manager) ExpireDue(ctx context.Context, now time.Time) int {
	expired := 0
	for _, candidate := range m.store.ListExpired(now) {
		mu := m.lockFor(candidate.ID)
		mu.Lock()

		sub, err := m.store.Get(candidate.ID, "")
		if err != nil || sub.State.Terminal() || !sub.IsExpired(now) {
			mu.Unlock()
			continue
		}

		sub.State = domain.StateExpired
		sub.UpdatedAt = now
		ev := m.newEvent(sub, domain.EventSubmissionExpired, domain.SystemActor(), nil)
		if err := m.commit(ctx, sub, ev); err != nil {
			logger.Error("expiry commit failed",
				zap.String("submission_id", sub.ID),
				zap.Error(err),
			)
			mu.Unlock()
			continue
		}
		metrics.SubmissionsExpired.Inc()
		expired++
		mu.Unlock()
	}
	return expired
}

// ListEvents reads the durable event stream for a submission with filters
// and pagination. Count runs against the same filters minus pagination so
// callers can build page metadata without a second full read.
func (m *Manager) ListEvents(ctx context.Context, submissionID, tenantID string, filter store.EventFilter) ([]*domain.Event, int, error) {
	if _, err := m.store.Get(submissionID, tenantID); err != nil {
		return nil, 0, err
	}
	events, err := m.events.List(ctx, submissionID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.events.Count(ctx, submissionID, filter)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// StoreStats exposes the submission store counters for the admin surface.
func (m *Manager) StoreStats() store.Stats {
	return m.store.Stats()
}
