package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/approval"
	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/ids"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
)

// reviewSession holds the submission lock across one reviewer decision.
type reviewSession struct {
	m         *Manager
	sub       *domain.Submission
	closeOnce sync.Once
	unlock    func()
}

// BeginReview implements approval.Workflow: load, tenant scope,
// constant-time token compare, state must be needs_review. The returned
// session holds the submission's write lock until Close.
func (m *Manager) BeginReview(ctx context.Context, submissionID, tenantID, resumeToken string) (approval.Session, error) {
	mu := m.lockFor(submissionID)
	mu.Lock()

	sub, err := m.preflight(submissionID, tenantID, resumeToken)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if sub.State != domain.StateNeedsReview {
		mu.Unlock()
		return nil, apperrors.Conflict(fmt.Sprintf("submission in state %s is not awaiting review", sub.State))
	}

	return &reviewSession{m: m, sub: sub, unlock: mu.Unlock}, nil
}

func (s *reviewSession) Submission() *domain.Submission {
	return s.sub.Clone()
}

func (s *reviewSession) Commit(ctx context.Context, actor domain.Actor, to domain.State, eventType domain.EventType, payload map[string]any) (string, error) {
	if !domain.CanTransition(s.sub.State, to) {
		return "", apperrors.Conflict(fmt.Sprintf("cannot transition %s to %s", s.sub.State, to))
	}
	s.sub.State = to
	rotate(s.sub, actor, time.Now().UTC())
	ev := s.m.newEvent(s.sub, eventType, actor, payload)
	if err := s.m.commit(ctx, s.sub, ev); err != nil {
		return "", err
	}
	return s.sub.ResumeToken, nil
}

func (s *reviewSession) EnqueueDelivery(ctx context.Context) (string, error) {
	intake, err := s.m.registry.Get(s.sub.IntakeID)
	if err != nil {
		return "", err
	}
	if s.m.enqueuer == nil || intake.Destination == nil || intake.Destination.URL == "" {
		return "", nil
	}
	return s.m.enqueuer.EnqueueDelivery(ctx, s.sub.Clone(), intake.Destination)
}

func (s *reviewSession) Close() {
	s.closeOnce.Do(s.unlock)
}

// RecordDeliveryEvent implements the delivery engine's event sink: each
// delivery attempt and outcome lands in the submission's event stream
// through the same triple-write as any other mutation.
func (m *Manager) RecordDeliveryEvent(ctx context.Context, submissionID string, eventType domain.EventType, payload map[string]any) {
	mu := m.lockFor(submissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.store.Get(submissionID, "")
	if err != nil {
		logger.Warn("delivery event for unknown submission",
			zap.String("submission_id", submissionID),
			zap.String("event_type", string(eventType)),
		)
		return
	}
	ev := m.newEvent(sub, eventType, domain.SystemActor(), payload)
	if err := m.commit(ctx, sub, ev); err != nil {
		logger.Error("delivery event commit failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}
}

// MarkDelivered finalizes a submitted or approved submission after its
// webhook delivery succeeded. The old token is rotated out so the
// finalized record cannot be mutated through a stale link.
func (m *Manager) MarkDelivered(ctx context.Context, submissionID string) {
	mu := m.lockFor(submissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.store.Get(submissionID, "")
	if err != nil {
		return
	}
	if sub.State != domain.StateSubmitted && sub.State != domain.StateApproved {
		return
	}

	sub.State = domain.StateFinalized
	sub.ResumeToken = ids.NewResumeToken()
	sub.UpdatedAt = time.Now().UTC()
	sub.UpdatedBy = domain.SystemActor()
	ev := m.newEvent(sub, domain.EventSubmissionFinalized, domain.SystemActor(), nil)
	if err := m.commit(ctx, sub, ev); err != nil {
		logger.Error("finalize commit failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		return
	}
	logger.Info("submission finalized", zap.String("submission_id", submissionID))
}
