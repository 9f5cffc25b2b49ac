// Package submission implements the submission lifecycle manager: create,
// set-fields, validate, submit, resume, handoff, cancel and expiry, with
// per-submission write serialization, rotating resume tokens and the
// triple-write event discipline (in-record log, durable event store, live
// fan-out).
package submission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/approval"
	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/ids"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/metrics"
	"github.com/amitpaz1/formbridge-sub001/internal/registry"
	"github.com/amitpaz1/formbridge-sub001/internal/store"
	"github.com/amitpaz1/formbridge-sub001/internal/upload"
	"github.com/amitpaz1/formbridge-sub001/internal/validation"
)

// Enqueuer hands accepted submissions to the webhook delivery engine.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, sub *domain.Submission, dest *domain.Destination) (string, error)
}

// Config carries the manager's tunables.
type Config struct {
	// BaseURL is embedded in handoff URLs.
	BaseURL string

	// TokenTTL sets expiresAt at create time.
	TokenTTL time.Duration
}

// Manager owns the submission lifecycle. Writes on a single submission are
// serialized through a per-submission mutex; writes to different
// submissions proceed in parallel.
type Manager struct {
	registry  *registry.Registry
	store     *store.SubmissionStore
	events    store.EventStore
	emitter   *domain.Emitter
	evaluator *approval.ConditionEvaluator
	enqueuer  Enqueuer
	storage   upload.StorageBackend
	cfg       Config

	locks     sync.Map // submission id -> *sync.Mutex
	idemLocks sync.Map // (tenant, intake, key) -> *sync.Mutex
}

// NewManager creates a submission manager. The delivery enqueuer is wired
// afterwards via SetEnqueuer; the manager and the delivery engine reference
// each other.
func NewManager(reg *registry.Registry, subs *store.SubmissionStore, events store.EventStore, emitter *domain.Emitter, evaluator *approval.ConditionEvaluator, cfg Config) *Manager {
	if cfg.TokenTTL < 0 {
		cfg.TokenTTL = 0
	}
	return &Manager{
		registry:  reg,
		store:     subs,
		events:    events,
		emitter:   emitter,
		evaluator: evaluator,
		cfg:       cfg,
	}
}

// SetEnqueuer wires the delivery engine.
func (m *Manager) SetEnqueuer(e Enqueuer) {
	m.enqueuer = e
}

// SetStorageBackend enables upload negotiation. Without a backend, upload
// operations return invalid.
func (m *Manager) SetStorageBackend(b upload.StorageBackend) {
	m.storage = b
}

func (m *Manager) lockFor(submissionID string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(submissionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *Manager) idemLockFor(tenantID, intakeID, key string) *sync.Mutex {
	v, _ := m.idemLocks.LoadOrStore(tenantID+"\x00"+intakeID+"\x00"+key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// newEvent builds the next event for the submission and appends it to the
// in-record log, the first of the three writes.
func (m *Manager) newEvent(sub *domain.Submission, t domain.EventType, actor domain.Actor, payload map[string]any) *domain.Event {
	ev := &domain.Event{
		EventID:      ids.NewEventID(),
		Type:         t,
		SubmissionID: sub.ID,
		TS:           time.Now().UTC(),
		Actor:        actor,
		State:        sub.State,
		Payload:      payload,
		Version:      sub.NextVersion(),
	}
	sub.Events = append(sub.Events, ev)
	return ev
}

// commit finishes the triple-write for events already on the in-record
// log: durable event-store append, record save, then live fan-out. Fan-out
// failures are logged, never rolled back; the durable store is the source
// of truth.
func (m *Manager) commit(ctx context.Context, sub *domain.Submission, events ...*domain.Event) error {
	for _, ev := range events {
		if err := m.events.Append(ctx, ev); err != nil {
			return apperrors.Wrap(err, apperrors.TypeStorageError, "event append failed")
		}
	}
	if err := m.store.Save(sub); err != nil {
		return err
	}
	for _, ev := range events {
		if err := m.emitter.Emit(ctx, ev); err != nil {
			logger.Warn("event fan-out reported handler failures",
				zap.String("submission_id", sub.ID),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// preflight is the shared mutation entry: load, tenant scope, constant-time
// token compare. Callers hold the submission lock.
func (m *Manager) preflight(submissionID, tenantID, resumeToken string) (*domain.Submission, error) {
	sub, err := m.store.Get(submissionID, tenantID)
	if err != nil {
		return nil, err
	}
	if !ids.TokensEqual(resumeToken, sub.ResumeToken) {
		return nil, apperrors.InvalidResumeToken("resume token does not match the current token")
	}
	return sub, nil
}

func rotate(sub *domain.Submission, actor domain.Actor, now time.Time) {
	sub.ResumeToken = ids.NewResumeToken()
	sub.UpdatedAt = now
	sub.UpdatedBy = actor
}

func checkReservedNames(fields map[string]any) error {
	for name := range fields {
		if domain.IsReservedFieldName(name) {
			return apperrors.InvalidRequest(fmt.Sprintf("field name %q is reserved", name)).
				WithFields([]apperrors.FieldError{{Field: name, Message: "reserved field name", Type: "invalid_value"}})
		}
	}
	return nil
}

// mutableStates are the states set-fields accepts.
var mutableStates = map[domain.State]bool{
	domain.StateDraft:          true,
	domain.StateInProgress:     true,
	domain.StateAwaitingInput:  true,
	domain.StateAwaitingUpload: true,
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	IntakeID       string
	TenantID       string
	Actor          domain.Actor
	InitialFields  map[string]any
	IdempotencyKey string
}

// Result is the success view returned by mutating operations.
type Result struct {
	SubmissionID string       `json:"submissionId"`
	IntakeID     string       `json:"intakeId"`
	State        domain.State `json:"state"`
	ResumeToken  string       `json:"resumeToken"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
}

// Create mints a new submission, or replays the existing one when the
// idempotency key was already used for this (tenant, intake) pair.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Result, error) {
	if err := p.Actor.Validate(); err != nil {
		return nil, err
	}
	intake, err := m.registry.Get(p.IntakeID)
	if err != nil {
		return nil, err
	}
	if err := checkReservedNames(p.InitialFields); err != nil {
		return nil, err
	}
	if len(p.InitialFields) > 0 {
		if errs := validation.ValidatePartial(intake.Schema, p.InitialFields); len(errs) > 0 {
			return nil, apperrors.Invalid("initial fields failed validation").WithFields(errs)
		}
	}

	if p.IdempotencyKey != "" {
		mu := m.idemLockFor(p.TenantID, p.IntakeID, p.IdempotencyKey)
		mu.Lock()
		defer mu.Unlock()

		if existing := m.store.GetByIdempotencyKey(p.TenantID, p.IntakeID, p.IdempotencyKey); existing != nil {
			return resultOf(existing), nil
		}
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.cfg.TokenTTL)
	sub := &domain.Submission{
		ID:               ids.NewSubmissionID(),
		IntakeID:         p.IntakeID,
		TenantID:         p.TenantID,
		State:            domain.StateDraft,
		ResumeToken:      ids.NewResumeToken(),
		Fields:           make(map[string]any),
		FieldAttribution: make(map[string]domain.Actor),
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        &expiresAt,
		CreatedBy:        p.Actor,
		UpdatedBy:        p.Actor,
		IdempotencyKey:   p.IdempotencyKey,
	}

	events := []*domain.Event{m.newEvent(sub, domain.EventSubmissionCreated, p.Actor, map[string]any{
		"intakeId": p.IntakeID,
	})}

	if len(p.InitialFields) > 0 {
		// Same merge, attribution, rotation and events as a set-fields
		// call on the fresh record.
		fieldEvents, err := m.applyFields(sub, intake, p.Actor, p.InitialFields, now)
		if err != nil {
			return nil, err
		}
		events = append(events, fieldEvents...)
	}

	if err := m.commit(ctx, sub, events...); err != nil {
		return nil, err
	}
	metrics.SubmissionsCreated.WithLabelValues(p.IntakeID).Inc()
	logger.Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("intake_id", p.IntakeID),
		zap.String("actor_kind", string(p.Actor.Kind)),
		zap.String("state", string(sub.State)),
	)
	return resultOf(sub), nil
}

// applyFields merges validated fields into the record: state transition,
// attribution, token rotation and one field.updated event per touched path.
// Callers have already validated and checked reserved names.
func (m *Manager) applyFields(sub *domain.Submission, intake *domain.IntakeDefinition, actor domain.Actor, fields map[string]any, now time.Time) ([]*domain.Event, error) {
	target := domain.StateInProgress
	for name := range fields {
		if fs := intake.Schema.Lookup(name); fs != nil && fs.Type == "file" {
			target = domain.StateAwaitingUpload
			break
		}
	}
	if target == domain.StateInProgress && hasPendingUploads(sub) {
		target = domain.StateAwaitingUpload
	}

	// Draft passes through in_progress conceptually; the record only
	// stores the final state.
	if sub.State == domain.StateDraft {
		sub.State = domain.StateInProgress
	}
	if sub.State != target {
		if !domain.CanTransition(sub.State, target) {
			return nil, apperrors.Conflict(fmt.Sprintf("cannot update fields of a submission in state %s", sub.State))
		}
		sub.State = target
	}
	rotate(sub, actor, now)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	events := make([]*domain.Event, 0, len(names))
	for _, name := range names {
		old, existed := sub.Fields[name]
		sub.Fields[name] = fields[name]
		sub.FieldAttribution[name] = actor
		payload := map[string]any{
			"field": name,
			"new":   fields[name],
		}
		if existed {
			payload["old"] = old
		}
		events = append(events, m.newEvent(sub, domain.EventFieldUpdated, actor, payload))
	}
	return events, nil
}

func hasPendingUploads(sub *domain.Submission) bool {
	for _, u := range sub.Uploads {
		if u.Status == domain.UploadPending {
			return true
		}
	}
	return false
}

// MutateParams identify a submission for a token-authenticated mutation.
type MutateParams struct {
	SubmissionID string
	TenantID     string
	ResumeToken  string
	Actor        domain.Actor
}

// SetFields merges a partial field map into the submission. A zero-key map
// is a no-op: no event, no token rotation.
func (m *Manager) SetFields(ctx context.Context, p MutateParams, fields map[string]any) (*Result, error) {
	mu := m.lockFor(p.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.preflight(p.SubmissionID, p.TenantID, p.ResumeToken)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return resultOf(sub), nil
	}
	if !mutableStates[sub.State] {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot update fields of a submission in state %s", sub.State))
	}
	if sub.IsExpired(time.Now().UTC()) {
		return nil, apperrors.Expired("submission has expired")
	}
	if err := checkReservedNames(fields); err != nil {
		return nil, err
	}

	intake, err := m.registry.Get(sub.IntakeID)
	if err != nil {
		return nil, err
	}
	if errs := validation.ValidatePartial(intake.Schema, fields); len(errs) > 0 {
		return nil, apperrors.Invalid("fields failed validation").WithFields(errs)
	}

	events, err := m.applyFields(sub, intake, p.Actor, fields, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := m.commit(ctx, sub, events...); err != nil {
		return nil, err
	}
	return resultOf(sub), nil
}

// ValidationResult reports a full-validation pass without mutating state.
type ValidationResult struct {
	Valid       bool                   `json:"valid"`
	Errors      []apperrors.FieldError `json:"errors,omitempty"`
	State       domain.State           `json:"state"`
	ResumeToken string                 `json:"resumeToken"`
}

// Validate runs full validation against the intake schema. The state does
// not change and the token does not rotate; the outcome is recorded as a
// validation.passed or validation.failed event.
func (m *Manager) Validate(ctx context.Context, p MutateParams) (*ValidationResult, error) {
	mu := m.lockFor(p.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.preflight(p.SubmissionID, p.TenantID, p.ResumeToken)
	if err != nil {
		return nil, err
	}
	intake, err := m.registry.Get(sub.IntakeID)
	if err != nil {
		return nil, err
	}

	errs := validation.Validate(intake.Schema, sub.Fields)
	if len(errs) == 0 {
		ev := m.newEvent(sub, domain.EventValidationPassed, p.Actor, nil)
		if err := m.commit(ctx, sub, ev); err != nil {
			return nil, err
		}
		return &ValidationResult{Valid: true, State: sub.State, ResumeToken: sub.ResumeToken}, nil
	}

	ev := m.newEvent(sub, domain.EventValidationFailed, p.Actor, map[string]any{
		"errorCount": len(errs),
	})
	if err := m.commit(ctx, sub, ev); err != nil {
		return nil, err
	}
	return &ValidationResult{Valid: false, Errors: errs, State: sub.State, ResumeToken: sub.ResumeToken}, nil
}

// SubmitResult is the outcome of Submit: either accepted for delivery or
// routed to review. NeedsApproval is a result, not an error.
type SubmitResult struct {
	SubmissionID  string       `json:"submissionId"`
	State         domain.State `json:"state"`
	ResumeToken   string       `json:"resumeToken"`
	NeedsApproval bool         `json:"needsApproval"`
	MatchedGates  []string     `json:"matchedGates,omitempty"`
	DeliveryID    string       `json:"deliveryId,omitempty"`
}

// Submit runs full validation, evaluates approval gates and either routes
// the submission to needs_review or accepts it and enqueues webhook
// delivery. Delivery is fire-and-forget; its outcome arrives as
// delivery.* events.
func (m *Manager) Submit(ctx context.Context, p MutateParams, idempotencyKey string) (*SubmitResult, error) {
	mu := m.lockFor(p.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.store.Get(p.SubmissionID, p.TenantID)
	if err != nil {
		return nil, err
	}

	// Replay: a client that lost the response to its first submit retries
	// with the same key but the pre-rotation token.
	if idempotencyKey != "" && idempotencyKey == sub.SubmitKey &&
		(sub.State == domain.StateSubmitted || sub.State == domain.StateNeedsReview) {
		return &SubmitResult{
			SubmissionID:  sub.ID,
			State:         sub.State,
			ResumeToken:   sub.ResumeToken,
			NeedsApproval: sub.State == domain.StateNeedsReview,
		}, nil
	}

	if !ids.TokensEqual(p.ResumeToken, sub.ResumeToken) {
		return nil, apperrors.InvalidResumeToken("resume token does not match the current token")
	}
	if sub.State != domain.StateInProgress {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot submit a submission in state %s", sub.State))
	}
	if sub.IsExpired(time.Now().UTC()) {
		return nil, apperrors.Expired("submission has expired")
	}

	intake, err := m.registry.Get(sub.IntakeID)
	if err != nil {
		return nil, err
	}

	if errs := validation.Validate(intake.Schema, sub.Fields); len(errs) > 0 {
		ev := m.newEvent(sub, domain.EventValidationFailed, p.Actor, map[string]any{
			"errorCount": len(errs),
		})
		if commitErr := m.commit(ctx, sub, ev); commitErr != nil {
			return nil, commitErr
		}
		return nil, apperrors.Invalid("submission failed validation").WithFields(errs)
	}

	matched, err := m.evaluator.MatchingGates(intake, sub.Fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub.SubmitKey = idempotencyKey

	if len(matched) > 0 {
		sub.State = domain.StateNeedsReview
		rotate(sub, p.Actor, now)
		ev := m.newEvent(sub, domain.EventReviewRequested, p.Actor, map[string]any{
			"gates": matched,
		})
		if err := m.commit(ctx, sub, ev); err != nil {
			return nil, err
		}
		logger.Info("submission routed to review",
			zap.String("submission_id", sub.ID),
			zap.Strings("gates", matched),
		)
		return &SubmitResult{
			SubmissionID:  sub.ID,
			State:         sub.State,
			ResumeToken:   sub.ResumeToken,
			NeedsApproval: true,
			MatchedGates:  matched,
		}, nil
	}

	sub.State = domain.StateSubmitted
	rotate(sub, p.Actor, now)
	ev := m.newEvent(sub, domain.EventSubmissionSubmitted, p.Actor, nil)
	if err := m.commit(ctx, sub, ev); err != nil {
		return nil, err
	}
	metrics.SubmissionsSubmitted.WithLabelValues(sub.IntakeID).Inc()

	deliveryID := m.enqueueDestination(ctx, sub, intake)
	return &SubmitResult{
		SubmissionID: sub.ID,
		State:        sub.State,
		ResumeToken:  sub.ResumeToken,
		DeliveryID:   deliveryID,
	}, nil
}

// enqueueDestination hands the submission to the delivery engine. Failures
// are logged; the submit itself already succeeded.
func (m *Manager) enqueueDestination(ctx context.Context, sub *domain.Submission, intake *domain.IntakeDefinition) string {
	if m.enqueuer == nil || intake.Destination == nil || intake.Destination.URL == "" {
		return ""
	}
	deliveryID, err := m.enqueuer.EnqueueDelivery(ctx, sub.Clone(), intake.Destination)
	if err != nil {
		logger.Error("delivery enqueue failed",
			zap.String("submission_id", sub.ID),
			zap.Error(err),
		)
		return ""
	}
	return deliveryID
}

func resultOf(sub *domain.Submission) *Result {
	return &Result{
		SubmissionID: sub.ID,
		IntakeID:     sub.IntakeID,
		State:        sub.State,
		ResumeToken:  sub.ResumeToken,
		ExpiresAt:    sub.ExpiresAt,
	}
}
