package submission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitpaz1/formbridge-sub001/internal/approval"
	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/registry"
	"github.com/amitpaz1/formbridge-sub001/internal/store"
	"github.com/amitpaz1/formbridge-sub001/internal/upload"
)

var (
	agentActor = domain.Actor{Kind: domain.ActorAgent, ID: "claims-bot"}
	humanActor = domain.Actor{Kind: domain.ActorHuman, ID: "u1"}
)

func vendorIntake() *domain.IntakeDefinition {
	return &domain.IntakeDefinition{
		ID:      "vendor_onboarding",
		Version: "1.0.0",
		Schema: &domain.FieldSchema{
			Type: "object",
			Properties: map[string]*domain.FieldSchema{
				"legal_name":     {Type: "string"},
				"country":        {Type: "string"},
				"tax_id":         {Type: "string"},
				"annual_revenue": {Type: "number"},
				"employees":      {Type: "number"},
				"contract":       {Type: "file", MaxSize: 1 << 20},
			},
			Required: []string{"legal_name"},
		},
		Destination: &domain.Destination{URL: "https://crm.example.com/hook"},
		ApprovalGates: []domain.ApprovalGate{
			{ID: "high_revenue_approval", Condition: "annual_revenue > 1000000"},
		},
	}
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []string // submission ids
}

func (f *fakeEnqueuer) EnqueueDelivery(_ context.Context, sub *domain.Submission, _ *domain.Destination) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub.ID)
	return "dlv_fake", nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type env struct {
	mgr      *Manager
	store    *store.SubmissionStore
	events   store.EventStore
	enqueuer *fakeEnqueuer
}

func newTestEnv(t *testing.T, ttl time.Duration) *env {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register(vendorIntake()))

	subs := store.NewSubmissionStore()
	events := store.NewMemoryEventStore()
	enqueuer := &fakeEnqueuer{}

	mgr := NewManager(reg, subs, events, domain.NewEmitter(), approval.NewConditionEvaluator(), Config{
		BaseURL:  "https://forms.example.com",
		TokenTTL: ttl,
	})
	mgr.SetEnqueuer(enqueuer)
	return &env{mgr: mgr, store: subs, events: events, enqueuer: enqueuer}
}

func (e *env) eventTypes(t *testing.T, submissionID string) []domain.EventType {
	t.Helper()
	evs, err := e.events.List(context.Background(), submissionID, store.EventFilter{})
	require.NoError(t, err)
	types := make([]domain.EventType, len(evs))
	for i, ev := range evs {
		types[i] = ev.Type
		assert.Equal(t, int64(i+1), ev.Version)
	}
	return types
}

func countType(types []domain.EventType, want domain.EventType) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

func TestCreateWithInitialFields(t *testing.T) {
	e := newTestEnv(t, time.Hour)

	res, err := e.mgr.Create(context.Background(), CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
		InitialFields: map[string]any{
			"legal_name": "Acme Corp",
			"country":    "US",
			"tax_id":     "12-3456789",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateInProgress, res.State)
	assert.NotEmpty(t, res.ResumeToken)
	require.NotNil(t, res.ExpiresAt)

	types := e.eventTypes(t, res.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventSubmissionCreated))
	assert.Equal(t, 3, countType(types, domain.EventFieldUpdated))

	sub, err := e.store.Get(res.SubmissionID, "")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", sub.Fields["legal_name"])
	assert.Equal(t, agentActor, sub.FieldAttribution["legal_name"])
}

func TestCreateEmptyIsDraft(t *testing.T) {
	e := newTestEnv(t, time.Hour)

	res, err := e.mgr.Create(context.Background(), CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateDraft, res.State)
	assert.Equal(t, []domain.EventType{domain.EventSubmissionCreated}, e.eventTypes(t, res.SubmissionID))
}

func TestCreateIdempotent(t *testing.T) {
	e := newTestEnv(t, time.Hour)

	params := CreateParams{
		IntakeID:       "vendor_onboarding",
		TenantID:       "t1",
		Actor:          agentActor,
		IdempotencyKey: "K-1",
	}
	first, err := e.mgr.Create(context.Background(), params)
	require.NoError(t, err)
	second, err := e.mgr.Create(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first.SubmissionID, second.SubmissionID)
	assert.Equal(t, first.ResumeToken, second.ResumeToken)
	types := e.eventTypes(t, first.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventSubmissionCreated))

	// Same key under another tenant is a different submission.
	params.TenantID = "t2"
	third, err := e.mgr.Create(context.Background(), params)
	require.NoError(t, err)
	assert.NotEqual(t, first.SubmissionID, third.SubmissionID)
}

func TestCreateIdempotentConcurrent(t *testing.T) {
	e := newTestEnv(t, time.Hour)

	const n = 8
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.mgr.Create(context.Background(), CreateParams{
				IntakeID:       "vendor_onboarding",
				TenantID:       "t1",
				Actor:          agentActor,
				IdempotencyKey: "K-race",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0].SubmissionID, results[i].SubmissionID)
	}
	types := e.eventTypes(t, results[0].SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventSubmissionCreated))
}

func TestCreateRejections(t *testing.T) {
	e := newTestEnv(t, time.Hour)

	_, err := e.mgr.Create(context.Background(), CreateParams{IntakeID: "nope", Actor: agentActor})
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))

	_, err = e.mgr.Create(context.Background(), CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"__proto__": "x"},
	})
	assert.True(t, apperrors.IsType(err, apperrors.TypeInvalidRequest))

	_, err = e.mgr.Create(context.Background(), CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": 42},
	})
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TypeInvalid, appErr.Type)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "legal_name", appErr.Fields[0].Field)
}

func TestSetFieldsMergeAndRotation(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	r1, err := e.mgr.SetFields(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, map[string]any{"annual_revenue": 500000})
	require.NoError(t, err)
	assert.NotEqual(t, created.ResumeToken, r1.ResumeToken)

	r2, err := e.mgr.SetFields(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  r1.ResumeToken,
		Actor:        humanActor,
	}, map[string]any{"employees": 50})
	require.NoError(t, err)
	assert.NotEqual(t, r1.ResumeToken, r2.ResumeToken)

	sub, err := e.store.Get(created.SubmissionID, "")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", sub.Fields["legal_name"])
	assert.Equal(t, 500000, sub.Fields["annual_revenue"])
	assert.Equal(t, 50, sub.Fields["employees"])
	assert.Equal(t, agentActor, sub.FieldAttribution["legal_name"])
	assert.Equal(t, humanActor, sub.FieldAttribution["annual_revenue"])

	// The old token no longer resolves.
	_, err = e.mgr.GetByResumeToken(ctx, created.ResumeToken)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestSetFieldsEmptyMapIsNoOp(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)
	before := e.eventTypes(t, created.SubmissionID)

	res, err := e.mgr.SetFields(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, created.ResumeToken, res.ResumeToken)
	assert.Equal(t, before, e.eventTypes(t, created.SubmissionID))
}

func TestSetFieldsTokenRace(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.mgr.SetFields(ctx, MutateParams{
				SubmissionID: created.SubmissionID,
				ResumeToken:  created.ResumeToken,
				Actor:        humanActor,
			}, map[string]any{"country": "US"})
		}(i)
	}
	wg.Wait()

	succeeded, tokenRejected := 0, 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if apperrors.IsType(err, apperrors.TypeInvalidResumeToken) {
			tokenRejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, tokenRejected)
}

func TestSetFieldsCrossTenant(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		TenantID: "t1",
		Actor:    agentActor,
	})
	require.NoError(t, err)

	_, err = e.mgr.SetFields(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		TenantID:     "t2",
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, map[string]any{"country": "US"})
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestValidateFullMode(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"country": "US"},
	})
	require.NoError(t, err)

	res, err := e.mgr.Validate(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        agentActor,
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "legal_name", res.Errors[0].Field)
	assert.Equal(t, "required", res.Errors[0].Type)
	// No state change, no rotation.
	assert.Equal(t, domain.StateInProgress, res.State)
	assert.Equal(t, created.ResumeToken, res.ResumeToken)

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventValidationFailed))

	r1, err := e.mgr.SetFields(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, map[string]any{"legal_name": "Acme Corp"})
	require.NoError(t, err)

	res, err = e.mgr.Validate(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  r1.ResumeToken,
		Actor:        humanActor,
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	types = e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventValidationPassed))
}

func TestSubmitWithoutGate(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
		InitialFields: map[string]any{
			"legal_name":     "Acme Corp",
			"annual_revenue": 500000,
		},
	})
	require.NoError(t, err)

	res, err := e.mgr.Submit(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.StateSubmitted, res.State)
	assert.False(t, res.NeedsApproval)
	assert.Equal(t, "dlv_fake", res.DeliveryID)
	assert.Equal(t, 1, e.enqueuer.count())

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventSubmissionSubmitted))
}

func TestSubmitGateRoutesToReview(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
		InitialFields: map[string]any{
			"legal_name":     "Acme Corp",
			"annual_revenue": 1500000,
		},
	})
	require.NoError(t, err)

	res, err := e.mgr.Submit(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.StateNeedsReview, res.State)
	assert.True(t, res.NeedsApproval)
	assert.Equal(t, []string{"high_revenue_approval"}, res.MatchedGates)
	assert.Zero(t, e.enqueuer.count())

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventReviewRequested))
}

func TestSubmitValidationFailure(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"country": "US"},
	})
	require.NoError(t, err)

	_, err = e.mgr.Submit(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, "")
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TypeInvalid, appErr.Type)
	assert.NotEmpty(t, appErr.Fields)

	sub, err := e.store.Get(created.SubmissionID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, sub.State)
	assert.Zero(t, e.enqueuer.count())
}

func TestSubmitFromDraftConflicts(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
	})
	require.NoError(t, err)

	_, err = e.mgr.Submit(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        agentActor,
	}, "")
	assert.True(t, apperrors.IsType(err, apperrors.TypeConflict))
}

func TestSubmitIdempotentReplay(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	first, err := e.mgr.Submit(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, "submit-K1")
	require.NoError(t, err)

	// Retry with the stale token but the same key replays the result.
	second, err := e.mgr.Submit(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, "submit-K1")
	require.NoError(t, err)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.ResumeToken, second.ResumeToken)
	assert.Equal(t, 1, e.enqueuer.count())

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventSubmissionSubmitted))
}

func TestResumeView(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	view, err := e.mgr.GetByResumeToken(ctx, created.ResumeToken)
	require.NoError(t, err)
	assert.Equal(t, created.SubmissionID, view.SubmissionID)
	assert.Equal(t, "Acme Corp", view.Fields["legal_name"])
	require.NotNil(t, view.Schema)
	assert.Contains(t, view.Schema.Properties, "legal_name")
	assert.Equal(t, created.ResumeToken, view.ResumeToken)
}

func TestResumeExpired(t *testing.T) {
	e := newTestEnv(t, 0)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = e.mgr.GetByResumeToken(ctx, created.ResumeToken)
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TypeExpired, appErr.Type)
	require.NotEmpty(t, appErr.NextActions)
	assert.Equal(t, "create", appErr.NextActions[0].Type)
}

func TestHandoffFlow(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	handoff, err := e.mgr.GenerateHandoffURL(ctx, created.SubmissionID, "", agentActor)
	require.NoError(t, err)
	assert.Contains(t, handoff.URL, "https://forms.example.com/submissions/resume/")
	assert.Contains(t, handoff.URL, handoff.ResumeToken)
	assert.NotEqual(t, created.ResumeToken, handoff.ResumeToken)

	// The pre-handoff token is dead; the embedded one resolves.
	_, err = e.mgr.GetByResumeToken(ctx, created.ResumeToken)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
	view, err := e.mgr.GetByResumeToken(ctx, handoff.ResumeToken)
	require.NoError(t, err)
	assert.Equal(t, created.SubmissionID, view.SubmissionID)

	require.NoError(t, e.mgr.EmitHandoffResumed(ctx, handoff.ResumeToken, humanActor))

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventHandoffLinkIssued))
	assert.Equal(t, 1, countType(types, domain.EventHandoffResumed))
}

func TestHandoffEventsRedactTokens(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
	})
	require.NoError(t, err)
	handoff, err := e.mgr.GenerateHandoffURL(ctx, created.SubmissionID, "", agentActor)
	require.NoError(t, err)

	evs, err := e.events.List(ctx, created.SubmissionID, store.EventFilter{})
	require.NoError(t, err)
	for _, ev := range evs {
		for _, v := range ev.Payload {
			if s, ok := v.(string); ok {
				assert.NotEqual(t, handoff.ResumeToken, s)
			}
		}
	}
}

func TestCancel(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	res, err := e.mgr.Cancel(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, "duplicate request")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, res.State)

	// Cancelling again conflicts even with the fresh token.
	_, err = e.mgr.Cancel(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  res.ResumeToken,
		Actor:        humanActor,
	}, "")
	assert.True(t, apperrors.IsType(err, apperrors.TypeConflict))

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventSubmissionCancelled))
}

func TestExpireDue(t *testing.T) {
	e := newTestEnv(t, 0)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, e.mgr.ExpireDue(ctx, time.Now().UTC()))
	// Idempotent.
	assert.Equal(t, 0, e.mgr.ExpireDue(ctx, time.Now().UTC()))

	sub, err := e.store.Get(created.SubmissionID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, sub.State)
	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventSubmissionExpired))
}

func TestReviewApproveAndFinalize(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
		InitialFields: map[string]any{
			"legal_name":     "Acme Corp",
			"annual_revenue": 1500000,
		},
	})
	require.NoError(t, err)

	submitted, err := e.mgr.Submit(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Actor:        humanActor,
	}, "")
	require.NoError(t, err)
	require.True(t, submitted.NeedsApproval)

	approvals := approval.NewManager(e.mgr)
	res, err := approvals.Approve(ctx, approval.ActionParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  submitted.ResumeToken,
		Actor:        domain.Actor{Kind: domain.ActorHuman, ID: "reviewer-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, res.State)
	assert.Equal(t, "dlv_fake", res.DeliveryID)
	assert.Equal(t, 1, e.enqueuer.count())

	// Delivery success finalizes.
	e.mgr.MarkDelivered(ctx, created.SubmissionID)
	sub, err := e.store.Get(created.SubmissionID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinalized, sub.State)

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventReviewApproved))
	assert.Equal(t, 1, countType(types, domain.EventSubmissionFinalized))
}

func TestReviewRejectOnWrongState(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	_, err = e.mgr.BeginReview(ctx, created.SubmissionID, "", created.ResumeToken)
	assert.True(t, apperrors.IsType(err, apperrors.TypeConflict))
}

func TestRecordDeliveryEvent(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	e.mgr.RecordDeliveryEvent(ctx, created.SubmissionID, domain.EventDeliveryAttempted, map[string]any{
		"deliveryId": "dlv_1",
		"attempt":    1,
	})

	evs, err := e.events.List(ctx, created.SubmissionID, store.EventFilter{})
	require.NoError(t, err)
	last := evs[len(evs)-1]
	assert.Equal(t, domain.EventDeliveryAttempted, last.Type)
	assert.Equal(t, domain.ActorSystem, last.Actor.Kind)
	assert.Equal(t, int64(len(evs)), last.Version)
}

func TestUploadNegotiation(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()
	backend := upload.NewMemoryBackend("")
	e.mgr.SetStorageBackend(backend)

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	grant, err := e.mgr.RequestUpload(ctx, UploadRequest{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Field:        "contract",
		Filename:     "contract.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    2048,
		Actor:        humanActor,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingUpload, grant.State)
	assert.NotEmpty(t, grant.URL)
	assert.Equal(t, []string{"application/pdf"}, grant.Constraints.AllowedTypes)

	// Confirming before the bytes land conflicts without settling.
	_, err = e.mgr.ConfirmUpload(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  grant.ResumeToken,
		Actor:        humanActor,
	}, grant.UploadID)
	assert.True(t, apperrors.IsType(err, apperrors.TypeConflict))

	backend.Complete(grant.UploadID, 2048)
	outcome, err := e.mgr.ConfirmUpload(ctx, MutateParams{
		SubmissionID: created.SubmissionID,
		ResumeToken:  grant.ResumeToken,
		Actor:        humanActor,
	}, grant.UploadID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, outcome.Status)
	assert.NotEmpty(t, outcome.DownloadURL)
	assert.Equal(t, domain.StateInProgress, outcome.State)

	types := e.eventTypes(t, created.SubmissionID)
	assert.Equal(t, 1, countType(types, domain.EventUploadRequested))
	assert.Equal(t, 1, countType(types, domain.EventUploadCompleted))
}

func TestUploadWithoutBackend(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID:      "vendor_onboarding",
		Actor:         agentActor,
		InitialFields: map[string]any{"legal_name": "Acme Corp"},
	})
	require.NoError(t, err)

	_, err = e.mgr.RequestUpload(ctx, UploadRequest{
		SubmissionID: created.SubmissionID,
		ResumeToken:  created.ResumeToken,
		Field:        "contract",
		Filename:     "contract.pdf",
		MimeType:     "application/pdf",
		Actor:        humanActor,
	})
	assert.True(t, apperrors.IsType(err, apperrors.TypeInvalid))
}

func TestListEvents(t *testing.T) {
	e := newTestEnv(t, time.Hour)
	ctx := context.Background()

	created, err := e.mgr.Create(ctx, CreateParams{
		IntakeID: "vendor_onboarding",
		Actor:    agentActor,
		InitialFields: map[string]any{
			"legal_name": "Acme Corp",
			"country":    "US",
		},
	})
	require.NoError(t, err)

	limit := 2
	evs, total, err := e.mgr.ListEvents(ctx, created.SubmissionID, "", store.EventFilter{Limit: &limit})
	require.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Equal(t, 3, total)

	_, _, err = e.mgr.ListEvents(ctx, created.SubmissionID, "wrong-tenant", store.EventFilter{})
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}
