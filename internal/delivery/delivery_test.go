package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/worker"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{
		MaxRetries:        5,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
	// Capped at MaxDelay from here on.
	assert.Equal(t, 10*time.Second, p.Delay(5))
	assert.Equal(t, 10*time.Second, p.Delay(20))
	// Out-of-range attempt clamps to the first delay.
	assert.Equal(t, time.Second, p.Delay(0))
}

func TestRetryPolicyMaxAttempts(t *testing.T) {
	assert.Equal(t, 6, RetryPolicy{MaxRetries: 5}.MaxAttempts())
	assert.Equal(t, 1, RetryPolicy{MaxRetries: 0}.MaxAttempts())
	assert.Equal(t, 1, RetryPolicy{MaxRetries: -3}.MaxAttempts())
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"submissionId":"sub_1"}`)
	sig := Sign(body, "secret")

	assert.True(t, len(sig) > len(SignaturePrefix))
	assert.Equal(t, SignaturePrefix, sig[:len(SignaturePrefix)])

	assert.True(t, Verify(body, sig, "secret"))
	assert.False(t, Verify(body, sig, "other-secret"))
	assert.False(t, Verify([]byte(`{"submissionId":"sub_2"}`), sig, "secret"))
	assert.False(t, Verify(body, "sha256=nothex", "secret"))
	assert.False(t, Verify(body, "md5=abcdef", "secret"))
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue()

	rec := &Record{
		DeliveryID:     "dlv_1",
		SubmissionID:   "sub_1",
		DestinationURL: "https://crm.example.com/hook",
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		Method:         http.MethodPost,
		Body:           []byte("{}"),
	}
	require.NoError(t, q.Enqueue(rec))

	err := q.Enqueue(rec)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeConflict))

	got, err := q.Get("dlv_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.SubmissionID)

	// Reads return copies.
	got.Status = StatusFailed
	again, err := q.Get("dlv_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)

	_, err = q.Get("dlv_missing")
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))

	err = q.Update(&Record{DeliveryID: "dlv_missing"})
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))

	bySub := q.GetBySubmission("sub_1")
	require.Len(t, bySub, 1)
	assert.Empty(t, q.GetBySubmission("sub_other"))

	st := q.Stats()
	assert.Equal(t, QueueStats{Total: 1, Pending: 1}, st)
}

func TestMemoryQueuePendingRetries(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Now().UTC()

	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	enqueue := func(id string, status Status, attempts int, createdAt time.Time, nextRetryAt *time.Time) {
		require.NoError(t, q.Enqueue(&Record{
			DeliveryID:   id,
			SubmissionID: "sub_1",
			Status:       status,
			Attempts:     attempts,
			CreatedAt:    createdAt,
			NextRetryAt:  nextRetryAt,
		}))
	}

	enqueue("dlv_due", StatusPending, 2, now, &past)
	enqueue("dlv_future", StatusPending, 2, now, &future)
	enqueue("dlv_done", StatusSucceeded, 1, now, nil)
	// Never attempted and freshly enqueued: its processor still owns it.
	enqueue("dlv_fresh", StatusPending, 0, now, nil)
	// Never attempted and old: stranded by a restart, due for recovery.
	enqueue("dlv_stalled", StatusPending, 0, now.Add(-5*time.Minute), nil)

	due := q.GetPendingRetries(now)
	ids := make([]string, 0, len(due))
	for _, rec := range due {
		ids = append(ids, rec.DeliveryID)
	}
	assert.ElementsMatch(t, []string{"dlv_due", "dlv_stalled"}, ids)
}

type recordingSink struct {
	mu        sync.Mutex
	events    []domain.EventType
	payloads  []map[string]any
	delivered []string
}

func (s *recordingSink) RecordDeliveryEvent(_ context.Context, _ string, eventType domain.EventType, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
	s.payloads = append(s.payloads, payload)
}

func (s *recordingSink) MarkDelivered(_ context.Context, submissionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, submissionID)
}

func (s *recordingSink) snapshot() ([]domain.EventType, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EventType(nil), s.events...), append([]string(nil), s.delivered...)
}

func testPools(t *testing.T) *worker.Pools {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{
		GeneralPoolSize:  4,
		DeliveryPoolSize: 4,
	})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)
	return pools
}

func testSubmission() *domain.Submission {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	actor := domain.Actor{Kind: domain.ActorAgent, ID: "agent-7"}
	return &domain.Submission{
		ID:       "sub_test1",
		IntakeID: "vendor_onboarding",
		State:    domain.StateSubmitted,
		Fields: map[string]any{
			"company_name": "Acme Corp",
			"contact":      map[string]any{"email": "ops@acme.example"},
		},
		FieldAttribution: map[string]domain.Actor{
			"company_name": actor,
			"contact":      actor,
		},
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
}

func waitForStatus(t *testing.T, q Queue, deliveryID string, want Status) *Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := q.Get(deliveryID)
		require.NoError(t, err)
		if rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("delivery %s never reached status %s", deliveryID, want)
	return nil
}

func TestEngineDeliversAfterRetries(t *testing.T) {
	var calls atomic.Int32
	var gotBody []byte
	var gotSig, gotTS, gotContentType string
	var bodyMu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		bodyMu.Lock()
		gotBody = body
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotContentType = r.Header.Get("Content-Type")
		bodyMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	queue := NewMemoryQueue()
	sink := &recordingSink{}
	engine := NewEngine(queue, testPools(t), Options{
		SigningSecret: "test-secret",
		Policy: RetryPolicy{
			MaxRetries:        5,
			InitialDelay:      time.Millisecond,
			MaxDelay:          10 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	})
	engine.SetSink(sink)

	sub := testSubmission()
	deliveryID, err := engine.EnqueueDelivery(context.Background(), sub, &domain.Destination{
		URL: srv.URL,
	})
	require.NoError(t, err)

	rec := waitForStatus(t, queue, deliveryID, StatusSucceeded)
	assert.Equal(t, 5, rec.Attempts)
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.Empty(t, rec.Error)
	assert.Nil(t, rec.NextRetryAt)

	bodyMu.Lock()
	defer bodyMu.Unlock()
	assert.Equal(t, "application/json", gotContentType)
	assert.True(t, Verify(gotBody, gotSig, "test-secret"))
	_, err = time.Parse(time.RFC3339, gotTS)
	assert.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "sub_test1", payload["submissionId"])
	assert.Equal(t, "vendor_onboarding", payload["intakeId"])
	assert.Equal(t, "submitted", payload["state"])
	meta, ok := payload["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, meta, "createdAt")
	assert.Contains(t, meta, "createdBy")

	events, delivered := sink.snapshot()
	attempted := 0
	for _, ev := range events {
		if ev == domain.EventDeliveryAttempted {
			attempted++
		}
	}
	assert.Equal(t, 5, attempted)
	assert.Equal(t, domain.EventDeliverySucceeded, events[len(events)-1])
	assert.Equal(t, []string{"sub_test1"}, delivered)
}

func TestEngineSingleAttemptPolicy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	queue := NewMemoryQueue()
	sink := &recordingSink{}
	engine := NewEngine(queue, testPools(t), Options{
		SigningSecret: "test-secret",
		Policy: RetryPolicy{
			MaxRetries:        0,
			InitialDelay:      time.Millisecond,
			MaxDelay:          time.Millisecond,
			BackoffMultiplier: 2,
		},
	})
	engine.SetSink(sink)

	deliveryID, err := engine.EnqueueDelivery(context.Background(), testSubmission(), &domain.Destination{
		URL: srv.URL,
	})
	require.NoError(t, err)

	rec := waitForStatus(t, queue, deliveryID, StatusFailed)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, rec.Error, "503")

	events, delivered := sink.snapshot()
	assert.Equal(t, []domain.EventType{domain.EventDeliveryAttempted, domain.EventDeliveryFailed}, events)
	assert.Empty(t, delivered)
}

func TestEngineSystemHeadersWin(t *testing.T) {
	var gotContentType, gotCustom, gotSig string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Team")
		gotSig = r.Header.Get(HeaderSignature)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	queue := NewMemoryQueue()
	engine := NewEngine(queue, testPools(t), Options{
		SigningSecret: "test-secret",
		Policy:        RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, BackoffMultiplier: 2},
	})

	deliveryID, err := engine.EnqueueDelivery(context.Background(), testSubmission(), &domain.Destination{
		URL:    srv.URL,
		Method: http.MethodPut,
		Headers: map[string]string{
			"X-Team":       "procurement",
			"Content-Type": "text/plain",
			HeaderSignature: "sha256=spoofed",
		},
	})
	require.NoError(t, err)

	rec := waitForStatus(t, queue, deliveryID, StatusSucceeded)
	assert.Equal(t, 1, rec.Attempts)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "procurement", gotCustom)
	assert.NotEqual(t, "sha256=spoofed", gotSig)
}

func TestDryRunMatchesDelivery(t *testing.T) {
	engine := NewEngine(NewMemoryQueue(), testPools(t), Options{
		SigningSecret: "test-secret",
		Policy:        DefaultRetryPolicy(),
	})

	sub := testSubmission()
	dest := &domain.Destination{
		URL:     "https://crm.example.com/hook",
		Headers: map[string]string{"X-Team": "procurement"},
	}
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	result, err := engine.DryRun(sub, dest, ts)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, result.Method)
	assert.Equal(t, dest.URL, result.URL)
	assert.Equal(t, "application/json", result.Headers["Content-Type"])
	assert.Equal(t, "procurement", result.Headers["X-Team"])
	assert.Equal(t, ts.Format(time.RFC3339), result.Headers[HeaderTimestamp])

	// The signature covers the body only, so a real delivery of the same
	// submission carries the same signature.
	body, err := BuildBody(sub)
	require.NoError(t, err)
	assert.Equal(t, body, result.Body)
	assert.Equal(t, Sign(body, "test-secret"), result.Headers[HeaderSignature])
	assert.True(t, Verify(result.Body, result.Headers[HeaderSignature], "test-secret"))

	// Dry runs leave no trace in the queue.
	assert.Equal(t, QueueStats{}, engine.Queue().Stats())
}

func TestRetrySchedulerResumesStrandedDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	queue := NewMemoryQueue()
	engine := NewEngine(queue, testPools(t), Options{
		SigningSecret: "test-secret",
		Policy:        RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 2},
	})

	// A record stranded mid-retry by a previous process run.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, queue.Enqueue(&Record{
		DeliveryID:     "dlv_stranded",
		SubmissionID:   "sub_test1",
		DestinationURL: srv.URL,
		Status:         StatusPending,
		Attempts:       1,
		CreatedAt:      past,
		NextRetryAt:    &past,
		Method:         http.MethodPost,
		Body:           []byte(`{"submissionId":"sub_test1"}`),
	}))

	sched := NewRetryScheduler(engine, 10*time.Millisecond)
	sched.Start(context.Background())
	defer sched.Stop()

	rec := waitForStatus(t, queue, "dlv_stranded", StatusSucceeded)
	assert.Equal(t, 2, rec.Attempts)
}
