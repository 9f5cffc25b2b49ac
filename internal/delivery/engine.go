package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/ids"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/metrics"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/worker"
)

// Outbound header names.
const (
	HeaderTimestamp = "X-FormBridge-Timestamp"
	HeaderSignature = "X-FormBridge-Signature"
)

// EventSink receives delivery lifecycle notifications. The submission
// manager implements it to run the triple-write for delivery events and to
// finalize submissions on delivery success. Nil-safe: an engine without a
// sink still delivers.
type EventSink interface {
	RecordDeliveryEvent(ctx context.Context, submissionID string, eventType domain.EventType, payload map[string]any)
	MarkDelivered(ctx context.Context, submissionID string)
}

// Options configures an Engine.
type Options struct {
	SigningSecret string
	Policy        RetryPolicy
	Client        *http.Client
}

// Engine builds signed webhook payloads, attempts delivery on the delivery
// worker pool and schedules retries. Enqueue is non-blocking: processing is
// asynchronous and processing errors are logged, never re-raised.
type Engine struct {
	queue  Queue
	pools  *worker.Pools
	client *http.Client
	secret string
	policy RetryPolicy
	sink   EventSink
}

// NewEngine creates a delivery engine.
func NewEngine(queue Queue, pools *worker.Pools, opts Options) *Engine {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	policy := opts.Policy
	if policy.InitialDelay == 0 && policy.MaxRetries == 0 && policy.BackoffMultiplier == 0 {
		policy = DefaultRetryPolicy()
	}
	return &Engine{
		queue:  queue,
		pools:  pools,
		client: client,
		secret: opts.SigningSecret,
		policy: policy,
	}
}

// SetSink wires the delivery event sink after construction; the submission
// manager and the engine reference each other.
func (e *Engine) SetSink(sink EventSink) {
	e.sink = sink
}

// Queue exposes the underlying queue for read paths.
func (e *Engine) Queue() Queue {
	return e.queue
}

// webhookPayload is the outbound JSON body.
type webhookPayload struct {
	SubmissionID     string                  `json:"submissionId"`
	IntakeID         string                  `json:"intakeId"`
	State            domain.State            `json:"state"`
	Fields           map[string]any          `json:"fields"`
	FieldAttribution map[string]domain.Actor `json:"fieldAttribution"`
	Metadata         payloadMetadata         `json:"metadata"`
}

type payloadMetadata struct {
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	CreatedBy domain.Actor `json:"createdBy"`
}

// BuildBody renders the outbound JSON body for a submission.
func BuildBody(sub *domain.Submission) ([]byte, error) {
	return json.Marshal(webhookPayload{
		SubmissionID:     sub.ID,
		IntakeID:         sub.IntakeID,
		State:            sub.State,
		Fields:           sub.Fields,
		FieldAttribution: sub.FieldAttribution,
		Metadata: payloadMetadata{
			CreatedAt: sub.CreatedAt,
			UpdatedAt: sub.UpdatedAt,
			CreatedBy: sub.CreatedBy,
		},
	})
}

// EnqueueDelivery records a pending delivery for the submission's
// destination and hands processing to the delivery pool. It returns the
// delivery ID immediately.
func (e *Engine) EnqueueDelivery(ctx context.Context, sub *domain.Submission, dest *domain.Destination) (string, error) {
	body, err := BuildBody(sub)
	if err != nil {
		return "", fmt.Errorf("build delivery body: %w", err)
	}
	method := dest.Method
	if method == "" {
		method = http.MethodPost
	}

	rec := &Record{
		DeliveryID:     ids.NewDeliveryID(),
		SubmissionID:   sub.ID,
		DestinationURL: dest.URL,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		Method:         method,
		Headers:        dest.Headers,
		Body:           body,
	}
	if err := e.queue.Enqueue(rec); err != nil {
		return "", err
	}
	metrics.PendingDeliveries.Inc()

	deliveryID := rec.DeliveryID
	if err := e.pools.SubmitDetached(e.pools.Delivery, func(taskCtx context.Context) {
		e.process(taskCtx, deliveryID)
	}); err != nil {
		// The record stays pending; the retry scheduler will pick it up.
		logger.Warn("delivery processing submit failed",
			zap.String("delivery_id", deliveryID),
			zap.Error(err),
		)
	}
	return deliveryID, nil
}

// Resume re-drives a pending delivery, used by the retry scheduler.
func (e *Engine) Resume(deliveryID string) {
	if err := e.pools.SubmitDetached(e.pools.Delivery, func(taskCtx context.Context) {
		e.process(taskCtx, deliveryID)
	}); err != nil {
		logger.Warn("delivery resume submit failed",
			zap.String("delivery_id", deliveryID),
			zap.Error(err),
		)
	}
}

// process runs the attempt/backoff loop for one delivery. Cancellation
// pauses the delivery; it stays pending for the next scheduler tick.
func (e *Engine) process(ctx context.Context, deliveryID string) {
	rec, err := e.queue.Get(deliveryID)
	if err != nil {
		logger.Error("delivery record missing", zap.String("delivery_id", deliveryID), zap.Error(err))
		return
	}
	if rec.Status != StatusPending {
		return
	}

	for rec.Attempts < e.policy.MaxAttempts() {
		now := time.Now().UTC()
		rec.Attempts++
		rec.LastAttemptAt = &now
		rec.NextRetryAt = nil
		if err := e.queue.Update(rec); err != nil {
			logger.Error("delivery update failed", zap.String("delivery_id", rec.DeliveryID), zap.Error(err))
			return
		}

		metrics.DeliveryAttempts.Inc()
		e.emit(ctx, rec.SubmissionID, domain.EventDeliveryAttempted, map[string]any{
			"deliveryId": rec.DeliveryID,
			"attempt":    rec.Attempts,
			"url":        rec.DestinationURL,
		})

		statusCode, attemptErr := e.attempt(ctx, rec)
		rec.StatusCode = statusCode

		if attemptErr == nil && statusCode >= 200 && statusCode < 300 {
			rec.Status = StatusSucceeded
			rec.Error = ""
			if err := e.queue.Update(rec); err != nil {
				logger.Error("delivery update failed", zap.String("delivery_id", rec.DeliveryID), zap.Error(err))
			}
			metrics.DeliveriesSucceeded.Inc()
			metrics.PendingDeliveries.Dec()
			e.emit(ctx, rec.SubmissionID, domain.EventDeliverySucceeded, map[string]any{
				"deliveryId": rec.DeliveryID,
				"attempts":   rec.Attempts,
				"statusCode": statusCode,
			})
			if e.sink != nil {
				e.sink.MarkDelivered(ctx, rec.SubmissionID)
			}
			logger.Info("webhook delivered",
				zap.String("delivery_id", rec.DeliveryID),
				zap.String("submission_id", rec.SubmissionID),
				zap.Int("attempts", rec.Attempts),
			)
			return
		}

		if attemptErr != nil {
			rec.Error = attemptErr.Error()
		} else {
			rec.Error = fmt.Sprintf("destination responded %d", statusCode)
		}

		if ctx.Err() != nil {
			// Shutdown mid-delivery: leave the record pending for the
			// retry scheduler.
			_ = e.queue.Update(rec)
			return
		}

		if rec.Attempts >= e.policy.MaxAttempts() {
			break
		}

		delay := e.policy.Delay(rec.Attempts)
		next := time.Now().UTC().Add(delay)
		rec.NextRetryAt = &next
		if err := e.queue.Update(rec); err != nil {
			logger.Error("delivery update failed", zap.String("delivery_id", rec.DeliveryID), zap.Error(err))
			return
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}

	rec.Status = StatusFailed
	if err := e.queue.Update(rec); err != nil {
		logger.Error("delivery update failed", zap.String("delivery_id", rec.DeliveryID), zap.Error(err))
	}
	metrics.DeliveriesFailed.Inc()
	metrics.PendingDeliveries.Dec()
	e.emit(ctx, rec.SubmissionID, domain.EventDeliveryFailed, map[string]any{
		"deliveryId": rec.DeliveryID,
		"attempts":   rec.Attempts,
		"error":      rec.Error,
	})
	logger.Warn("webhook delivery exhausted",
		zap.String("delivery_id", rec.DeliveryID),
		zap.String("submission_id", rec.SubmissionID),
		zap.Int("attempts", rec.Attempts),
		zap.String("error", rec.Error),
	)
}

// attempt sends one HTTP request for the record.
func (e *Engine) attempt(ctx context.Context, rec *Record) (int, error) {
	req, err := http.NewRequestWithContext(ctx, rec.Method, rec.DestinationURL, bytes.NewReader(rec.Body))
	if err != nil {
		return 0, err
	}
	for k, v := range e.headers(rec.Body, rec.Headers, time.Now().UTC()) {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// headers merges destination custom headers with the system headers;
// system headers win on conflict.
func (e *Engine) headers(body []byte, custom map[string]string, ts time.Time) map[string]string {
	h := make(map[string]string, len(custom)+3)
	for k, v := range custom {
		h[k] = v
	}
	h["Content-Type"] = "application/json"
	h[HeaderTimestamp] = ts.Format(time.RFC3339)
	if e.secret != "" {
		h[HeaderSignature] = Sign(body, e.secret)
	}
	return h
}

// DryRunResult is the exact request a real delivery would send at the
// given timestamp.
type DryRunResult struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
}

// DryRun renders the outbound request without invoking the HTTP client.
func (e *Engine) DryRun(sub *domain.Submission, dest *domain.Destination, ts time.Time) (*DryRunResult, error) {
	body, err := BuildBody(sub)
	if err != nil {
		return nil, err
	}
	method := dest.Method
	if method == "" {
		method = http.MethodPost
	}
	return &DryRunResult{
		Method:  method,
		URL:     dest.URL,
		Headers: e.headers(body, dest.Headers, ts),
		Body:    body,
	}, nil
}

func (e *Engine) emit(ctx context.Context, submissionID string, eventType domain.EventType, payload map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.RecordDeliveryEvent(ctx, submissionID, eventType, payload)
}
