package submission

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/upload"
)

// UploadRequest asks for an upload slot on a file-typed field.
type UploadRequest struct {
	SubmissionID string
	TenantID     string
	ResumeToken  string
	Field        string
	Filename     string
	MimeType     string
	SizeBytes    int64
	Actor        domain.Actor
}

// UploadGrant is what the client needs to perform the upload itself.
type UploadGrant struct {
	UploadID    string             `json:"uploadId"`
	Method      string             `json:"method"`
	URL         string             `json:"url"`
	ExpiresInMs int64              `json:"expiresInMs"`
	Constraints upload.Constraints `json:"constraints"`
	State       domain.State       `json:"state"`
	ResumeToken string             `json:"resumeToken"`
}

// RequestUpload negotiates an upload URL against the storage backend and
// records the upload as pending on the submission.
func (m *Manager) RequestUpload(ctx context.Context, req UploadRequest) (*UploadGrant, error) {
	mu := m.lockFor(req.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.preflight(req.SubmissionID, req.TenantID, req.ResumeToken)
	if err != nil {
		return nil, err
	}
	intake, err := m.registry.Get(sub.IntakeID)
	if err != nil {
		return nil, err
	}

	fieldSchema := intake.Schema.Lookup(req.Field)
	if fieldSchema == nil {
		return nil, apperrors.Invalid(fmt.Sprintf("field %q does not exist in the intake schema", req.Field)).
			WithFields([]apperrors.FieldError{{Field: req.Field, Message: "unknown field", Type: "invalid_value"}}).
			WithNextActions(apperrors.NextAction{Type: "validate", Description: "Use a valid field name from the intake schema"})
	}
	if m.storage == nil {
		return nil, apperrors.Invalid("no storage backend is configured; uploads are unavailable")
	}

	constraints := upload.Constraints{
		MaxSize:      req.SizeBytes,
		AllowedTypes: []string{req.MimeType},
		MaxCount:     1,
	}
	if fieldSchema.MaxSize > 0 && (constraints.MaxSize == 0 || fieldSchema.MaxSize < constraints.MaxSize) {
		constraints.MaxSize = fieldSchema.MaxSize
	}

	grant, err := m.storage.GenerateUploadURL(ctx, upload.URLRequest{
		IntakeID:     sub.IntakeID,
		SubmissionID: sub.ID,
		FieldPath:    req.Field,
		Filename:     req.Filename,
		MimeType:     req.MimeType,
		Constraints:  constraints,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorageError, "storage backend refused the upload")
	}

	now := time.Now().UTC()
	if sub.Uploads == nil {
		sub.Uploads = make(map[string]*domain.UploadRecord)
	}
	sub.Uploads[grant.UploadID] = &domain.UploadRecord{
		UploadID:  grant.UploadID,
		Field:     req.Field,
		Filename:  req.Filename,
		MimeType:  req.MimeType,
		SizeBytes: req.SizeBytes,
		Status:    domain.UploadPending,
		URL:       grant.URL,
	}
	if sub.State == domain.StateDraft || sub.State == domain.StateInProgress {
		sub.State = domain.StateAwaitingUpload
	}
	rotate(sub, req.Actor, now)

	ev := m.newEvent(sub, domain.EventUploadRequested, req.Actor, map[string]any{
		"uploadId": grant.UploadID,
		"field":    req.Field,
		"filename": req.Filename,
		"mimeType": req.MimeType,
	})
	if err := m.commit(ctx, sub, ev); err != nil {
		return nil, err
	}

	return &UploadGrant{
		UploadID:    grant.UploadID,
		Method:      grant.Method,
		URL:         grant.URL,
		ExpiresInMs: time.Until(grant.ExpiresAt).Milliseconds(),
		Constraints: constraints,
		State:       sub.State,
		ResumeToken: sub.ResumeToken,
	}, nil
}

// UploadOutcome reports the verified state of one upload.
type UploadOutcome struct {
	UploadID    string              `json:"uploadId"`
	Status      domain.UploadStatus `json:"status"`
	DownloadURL string              `json:"downloadUrl,omitempty"`
	Error       string              `json:"error,omitempty"`
	State       domain.State        `json:"state"`
	ResumeToken string              `json:"resumeToken"`
}

// ConfirmUpload verifies the upload with the storage backend and settles
// the pending record. A completed upload releases awaiting_upload back to
// in_progress once no other uploads are pending.
func (m *Manager) ConfirmUpload(ctx context.Context, p MutateParams, uploadID string) (*UploadOutcome, error) {
	mu := m.lockFor(p.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := m.preflight(p.SubmissionID, p.TenantID, p.ResumeToken)
	if err != nil {
		return nil, err
	}
	rec, ok := sub.Uploads[uploadID]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("upload %s not found on this submission", uploadID))
	}
	if m.storage == nil {
		return nil, apperrors.Invalid("no storage backend is configured; uploads are unavailable")
	}

	verified, err := m.storage.VerifyUpload(ctx, uploadID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeStorageError, "upload verification failed")
	}

	now := time.Now().UTC()
	switch verified.Status {
	case domain.UploadCompleted:
		rec.Status = domain.UploadCompleted
		rec.UploadedAt = &now
		if verified.SizeBytes > 0 {
			rec.SizeBytes = verified.SizeBytes
		}
		if url, err := m.storage.GenerateDownloadURL(ctx, uploadID); err != nil {
			logger.Warn("download url generation failed",
				zap.String("upload_id", uploadID),
				zap.Error(err),
			)
		} else {
			rec.DownloadURL = url
		}

		if sub.State == domain.StateAwaitingUpload && !hasPendingUploads(sub) {
			sub.State = domain.StateInProgress
		}
		rotate(sub, p.Actor, now)
		ev := m.newEvent(sub, domain.EventUploadCompleted, p.Actor, map[string]any{
			"uploadId": uploadID,
			"field":    rec.Field,
		})
		if err := m.commit(ctx, sub, ev); err != nil {
			return nil, err
		}

	case domain.UploadFailed:
		rec.Status = domain.UploadFailed
		rec.Error = verified.Error
		rotate(sub, p.Actor, now)
		ev := m.newEvent(sub, domain.EventUploadFailed, p.Actor, map[string]any{
			"uploadId": uploadID,
			"field":    rec.Field,
			"error":    verified.Error,
		})
		if err := m.commit(ctx, sub, ev); err != nil {
			return nil, err
		}

	default:
		// Still pending at the backend; nothing to settle yet.
		return nil, apperrors.Conflict(fmt.Sprintf("upload %s has not completed yet", uploadID)).
			WithNextActions(apperrors.NextAction{Type: "retry", Description: "Finish the upload, then confirm again"})
	}

	return &UploadOutcome{
		UploadID:    uploadID,
		Status:      rec.Status,
		DownloadURL: rec.DownloadURL,
		Error:       rec.Error,
		State:       sub.State,
		ResumeToken: sub.ResumeToken,
	}, nil
}
