// Package upload defines the storage backend contract for negotiated file
// uploads and the shipped implementations: S3 presigned URLs for
// production and an in-memory backend for tests and local development.
package upload

import (
	"context"
	"time"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
)

// Constraints bound what the destination will accept for one upload slot.
type Constraints struct {
	MaxSize      int64    `json:"maxSize"`
	AllowedTypes []string `json:"allowedTypes"`
	MaxCount     int      `json:"maxCount"`
}

// URLRequest asks the backend for a client-usable upload URL.
type URLRequest struct {
	IntakeID     string
	SubmissionID string
	FieldPath    string
	Filename     string
	MimeType     string
	Constraints  Constraints
}

// UploadURL is the negotiated upload target the client writes to directly.
type UploadURL struct {
	UploadID  string    `json:"uploadId"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerifyResult reports what the backend found when asked whether an upload
// actually landed.
type VerifyResult struct {
	Status    domain.UploadStatus `json:"status"`
	SizeBytes int64               `json:"sizeBytes,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// StorageBackend is the collaborator contract for upload negotiation. The
// core never touches file bytes; it only brokers URLs and verification.
type StorageBackend interface {
	GenerateUploadURL(ctx context.Context, req URLRequest) (*UploadURL, error)
	VerifyUpload(ctx context.Context, uploadID string) (*VerifyResult, error)
	// GenerateDownloadURL returns "" when the backend cannot produce a
	// read URL for the upload.
	GenerateDownloadURL(ctx context.Context, uploadID string) (string, error)
}
