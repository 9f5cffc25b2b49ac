package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/ids"
)

type memoryObject struct {
	req       URLRequest
	status    domain.UploadStatus
	sizeBytes int64
	errMsg    string
}

// MemoryBackend is an in-process StorageBackend for tests and local
// development. Uploads complete when the test calls Complete or Fail.
type MemoryBackend struct {
	baseURL string

	mu      sync.Mutex
	objects map[string]*memoryObject
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(baseURL string) *MemoryBackend {
	if baseURL == "" {
		baseURL = "memory://uploads"
	}
	return &MemoryBackend{
		baseURL: baseURL,
		objects: make(map[string]*memoryObject),
	}
}

// GenerateUploadURL implements StorageBackend.
func (b *MemoryBackend) GenerateUploadURL(_ context.Context, req URLRequest) (*UploadURL, error) {
	uploadID := ids.NewUploadID()

	b.mu.Lock()
	b.objects[uploadID] = &memoryObject{req: req, status: domain.UploadPending}
	b.mu.Unlock()

	return &UploadURL{
		UploadID:  uploadID,
		Method:    "PUT",
		URL:       fmt.Sprintf("%s/%s", b.baseURL, uploadID),
		ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}, nil
}

// VerifyUpload implements StorageBackend.
func (b *MemoryBackend) VerifyUpload(_ context.Context, uploadID string) (*VerifyResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[uploadID]
	if !ok {
		return &VerifyResult{Status: domain.UploadFailed, Error: "unknown upload id"}, nil
	}
	return &VerifyResult{Status: obj.status, SizeBytes: obj.sizeBytes, Error: obj.errMsg}, nil
}

// GenerateDownloadURL implements StorageBackend.
func (b *MemoryBackend) GenerateDownloadURL(_ context.Context, uploadID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[uploadID]
	if !ok || obj.status != domain.UploadCompleted {
		return "", nil
	}
	return fmt.Sprintf("%s/%s/download", b.baseURL, uploadID), nil
}

// Complete marks a pending upload as landed.
func (b *MemoryBackend) Complete(uploadID string, sizeBytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if obj, ok := b.objects[uploadID]; ok {
		obj.status = domain.UploadCompleted
		obj.sizeBytes = sizeBytes
	}
}

// Fail marks a pending upload as failed with an error message.
func (b *MemoryBackend) Fail(uploadID string, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if obj, ok := b.objects[uploadID]; ok {
		obj.status = domain.UploadFailed
		obj.errMsg = errMsg
	}
}
