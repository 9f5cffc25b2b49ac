package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/ids"
)

// S3Config configures the S3 storage backend.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	// Endpoint overrides the AWS endpoint, for MinIO or LocalStack.
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
	// URLTTL bounds how long presigned URLs stay usable.
	URLTTL time.Duration `mapstructure:"url_ttl"`
}

type s3Object struct {
	key      string
	mimeType string
}

// S3Backend negotiates uploads through presigned S3 URLs. Clients PUT file
// bytes straight to the bucket; the service never proxies them.
type S3Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     S3Config

	mu      sync.RWMutex
	objects map[string]s3Object // upload id -> object
}

// NewS3Backend creates an S3 storage backend from ambient AWS credentials.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO and LocalStack need path-style addressing
		}
	})

	return &S3Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		objects: make(map[string]s3Object),
	}, nil
}

// GenerateUploadURL implements StorageBackend with a presigned PUT.
func (b *S3Backend) GenerateUploadURL(ctx context.Context, req URLRequest) (*UploadURL, error) {
	uploadID := ids.NewUploadID()
	key := path.Join(b.cfg.Prefix, req.IntakeID, req.SubmissionID, uploadID, req.Filename)

	presigned, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(req.MimeType),
	}, s3.WithPresignExpires(b.cfg.URLTTL))
	if err != nil {
		return nil, fmt.Errorf("presign put for %s: %w", key, err)
	}

	b.mu.Lock()
	b.objects[uploadID] = s3Object{key: key, mimeType: req.MimeType}
	b.mu.Unlock()

	return &UploadURL{
		UploadID:  uploadID,
		Method:    presigned.Method,
		URL:       presigned.URL,
		ExpiresAt: time.Now().UTC().Add(b.cfg.URLTTL),
	}, nil
}

// VerifyUpload implements StorageBackend. An object that has not appeared
// yet reports pending, not failed; the client may simply not have finished
// the PUT.
func (b *S3Backend) VerifyUpload(ctx context.Context, uploadID string) (*VerifyResult, error) {
	b.mu.RLock()
	obj, ok := b.objects[uploadID]
	b.mu.RUnlock()
	if !ok {
		return &VerifyResult{Status: domain.UploadFailed, Error: "unknown upload id"}, nil
	}

	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(obj.key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return &VerifyResult{Status: domain.UploadPending}, nil
		}
		return nil, fmt.Errorf("head object %s: %w", obj.key, err)
	}

	res := &VerifyResult{Status: domain.UploadCompleted}
	if head.ContentLength != nil {
		res.SizeBytes = *head.ContentLength
	}
	return res, nil
}

// GenerateDownloadURL implements StorageBackend with a presigned GET.
func (b *S3Backend) GenerateDownloadURL(ctx context.Context, uploadID string) (string, error) {
	b.mu.RLock()
	obj, ok := b.objects[uploadID]
	b.mu.RUnlock()
	if !ok {
		return "", nil
	}

	presigned, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(obj.key),
	}, s3.WithPresignExpires(b.cfg.URLTTL))
	if err != nil {
		return "", fmt.Errorf("presign get for %s: %w", obj.key, err)
	}
	return presigned.URL, nil
}
