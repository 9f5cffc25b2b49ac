package domain

import "time"

// Reserved field names are rejected on every write path.
var reservedFieldNames = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
	"__uploads":   true,
}

// IsReservedFieldName reports whether name may never be used as a field key.
func IsReservedFieldName(name string) bool {
	return reservedFieldNames[name]
}

// UploadStatus is the state of a negotiated upload.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// UploadRecord tracks one negotiated file upload on a submission.
type UploadRecord struct {
	UploadID    string       `json:"uploadId"`
	Field       string       `json:"field"`
	Filename    string       `json:"filename"`
	MimeType    string       `json:"mimeType"`
	SizeBytes   int64        `json:"sizeBytes"`
	Status      UploadStatus `json:"status"`
	URL         string       `json:"url,omitempty"`
	UploadedAt  *time.Time   `json:"uploadedAt,omitempty"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Submission is the primary entity carried through the lifecycle.
type Submission struct {
	ID               string                   `json:"id"`
	IntakeID         string                   `json:"intakeId"`
	TenantID         string                   `json:"tenantId,omitempty"`
	State            State                    `json:"state"`
	ResumeToken      string                   `json:"resumeToken"`
	Fields           map[string]any           `json:"fields"`
	FieldAttribution map[string]Actor         `json:"fieldAttribution"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
	ExpiresAt        *time.Time               `json:"expiresAt,omitempty"`
	CreatedBy        Actor                    `json:"createdBy"`
	UpdatedBy        Actor                    `json:"updatedBy"`
	IdempotencyKey   string                   `json:"idempotencyKey,omitempty"`
	SubmitKey        string                   `json:"submitKey,omitempty"`
	Events           []*Event                 `json:"events"`
	Uploads          map[string]*UploadRecord `json:"uploads,omitempty"`
}

// NextVersion returns the version the next event on this submission must
// carry. The in-record log is authoritative for sequencing.
func (s *Submission) NextVersion() int64 {
	return int64(len(s.Events)) + 1
}

// IsExpired reports whether the submission's TTL boundary has passed.
func (s *Submission) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// Clone returns a copy safe to hand to readers while the original keeps
// mutating under the store lock. Field values are shared (treated as
// immutable once written); the maps and slices themselves are copied.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Fields = make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		cp.Fields[k] = v
	}
	cp.FieldAttribution = make(map[string]Actor, len(s.FieldAttribution))
	for k, v := range s.FieldAttribution {
		cp.FieldAttribution[k] = v
	}
	cp.Events = make([]*Event, len(s.Events))
	copy(cp.Events, s.Events)
	if s.Uploads != nil {
		cp.Uploads = make(map[string]*UploadRecord, len(s.Uploads))
		for k, v := range s.Uploads {
			u := *v
			cp.Uploads[k] = &u
		}
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}
