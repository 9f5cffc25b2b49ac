package errors

import "time"

// Envelope is the HTTP/API boundary error carrier.
// Success responses at the same boundary set OK=true and omit Error.
type Envelope struct {
	OK           bool           `json:"ok"`
	SubmissionID string         `json:"submissionId,omitempty"`
	State        string         `json:"state,omitempty"`
	ResumeToken  string         `json:"resumeToken,omitempty"`
	Error        *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the error body inside an Envelope.
type EnvelopeError struct {
	Type         Type         `json:"type"`
	Message      string       `json:"message,omitempty"`
	Fields       []FieldError `json:"fields,omitempty"`
	NextActions  []NextAction `json:"nextActions,omitempty"`
	Retryable    bool         `json:"retryable"`
	RetryAfterMs int64        `json:"retryAfterMs,omitempty"`
}

// Flat is the tool-protocol boundary error carrier.
type Flat struct {
	Type        Type         `json:"type"`
	Message     string       `json:"message,omitempty"`
	Fields      []FieldError `json:"fields"`
	NextActions []NextAction `json:"nextActions"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// ToEnvelope builds the HTTP error envelope for an AppError.
func ToEnvelope(e *AppError) Envelope {
	return Envelope{
		OK: false,
		Error: &EnvelopeError{
			Type:         e.Type,
			Message:      e.Message,
			Fields:       e.Fields,
			NextActions:  e.NextActions,
			Retryable:    e.Retryable,
			RetryAfterMs: e.RetryAfterMs,
		},
	}
}

// ToFlat builds the tool-protocol error shape for an AppError.
func ToFlat(e *AppError, now time.Time) Flat {
	fields := e.Fields
	if fields == nil {
		fields = []FieldError{}
	}
	actions := e.NextActions
	if actions == nil {
		actions = []NextAction{}
	}
	return Flat{
		Type:        e.Type,
		Message:     e.Message,
		Fields:      fields,
		NextActions: actions,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
}

// IsEnvelope reports whether a decoded JSON object carries the envelope error
// shape (ok=false with a nested error object).
func IsEnvelope(m map[string]any) bool {
	ok, present := m["ok"]
	if !present {
		return false
	}
	b, isBool := ok.(bool)
	if !isBool || b {
		return false
	}
	_, hasErr := m["error"]
	return hasErr
}

// IsFlat reports whether a decoded JSON object carries the flat error shape
// (top-level type plus fields/nextActions, no ok discriminator).
func IsFlat(m map[string]any) bool {
	if _, present := m["ok"]; present {
		return false
	}
	t, hasType := m["type"].(string)
	if !hasType || t == "" {
		return false
	}
	_, hasFields := m["fields"]
	_, hasActions := m["nextActions"]
	return hasFields && hasActions
}
