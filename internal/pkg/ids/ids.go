// Package ids mints the opaque identifiers and bearer tokens used across
// FormBridge: submission IDs, resume tokens, event IDs, delivery IDs and
// upload IDs. All identifiers carry a stable type prefix so they are
// self-describing in logs and webhook payloads.
package ids

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes.
const (
	SubmissionPrefix = "sub_"
	ResumePrefix     = "rtok_"
	EventPrefix      = "evt_"
	DeliveryPrefix   = "dlv_"
	UploadPrefix     = "upl_"
)

// resumeTokenBytes is the entropy of a resume token (256 bits).
const resumeTokenBytes = 32

// NewSubmissionID returns a new globally unique submission identifier.
func NewSubmissionID() string {
	return SubmissionPrefix + uuid.NewString()
}

// NewEventID returns a new event identifier.
func NewEventID() string {
	return EventPrefix + uuid.NewString()
}

// NewDeliveryID returns a new webhook delivery identifier.
func NewDeliveryID() string {
	return DeliveryPrefix + uuid.NewString()
}

// NewUploadID returns a new upload negotiation identifier.
func NewUploadID() string {
	return UploadPrefix + uuid.NewString()
}

// NewResumeToken returns a cryptographically random resume token.
// The token is the sole credential for resume routes, so it is minted from
// crypto/rand rather than a UUID.
func NewResumeToken() string {
	b := make([]byte, resumeTokenBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; if it does the
		// process cannot safely mint credentials.
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	return ResumePrefix + hex.EncodeToString(b)
}

// TokensEqual compares a candidate token against the stored current token in
// constant time. Unequal lengths return false immediately; the length of a
// token is public, only its content is secret.
func TokensEqual(candidate, current string) bool {
	if len(candidate) != len(current) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(current)) == 1
}

// IsResumeToken reports whether s has the resume-token shape. Used by
// handlers to reject malformed path parameters before any store lookup.
func IsResumeToken(s string) bool {
	return strings.HasPrefix(s, ResumePrefix) && len(s) == len(ResumePrefix)+resumeTokenBytes*2
}
