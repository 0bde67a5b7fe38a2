// Package ids generates the identifiers SMSHog hands out: message ids for
// accepted publishes and request ids for protocol responses.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// PlaceholderRequestID is the fixed RequestId returned when per-request ids
// are disabled. SDKs only check that the field is present.
const PlaceholderRequestID = "00000000-0000-0000-0000-000000000000"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a random (version 4) UUID string.
func NewMessageID() string {
	return uuid.NewString()
}

// NewRequestID returns a time-sortable ULID encoded as a 26-character string.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Placeholder returns [PlaceholderRequestID]. It has the same shape as
// [NewRequestID] so either can be injected as a request id source.
func Placeholder() string {
	return PlaceholderRequestID
}
