package store

import (
	"time"

	"github.com/zauberware/smshog/internal/ordered"
)

// Message is an SMS accepted through the Publish action.
//
// Messages are immutable once stored. The store hands out copies, so
// modifying a returned Message (including its attributes) does not affect
// stored state. JSON field names match what the companion UI reads.
type Message struct {
	// ID is the unique identifier assigned on acceptance.
	ID string `json:"id"`

	// PhoneNumber is the destination address.
	PhoneNumber string `json:"phoneNumber"`

	// Message is the SMS body.
	Message string `json:"message"`

	// Timestamp is when the message was accepted.
	Timestamp time.Time `json:"timestamp"`

	// MessageAttributes are the attributes sent with the publish, in the
	// order the client sent them.
	MessageAttributes ordered.Map `json:"messageAttributes,omitempty"`

	// Metadata describes the request that produced the message.
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata captures request details and the SMS attribute values in effect
// when a message was accepted.
type Metadata struct {
	RequestID string `json:"requestId,omitempty"`
	ClientIP  string `json:"clientIp,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
	SMSType   string `json:"smsType,omitempty"`
}

// clone returns a copy that shares no mutable state with m.
func (m Message) clone() Message {
	m.MessageAttributes = m.MessageAttributes.Clone()
	if m.Metadata != nil {
		md := *m.Metadata
		m.Metadata = &md
	}
	return m
}

// ChangeKind names a store mutation.
type ChangeKind string

const (
	ChangeAccepted ChangeKind = "message.accepted"
	ChangeRemoved  ChangeKind = "message.removed"
	ChangeCleared  ChangeKind = "messages.cleared"
)

// Change describes a completed mutation. Message is set for
// [ChangeAccepted]; ID is set for [ChangeAccepted] and [ChangeRemoved].
type Change struct {
	Kind    ChangeKind
	ID      string
	Message *Message
	At      time.Time
}

// Store defines the message operations used by the protocol handlers and
// the REST API.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Accept stores a new message and returns it with its assigned ID and
	// timestamp. Accept never rejects a message; validation happens before.
	Accept(phoneNumber, body string, attrs ordered.Map, meta *Metadata) Message

	// Get returns the message with the given ID.
	Get(id string) (Message, bool)

	// List returns all messages, most recent first. Messages accepted at
	// the same instant are ordered newest-inserted first.
	List() []Message

	// Remove deletes a message and reports whether it existed.
	Remove(id string) bool

	// Clear deletes all messages.
	Clear()
}
