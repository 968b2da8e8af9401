// Package relay defines the event types exchanged between connected parties
// and the contracts of the collaborators the routing core depends on.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Identity is the stable identifier of a registered party.
type Identity int64

var (
	// ErrRejected is returned when a connection attempt fails authentication.
	ErrRejected = errors.New("relay: connection rejected")
	// ErrHandleClosed is returned when delivering to a handle whose transport is gone.
	ErrHandleClosed = errors.New("relay: handle closed")
	// ErrSendBufferFull is returned when a handle cannot accept more outbound events.
	ErrSendBufferFull = errors.New("relay: send buffer full")
)

// Outbound event types.
const (
	EventNewMessage  = "new_message"
	EventMessageSent = "message_sent"
	EventUserTyping  = "user_typing"
	EventUserStatus  = "user_status"
	EventError       = "error"
)

// Inbound event types.
const (
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Message is an immutable private message between two parties.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   Identity  `json:"senderId"`
	ReceiverID Identity  `json:"receiverId"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Involves reports whether the message belongs to the conversation between a and b.
func (m Message) Involves(a, b Identity) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// TypingSignal is forwarded to the receiver of a conversation. It is never persisted.
type TypingSignal struct {
	UserID   Identity `json:"userId"`
	IsTyping bool     `json:"isTyping"`
}

// PresenceEvent announces that an identity went online or offline.
type PresenceEvent struct {
	UserID Identity `json:"userId"`
	Online bool     `json:"online"`
}

// ErrorPayload is pushed to a single connection whose inbound frame was refused.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Event is the envelope pushed to a connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// InboundEvent is the envelope read from a connection. Data is decoded once
// the type is known.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SendMessageRequest is the payload of a send_message frame.
type SendMessageRequest struct {
	ReceiverID Identity `json:"receiverId" validate:"required,gt=0"`
	Text       string   `json:"text" validate:"required"`
}

// TypingRequest is the payload of a typing frame.
type TypingRequest struct {
	ReceiverID Identity `json:"receiverId" validate:"required,gt=0"`
	IsTyping   bool     `json:"isTyping"`
}

// Handle is a process-local reference to one live transport connection.
// Send must not block; Close must be idempotent.
type Handle interface {
	ID() string
	Send(Event) error
	Close()
}

// Verifier resolves an opaque credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// MessageLog is the append-only record of every routed message.
type MessageLog interface {
	Append(ctx context.Context, msg Message) error
}

// History answers conversation queries against the message log.
type History interface {
	Conversation(ctx context.Context, a, b Identity) ([]Message, error)
}
