package conversation

import (
	"time"
)

// Direction distinguishes messages from the external party and to them.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageKind classifies message content.
type MessageKind string

const (
	// KindText is ordinary conversational content.
	KindText MessageKind = "text"
	// KindSystem marks orchestration-generated notices (hand-off transfers,
	// timeout releases, flow prompts).
	KindSystem MessageKind = "system"
	// KindControl marks in-band admin command traffic.
	KindControl MessageKind = "control"
)

// DeliveryStatus tracks the outbound delivery attempt. Inbound messages are
// always StatusReceived.
type DeliveryStatus string

const (
	StatusReceived DeliveryStatus = "received"
	StatusPending  DeliveryStatus = "pending"
	StatusSent     DeliveryStatus = "sent"
	// StatusFailed records a transient delivery failure. The message stays
	// persisted as attempted; the triggering operation is not rolled back.
	StatusFailed DeliveryStatus = "failed"
)

// Message belongs to exactly one conversation and is append-only; ordering
// within a conversation is by creation time.
type Message struct {
	ID             uint        `json:"-"`
	PublicID       string      `json:"id"`
	ConversationID uint        `json:"-"`
	Direction      Direction   `json:"direction"`
	Kind           MessageKind `json:"kind"`
	Content        string      `json:"content"`
	// SenderOperatorID is set for operator-authored outbound messages; nil
	// for automated replies and for inbound external traffic.
	SenderOperatorID *string        `json:"sender_operator_id,omitempty"`
	Status           DeliveryStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	ReadAt           *time.Time     `json:"read_at,omitempty"`
}
