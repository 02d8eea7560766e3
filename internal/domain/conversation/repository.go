package conversation

import (
	"context"
	"time"
)

// Filter narrows conversation queries.
type Filter struct {
	ID                 *uint
	PublicID           *string
	Address            *string
	Mode               *Mode
	AssignedOperatorID *string
}

// Pagination bounds list queries.
type Pagination struct {
	Limit  int
	Offset int
}

// Repository is the single source of truth for conversation state across
// processes. Claim, transfer and release are conditional updates: the
// current owner is part of the WHERE clause, so a lost race reports zero
// affected rows instead of silently overwriting ownership.
type Repository interface {
	Create(ctx context.Context, conv *Conversation) error
	FindByPublicID(ctx context.Context, publicID string) (*Conversation, error)
	FindByAddress(ctx context.Context, address string) (*Conversation, error)
	FindByFilter(ctx context.Context, filter Filter, pagination *Pagination) ([]*Conversation, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	// Claim sets mode=operated and the owner, but only when the row is
	// currently automated or already owned by the same operator (idempotent
	// re-claim refreshes assigned_at). Returns false when the conditional
	// update matched no row.
	Claim(ctx context.Context, id uint, operatorID string, at time.Time) (bool, error)

	// TransferOwner moves ownership, conditional on fromOperatorID being
	// the current owner.
	TransferOwner(ctx context.Context, id uint, fromOperatorID, toOperatorID string, at time.Time) (bool, error)

	// Release restores automated mode, conditional on operatorID being the
	// current owner.
	Release(ctx context.Context, id uint, operatorID string) (bool, error)

	// ReleaseByTimeout restores automated mode, conditional on the row
	// still being operated with last_activity_at older than cutoff. The
	// predicate makes redundant sweeps skip rows another sweep already
	// released.
	ReleaseByTimeout(ctx context.Context, id uint, cutoff time.Time) (bool, error)

	// SetMode toggles automated/suspended without touching ownership.
	SetMode(ctx context.Context, id uint, mode Mode) error

	// SaveFlowState persists (or with nil clears) the in-progress flow.
	SaveFlowState(ctx context.Context, id uint, state *FlowState) error

	// Touch refreshes last_activity_at, optionally incrementing the unread
	// counter.
	Touch(ctx context.Context, id uint, at time.Time, incrementUnread bool) error

	// ResetUnread zeroes the unread counter.
	ResetUnread(ctx context.Context, id uint) error

	// FindStaleOperated lists operated conversations whose last activity is
	// older than cutoff.
	FindStaleOperated(ctx context.Context, cutoff time.Time) ([]*Conversation, error)

	// FindExpiredFlows lists conversations whose flow state expired before
	// the given instant.
	FindExpiredFlows(ctx context.Context, now time.Time) ([]*Conversation, error)
}

// MessageRepository persists the append-only message log.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	UpdateStatus(ctx context.Context, id uint, status DeliveryStatus) error
	ListByConversationID(ctx context.Context, conversationID uint, pagination *Pagination) ([]*Message, error)
	MarkRead(ctx context.Context, conversationID uint, at time.Time) error
}
