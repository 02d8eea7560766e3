package conversation

import (
	"time"
)

// ===============================================
// Conversation Types
// ===============================================

// Mode describes who currently controls responses for a conversation.
type Mode string

const (
	// ModeAutomated routes inbound messages through the intent router.
	ModeAutomated Mode = "automated"
	// ModeOperated suppresses automated routing; a human operator owns the
	// conversation exclusively.
	ModeOperated Mode = "operated"
	// ModeSuspended acknowledges inbound messages without routing them.
	ModeSuspended Mode = "suspended"
)

// ResponsePreference controls where an operator's replies are delivered.
type ResponsePreference string

const (
	ResponsePreferenceInApp    ResponsePreference = "in_app"
	ResponsePreferenceExternal ResponsePreference = "external"
	ResponsePreferenceBoth     ResponsePreference = "both"
)

// AllowsExternal reports whether replies may go out on the external channel.
func (p ResponsePreference) AllowsExternal() bool {
	return p == ResponsePreferenceExternal || p == ResponsePreferenceBoth
}

// AllowsInApp reports whether replies surface on the operator console.
func (p ResponsePreference) AllowsInApp() bool {
	return p == ResponsePreferenceInApp || p == ResponsePreferenceBoth
}

// FlowState captures an in-progress multi-step interaction so it survives
// process restarts and is resumable across messages. The answer shape is
// validated against the active flow descriptor, never treated as an open map.
type FlowState struct {
	ModuleName string         `json:"module_name"`
	StepIndex  int            `json:"step_index"`
	Answers    map[string]any `json:"answers"`
	Aux        map[string]any `json:"aux,omitempty"`
	// ExpiresAt bounds the flow's lifetime; the periodic sweep clears
	// flows that outlive it. Refreshed on every valid answer.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the flow outlived its expiry at the given instant.
func (f *FlowState) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

// ===============================================
// Conversation Structure
// ===============================================

// Conversation is the durable record of one external chat thread. The
// external channel address (e.g. a phone number) is its stable identity;
// records are created lazily on the first inbound message from an unknown
// address and never hard-deleted by the orchestration core.
//
// Invariant: AssignedOperatorID is non-nil iff Mode == ModeOperated, and at
// most one operator owns a conversation at any instant. The repository
// enforces this with conditional updates.
type Conversation struct {
	ID          uint    `json:"-"`
	PublicID    string  `json:"id"`
	Address     string  `json:"address"`
	DisplayName *string `json:"display_name,omitempty"`

	Mode               Mode       `json:"mode"`
	AssignedOperatorID *string    `json:"assigned_operator_id,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`

	ResponsePreference ResponsePreference `json:"response_preference"`
	FlowState          *FlowState         `json:"flow_state,omitempty"`

	LastActivityAt time.Time `json:"last_activity_at"`
	UnreadCount    int       `json:"unread_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether the conversation is operated by the given operator.
func (c *Conversation) OwnedBy(operatorID string) bool {
	return c.Mode == ModeOperated &&
		c.AssignedOperatorID != nil &&
		*c.AssignedOperatorID == operatorID
}

// Owner returns the assigned operator ID, or "" when unassigned.
func (c *Conversation) Owner() string {
	if c.AssignedOperatorID == nil {
		return ""
	}
	return *c.AssignedOperatorID
}

// HasActiveFlow reports whether a multi-step interaction is pending.
func (c *Conversation) HasActiveFlow() bool {
	return c.FlowState != nil
}

// NewConversation creates a conversation in its initial automated mode.
func NewConversation(publicID, address string, displayName *string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		PublicID:           publicID,
		Address:            address,
		DisplayName:        displayName,
		Mode:               ModeAutomated,
		ResponsePreference: ResponsePreferenceBoth,
		LastActivityAt:     now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
