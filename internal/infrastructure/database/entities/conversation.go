package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/flockhq/flock-server/internal/domain/conversation"
)

// Conversation represents the database schema for conversations.
type Conversation struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID    string  `gorm:"type:varchar(50);uniqueIndex;not null"`
	Address     string  `gorm:"type:varchar(64);uniqueIndex;not null"`
	DisplayName *string `gorm:"type:varchar(128)"`

	Mode               conversation.Mode `gorm:"type:varchar(20);index:idx_conversation_mode_activity;not null;default:'automated'"`
	AssignedOperatorID *string           `gorm:"type:varchar(50);index"`
	AssignedAt         *time.Time        `gorm:"type:timestamptz"`

	ResponsePreference conversation.ResponsePreference `gorm:"type:varchar(20);not null;default:'both'"`

	// FlowState carries the serialized in-progress flow; FlowExpiresAt
	// mirrors its expiry so sweep queries stay on an index instead of
	// scanning JSONB.
	FlowState     datatypes.JSON `gorm:"type:jsonb"`
	FlowExpiresAt *time.Time     `gorm:"type:timestamptz;index"`

	LastActivityAt time.Time `gorm:"type:timestamptz;index:idx_conversation_mode_activity;not null"`
	UnreadCount    int       `gorm:"not null;default:0"`
}

// TableName specifies the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// NewSchemaConversation converts a domain conversation to its entity.
func NewSchemaConversation(conv *conversation.Conversation) *Conversation {
	entity := &Conversation{
		ID:                 conv.ID,
		PublicID:           conv.PublicID,
		Address:            conv.Address,
		DisplayName:        conv.DisplayName,
		Mode:               conv.Mode,
		AssignedOperatorID: conv.AssignedOperatorID,
		AssignedAt:         conv.AssignedAt,
		ResponsePreference: conv.ResponsePreference,
		LastActivityAt:     conv.LastActivityAt,
		UnreadCount:        conv.UnreadCount,
		CreatedAt:          conv.CreatedAt,
		UpdatedAt:          conv.UpdatedAt,
	}
	if conv.FlowState != nil {
		if data, err := json.Marshal(conv.FlowState); err == nil {
			entity.FlowState = datatypes.JSON(data)
		}
		if !conv.FlowState.ExpiresAt.IsZero() {
			expires := conv.FlowState.ExpiresAt
			entity.FlowExpiresAt = &expires
		}
	}
	return entity
}

// EtoD converts the database entity to its domain model.
func (c *Conversation) EtoD() *conversation.Conversation {
	conv := &conversation.Conversation{
		ID:                 c.ID,
		PublicID:           c.PublicID,
		Address:            c.Address,
		DisplayName:        c.DisplayName,
		Mode:               c.Mode,
		AssignedOperatorID: c.AssignedOperatorID,
		AssignedAt:         c.AssignedAt,
		ResponsePreference: c.ResponsePreference,
		LastActivityAt:     c.LastActivityAt,
		UnreadCount:        c.UnreadCount,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if len(c.FlowState) > 0 {
		var state conversation.FlowState
		if err := json.Unmarshal(c.FlowState, &state); err == nil {
			conv.FlowState = &state
		}
	}
	return conv
}
