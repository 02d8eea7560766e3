package entities

import (
	"time"

	"github.com/flockhq/flock-server/internal/domain/conversation"
)

// Message represents the database schema for the append-only message log.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_message_conversation_created"`

	PublicID       string       `gorm:"type:varchar(50);uniqueIndex;not null"`
	ConversationID uint         `gorm:"index:idx_message_conversation_created;not null"`
	Conversation   Conversation `gorm:"foreignKey:ConversationID"`

	Direction        conversation.Direction      `gorm:"type:varchar(10);not null"`
	Kind             conversation.MessageKind    `gorm:"type:varchar(10);not null;default:'text'"`
	Content          string                      `gorm:"type:text;not null"`
	SenderOperatorID *string                     `gorm:"type:varchar(50)"`
	Status           conversation.DeliveryStatus `gorm:"type:varchar(10);not null"`
	ReadAt           *time.Time                  `gorm:"type:timestamptz"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// NewSchemaMessage converts a domain message to its entity.
func NewSchemaMessage(msg *conversation.Message) *Message {
	return &Message{
		ID:               msg.ID,
		PublicID:         msg.PublicID,
		ConversationID:   msg.ConversationID,
		Direction:        msg.Direction,
		Kind:             msg.Kind,
		Content:          msg.Content,
		SenderOperatorID: msg.SenderOperatorID,
		Status:           msg.Status,
		ReadAt:           msg.ReadAt,
		CreatedAt:        msg.CreatedAt,
	}
}

// EtoD converts the database entity to its domain model.
func (m *Message) EtoD() *conversation.Message {
	return &conversation.Message{
		ID:               m.ID,
		PublicID:         m.PublicID,
		ConversationID:   m.ConversationID,
		Direction:        m.Direction,
		Kind:             m.Kind,
		Content:          m.Content,
		SenderOperatorID: m.SenderOperatorID,
		Status:           m.Status,
		ReadAt:           m.ReadAt,
		CreatedAt:        m.CreatedAt,
	}
}
