package conversation

import (
	"context"
	"time"

	"gorm.io/gorm"

	domain "github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/infrastructure/database/entities"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// MessageRepository persists the append-only message log.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository builds a message repository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a message to the log.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	entity := entities.NewSchemaMessage(msg)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create message",
			err,
			"message-create",
		)
	}

	msg.ID = entity.ID
	msg.CreatedAt = entity.CreatedAt
	return nil
}

// UpdateStatus records the delivery outcome for an outbound message.
func (r *MessageRepository) UpdateStatus(ctx context.Context, id uint, status domain.DeliveryStatus) error {
	if err := r.db.WithContext(ctx).
		Model(&entities.Message{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update message status",
			err,
			"message-update-status",
		)
	}
	return nil
}

// ListByConversationID returns messages for a conversation in
// chronological order.
func (r *MessageRepository) ListByConversationID(ctx context.Context, conversationID uint, pagination *domain.Pagination) ([]*domain.Message, error) {
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC")
	if pagination != nil {
		if pagination.Limit > 0 {
			query = query.Limit(pagination.Limit)
		}
		if pagination.Offset > 0 {
			query = query.Offset(pagination.Offset)
		}
	}

	var rows []entities.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list messages",
			err,
			"message-list",
		)
	}

	msgs := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].EtoD())
	}
	return msgs, nil
}

// MarkRead timestamps every unread inbound message in the conversation.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID uint, at time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&entities.Message{}).
		Where("conversation_id = ? AND direction = ? AND read_at IS NULL",
			conversationID, domain.DirectionInbound).
		Update("read_at", at).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to mark messages read",
			err,
			"message-mark-read",
		)
	}
	return nil
}
