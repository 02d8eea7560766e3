package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/infrastructure/database/entities"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// Repository persists conversation state in PostgreSQL. All ownership
// mutations are single-statement conditional updates so concurrent
// processes race on the database row, never on process memory.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a conversation repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the conversation record. A unique violation on the
// address column is reported as a conflict so callers can re-read the
// row the concurrent writer won with.
func (r *Repository) Create(ctx context.Context, conv *domain.Conversation) error {
	entity := entities.NewSchemaConversation(conv)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeConflict,
				fmt.Sprintf("conversation already exists for address %s", conv.Address),
				err,
				"conversation-create-duplicate",
			)
		}
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create conversation",
			err,
			"conversation-create",
		)
	}

	conv.ID = entity.ID
	conv.CreatedAt = entity.CreatedAt
	conv.UpdatedAt = entity.UpdatedAt
	return nil
}

// FindByPublicID fetches a conversation by its public ID.
func (r *Repository) FindByPublicID(ctx context.Context, publicID string) (*domain.Conversation, error) {
	return r.findOne(ctx, "public_id = ?", publicID, fmt.Sprintf("conversation not found: %s", publicID))
}

// FindByAddress fetches a conversation by the contact's chat address.
func (r *Repository) FindByAddress(ctx context.Context, address string) (*domain.Conversation, error) {
	return r.findOne(ctx, "address = ?", address, "conversation not found for address")
}

func (r *Repository) findOne(ctx context.Context, query string, arg any, notFoundMsg string) (*domain.Conversation, error) {
	var entity entities.Conversation
	if err := r.db.WithContext(ctx).Where(query, arg).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				notFoundMsg,
				nil,
				"conversation-not-found",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to fetch conversation",
			err,
			"conversation-fetch",
		)
	}
	return entity.EtoD(), nil
}

// FindByFilter lists conversations matching the filter, most recently
// active first.
func (r *Repository) FindByFilter(ctx context.Context, filter domain.Filter, pagination *domain.Pagination) ([]*domain.Conversation, error) {
	query := applyFilter(r.db.WithContext(ctx), filter).Order("last_activity_at DESC")
	if pagination != nil {
		if pagination.Limit > 0 {
			query = query.Limit(pagination.Limit)
		}
		if pagination.Offset > 0 {
			query = query.Offset(pagination.Offset)
		}
	}

	var rows []entities.Conversation
	if err := query.Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list conversations",
			err,
			"conversation-list",
		)
	}

	convs := make([]*domain.Conversation, 0, len(rows))
	for i := range rows {
		convs = append(convs, rows[i].EtoD())
	}
	return convs, nil
}

// Count returns the number of conversations matching the filter.
func (r *Repository) Count(ctx context.Context, filter domain.Filter) (int64, error) {
	var count int64
	if err := applyFilter(r.db.WithContext(ctx).Model(&entities.Conversation{}), filter).Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to count conversations",
			err,
			"conversation-count",
		)
	}
	return count, nil
}

// Claim takes ownership of a conversation. The WHERE clause only matches
// rows that are still automated, or rows the same operator already owns,
// so a lost race surfaces as zero affected rows.
func (r *Repository) Claim(ctx context.Context, id uint, operatorID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ? AND (mode = ? OR (mode = ? AND assigned_operator_id = ?))",
			id, domain.ModeAutomated, domain.ModeOperated, operatorID).
		Updates(map[string]any{
			"mode":                 domain.ModeOperated,
			"assigned_operator_id": operatorID,
			"assigned_at":          at,
		})
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to claim conversation",
			result.Error,
			"conversation-claim",
		)
	}
	return result.RowsAffected > 0, nil
}

// TransferOwner hands the conversation to another operator, conditional
// on fromOperatorID being the current owner.
func (r *Repository) TransferOwner(ctx context.Context, id uint, fromOperatorID, toOperatorID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ? AND mode = ? AND assigned_operator_id = ?",
			id, domain.ModeOperated, fromOperatorID).
		Updates(map[string]any{
			"assigned_operator_id": toOperatorID,
			"assigned_at":          at,
		})
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to transfer conversation",
			result.Error,
			"conversation-transfer",
		)
	}
	return result.RowsAffected > 0, nil
}

// Release hands the conversation back to automation, conditional on
// operatorID being the current owner.
func (r *Repository) Release(ctx context.Context, id uint, operatorID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ? AND mode = ? AND assigned_operator_id = ?",
			id, domain.ModeOperated, operatorID).
		Updates(map[string]any{
			"mode":                 domain.ModeAutomated,
			"assigned_operator_id": nil,
			"assigned_at":          nil,
		})
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to release conversation",
			result.Error,
			"conversation-release",
		)
	}
	return result.RowsAffected > 0, nil
}

// ReleaseByTimeout hands a stale operated conversation back to
// automation. The staleness predicate is re-checked inside the update so
// concurrent sweeps, or a contact message racing the sweep, make this a
// no-op rather than a double release.
func (r *Repository) ReleaseByTimeout(ctx context.Context, id uint, cutoff time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ? AND mode = ? AND last_activity_at < ?",
			id, domain.ModeOperated, cutoff).
		Updates(map[string]any{
			"mode":                 domain.ModeAutomated,
			"assigned_operator_id": nil,
			"assigned_at":          nil,
		})
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to release stale conversation",
			result.Error,
			"conversation-release-timeout",
		)
	}
	return result.RowsAffected > 0, nil
}

// SetMode toggles automated/suspended without touching ownership.
func (r *Repository) SetMode(ctx context.Context, id uint, mode domain.Mode) error {
	if err := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ?", id).
		Update("mode", mode).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to set conversation mode",
			err,
			"conversation-set-mode",
		)
	}
	return nil
}

// SaveFlowState persists the in-progress flow; a nil state clears it.
// The expiry is mirrored into its own column so the sweep query stays on
// an index instead of scanning JSONB.
func (r *Repository) SaveFlowState(ctx context.Context, id uint, state *domain.FlowState) error {
	updates := map[string]any{
		"flow_state":      nil,
		"flow_expires_at": nil,
	}
	if state != nil {
		data, err := json.Marshal(state)
		if err != nil {
			return platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeInternal,
				"failed to encode flow state",
				err,
				"conversation-encode-flow",
			)
		}
		updates["flow_state"] = datatypes.JSON(data)
		if !state.ExpiresAt.IsZero() {
			updates["flow_expires_at"] = state.ExpiresAt
		}
	}

	if err := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to save flow state",
			err,
			"conversation-save-flow",
		)
	}
	return nil
}

// Touch refreshes last_activity_at, optionally incrementing the unread
// counter in the same statement.
func (r *Repository) Touch(ctx context.Context, id uint, at time.Time, incrementUnread bool) error {
	updates := map[string]any{"last_activity_at": at}
	if incrementUnread {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}

	if err := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to touch conversation",
			err,
			"conversation-touch",
		)
	}
	return nil
}

// ResetUnread zeroes the unread counter.
func (r *Repository) ResetUnread(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).
		Model(&entities.Conversation{}).
		Where("id = ?", id).
		Update("unread_count", 0).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to reset unread count",
			err,
			"conversation-reset-unread",
		)
	}
	return nil
}

// FindStaleOperated lists operated conversations whose last activity is
// older than cutoff.
func (r *Repository) FindStaleOperated(ctx context.Context, cutoff time.Time) ([]*domain.Conversation, error) {
	var rows []entities.Conversation
	if err := r.db.WithContext(ctx).
		Where("mode = ? AND last_activity_at < ?", domain.ModeOperated, cutoff).
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list stale conversations",
			err,
			"conversation-stale-list",
		)
	}

	convs := make([]*domain.Conversation, 0, len(rows))
	for i := range rows {
		convs = append(convs, rows[i].EtoD())
	}
	return convs, nil
}

// FindExpiredFlows lists conversations whose flow state expired before
// the given instant.
func (r *Repository) FindExpiredFlows(ctx context.Context, now time.Time) ([]*domain.Conversation, error) {
	var rows []entities.Conversation
	if err := r.db.WithContext(ctx).
		Where("flow_expires_at IS NOT NULL AND flow_expires_at < ?", now).
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list expired flows",
			err,
			"conversation-expired-flows",
		)
	}

	convs := make([]*domain.Conversation, 0, len(rows))
	for i := range rows {
		convs = append(convs, rows[i].EtoD())
	}
	return convs, nil
}

func applyFilter(query *gorm.DB, filter domain.Filter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.PublicID != nil {
		query = query.Where("public_id = ?", *filter.PublicID)
	}
	if filter.Address != nil {
		query = query.Where("address = ?", *filter.Address)
	}
	if filter.Mode != nil {
		query = query.Where("mode = ?", *filter.Mode)
	}
	if filter.AssignedOperatorID != nil {
		query = query.Where("assigned_operator_id = ?", *filter.AssignedOperatorID)
	}
	return query
}
