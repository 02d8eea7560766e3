package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// ConversationHandler exposes the operator console's conversation
// operations.
type ConversationHandler struct {
	convs     *conversation.Service
	operators operator.Repository
	log       zerolog.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(convs *conversation.Service, operators operator.Repository, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{convs: convs, operators: operators, log: log}
}

// List returns conversations matching the filter plus the total count.
func (h *ConversationHandler) List(ctx context.Context, filter conversation.Filter, pagination *conversation.Pagination) ([]*conversation.Conversation, int64, error) {
	convs, err := h.convs.List(ctx, filter, pagination)
	if err != nil {
		return nil, 0, err
	}
	total, err := h.convs.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

// Get fetches one conversation by public ID.
func (h *ConversationHandler) Get(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	return h.convs.Get(ctx, publicID)
}

// Messages pages through a conversation's log.
func (h *ConversationHandler) Messages(ctx context.Context, publicID string, pagination *conversation.Pagination) ([]*conversation.Message, error) {
	conv, err := h.convs.Get(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return h.convs.Messages(ctx, conv, pagination)
}

// Claim takes ownership for the acting operator.
func (h *ConversationHandler) Claim(ctx context.Context, publicID, operatorID string) (*conversation.Conversation, error) {
	op, err := h.actingOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	return h.convs.Claim(ctx, publicID, op)
}

// Transfer hands ownership to another operator.
func (h *ConversationHandler) Transfer(ctx context.Context, publicID, operatorID, toOperatorID string) (*conversation.Conversation, error) {
	op, err := h.actingOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	return h.convs.Transfer(ctx, publicID, op, toOperatorID)
}

// Release hands the conversation back to automation.
func (h *ConversationHandler) Release(ctx context.Context, publicID, operatorID, farewell string) (*conversation.Conversation, error) {
	op, err := h.actingOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	return h.convs.Release(ctx, publicID, op, farewell)
}

// Suspend pauses all routing for the conversation.
func (h *ConversationHandler) Suspend(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	return h.convs.Suspend(ctx, publicID)
}

// Resume lifts a suspension.
func (h *ConversationHandler) Resume(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	return h.convs.Resume(ctx, publicID)
}

// Reply sends an operator message into the conversation.
func (h *ConversationHandler) Reply(ctx context.Context, publicID, operatorID, content string) (*conversation.Message, error) {
	op, err := h.actingOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	conv, err := h.convs.Get(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return h.convs.SendOutbound(ctx, conv, content, conversation.KindText, &op.PublicID)
}

// MarkRead resets the unread counter and timestamps inbound messages.
func (h *ConversationHandler) MarkRead(ctx context.Context, publicID string) error {
	conv, err := h.convs.Get(ctx, publicID)
	if err != nil {
		return err
	}
	return h.convs.MarkRead(ctx, conv)
}

func (h *ConversationHandler) actingOperator(ctx context.Context, operatorID string) (*operator.Operator, error) {
	if operatorID == "" {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerHandler,
			platformerrors.ErrorTypeUnauthorized,
			"no acting operator identity",
			nil,
			"operator-identity-missing",
		)
	}
	return h.operators.FindByPublicID(ctx, operatorID)
}
