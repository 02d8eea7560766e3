package responses

import (
	"time"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/operator"
)

// ConversationResponse is the console view of a conversation.
type ConversationResponse struct {
	ID                 string     `json:"id"`
	Address            string     `json:"address"`
	DisplayName        *string    `json:"display_name,omitempty"`
	Mode               string     `json:"mode"`
	AssignedOperatorID *string    `json:"assigned_operator_id,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	ResponsePreference string     `json:"response_preference"`
	ActiveFlow         *string    `json:"active_flow,omitempty"`
	LastActivityAt     time.Time  `json:"last_activity_at"`
	UnreadCount        int        `json:"unread_count"`
	CreatedAt          time.Time  `json:"created_at"`
}

// NewConversationResponse maps a domain conversation.
func NewConversationResponse(conv *conversation.Conversation) *ConversationResponse {
	resp := &ConversationResponse{
		ID:                 conv.PublicID,
		Address:            conv.Address,
		DisplayName:        conv.DisplayName,
		Mode:               string(conv.Mode),
		AssignedOperatorID: conv.AssignedOperatorID,
		AssignedAt:         conv.AssignedAt,
		ResponsePreference: string(conv.ResponsePreference),
		LastActivityAt:     conv.LastActivityAt,
		UnreadCount:        conv.UnreadCount,
		CreatedAt:          conv.CreatedAt,
	}
	if conv.FlowState != nil {
		name := conv.FlowState.ModuleName
		resp.ActiveFlow = &name
	}
	return resp
}

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Conversations []*ConversationResponse `json:"conversations"`
	Total         int64                   `json:"total"`
}

// NewListConversationsResponse maps a page of conversations.
func NewListConversationsResponse(convs []*conversation.Conversation, total int64) *ListConversationsResponse {
	out := make([]*ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, NewConversationResponse(conv))
	}
	return &ListConversationsResponse{Conversations: out, Total: total}
}

// MessageResponse is one entry of the conversation log.
type MessageResponse struct {
	ID               string     `json:"id"`
	Direction        string     `json:"direction"`
	Kind             string     `json:"kind"`
	Content          string     `json:"content"`
	SenderOperatorID *string    `json:"sender_operator_id,omitempty"`
	Status           string     `json:"status"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewMessageResponse maps a domain message.
func NewMessageResponse(msg *conversation.Message) *MessageResponse {
	return &MessageResponse{
		ID:               msg.PublicID,
		Direction:        string(msg.Direction),
		Kind:             string(msg.Kind),
		Content:          msg.Content,
		SenderOperatorID: msg.SenderOperatorID,
		Status:           string(msg.Status),
		ReadAt:           msg.ReadAt,
		CreatedAt:        msg.CreatedAt,
	}
}

// ListMessagesResponse wraps a page of messages.
type ListMessagesResponse struct {
	Messages []*MessageResponse `json:"messages"`
}

// NewListMessagesResponse maps a page of messages.
func NewListMessagesResponse(msgs []*conversation.Message) *ListMessagesResponse {
	out := make([]*MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, NewMessageResponse(msg))
	}
	return &ListMessagesResponse{Messages: out}
}

// OperatorResponse is the console view of an operator account.
type OperatorResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Address     string    `json:"address"`
	Roles       []string  `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewOperatorResponse maps a domain operator.
func NewOperatorResponse(op *operator.Operator) *OperatorResponse {
	roles := make([]string, 0, len(op.Roles))
	for _, role := range op.Roles {
		roles = append(roles, string(role))
	}
	return &OperatorResponse{
		ID:          op.PublicID,
		DisplayName: op.DisplayName,
		Address:     op.Address,
		Roles:       roles,
		CreatedAt:   op.CreatedAt,
	}
}

// ListOperatorsResponse wraps the operator directory.
type ListOperatorsResponse struct {
	Operators []*OperatorResponse `json:"operators"`
}

// NewListOperatorsResponse maps the operator directory.
func NewListOperatorsResponse(ops []*operator.Operator) *ListOperatorsResponse {
	out := make([]*OperatorResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, NewOperatorResponse(op))
	}
	return &ListOperatorsResponse{Operators: out}
}

// AcceptedResponse acknowledges asynchronous work.
type AcceptedResponse struct {
	Status string `json:"status"`
}
