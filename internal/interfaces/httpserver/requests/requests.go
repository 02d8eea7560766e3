package requests

// ClaimRequest has no body fields; the acting operator comes from auth.
type ClaimRequest struct{}

// TransferRequest hands the conversation to another operator.
type TransferRequest struct {
	ToOperatorID string `json:"to_operator_id" binding:"required"`
}

// ReleaseRequest hands the conversation back to automation, optionally
// sending a final message to the contact.
type ReleaseRequest struct {
	Farewell string `json:"farewell"`
}

// ReplyRequest sends an operator message into the conversation.
type ReplyRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateOperatorRequest registers an operator account.
type CreateOperatorRequest struct {
	DisplayName string   `json:"display_name" binding:"required"`
	Address     string   `json:"address" binding:"required"`
	Roles       []string `json:"roles"`
}

// InboundWebhook is the chat gateway's delivery payload.
type InboundWebhook struct {
	From        string `json:"from" binding:"required"`
	DisplayName string `json:"display_name"`
	Body        string `json:"body" binding:"required"`
}

// ListConversationsQuery filters the conversation list.
type ListConversationsQuery struct {
	Mode       string `form:"mode"`
	OperatorID string `form:"operator_id"`
	Limit      int    `form:"limit,default=50"`
	Offset     int    `form:"offset"`
}

// ListMessagesQuery pages through a conversation's log.
type ListMessagesQuery struct {
	Limit  int `form:"limit,default=100"`
	Offset int `form:"offset"`
}
