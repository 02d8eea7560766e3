package handlers

import (
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/intent"
	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/fanout"
)

// Provider holds all HTTP handlers.
type Provider struct {
	Conversation *ConversationHandler
	Operator     *OperatorHandler
	Webhook      *WebhookHandler
	Live         *LiveHandler
}

// NewProvider wires the handlers.
func NewProvider(
	convs *conversation.Service,
	operators operator.Repository,
	router *intent.Router,
	hub *fanout.Hub,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Conversation: NewConversationHandler(convs, operators, log),
		Operator:     NewOperatorHandler(operators, log),
		Webhook:      NewWebhookHandler(router, log),
		Live:         NewLiveHandler(hub, operators, log),
	}
}
