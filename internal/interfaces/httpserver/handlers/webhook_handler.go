package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/intent"
	"github.com/flockhq/flock-server/internal/infrastructure/metrics"
)

// WebhookHandler receives inbound deliveries from the chat gateway.
type WebhookHandler struct {
	router *intent.Router
	log    zerolog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(router *intent.Router, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{router: router, log: log}
}

// HandleInbound routes one gateway delivery through the orchestration
// pipeline.
func (h *WebhookHandler) HandleInbound(ctx context.Context, from, displayName, body string) error {
	branch, err := h.router.HandleInbound(ctx, intent.InboundMessage{
		Address:     from,
		DisplayName: displayName,
		Content:     body,
	})
	if branch != "" {
		metrics.RoutedMessagesTotal.WithLabelValues(branch).Inc()
	}
	return err
}
