package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/infrastructure/metrics"
)

// Client delivers outbound messages through the external chat gateway's
// HTTP API.
type Client struct {
	httpClient *resty.Client
	log        zerolog.Logger
}

var _ conversation.Gateway = (*Client)(nil)

// NewClient builds a chat gateway client.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if token != "" {
		client.SetAuthToken(token)
	}

	return &Client{
		httpClient: client,
		log:        log.With().Str("component", "chat-gateway").Logger(),
	}
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Send delivers content to the given chat address.
func (c *Client) Send(ctx context.Context, address, content string) error {
	var result sendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendRequest{To: address, Body: content}).
		SetResult(&result).
		Post("/messages")
	if err != nil {
		metrics.GatewayDeliveriesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		metrics.GatewayDeliveriesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("send message: gateway returned %s: %s", resp.Status(), result.Error)
	}

	metrics.GatewayDeliveriesTotal.WithLabelValues("sent").Inc()
	c.log.Debug().Str("address", address).Str("gateway_id", result.ID).Msg("message delivered")
	return nil
}
