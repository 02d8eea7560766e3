package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/intent"
)

// Client calls the external intent classification service.
type Client struct {
	httpClient *resty.Client
	log        zerolog.Logger
}

var _ intent.Classifier = (*Client)(nil)

// NewClient builds a classifier client.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
		log: log.With().Str("component", "classifier").Logger(),
	}
}

type classifyRequest struct {
	Text    string         `json:"text"`
	Context intent.Context `json:"context"`
}

// Classify sends the message text and conversation context to the
// classifier and returns its verdict.
func (c *Client) Classify(ctx context.Context, text string, convCtx intent.Context) (*intent.Classification, error) {
	var result intent.Classification
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(classifyRequest{Text: text, Context: convCtx}).
		SetResult(&result).
		Post("/classify")
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("classify: service returned %s", resp.Status())
	}

	if result.Intent == "" {
		result.Intent = intent.IntentUnknown
	}

	c.log.Debug().
		Str("intent", result.Intent).
		Float64("confidence", result.Confidence).
		Msg("classification received")
	return &result, nil
}
