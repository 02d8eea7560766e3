package intent

import (
	"context"

	"github.com/flockhq/flock-server/internal/domain/operator"
)

// Classification is the fixed contract of the intent oracle: a label, the
// extracted entities, a confidence score, and the authorization metadata
// the router enforces before dispatch.
type Classification struct {
	Intent        string            `json:"intent"`
	Entities      map[string]string `json:"entities,omitempty"`
	Confidence    float64           `json:"confidence"`
	RequiresAuth  bool              `json:"requires_auth"`
	RequiredRoles []operator.Role   `json:"required_roles,omitempty"`
}

// Context is the conversation context handed to the classifier.
type Context struct {
	ConversationID string `json:"conversation_id"`
	Address        string `json:"address"`
	DisplayName    string `json:"display_name,omitempty"`
}

// Classifier is the external natural-language oracle. The core calls it but
// does not implement it.
type Classifier interface {
	Classify(ctx context.Context, text string, convCtx Context) (*Classification, error)
}

// IntentUnknown is the label used when neither the pattern set nor the
// oracle produced a usable intent.
const IntentUnknown = "unknown"
