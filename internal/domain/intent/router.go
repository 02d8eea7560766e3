package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/admincmd"
	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/flow"
	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// InboundMessage is one unit of inbound work from the chat gateway.
type InboundMessage struct {
	Address     string
	DisplayName string
	Content     string
}

// Request is what a dispatched intent handler receives.
type Request struct {
	Conversation   *conversation.Conversation
	Message        *conversation.Message
	// Sender is non-nil when the external address resolves to a known user.
	Sender         *operator.Operator
	Classification *Classification
	Text           string
}

// HandlerFunc executes one intent: it may start a flow, perform a one-shot
// action, or reply directly.
type HandlerFunc func(ctx context.Context, req *Request) error

const suspendedNotice = "Thanks! We are pausing automated replies for the moment - someone will get back to you."

// Routing branches reported by HandleInbound, for logging and metrics.
const (
	BranchAdmin      = "admin_command"
	BranchOperated   = "operated"
	BranchSuspended  = "suspended"
	BranchFlow       = "flow"
	BranchAuthDenied = "auth_denied"
	BranchDispatch   = "dispatch"
	BranchFallback   = "fallback"
)

// Router ties the orchestration together: persist, admin commands, mode
// gate, flow resume, classification, authorization, dispatch.
type Router struct {
	convs      *conversation.Service
	flows      *flow.Engine
	admin      *admincmd.Parser
	operators  operator.Repository
	patterns   *PatternSet
	classifier Classifier
	handlers   map[string]HandlerFunc
	fallback   HandlerFunc
	log        zerolog.Logger
}

// NewRouter wires the intent router.
func NewRouter(
	convs *conversation.Service,
	flows *flow.Engine,
	admin *admincmd.Parser,
	operators operator.Repository,
	patterns *PatternSet,
	classifier Classifier,
	log zerolog.Logger,
) *Router {
	return &Router{
		convs:      convs,
		flows:      flows,
		admin:      admin,
		operators:  operators,
		patterns:   patterns,
		classifier: classifier,
		handlers:   make(map[string]HandlerFunc),
		log:        log.With().Str("component", "intent-router").Logger(),
	}
}

// Handle registers the handler for an intent label.
func (r *Router) Handle(intentName string, handler HandlerFunc) {
	r.handlers[intentName] = handler
}

// HandleFallback registers the handler for unknown intents. Without one the
// router replies with a generic notice.
func (r *Router) HandleFallback(handler HandlerFunc) {
	r.fallback = handler
}

// HandleInbound routes one inbound message end to end. It returns the
// branch that consumed the message.
func (r *Router) HandleInbound(ctx context.Context, in InboundMessage) (string, error) {
	var displayName *string
	if trimmed := strings.TrimSpace(in.DisplayName); trimmed != "" {
		displayName = &trimmed
	}

	conv, _, err := r.convs.Ensure(ctx, in.Address, displayName)
	if err != nil {
		return "", err
	}

	// (1) Inbound persistence is unconditional.
	msg, err := r.convs.RecordInbound(ctx, conv, in.Content, conversation.KindText)
	if err != nil {
		return "", err
	}

	sender := r.resolveSender(ctx, in.Address)

	// (2) In-band operator directives short-circuit everything else.
	if sender != nil {
		handled, err := r.admin.Handle(ctx, sender, conv, in.Content)
		if err != nil {
			r.log.Error().Err(err).Str("operator", sender.PublicID).Msg("admin command failed")
			return BranchAdmin, r.convs.SendAutomated(ctx, conv, "That command failed, sorry.")
		}
		if handled {
			return BranchAdmin, nil
		}
	}

	// (3) A human owns the channel: no automated routing. The owner gets a
	// copy when the conversation's preference allows external delivery.
	if conv.Mode == conversation.ModeOperated {
		r.convs.NotifyOwner(ctx, conv, fmt.Sprintf("%s: %s", describeSender(conv, in), in.Content))
		return BranchOperated, nil
	}

	// (4) Suspended conversations acknowledge without routing.
	if conv.Mode == conversation.ModeSuspended {
		return BranchSuspended, r.convs.SendAutomated(ctx, conv, suspendedNotice)
	}

	// (5) A pending multi-step interaction consumes the message.
	if conv.HasActiveFlow() {
		return BranchFlow, r.flows.Advance(ctx, conv, in.Content)
	}

	// (6) Deterministic patterns first, the oracle second.
	classification := r.patterns.Match(in.Content)
	if classification == nil {
		classification, err = r.classifier.Classify(ctx, in.Content, Context{
			ConversationID: conv.PublicID,
			Address:        conv.Address,
			DisplayName:    in.DisplayName,
		})
		if err != nil {
			r.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("classifier unavailable")
			return BranchDispatch, r.convs.SendAutomated(ctx, conv, "I did not catch that, and I cannot look it up right now. Please try again in a moment.")
		}
	}

	req := &Request{
		Conversation:   conv,
		Message:        msg,
		Sender:         sender,
		Classification: classification,
		Text:           in.Content,
	}

	// (7) Authorization gate.
	if classification.RequiresAuth && sender == nil {
		return BranchAuthDenied, r.convs.SendAutomated(ctx, conv, "I do not recognize this number. Please register first or contact a group lead.")
	}
	if len(classification.RequiredRoles) > 0 {
		if sender == nil || !sender.HasAnyRole(classification.RequiredRoles...) {
			return BranchAuthDenied, r.convs.SendAutomated(ctx, conv, fmt.Sprintf(
				"That needs one of these roles: %s.", joinRoles(classification.RequiredRoles)))
		}
	}

	// (8) Dispatch.
	handler, ok := r.handlers[classification.Intent]
	if !ok {
		if r.fallback != nil {
			return BranchFallback, r.fallback(ctx, req)
		}
		return BranchFallback, r.convs.SendAutomated(ctx, conv, "Sorry, I did not understand that. Send !help for what I can do.")
	}

	if err := handler(ctx, req); err != nil {
		r.log.Error().Err(err).
			Str("conversation", conv.PublicID).
			Str("intent", classification.Intent).
			Msg("intent handler failed")
		return BranchDispatch, r.convs.SendAutomated(ctx, conv, "I could not finish that request, sorry. Please try again later.")
	}
	return BranchDispatch, nil
}

func (r *Router) resolveSender(ctx context.Context, address string) *operator.Operator {
	op, err := r.operators.FindByAddress(ctx, address)
	if err != nil {
		if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			r.log.Error().Err(err).Str("address", address).Msg("resolve sender")
		}
		return nil
	}
	return op
}

func describeSender(conv *conversation.Conversation, in InboundMessage) string {
	if conv.DisplayName != nil && *conv.DisplayName != "" {
		return *conv.DisplayName
	}
	if in.DisplayName != "" {
		return in.DisplayName
	}
	return in.Address
}

func joinRoles(roles []operator.Role) string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ", ")
}
