package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/fanout"
	"github.com/flockhq/flock-server/internal/utils/idgen"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// Gateway delivers outbound content to the external chat network.
type Gateway interface {
	Send(ctx context.Context, address, content string) error
}

// Publisher fans events out to live viewers and sibling processes.
// Satisfied by *fanout.Hub.
type Publisher interface {
	Publish(ctx context.Context, ev fanout.Event)
}

// Config carries the orchestration timeouts.
type Config struct {
	// HandoffTimeout is how long an operated conversation may sit idle
	// before the sweep force-releases it.
	HandoffTimeout time.Duration
	// FlowTimeout bounds the lifetime of an in-progress flow.
	FlowTimeout time.Duration
}

// Service implements the conversation mode state machine and the rolling
// metadata bookkeeping around the message log.
type Service struct {
	repo      Repository
	messages  MessageRepository
	operators operator.Repository
	gateway   Gateway
	publisher Publisher
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewService wires the conversation service.
func NewService(
	repo Repository,
	messages MessageRepository,
	operators operator.Repository,
	gateway Gateway,
	publisher Publisher,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = 30 * time.Minute
	}
	if cfg.FlowTimeout <= 0 {
		cfg.FlowTimeout = 30 * time.Minute
	}
	return &Service{
		repo:      repo,
		messages:  messages,
		operators: operators,
		gateway:   gateway,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With().Str("component", "conversation-service").Logger(),
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// FlowTimeout exposes the configured flow lifetime to the flow engine.
func (s *Service) FlowTimeout() time.Duration {
	return s.cfg.FlowTimeout
}

// ===============================================
// Lookup
// ===============================================

// Ensure returns the conversation for an external address, creating it
// lazily on first contact. The created flag is true for new records.
func (s *Service) Ensure(ctx context.Context, address string, displayName *string) (*Conversation, bool, error) {
	conv, err := s.repo.FindByAddress(ctx, address)
	if err == nil {
		return conv, false, nil
	}
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return nil, false, err
	}

	publicID, err := idgen.GenerateConversationID()
	if err != nil {
		return nil, false, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "generate conversation id")
	}

	conv = NewConversation(publicID, address, displayName)
	if err := s.repo.Create(ctx, conv); err != nil {
		// A concurrent first message may have created the row already.
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
			existing, findErr := s.repo.FindByAddress(ctx, address)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.publisher.Publish(ctx, fanout.Event{
		Name:    fanout.EventConversationNew,
		Room:    fanout.RoomOperators,
		Payload: conv,
	})
	return conv, true, nil
}

// Get returns a conversation by public ID.
func (s *Service) Get(ctx context.Context, publicID string) (*Conversation, error) {
	return s.repo.FindByPublicID(ctx, publicID)
}

// List returns conversations matching the filter.
func (s *Service) List(ctx context.Context, filter Filter, pagination *Pagination) ([]*Conversation, error) {
	return s.repo.FindByFilter(ctx, filter, pagination)
}

// Count counts conversations matching the filter.
func (s *Service) Count(ctx context.Context, filter Filter) (int64, error) {
	return s.repo.Count(ctx, filter)
}

// Messages lists the conversation's message log.
func (s *Service) Messages(ctx context.Context, conv *Conversation, pagination *Pagination) ([]*Message, error) {
	return s.messages.ListByConversationID(ctx, conv.ID, pagination)
}

// ===============================================
// Message recording
// ===============================================

// RecordInbound appends an inbound message, refreshes the rolling metadata
// and fans the message out. Inbound persistence is unconditional: it happens
// before any routing decision.
func (s *Service) RecordInbound(ctx context.Context, conv *Conversation, content string, kind MessageKind) (*Message, error) {
	msg, err := s.appendMessage(ctx, conv, DirectionInbound, kind, content, nil, StatusReceived)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.Touch(ctx, conv.ID, now, true); err != nil {
		s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("touch conversation after inbound")
	}
	conv.LastActivityAt = now
	conv.UnreadCount++

	s.emitMessage(ctx, conv, msg)
	return msg, nil
}

// SendOutbound appends an outbound message and attempts external delivery
// when the conversation's response preference allows it. A failed delivery
// is recorded on the message and logged; the operation is not rolled back
// and the caller is not blocked.
func (s *Service) SendOutbound(ctx context.Context, conv *Conversation, content string, kind MessageKind, senderOperatorID *string) (*Message, error) {
	external := conv.ResponsePreference.AllowsExternal() || senderOperatorID == nil
	status := StatusPending
	if !external {
		status = StatusSent // in-app only, nothing to deliver
	}

	msg, err := s.appendMessage(ctx, conv, DirectionOutbound, kind, content, senderOperatorID, status)
	if err != nil {
		return nil, err
	}

	if external {
		if err := s.gateway.Send(ctx, conv.Address, content); err != nil {
			s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("outbound delivery failed")
			msg.Status = StatusFailed
		} else {
			msg.Status = StatusSent
		}
		if err := s.messages.UpdateStatus(ctx, msg.ID, msg.Status); err != nil {
			s.log.Error().Err(err).Str("message", msg.PublicID).Msg("update delivery status")
		}
	}

	now := s.now().UTC()
	if err := s.repo.Touch(ctx, conv.ID, now, false); err != nil {
		s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("touch conversation after outbound")
	}
	conv.LastActivityAt = now

	s.emitMessage(ctx, conv, msg)
	return msg, nil
}

// SendAutomated is the bot-authored outbound path used by the flow engine
// and intent handlers.
func (s *Service) SendAutomated(ctx context.Context, conv *Conversation, content string) error {
	_, err := s.SendOutbound(ctx, conv, content, KindText, nil)
	return err
}

// RecordSystemNote appends a system message to the log without external
// delivery and fans it out to live viewers.
func (s *Service) RecordSystemNote(ctx context.Context, conv *Conversation, content string) (*Message, error) {
	msg, err := s.appendMessage(ctx, conv, DirectionOutbound, KindSystem, content, nil, StatusSent)
	if err != nil {
		return nil, err
	}
	s.emitMessage(ctx, conv, msg)
	return msg, nil
}

// MarkRead clears the unread counter and stamps read receipts.
func (s *Service) MarkRead(ctx context.Context, conv *Conversation) error {
	if err := s.messages.MarkRead(ctx, conv.ID, s.now().UTC()); err != nil {
		return err
	}
	if err := s.repo.ResetUnread(ctx, conv.ID); err != nil {
		return err
	}
	conv.UnreadCount = 0
	s.emitUpdated(ctx, conv)
	return nil
}

// ===============================================
// Mode State Machine
// ===============================================

// Claim gives the operator exclusive control. Allowed from automated mode
// or as an idempotent re-claim by the current owner; a claim against a
// conversation owned by someone else fails with Conflict carrying the
// current owner's ID. The ownership check and write are one conditional
// update so concurrent claims cannot both succeed.
func (s *Service) Claim(ctx context.Context, publicID string, op *operator.Operator) (*Conversation, error) {
	conv, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	if conv.Mode == ModeSuspended {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"conversation is suspended", nil, "claim-suspended")
	}
	if !op.CanOwnHandoffs() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"operator may not own hand-offs", nil, "claim-capability")
	}

	ok, err := s.repo.Claim(ctx, conv.ID, op.PublicID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race or the conversation is owned by someone else.
		current, findErr := s.repo.FindByPublicID(ctx, publicID)
		owner := ""
		if findErr == nil {
			owner = current.Owner()
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			fmt.Sprintf("conversation already operated by %s", owner), nil, "claim-conflict").
			WithField("owner", owner)
	}

	conv, err = s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	s.emitUpdated(ctx, conv)
	return conv, nil
}

// Transfer moves ownership from the current owner to another hand-off
// capable operator and leaves a system note in the log.
func (s *Service) Transfer(ctx context.Context, publicID string, from *operator.Operator, toOperatorID string) (*Conversation, error) {
	conv, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	target, err := s.operators.FindByPublicID(ctx, toOperatorID)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"target operator does not exist", err, "transfer-target")
		}
		return nil, err
	}
	if !target.CanOwnHandoffs() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"target operator may not own hand-offs", nil, "transfer-capability")
	}

	ok, err := s.repo.TransferOwner(ctx, conv.ID, from.PublicID, target.PublicID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.forbiddenNotOwner(ctx, publicID, "transfer")
	}

	conv, err = s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Conversation transferred from %s to %s", from.DisplayName, target.DisplayName)
	if _, err := s.appendMessage(ctx, conv, DirectionOutbound, KindSystem, note, &from.PublicID, StatusSent); err != nil {
		s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("append transfer note")
	}

	s.emitUpdated(ctx, conv)
	return conv, nil
}

// Release returns the conversation to automated control. Only the current
// owner may release; a farewell, when given, is sent to the external party.
func (s *Service) Release(ctx context.Context, publicID string, op *operator.Operator, farewell string) (*Conversation, error) {
	conv, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.Release(ctx, conv.ID, op.PublicID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.forbiddenNotOwner(ctx, publicID, "release")
	}

	conv, err = s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	if farewell != "" {
		if _, err := s.SendOutbound(ctx, conv, farewell, KindSystem, &op.PublicID); err != nil {
			s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("send farewell")
		}
	}

	s.emitUpdated(ctx, conv)
	return conv, nil
}

// Suspend parks an automated conversation; inbound messages are
// acknowledged but not routed until Resume.
func (s *Service) Suspend(ctx context.Context, publicID string) (*Conversation, error) {
	return s.toggleMode(ctx, publicID, ModeAutomated, ModeSuspended)
}

// Resume returns a suspended conversation to automated routing.
func (s *Service) Resume(ctx context.Context, publicID string) (*Conversation, error) {
	return s.toggleMode(ctx, publicID, ModeSuspended, ModeAutomated)
}

func (s *Service) toggleMode(ctx context.Context, publicID string, from, to Mode) (*Conversation, error) {
	conv, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if conv.Mode != from {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("conversation is %s, expected %s", conv.Mode, from), nil, "mode-toggle")
	}

	if err := s.repo.SetMode(ctx, conv.ID, to); err != nil {
		return nil, err
	}
	conv.Mode = to
	s.emitUpdated(ctx, conv)
	return conv, nil
}

// ===============================================
// Reaper sweeps
// ===============================================

// ReapStaleHandoffs force-releases hand-offs abandoned past the timeout.
// Per-conversation failures are logged and skipped so one bad row never
// aborts the sweep. The conditional release predicate makes a redundant
// sweep on another process a no-op per row.
func (s *Service) ReapStaleHandoffs(ctx context.Context) int {
	cutoff := s.now().UTC().Add(-s.cfg.HandoffTimeout)
	stale, err := s.repo.FindStaleOperated(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("list stale hand-offs")
		return 0
	}

	released := 0
	for _, conv := range stale {
		owner := conv.Owner()

		ok, err := s.repo.ReleaseByTimeout(ctx, conv.ID, cutoff)
		if err != nil {
			s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("timeout release failed")
			continue
		}
		if !ok {
			continue // another sweep, or fresh activity, got there first
		}
		released++

		s.notifyOperator(ctx, owner, fmt.Sprintf(
			"Your conversation with %s was released after %s of inactivity.",
			conv.Address, s.cfg.HandoffTimeout))

		refreshed, err := s.repo.FindByPublicID(ctx, conv.PublicID)
		if err != nil {
			s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("reload after timeout release")
			continue
		}
		if _, err := s.SendOutbound(ctx, refreshed, "The conversation was handed back to the assistant.", KindSystem, nil); err != nil {
			s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("notify external party after release")
		}
		s.emitUpdated(ctx, refreshed)
	}
	return released
}

// ReapExpiredFlows clears flows that outlived their expiry and tells the
// external party to start over.
func (s *Service) ReapExpiredFlows(ctx context.Context) int {
	expired, err := s.repo.FindExpiredFlows(ctx, s.now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("list expired flows")
		return 0
	}

	cleared := 0
	for _, conv := range expired {
		if err := s.repo.SaveFlowState(ctx, conv.ID, nil); err != nil {
			s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("clear expired flow")
			continue
		}
		cleared++
		conv.FlowState = nil
		if err := s.SendAutomated(ctx, conv, "That took a while, so I closed the form. Send the request again whenever you are ready."); err != nil {
			s.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("notify expired flow")
		}
	}
	return cleared
}

// ===============================================
// Internals
// ===============================================

func (s *Service) appendMessage(ctx context.Context, conv *Conversation, direction Direction, kind MessageKind, content string, senderOperatorID *string, status DeliveryStatus) (*Message, error) {
	publicID, err := idgen.GenerateMessageID()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "generate message id")
	}

	msg := &Message{
		PublicID:         publicID,
		ConversationID:   conv.ID,
		Direction:        direction,
		Kind:             kind,
		Content:          content,
		SenderOperatorID: senderOperatorID,
		Status:           status,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// NotifyOwner forwards content to the conversation's owning operator over
// the external channel, when the conversation's preference allows external
// delivery. Best-effort.
func (s *Service) NotifyOwner(ctx context.Context, conv *Conversation, content string) {
	if conv.Mode != ModeOperated || !conv.ResponsePreference.AllowsExternal() {
		return
	}
	s.notifyOperator(ctx, conv.Owner(), content)
}

// notifyOperator is best-effort: failures are logged, never propagated.
func (s *Service) notifyOperator(ctx context.Context, operatorID, content string) {
	if operatorID == "" {
		return
	}
	op, err := s.operators.FindByPublicID(ctx, operatorID)
	if err != nil {
		s.log.Warn().Err(err).Str("operator", operatorID).Msg("resolve operator for notification")
		return
	}
	if op.Address == "" {
		return
	}
	if err := s.gateway.Send(ctx, op.Address, content); err != nil {
		s.log.Warn().Err(err).Str("operator", operatorID).Msg("notify operator")
	}
}

func (s *Service) forbiddenNotOwner(ctx context.Context, publicID, action string) error {
	current, err := s.repo.FindByPublicID(ctx, publicID)
	owner := ""
	if err == nil {
		owner = current.Owner()
	}
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
		fmt.Sprintf("%s requires ownership; current owner is %q", action, owner), nil, action+"-forbidden").
		WithField("owner", owner)
}

type messageEnvelope struct {
	ConversationID string   `json:"conversation_id"`
	Message        *Message `json:"message"`
}

func (s *Service) emitMessage(ctx context.Context, conv *Conversation, msg *Message) {
	s.publisher.Publish(ctx, fanout.Event{
		Name:    fanout.EventMessageNew,
		Room:    fanout.RoomConversation(conv.PublicID),
		Payload: messageEnvelope{ConversationID: conv.PublicID, Message: msg},
	})
	// The console's conversation list tracks unread counts and last
	// activity, which every message changes.
	s.publisher.Publish(ctx, fanout.Event{
		Name:    fanout.EventConversationUpdated,
		Room:    fanout.RoomOperators,
		Payload: conv,
	})
}

func (s *Service) emitUpdated(ctx context.Context, conv *Conversation) {
	s.publisher.Publish(ctx, fanout.Event{
		Name:    fanout.EventConversationUpdated,
		Room:    fanout.RoomOperators,
		Payload: conv,
	})
	s.publisher.Publish(ctx, fanout.Event{
		Name:    fanout.EventConversationUpdated,
		Room:    fanout.RoomConversation(conv.PublicID),
		Payload: conv,
	})
}
