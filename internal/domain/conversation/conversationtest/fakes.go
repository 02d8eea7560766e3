// Package conversationtest provides in-memory fakes for the conversation
// store and its collaborators. The conditional updates mirror the SQL
// predicates of the real repository, so ownership races behave the same
// way in tests as against PostgreSQL.
package conversationtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/fanout"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// FakeRepository implements conversation.Repository in process memory.
type FakeRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*conversation.Conversation

	// ClaimErr, when set, is returned by Claim. Other error hooks follow
	// the same pattern.
	ClaimErr         error
	ReleaseErr       error
	CreateErr        error
	SaveFlowStateErr error

	// AddressMisses makes the next N FindByAddress calls report not-found
	// even when the row exists, simulating the read skew of two processes
	// ensuring the same address at once.
	AddressMisses int

	// DenyTimeoutRelease makes ReleaseByTimeout report zero affected rows
	// for the given IDs, as if another sweep had released them first.
	DenyTimeoutRelease map[uint]bool
}

// NewFakeRepository builds an empty store.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{rows: make(map[uint]*conversation.Conversation)}
}

// Seed inserts a conversation directly, assigning an ID when unset.
func (f *FakeRepository) Seed(conv *conversation.Conversation) *conversation.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv.ID == 0 {
		f.nextID++
		conv.ID = f.nextID
	} else if conv.ID > f.nextID {
		f.nextID = conv.ID
	}
	f.rows[conv.ID] = clone(conv)
	return conv
}

// Row returns a copy of the stored row.
func (f *FakeRepository) Row(id uint) *conversation.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		return clone(row)
	}
	return nil
}

func (f *FakeRepository) Create(_ context.Context, conv *conversation.Conversation) error {
	if f.CreateErr != nil {
		return f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Address == conv.Address {
			return platformerrors.NewError(context.Background(), platformerrors.LayerRepository,
				platformerrors.ErrorTypeConflict,
				fmt.Sprintf("conversation already exists for address %s", conv.Address),
				nil, "conversation-create-duplicate")
		}
	}
	f.nextID++
	conv.ID = f.nextID
	f.rows[conv.ID] = clone(conv)
	return nil
}

func (f *FakeRepository) FindByPublicID(_ context.Context, publicID string) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.PublicID == publicID {
			return clone(row), nil
		}
	}
	return nil, notFound("conversation not found: " + publicID)
}

func (f *FakeRepository) FindByAddress(_ context.Context, address string) (*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddressMisses > 0 {
		f.AddressMisses--
		return nil, notFound("conversation not found for address")
	}
	for _, row := range f.rows {
		if row.Address == address {
			return clone(row), nil
		}
	}
	return nil, notFound("conversation not found for address")
}

func (f *FakeRepository) FindByFilter(_ context.Context, filter conversation.Filter, pagination *conversation.Pagination) ([]*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*conversation.Conversation
	for _, row := range f.rows {
		if matches(row, filter) {
			out = append(out, clone(row))
		}
	}
	if pagination != nil && pagination.Limit > 0 && len(out) > pagination.Limit {
		out = out[:pagination.Limit]
	}
	return out, nil
}

func (f *FakeRepository) Count(_ context.Context, filter conversation.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, row := range f.rows {
		if matches(row, filter) {
			count++
		}
	}
	return count, nil
}

func (f *FakeRepository) Claim(_ context.Context, id uint, operatorID string, at time.Time) (bool, error) {
	if f.ClaimErr != nil {
		return false, f.ClaimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	claimable := row.Mode == conversation.ModeAutomated ||
		(row.Mode == conversation.ModeOperated && row.AssignedOperatorID != nil && *row.AssignedOperatorID == operatorID)
	if !claimable {
		return false, nil
	}
	row.Mode = conversation.ModeOperated
	row.AssignedOperatorID = &operatorID
	row.AssignedAt = &at
	return true, nil
}

func (f *FakeRepository) TransferOwner(_ context.Context, id uint, fromOperatorID, toOperatorID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Mode != conversation.ModeOperated ||
		row.AssignedOperatorID == nil || *row.AssignedOperatorID != fromOperatorID {
		return false, nil
	}
	row.AssignedOperatorID = &toOperatorID
	row.AssignedAt = &at
	return true, nil
}

func (f *FakeRepository) Release(_ context.Context, id uint, operatorID string) (bool, error) {
	if f.ReleaseErr != nil {
		return false, f.ReleaseErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Mode != conversation.ModeOperated ||
		row.AssignedOperatorID == nil || *row.AssignedOperatorID != operatorID {
		return false, nil
	}
	row.Mode = conversation.ModeAutomated
	row.AssignedOperatorID = nil
	row.AssignedAt = nil
	return true, nil
}

func (f *FakeRepository) ReleaseByTimeout(_ context.Context, id uint, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DenyTimeoutRelease[id] {
		return false, nil
	}
	row, ok := f.rows[id]
	if !ok || row.Mode != conversation.ModeOperated || !row.LastActivityAt.Before(cutoff) {
		return false, nil
	}
	row.Mode = conversation.ModeAutomated
	row.AssignedOperatorID = nil
	row.AssignedAt = nil
	return true, nil
}

func (f *FakeRepository) SetMode(_ context.Context, id uint, mode conversation.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		row.Mode = mode
	}
	return nil
}

func (f *FakeRepository) SaveFlowState(_ context.Context, id uint, state *conversation.FlowState) error {
	if f.SaveFlowStateErr != nil {
		return f.SaveFlowStateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return notFound("no such conversation")
	}
	if state == nil {
		row.FlowState = nil
		return nil
	}
	copied := *state
	row.FlowState = &copied
	return nil
}

func (f *FakeRepository) Touch(_ context.Context, id uint, at time.Time, incrementUnread bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		row.LastActivityAt = at
		if incrementUnread {
			row.UnreadCount++
		}
	}
	return nil
}

func (f *FakeRepository) ResetUnread(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		row.UnreadCount = 0
	}
	return nil
}

func (f *FakeRepository) FindStaleOperated(_ context.Context, cutoff time.Time) ([]*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*conversation.Conversation
	for _, row := range f.rows {
		if row.Mode == conversation.ModeOperated && row.LastActivityAt.Before(cutoff) {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

func (f *FakeRepository) FindExpiredFlows(_ context.Context, now time.Time) ([]*conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*conversation.Conversation
	for _, row := range f.rows {
		if row.FlowState != nil && row.FlowState.ExpiresAt.Before(now) {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

func matches(row *conversation.Conversation, filter conversation.Filter) bool {
	if filter.ID != nil && row.ID != *filter.ID {
		return false
	}
	if filter.PublicID != nil && row.PublicID != *filter.PublicID {
		return false
	}
	if filter.Address != nil && row.Address != *filter.Address {
		return false
	}
	if filter.Mode != nil && row.Mode != *filter.Mode {
		return false
	}
	if filter.AssignedOperatorID != nil {
		if row.AssignedOperatorID == nil || *row.AssignedOperatorID != *filter.AssignedOperatorID {
			return false
		}
	}
	return true
}

func clone(conv *conversation.Conversation) *conversation.Conversation {
	copied := *conv
	if conv.AssignedOperatorID != nil {
		id := *conv.AssignedOperatorID
		copied.AssignedOperatorID = &id
	}
	if conv.AssignedAt != nil {
		at := *conv.AssignedAt
		copied.AssignedAt = &at
	}
	if conv.DisplayName != nil {
		name := *conv.DisplayName
		copied.DisplayName = &name
	}
	if conv.FlowState != nil {
		state := *conv.FlowState
		if conv.FlowState.Answers != nil {
			state.Answers = make(map[string]any, len(conv.FlowState.Answers))
			for k, v := range conv.FlowState.Answers {
				state.Answers[k] = v
			}
		}
		copied.FlowState = &state
	}
	return &copied
}

func notFound(msg string) error {
	return platformerrors.NewError(context.Background(), platformerrors.LayerRepository,
		platformerrors.ErrorTypeNotFound, msg, nil, "not-found")
}

// FakeMessageRepository implements conversation.MessageRepository.
type FakeMessageRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []*conversation.Message
}

// NewFakeMessageRepository builds an empty log.
func NewFakeMessageRepository() *FakeMessageRepository {
	return &FakeMessageRepository{}
}

func (f *FakeMessageRepository) Create(_ context.Context, msg *conversation.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	copied := *msg
	f.rows = append(f.rows, &copied)
	return nil
}

func (f *FakeMessageRepository) UpdateStatus(_ context.Context, id uint, status conversation.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			row.Status = status
		}
	}
	return nil
}

func (f *FakeMessageRepository) ListByConversationID(_ context.Context, conversationID uint, _ *conversation.Pagination) ([]*conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*conversation.Message
	for _, row := range f.rows {
		if row.ConversationID == conversationID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *FakeMessageRepository) MarkRead(_ context.Context, conversationID uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ConversationID == conversationID && row.Direction == conversation.DirectionInbound && row.ReadAt == nil {
			stamped := at
			row.ReadAt = &stamped
		}
	}
	return nil
}

// All returns a copy of every stored message.
func (f *FakeMessageRepository) All() []*conversation.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*conversation.Message, 0, len(f.rows))
	for _, row := range f.rows {
		copied := *row
		out = append(out, &copied)
	}
	return out
}

// FakeOperatorRepository implements operator.Repository.
type FakeOperatorRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   map[string]*operator.Operator // keyed by public ID
}

// NewFakeOperatorRepository builds an empty directory.
func NewFakeOperatorRepository(ops ...*operator.Operator) *FakeOperatorRepository {
	f := &FakeOperatorRepository{rows: make(map[string]*operator.Operator)}
	for _, op := range ops {
		f.Seed(op)
	}
	return f
}

// Seed inserts an operator directly.
func (f *FakeOperatorRepository) Seed(op *operator.Operator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if op.ID == 0 {
		f.nextID++
		op.ID = f.nextID
	}
	copied := *op
	f.rows[op.PublicID] = &copied
}

func (f *FakeOperatorRepository) Create(_ context.Context, op *operator.Operator) error {
	f.Seed(op)
	return nil
}

func (f *FakeOperatorRepository) FindByPublicID(_ context.Context, publicID string) (*operator.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if op, ok := f.rows[publicID]; ok {
		copied := *op
		return &copied, nil
	}
	return nil, notFound("operator not found: " + publicID)
}

func (f *FakeOperatorRepository) FindByAddress(_ context.Context, address string) (*operator.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range f.rows {
		if op.Address == address {
			copied := *op
			return &copied, nil
		}
	}
	return nil, notFound("operator not found for address")
}

func (f *FakeOperatorRepository) List(_ context.Context) ([]*operator.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*operator.Operator, 0, len(f.rows))
	for _, op := range f.rows {
		copied := *op
		out = append(out, &copied)
	}
	return out, nil
}

// SentMessage is one delivery recorded by the fake gateway.
type SentMessage struct {
	Address string
	Content string
}

// FakeGateway implements conversation.Gateway and records deliveries.
type FakeGateway struct {
	mu   sync.Mutex
	Err  error
	sent []SentMessage
}

// NewFakeGateway builds a gateway that accepts everything.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

func (f *FakeGateway) Send(_ context.Context, address, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sent = append(f.sent, SentMessage{Address: address, Content: content})
	return nil
}

// Sent returns a copy of all recorded deliveries.
func (f *FakeGateway) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// LastSent returns the most recent delivery, or nil.
func (f *FakeGateway) LastSent() *SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	last := f.sent[len(f.sent)-1]
	return &last
}

// FakePublisher implements conversation.Publisher and records events.
type FakePublisher struct {
	mu     sync.Mutex
	events []fanout.Event
}

// NewFakePublisher builds an event recorder.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(_ context.Context, ev fanout.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

// Events returns a copy of all recorded events.
func (f *FakePublisher) Events() []fanout.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fanout.Event, len(f.events))
	copy(out, f.events)
	return out
}
