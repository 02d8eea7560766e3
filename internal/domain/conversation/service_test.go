package conversation_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/conversation/conversationtest"
	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/fanout"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

var testClock = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	svc       *conversation.Service
	repo      *conversationtest.FakeRepository
	messages  *conversationtest.FakeMessageRepository
	operators *conversationtest.FakeOperatorRepository
	gateway   *conversationtest.FakeGateway
	publisher *conversationtest.FakePublisher
}

func newFixture(ops ...*operator.Operator) *serviceFixture {
	f := &serviceFixture{
		repo:      conversationtest.NewFakeRepository(),
		messages:  conversationtest.NewFakeMessageRepository(),
		operators: conversationtest.NewFakeOperatorRepository(ops...),
		gateway:   conversationtest.NewFakeGateway(),
		publisher: conversationtest.NewFakePublisher(),
	}
	f.svc = conversation.NewService(
		f.repo, f.messages, f.operators, f.gateway, f.publisher,
		conversation.Config{HandoffTimeout: 30 * time.Minute, FlowTimeout: 30 * time.Minute},
		zerolog.Nop(),
	)
	f.svc.SetClock(func() time.Time { return testClock })
	return f
}

func lead(publicID string) *operator.Operator {
	return &operator.Operator{
		PublicID:    publicID,
		DisplayName: "Lead " + publicID,
		Address:     "+49" + publicID,
		Roles:       []operator.Role{operator.RoleLead},
	}
}

func member(publicID string) *operator.Operator {
	return &operator.Operator{
		PublicID:    publicID,
		DisplayName: "Member " + publicID,
		Roles:       []operator.Role{operator.RoleMember},
	}
}

func seedConversation(f *serviceFixture, publicID, address string) *conversation.Conversation {
	return f.repo.Seed(conversation.NewConversation(publicID, address, nil))
}

func seedOperated(f *serviceFixture, publicID, address, ownerID string, lastActivity time.Time) *conversation.Conversation {
	conv := conversation.NewConversation(publicID, address, nil)
	conv.Mode = conversation.ModeOperated
	conv.AssignedOperatorID = &ownerID
	at := lastActivity
	conv.AssignedAt = &at
	conv.LastActivityAt = lastActivity
	return f.repo.Seed(conv)
}

func eventNames(events []fanout.Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}

// ===============================================
// Ensure
// ===============================================

func TestEnsureCreatesOnFirstContact(t *testing.T) {
	f := newFixture()

	conv, created, err := f.svc.Ensure(context.Background(), "+4915112345678", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, conversation.ModeAutomated, conv.Mode)
	assert.NotEmpty(t, conv.PublicID)
	assert.Contains(t, eventNames(f.publisher.Events()), fanout.EventConversationNew)
}

func TestEnsureReturnsExistingConversation(t *testing.T) {
	f := newFixture()
	seeded := seedConversation(f, "conv_1", "+4915112345678")

	conv, created, err := f.svc.Ensure(context.Background(), "+4915112345678", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, seeded.PublicID, conv.PublicID)
	assert.Empty(t, f.publisher.Events())
}

func TestEnsureLostCreateRaceFallsBackToLookup(t *testing.T) {
	f := newFixture()
	seeded := seedConversation(f, "conv_1", "+4915112345678")
	// The first lookup misses, the insert collides with the row a sibling
	// process created, the retry lookup finds it.
	f.repo.AddressMisses = 1

	conv, created, err := f.svc.Ensure(context.Background(), "+4915112345678", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, seeded.PublicID, conv.PublicID)
}

// ===============================================
// Claim
// ===============================================

func TestClaimTakesOwnership(t *testing.T) {
	op := lead("op_1")
	f := newFixture(op)
	seedConversation(f, "conv_1", "+491511")

	conv, err := f.svc.Claim(context.Background(), "conv_1", op)
	require.NoError(t, err)
	assert.Equal(t, conversation.ModeOperated, conv.Mode)
	assert.Equal(t, "op_1", conv.Owner())
	assert.Contains(t, eventNames(f.publisher.Events()), fanout.EventConversationUpdated)
}

func TestClaimIsIdempotentForOwner(t *testing.T) {
	op := lead("op_1")
	f := newFixture(op)
	seedConversation(f, "conv_1", "+491511")

	_, err := f.svc.Claim(context.Background(), "conv_1", op)
	require.NoError(t, err)

	conv, err := f.svc.Claim(context.Background(), "conv_1", op)
	require.NoError(t, err)
	assert.Equal(t, "op_1", conv.Owner())
}

func TestClaimAgainstOtherOwnerConflicts(t *testing.T) {
	op := lead("op_2")
	f := newFixture(op)
	seedOperated(f, "conv_1", "+491511", "op_1", testClock)

	_, err := f.svc.Claim(context.Background(), "conv_1", op)
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	platformErr := platformerrors.GetPlatformError(err)
	require.NotNil(t, platformErr)
	owner, ok := platformErr.Field("owner")
	require.True(t, ok)
	assert.Equal(t, "op_1", owner)

	// The losing claim must not disturb ownership.
	row := f.repo.Row(1)
	assert.Equal(t, "op_1", row.Owner())
}

func TestConcurrentClaimsExactlyOneWinner(t *testing.T) {
	opA, opB := lead("op_a"), lead("op_b")
	f := newFixture(opA, opB)
	seedConversation(f, "conv_1", "+491511")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, op := range []*operator.Operator{opA, opB} {
		wg.Add(1)
		go func(i int, op *operator.Operator) {
			defer wg.Done()
			_, errs[i] = f.svc.Claim(context.Background(), "conv_1", op)
		}(i, op)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
		}
	}
	assert.Equal(t, 1, winners)
}

func TestClaimSuspendedConversationRejected(t *testing.T) {
	op := lead("op_1")
	f := newFixture(op)
	conv := seedConversation(f, "conv_1", "+491511")
	require.NoError(t, f.repo.SetMode(context.Background(), conv.ID, conversation.ModeSuspended))

	_, err := f.svc.Claim(context.Background(), "conv_1", op)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestClaimRequiresHandoffCapability(t *testing.T) {
	op := member("op_member")
	f := newFixture(op)
	seedConversation(f, "conv_1", "+491511")

	_, err := f.svc.Claim(context.Background(), "conv_1", op)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
}

// ===============================================
// Transfer / Release
// ===============================================

func TestTransferMovesOwnershipAndLeavesNote(t *testing.T) {
	from, to := lead("op_from"), lead("op_to")
	f := newFixture(from, to)
	seedOperated(f, "conv_1", "+491511", "op_from", testClock)

	conv, err := f.svc.Transfer(context.Background(), "conv_1", from, "op_to")
	require.NoError(t, err)
	assert.Equal(t, "op_to", conv.Owner())
	assert.Equal(t, conversation.ModeOperated, conv.Mode)

	msgs := f.messages.All()
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.KindSystem, msgs[0].Kind)
	assert.Contains(t, msgs[0].Content, from.DisplayName)
	assert.Contains(t, msgs[0].Content, to.DisplayName)
}

func TestTransferToUnknownOperatorRejected(t *testing.T) {
	from := lead("op_from")
	f := newFixture(from)
	seedOperated(f, "conv_1", "+491511", "op_from", testClock)

	_, err := f.svc.Transfer(context.Background(), "conv_1", from, "op_ghost")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestTransferToMemberRejected(t *testing.T) {
	from, to := lead("op_from"), member("op_member")
	f := newFixture(from, to)
	seedOperated(f, "conv_1", "+491511", "op_from", testClock)

	_, err := f.svc.Transfer(context.Background(), "conv_1", from, "op_member")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestTransferByNonOwnerForbidden(t *testing.T) {
	stranger, to := lead("op_stranger"), lead("op_to")
	f := newFixture(stranger, to)
	seedOperated(f, "conv_1", "+491511", "op_owner", testClock)

	_, err := f.svc.Transfer(context.Background(), "conv_1", stranger, "op_to")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
	assert.Equal(t, "op_owner", f.repo.Row(1).Owner())
}

func TestReleaseRestoresAutomationAndSendsFarewell(t *testing.T) {
	op := lead("op_1")
	f := newFixture(op)
	seedOperated(f, "conv_1", "+491511", "op_1", testClock)

	conv, err := f.svc.Release(context.Background(), "conv_1", op, "Thanks for waiting!")
	require.NoError(t, err)
	assert.Equal(t, conversation.ModeAutomated, conv.Mode)
	assert.Nil(t, conv.AssignedOperatorID)

	sent := f.gateway.LastSent()
	require.NotNil(t, sent)
	assert.Equal(t, "+491511", sent.Address)
	assert.Equal(t, "Thanks for waiting!", sent.Content)
}

func TestReleaseByNonOwnerForbidden(t *testing.T) {
	stranger := lead("op_stranger")
	f := newFixture(stranger)
	seedOperated(f, "conv_1", "+491511", "op_owner", testClock)

	_, err := f.svc.Release(context.Background(), "conv_1", stranger, "")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
	assert.Equal(t, conversation.ModeOperated, f.repo.Row(1).Mode)
}

// ===============================================
// Suspend / Resume
// ===============================================

func TestSuspendAndResumeRoundTrip(t *testing.T) {
	f := newFixture()
	seedConversation(f, "conv_1", "+491511")

	conv, err := f.svc.Suspend(context.Background(), "conv_1")
	require.NoError(t, err)
	assert.Equal(t, conversation.ModeSuspended, conv.Mode)

	conv, err = f.svc.Resume(context.Background(), "conv_1")
	require.NoError(t, err)
	assert.Equal(t, conversation.ModeAutomated, conv.Mode)
}

func TestSuspendFromWrongModeRejected(t *testing.T) {
	f := newFixture()
	seedOperated(f, "conv_1", "+491511", "op_1", testClock)

	_, err := f.svc.Suspend(context.Background(), "conv_1")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestResumeFromAutomatedRejected(t *testing.T) {
	f := newFixture()
	seedConversation(f, "conv_1", "+491511")

	_, err := f.svc.Resume(context.Background(), "conv_1")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

// ===============================================
// Message recording
// ===============================================

func TestRecordInboundBumpsUnreadAndFansOut(t *testing.T) {
	f := newFixture()
	conv := seedConversation(f, "conv_1", "+491511")

	msg, err := f.svc.RecordInbound(context.Background(), conv, "hello", conversation.KindText)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusReceived, msg.Status)
	assert.Equal(t, conversation.DirectionInbound, msg.Direction)

	row := f.repo.Row(conv.ID)
	assert.Equal(t, 1, row.UnreadCount)
	assert.Equal(t, testClock, row.LastActivityAt)
	assert.Contains(t, eventNames(f.publisher.Events()), fanout.EventMessageNew)
}

func TestSendOutboundRespectsInAppPreference(t *testing.T) {
	f := newFixture()
	conv := seedConversation(f, "conv_1", "+491511")
	conv.ResponsePreference = conversation.ResponsePreferenceInApp
	senderID := "op_1"

	msg, err := f.svc.SendOutbound(context.Background(), conv, "console only", conversation.KindText, &senderID)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusSent, msg.Status)
	assert.Empty(t, f.gateway.Sent())
}

func TestSendOutboundAutomatedAlwaysGoesExternal(t *testing.T) {
	f := newFixture()
	conv := seedConversation(f, "conv_1", "+491511")
	conv.ResponsePreference = conversation.ResponsePreferenceInApp

	msg, err := f.svc.SendOutbound(context.Background(), conv, "bot reply", conversation.KindText, nil)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusSent, msg.Status)
	require.Len(t, f.gateway.Sent(), 1)
	assert.Equal(t, "bot reply", f.gateway.Sent()[0].Content)
}

func TestSendOutboundRecordsDeliveryFailure(t *testing.T) {
	f := newFixture()
	conv := seedConversation(f, "conv_1", "+491511")
	f.gateway.Err = assert.AnError

	msg, err := f.svc.SendOutbound(context.Background(), conv, "will bounce", conversation.KindText, nil)
	require.NoError(t, err) // delivery failures do not roll the message back
	assert.Equal(t, conversation.StatusFailed, msg.Status)

	msgs := f.messages.All()
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.StatusFailed, msgs[0].Status)
}

func TestMarkReadClearsCounterAndStampsReceipts(t *testing.T) {
	f := newFixture()
	conv := seedConversation(f, "conv_1", "+491511")
	_, err := f.svc.RecordInbound(context.Background(), conv, "one", conversation.KindText)
	require.NoError(t, err)
	_, err = f.svc.RecordInbound(context.Background(), conv, "two", conversation.KindText)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(context.Background(), conv))

	assert.Equal(t, 0, f.repo.Row(conv.ID).UnreadCount)
	for _, msg := range f.messages.All() {
		require.NotNil(t, msg.ReadAt)
	}
}

// ===============================================
// Reaper sweeps
// ===============================================

func TestReapStaleHandoffsReleasesAndNotifies(t *testing.T) {
	owner := lead("op_owner")
	f := newFixture(owner)
	stale := seedOperated(f, "conv_stale", "+491511", "op_owner", testClock.Add(-2*time.Hour))
	fresh := seedOperated(f, "conv_fresh", "+491522", "op_owner", testClock.Add(-time.Minute))

	released := f.svc.ReapStaleHandoffs(context.Background())
	assert.Equal(t, 1, released)

	assert.Equal(t, conversation.ModeAutomated, f.repo.Row(stale.ID).Mode)
	assert.Equal(t, conversation.ModeOperated, f.repo.Row(fresh.ID).Mode)

	// Owner and external party both hear about the release.
	var ownerNotified, partyNotified bool
	for _, sent := range f.gateway.Sent() {
		switch sent.Address {
		case owner.Address:
			ownerNotified = strings.Contains(sent.Content, "inactivity")
		case "+491511":
			partyNotified = strings.Contains(sent.Content, "handed back")
		}
	}
	assert.True(t, ownerNotified)
	assert.True(t, partyNotified)
}

func TestReapStaleHandoffsSkipsRowsAnotherSweepTook(t *testing.T) {
	owner := lead("op_owner")
	f := newFixture(owner)
	taken := seedOperated(f, "conv_taken", "+491511", "op_owner", testClock.Add(-2*time.Hour))
	mine := seedOperated(f, "conv_mine", "+491522", "op_owner", testClock.Add(-2*time.Hour))
	f.repo.DenyTimeoutRelease = map[uint]bool{taken.ID: true}

	released := f.svc.ReapStaleHandoffs(context.Background())
	assert.Equal(t, 1, released)
	assert.Equal(t, conversation.ModeAutomated, f.repo.Row(mine.ID).Mode)
	assert.Equal(t, conversation.ModeOperated, f.repo.Row(taken.ID).Mode)
}

func TestReapStaleHandoffsSecondSweepIsNoOp(t *testing.T) {
	owner := lead("op_owner")
	f := newFixture(owner)
	seedOperated(f, "conv_stale", "+491511", "op_owner", testClock.Add(-2*time.Hour))

	assert.Equal(t, 1, f.svc.ReapStaleHandoffs(context.Background()))
	assert.Equal(t, 0, f.svc.ReapStaleHandoffs(context.Background()))
}

func TestReapExpiredFlowsClearsAndNotifies(t *testing.T) {
	f := newFixture()
	expired := seedConversation(f, "conv_expired", "+491511")
	require.NoError(t, f.repo.SaveFlowState(context.Background(), expired.ID, &conversation.FlowState{
		ModuleName: "prayer-request",
		ExpiresAt:  testClock.Add(-time.Minute),
	}))
	active := seedConversation(f, "conv_active", "+491522")
	require.NoError(t, f.repo.SaveFlowState(context.Background(), active.ID, &conversation.FlowState{
		ModuleName: "event-signup",
		ExpiresAt:  testClock.Add(time.Hour),
	}))

	cleared := f.svc.ReapExpiredFlows(context.Background())
	assert.Equal(t, 1, cleared)
	assert.Nil(t, f.repo.Row(expired.ID).FlowState)
	assert.NotNil(t, f.repo.Row(active.ID).FlowState)

	sent := f.gateway.LastSent()
	require.NotNil(t, sent)
	assert.Equal(t, "+491511", sent.Address)
	assert.Contains(t, sent.Content, "closed the form")
}
