package admincmd_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock-server/internal/domain/admincmd"
	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/conversation/conversationtest"
	"github.com/flockhq/flock-server/internal/domain/operator"
)

const operatorAddress = "+4915100000001"

type parserFixture struct {
	parser  *admincmd.Parser
	repo    *conversationtest.FakeRepository
	gateway *conversationtest.FakeGateway
	op      *operator.Operator
	opConv  *conversation.Conversation
}

func newParserFixture(t *testing.T) *parserFixture {
	t.Helper()
	op := &operator.Operator{
		PublicID:    "op_lead",
		DisplayName: "Hannah",
		Address:     operatorAddress,
		Roles:       []operator.Role{operator.RoleLead},
	}

	repo := conversationtest.NewFakeRepository()
	gateway := conversationtest.NewFakeGateway()
	svc := conversation.NewService(
		repo,
		conversationtest.NewFakeMessageRepository(),
		conversationtest.NewFakeOperatorRepository(op),
		gateway,
		conversationtest.NewFakePublisher(),
		conversation.Config{},
		zerolog.Nop(),
	)

	opConv := repo.Seed(conversation.NewConversation("conv_op", operatorAddress, &op.DisplayName))
	return &parserFixture{
		parser:  admincmd.NewParser(svc, zerolog.Nop()),
		repo:    repo,
		gateway: gateway,
		op:      op,
		opConv:  opConv,
	}
}

func (f *parserFixture) seedOwned(publicID, address string) *conversation.Conversation {
	conv := conversation.NewConversation(publicID, address, nil)
	conv.Mode = conversation.ModeOperated
	conv.AssignedOperatorID = &f.op.PublicID
	now := time.Now().UTC()
	conv.AssignedAt = &now
	return f.repo.Seed(conv)
}

func (f *parserFixture) repliesTo(address string) []string {
	var out []string
	for _, sent := range f.gateway.Sent() {
		if sent.Address == address {
			out = append(out, sent.Content)
		}
	}
	return out
}

func TestNonCommandPassesThrough(t *testing.T) {
	f := newParserFixture(t)

	for _, content := range []string{"hello there", "!unknown", "", "  "} {
		handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, content)
		require.NoError(t, err, content)
		assert.False(t, handled, content)
	}
	assert.Empty(t, f.gateway.Sent())
}

func TestPendingReportsCounts(t *testing.T) {
	f := newParserFixture(t)
	f.repo.Seed(conversation.NewConversation("conv_a", "+491511", nil))
	f.repo.Seed(conversation.NewConversation("conv_b", "+491522", nil))
	f.seedOwned("conv_c", "+491533")

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!pending")
	require.NoError(t, err)
	assert.True(t, handled)

	replies := f.repliesTo(operatorAddress)
	require.Len(t, replies, 1)
	// The operator's own thread counts as unassigned too.
	assert.Equal(t, "3 unassigned, 1 operated.", replies[0])
}

func TestMineListsOwnedConversations(t *testing.T) {
	f := newParserFixture(t)
	f.seedOwned("conv_c", "+491533")

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!mine")
	require.NoError(t, err)
	assert.True(t, handled)

	replies := f.repliesTo(operatorAddress)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "+491533")
}

func TestMineWithNothingOwned(t *testing.T) {
	f := newParserFixture(t)

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!mine")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, f.repliesTo(operatorAddress)[0], "no conversations")
}

func TestCloseReleasesSingleOwnedConversation(t *testing.T) {
	f := newParserFixture(t)
	owned := f.seedOwned("conv_c", "+491533")

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!close")
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Equal(t, conversation.ModeAutomated, f.repo.Row(owned.ID).Mode)

	// Farewell to the released party, confirmation to the operator.
	farewells := f.repliesTo("+491533")
	require.Len(t, farewells, 1)
	assert.Contains(t, farewells[0], "assistant will take it from here")
	assert.Contains(t, f.repliesTo(operatorAddress)[0], "Released")
}

func TestCloseWithNothingOwned(t *testing.T) {
	f := newParserFixture(t)

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!close")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "Nothing to close.", f.repliesTo(operatorAddress)[0])
}

func TestCloseWithSeveralOwnedAsksForIndex(t *testing.T) {
	f := newParserFixture(t)
	a := f.seedOwned("conv_a", "+491511")
	b := f.seedOwned("conv_b", "+491522")

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!close")
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Contains(t, f.repliesTo(operatorAddress)[0], "pick one")
	assert.Equal(t, conversation.ModeOperated, f.repo.Row(a.ID).Mode)
	assert.Equal(t, conversation.ModeOperated, f.repo.Row(b.ID).Mode)
}

func TestHelpListsCommands(t *testing.T) {
	f := newParserFixture(t)

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!help")
	require.NoError(t, err)
	assert.True(t, handled)

	reply := f.repliesTo(operatorAddress)[0]
	for _, cmd := range []string{"!pending", "!mine", "!close", "!r", "!help"} {
		assert.Contains(t, reply, cmd)
	}
}

func TestReplySendsIntoOwnedConversation(t *testing.T) {
	f := newParserFixture(t)
	f.seedOwned("conv_c", "+491533")

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!r We will call you back today.")
	require.NoError(t, err)
	assert.True(t, handled)

	delivered := f.repliesTo("+491533")
	require.Len(t, delivered, 1)
	assert.Equal(t, "We will call you back today.", delivered[0])
	assert.Contains(t, f.repliesTo(operatorAddress)[0], "Sent to")
}

func TestReplyWithLeadingWhitespaceStripsMarker(t *testing.T) {
	f := newParserFixture(t)
	f.seedOwned("conv_c", "+491533")

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "  !r hello there")
	require.NoError(t, err)
	assert.True(t, handled)

	delivered := f.repliesTo("+491533")
	require.Len(t, delivered, 1)
	assert.Equal(t, "hello there", delivered[0])
}

func TestReplySkipsInAppOnlyConversations(t *testing.T) {
	f := newParserFixture(t)
	owned := f.seedOwned("conv_c", "+491533")
	owned.ResponsePreference = conversation.ResponsePreferenceInApp
	f.repo.Seed(owned)

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!r hello")
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Empty(t, f.repliesTo("+491533"))
	assert.Contains(t, f.repliesTo(operatorAddress)[0], "No conversation accepts external replies")
}

func TestReplyWithoutTextPrompts(t *testing.T) {
	f := newParserFixture(t)
	f.seedOwned("conv_c", "+491533")

	handled, err := f.parser.Handle(context.Background(), f.op, f.opConv, "!r")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, f.repliesTo("+491533"))
}
