package intent_test

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
	"github.com/flockhq/flock-server/internal/domain/flow"
	"github.com/flockhq/flock-server/internal/domain/intent"
	"github.com/flockhq/flock-server/internal/domain/operator"
)

type mockClassifier struct {
	ClassifyFunc func(ctx context.Context, text string, convCtx intent.Context) (*intent.Classification, error)
	calls        int
}

func (m *mockClassifier) Classify(ctx context.Context, text string, convCtx intent.Context) (*intent.Classification, error) {
	m.calls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, text, convCtx)
	}
	return &intent.Classification{Intent: intent.IntentUnknown}, nil
}

type routerFixture struct {
	router     *intent.Router
	repo       *conversationtest.FakeRepository
	messages   *conversationtest.FakeMessageRepository
	operators  *conversationtest.FakeOperatorRepository
	gateway    *conversationtest.FakeGateway
	classifier *mockClassifier
	flows      *flow.Engine
	convs      *conversation.Service
	handled    map[string]int
}

func newRouterFixture(t *testing.T, ops ...*operator.Operator) *routerFixture {
	t.Helper()
	f := &routerFixture{
		repo:       conversationtest.NewFakeRepository(),
		messages:   conversationtest.NewFakeMessageRepository(),
		operators:  conversationtest.NewFakeOperatorRepository(ops...),
		gateway:    conversationtest.NewFakeGateway(),
		classifier: &mockClassifier{},
		handled:    make(map[string]int),
	}

	f.convs = conversation.NewService(
		f.repo, f.messages, f.operators, f.gateway,
		conversationtest.NewFakePublisher(),
		conversation.Config{},
		zerolog.Nop(),
	)

	f.flows = flow.NewEngine(f.repo, f.convs, 30*time.Minute, zerolog.Nop())
	require.NoError(t, f.flows.Register(flow.Descriptor{
		Name:  "prayer-request",
		Steps: []flow.Step{{Name: "request", Prompt: "What should we pray for?", Type: flow.StepTypeText, Required: true}},
	}, func(context.Context, *conversation.Conversation, map[string]any, map[string]any) error {
		f.handled["prayer-completed"]++
		return nil
	}))

	patterns := intent.NewPatternSet()
	patterns.MustAdd(`^(hi|hello|hey)\b`, intent.Classification{Intent: "greeting"})

	f.router = intent.NewRouter(
		f.convs, f.flows, admincmd.NewParser(f.convs, zerolog.Nop()),
		f.operators, patterns, f.classifier, zerolog.Nop(),
	)
	f.router.Handle("greeting", f.countingHandler("greeting", nil))
	return f
}

func (f *routerFixture) countingHandler(name string, err error) intent.HandlerFunc {
	return func(context.Context, *intent.Request) error {
		f.handled[name]++
		return err
	}
}

func (f *routerFixture) sentTo(address string) []string {
	var out []string
	for _, sent := range f.gateway.Sent() {
		if sent.Address == address {
			out = append(out, sent.Content)
		}
	}
	return out
}

func inbound(address, content string) intent.InboundMessage {
	return intent.InboundMessage{Address: address, DisplayName: "Tom", Content: content}
}

func TestInboundIsPersistedBeforeRouting(t *testing.T) {
	f := newRouterFixture(t)

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "gibberish"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchFallback, branch)

	var inboundCount int
	for _, msg := range f.messages.All() {
		if msg.Direction == conversation.DirectionInbound {
			inboundCount++
			assert.Equal(t, "gibberish", msg.Content)
		}
	}
	assert.Equal(t, 1, inboundCount)
}

func TestFirstContactCreatesConversation(t *testing.T) {
	f := newRouterFixture(t)

	_, err := f.router.HandleInbound(context.Background(), inbound("+491511", "hello"))
	require.NoError(t, err)

	conv, getErr := f.repo.FindByAddress(context.Background(), "+491511")
	require.NoError(t, getErr)
	assert.Equal(t, conversation.ModeAutomated, conv.Mode)
	require.NotNil(t, conv.DisplayName)
	assert.Equal(t, "Tom", *conv.DisplayName)
}

func TestAdminCommandShortCircuitsRouting(t *testing.T) {
	op := &operator.Operator{PublicID: "op_1", DisplayName: "Hannah", Address: "+4915100",
		Roles: []operator.Role{operator.RoleLead}}
	f := newRouterFixture(t, op)

	branch, err := f.router.HandleInbound(context.Background(), inbound("+4915100", "!help"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchAdmin, branch)
	assert.Equal(t, 0, f.classifier.calls)
	assert.NotEmpty(t, f.sentTo("+4915100"))
}

func TestAdminCommandRunsEvenWhenConversationIsOperated(t *testing.T) {
	op := &operator.Operator{PublicID: "op_1", DisplayName: "Hannah", Address: "+4915100",
		Roles: []operator.Role{operator.RoleLead}}
	f := newRouterFixture(t, op)

	// The operator's own thread was claimed by a colleague; directives must
	// still work there.
	conv := conversation.NewConversation("conv_op", "+4915100", nil)
	conv.Mode = conversation.ModeOperated
	other := "op_other"
	conv.AssignedOperatorID = &other
	f.repo.Seed(conv)

	branch, err := f.router.HandleInbound(context.Background(), inbound("+4915100", "!pending"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchAdmin, branch)
}

func TestOperatedModeSuppressesAutomation(t *testing.T) {
	owner := &operator.Operator{PublicID: "op_owner", DisplayName: "Hannah", Address: "+4915100",
		Roles: []operator.Role{operator.RoleLead}}
	f := newRouterFixture(t, owner)

	name := "Tom"
	conv := conversation.NewConversation("conv_1", "+491511", &name)
	conv.Mode = conversation.ModeOperated
	conv.AssignedOperatorID = &owner.PublicID
	f.repo.Seed(conv)

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "are you there?"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchOperated, branch)
	assert.Equal(t, 0, f.classifier.calls)

	// No automated reply to the party, a forwarded copy to the owner.
	assert.Empty(t, f.sentTo("+491511"))
	copies := f.sentTo("+4915100")
	require.Len(t, copies, 1)
	assert.Equal(t, "Tom: are you there?", copies[0])
}

func TestSuspendedModeAcknowledgesOnly(t *testing.T) {
	f := newRouterFixture(t)
	conv := conversation.NewConversation("conv_1", "+491511", nil)
	conv.Mode = conversation.ModeSuspended
	f.repo.Seed(conv)

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "hello"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchSuspended, branch)
	assert.Equal(t, 0, f.classifier.calls)

	replies := f.sentTo("+491511")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "pausing automated replies")
}

func TestActiveFlowConsumesTheMessage(t *testing.T) {
	f := newRouterFixture(t)
	conv := conversation.NewConversation("conv_1", "+491511", nil)
	conv.FlowState = &conversation.FlowState{
		ModuleName: "prayer-request",
		Answers:    make(map[string]any),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	f.repo.Seed(conv)

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "my family"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchFlow, branch)
	assert.Equal(t, 1, f.handled["prayer-completed"])
	assert.Equal(t, 0, f.classifier.calls)
}

func TestPatternMatchBypassesClassifier(t *testing.T) {
	f := newRouterFixture(t)

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "Hello there"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchDispatch, branch)
	assert.Equal(t, 1, f.handled["greeting"])
	assert.Equal(t, 0, f.classifier.calls)
}

func TestClassifierHandlesUnmatchedText(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Handle("service_times", f.countingHandler("service_times", nil))
	f.classifier.ClassifyFunc = func(context.Context, string, intent.Context) (*intent.Classification, error) {
		return &intent.Classification{Intent: "service_times", Confidence: 0.9}, nil
	}

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "when do you meet on sundays"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchDispatch, branch)
	assert.Equal(t, 1, f.classifier.calls)
	assert.Equal(t, 1, f.handled["service_times"])
}

func TestClassifierOutageGetsGracefulNotice(t *testing.T) {
	f := newRouterFixture(t)
	f.classifier.ClassifyFunc = func(context.Context, string, intent.Context) (*intent.Classification, error) {
		return nil, assert.AnError
	}

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "anything"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchDispatch, branch)
	require.NotEmpty(t, f.sentTo("+491511"))
	assert.Contains(t, f.sentTo("+491511")[0], "cannot look it up right now")
}

func TestRequiresAuthRejectsUnknownSender(t *testing.T) {
	f := newRouterFixture(t)
	f.classifier.ClassifyFunc = func(context.Context, string, intent.Context) (*intent.Classification, error) {
		return &intent.Classification{Intent: "broadcast", RequiresAuth: true}, nil
	}

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "send this to everyone"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchAuthDenied, branch)
	assert.Contains(t, f.sentTo("+491511")[0], "do not recognize this number")
}

func TestRequiredRolesRejectInsufficientSender(t *testing.T) {
	op := &operator.Operator{PublicID: "op_1", Address: "+4915100",
		Roles: []operator.Role{operator.RoleMember}}
	f := newRouterFixture(t, op)
	f.classifier.ClassifyFunc = func(context.Context, string, intent.Context) (*intent.Classification, error) {
		return &intent.Classification{Intent: "broadcast", RequiresAuth: true,
			RequiredRoles: []operator.Role{operator.RoleAdmin}}, nil
	}

	branch, err := f.router.HandleInbound(context.Background(), inbound("+4915100", "broadcast please"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchAuthDenied, branch)
	assert.Contains(t, f.sentTo("+4915100")[0], "admin")
}

func TestRequiredRolesAdmitQualifiedSender(t *testing.T) {
	op := &operator.Operator{PublicID: "op_1", Address: "+4915100",
		Roles: []operator.Role{operator.RoleAdmin}}
	f := newRouterFixture(t, op)
	f.router.Handle("broadcast", f.countingHandler("broadcast", nil))
	f.classifier.ClassifyFunc = func(context.Context, string, intent.Context) (*intent.Classification, error) {
		return &intent.Classification{Intent: "broadcast", RequiresAuth: true,
			RequiredRoles: []operator.Role{operator.RoleAdmin}}, nil
	}

	branch, err := f.router.HandleInbound(context.Background(), inbound("+4915100", "broadcast please"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchDispatch, branch)
	assert.Equal(t, 1, f.handled["broadcast"])
}

func TestUnknownIntentUsesFallbackHandler(t *testing.T) {
	f := newRouterFixture(t)
	f.router.HandleFallback(f.countingHandler("fallback", nil))

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "???"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchFallback, branch)
	assert.Equal(t, 1, f.handled["fallback"])
}

func TestHandlerFailureGetsApology(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Handle("greeting", f.countingHandler("greeting-broken", assert.AnError))

	branch, err := f.router.HandleInbound(context.Background(), inbound("+491511", "hello"))
	require.NoError(t, err)
	assert.Equal(t, intent.BranchDispatch, branch)
	assert.Contains(t, f.sentTo("+491511")[0], "could not finish")
}
