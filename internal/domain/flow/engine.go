package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// Sender delivers flow prompts to the external party. Satisfied by
// *conversation.Service.
type Sender interface {
	SendAutomated(ctx context.Context, conv *conversation.Conversation, content string) error
}

// Completion is invoked exactly once when a flow's descriptor is exhausted,
// with every collected answer and the auxiliary data the flow started with.
type Completion func(ctx context.Context, conv *conversation.Conversation, answers map[string]any, aux map[string]any) error

// cancelWords are the in-band directives that abandon an active flow.
var cancelWords = map[string]bool{"cancel": true, "abbrechen": true, "stop": true, "abort": true}

// Engine executes resumable walks over flow descriptors, keyed by
// conversation. Partial progress lives on the conversation record, so an
// interaction survives process restarts.
type Engine struct {
	repo    conversation.Repository
	sender  Sender
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	descriptors map[string]Descriptor
	completions map[string]Completion
}

// NewEngine builds a flow engine. timeout bounds each flow's lifetime.
func NewEngine(repo conversation.Repository, sender Sender, timeout time.Duration, log zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Engine{
		repo:        repo,
		sender:      sender,
		timeout:     timeout,
		log:         log.With().Str("component", "flow-engine").Logger(),
		now:         time.Now,
		descriptors: make(map[string]Descriptor),
		completions: make(map[string]Completion),
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Register binds a descriptor and its completion callback under the
// descriptor's name. Registration must happen before Start, and again after
// a restart, since callbacks cannot be persisted.
func (e *Engine) Register(desc Descriptor, done Completion) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if done == nil {
		return fmt.Errorf("flow %q has no completion callback", desc.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.descriptors[desc.Name]; exists {
		return fmt.Errorf("flow %q already registered", desc.Name)
	}
	e.descriptors[desc.Name] = desc
	e.completions[desc.Name] = done
	return nil
}

// Start begins a flow for the conversation and emits the first prompt.
// A conversation runs at most one flow at a time.
func (e *Engine) Start(ctx context.Context, conv *conversation.Conversation, moduleName string, aux map[string]any) error {
	if conv.HasActiveFlow() {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			fmt.Sprintf("a %s flow is already active", conv.FlowState.ModuleName), nil, "flow-active")
	}

	desc, _, err := e.lookup(ctx, moduleName)
	if err != nil {
		return err
	}

	state := &conversation.FlowState{
		ModuleName: moduleName,
		StepIndex:  0,
		Answers:    make(map[string]any),
		Aux:        aux,
		ExpiresAt:  e.now().UTC().Add(e.timeout),
	}
	if err := e.repo.SaveFlowState(ctx, conv.ID, state); err != nil {
		return err
	}
	conv.FlowState = state

	return e.sender.SendAutomated(ctx, conv, desc.PromptFor(0))
}

// Advance feeds one inbound answer to the conversation's active flow.
// Invalid answers re-prompt without advancing the step index. When the
// descriptor is exhausted the completion callback runs once; flow state is
// cleared even if the callback fails, so the conversation is never stuck.
func (e *Engine) Advance(ctx context.Context, conv *conversation.Conversation, raw string) error {
	state := conv.FlowState
	if state == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"no active flow", nil, "flow-missing")
	}

	if cancelWords[strings.ToLower(strings.TrimSpace(raw))] {
		return e.Cancel(ctx, conv)
	}

	if state.Expired(e.now().UTC()) {
		if err := e.clear(ctx, conv); err != nil {
			return err
		}
		return e.sender.SendAutomated(ctx, conv, "That form expired. Send the request again to start over.")
	}

	desc, done, err := e.lookup(ctx, state.ModuleName)
	if err != nil {
		// Descriptor no longer registered: clear instead of wedging the
		// conversation.
		e.log.Error().Err(err).Str("conversation", conv.PublicID).Msg("active flow has no descriptor")
		if clearErr := e.clear(ctx, conv); clearErr != nil {
			return clearErr
		}
		return e.sender.SendAutomated(ctx, conv, "Something went wrong with that form, sorry. Please start again.")
	}

	if state.StepIndex >= len(desc.Steps) {
		// Defensive: state advanced past the descriptor, likely a config
		// change between deployments.
		if err := e.clear(ctx, conv); err != nil {
			return err
		}
		return e.sender.SendAutomated(ctx, conv, "Something went wrong with that form, sorry. Please start again.")
	}

	step := desc.Steps[state.StepIndex]
	value, parseErr := step.ParseAnswer(raw)
	if parseErr != nil {
		var validation *ValidationError
		if errors.As(parseErr, &validation) {
			reply := fmt.Sprintf("%s\n%s", validation.Reason, desc.PromptFor(state.StepIndex))
			return e.sender.SendAutomated(ctx, conv, reply)
		}
		return parseErr
	}

	prevExpiresAt := state.ExpiresAt
	state.Answers[step.Name] = value
	state.StepIndex++
	state.ExpiresAt = e.now().UTC().Add(e.timeout)

	// A failed save must not leave the in-memory state ahead of the store;
	// the caller retries with a view that matches what was persisted.
	revert := func() {
		delete(state.Answers, step.Name)
		state.StepIndex--
		state.ExpiresAt = prevExpiresAt
	}

	if state.StepIndex < len(desc.Steps) {
		if err := e.repo.SaveFlowState(ctx, conv.ID, state); err != nil {
			revert()
			return err
		}
		return e.sender.SendAutomated(ctx, conv, desc.PromptFor(state.StepIndex))
	}

	// Descriptor exhausted: clear first, then complete. Completion failures
	// (e.g. a uniqueness conflict downstream) must not leave the
	// conversation stuck in the flow.
	answers := state.Answers
	aux := state.Aux
	if err := e.clear(ctx, conv); err != nil {
		revert()
		return err
	}

	if err := done(ctx, conv, answers, aux); err != nil {
		e.log.Error().Err(err).
			Str("conversation", conv.PublicID).
			Str("flow", desc.Name).
			Msg("flow completion failed")
		return e.sender.SendAutomated(ctx, conv, "I could not finish that request, sorry. Please try again later.")
	}
	return nil
}

// Cancel abandons the active flow immediately.
func (e *Engine) Cancel(ctx context.Context, conv *conversation.Conversation) error {
	if !conv.HasActiveFlow() {
		return nil
	}
	if err := e.clear(ctx, conv); err != nil {
		return err
	}
	return e.sender.SendAutomated(ctx, conv, "Okay, cancelled.")
}

func (e *Engine) clear(ctx context.Context, conv *conversation.Conversation) error {
	if err := e.repo.SaveFlowState(ctx, conv.ID, nil); err != nil {
		return err
	}
	conv.FlowState = nil
	return nil
}

func (e *Engine) lookup(ctx context.Context, moduleName string) (Descriptor, Completion, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	desc, ok := e.descriptors[moduleName]
	if !ok {
		return Descriptor{}, nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("flow %q is not registered", moduleName), nil, "flow-unregistered")
	}
	return desc, e.completions[moduleName], nil
}
