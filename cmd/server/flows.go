package main

import (
	"context"
	"fmt"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/flow"
)

const (
	flowPrayerRequest = "prayer-request"
	flowEventSignup   = "event-signup"
)

// registerFlows installs the built-in multi-step interactions. Flows must
// be registered before the first inbound message is routed, otherwise a
// conversation resumed after a restart finds no descriptor and gets
// cleared.
func registerFlows(engine *flow.Engine, convs *conversation.Service) error {
	prayer := flow.Descriptor{
		Name: flowPrayerRequest,
		Steps: []flow.Step{
			{
				Name:     "request",
				Prompt:   "What would you like us to pray for?",
				Type:     flow.StepTypeText,
				Required: true,
			},
			{
				Name:   "share",
				Prompt: "May we share this with the whole prayer group? (yes/no)",
				Type:   flow.StepTypeBoolean,
			},
		},
	}
	if err := engine.Register(prayer, prayerCompletion(convs)); err != nil {
		return err
	}

	maxGuests := float64(20)
	minGuests := float64(0)
	signup := flow.Descriptor{
		Name: flowEventSignup,
		Steps: []flow.Step{
			{
				Name:     "event",
				Prompt:   "Which event would you like to join?",
				Type:     flow.StepTypeChoice,
				Required: true,
				Choices:  []string{"Sunday service", "Youth night", "Community dinner"},
			},
			{
				Name:     "guests",
				Prompt:   "How many guests are you bringing? (0-20)",
				Type:     flow.StepTypeNumber,
				Required: true,
				Min:      &minGuests,
				Max:      &maxGuests,
			},
		},
	}
	return engine.Register(signup, signupCompletion(convs))
}

func prayerCompletion(convs *conversation.Service) flow.Completion {
	return func(ctx context.Context, conv *conversation.Conversation, answers map[string]any, _ map[string]any) error {
		shared := "kept private"
		if share, _ := answers["share"].(bool); share {
			shared = "shared with the prayer group"
		}
		if _, err := convs.RecordSystemNote(ctx, conv, fmt.Sprintf(
			"Prayer request (%s): %v", shared, answers["request"])); err != nil {
			return err
		}
		return convs.SendAutomated(ctx, conv, "Thank you. We will be praying for you.")
	}
}

func signupCompletion(convs *conversation.Service) flow.Completion {
	return func(ctx context.Context, conv *conversation.Conversation, answers map[string]any, _ map[string]any) error {
		if _, err := convs.RecordSystemNote(ctx, conv, fmt.Sprintf(
			"Signup: %v, guests: %v", answers["event"], answers["guests"])); err != nil {
			return err
		}
		return convs.SendAutomated(ctx, conv, fmt.Sprintf(
			"You are signed up for %v. See you there!", answers["event"]))
	}
}
