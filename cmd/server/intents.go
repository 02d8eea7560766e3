package main

import (
	"context"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/flow"
	"github.com/flockhq/flock-server/internal/domain/intent"
)

const (
	intentGreeting      = "greeting"
	intentServiceTimes  = "service_times"
	intentPrayerRequest = "prayer_request"
	intentEventSignup   = "event_signup"
	intentTalkToHuman   = "talk_to_human"
	intentBroadcast     = "broadcast"
)

// defaultPatterns short-circuits the classifier for unambiguous phrasings.
// First match wins, so greetings sit above the broader keyword rules.
func defaultPatterns() *intent.PatternSet {
	patterns := intent.NewPatternSet()
	patterns.MustAdd(`^(hi|hello|hey|good (morning|afternoon|evening))\b`, intent.Classification{
		Intent: intentGreeting,
	})
	patterns.MustAdd(`\b(service|mass|worship) ?(time|times|schedule)\b`, intent.Classification{
		Intent: intentServiceTimes,
	})
	patterns.MustAdd(`\bpray(er)?\b`, intent.Classification{
		Intent: intentPrayerRequest,
	})
	patterns.MustAdd(`\b(sign ?up|register|rsvp)\b`, intent.Classification{
		Intent: intentEventSignup,
	})
	patterns.MustAdd(`\b(talk|speak) to (a|someone|somebody|a human|a person)\b`, intent.Classification{
		Intent: intentTalkToHuman,
	})
	return patterns
}

// registerIntents binds handlers to intent labels. The classifier may
// return the same labels with entities attached.
func registerIntents(router *intent.Router, convs *conversation.Service, flows *flow.Engine) {
	router.Handle(intentGreeting, func(ctx context.Context, req *intent.Request) error {
		return convs.SendAutomated(ctx, req.Conversation,
			"Hello! I can take prayer requests, sign you up for events, and answer questions about service times.")
	})

	router.Handle(intentServiceTimes, func(ctx context.Context, req *intent.Request) error {
		return convs.SendAutomated(ctx, req.Conversation,
			"We meet Sundays at 9:00 and 11:00, with youth night on Fridays at 19:00.")
	})

	router.Handle(intentPrayerRequest, func(ctx context.Context, req *intent.Request) error {
		return flows.Start(ctx, req.Conversation, flowPrayerRequest, nil)
	})

	router.Handle(intentEventSignup, func(ctx context.Context, req *intent.Request) error {
		return flows.Start(ctx, req.Conversation, flowEventSignup, nil)
	})

	router.Handle(intentTalkToHuman, func(ctx context.Context, req *intent.Request) error {
		return convs.SendAutomated(ctx, req.Conversation,
			"Of course. A team member will pick this up as soon as they are free.")
	})

	// The classifier gates broadcast on lead/admin; the router enforces the
	// roles before this handler runs.
	router.Handle(intentBroadcast, func(ctx context.Context, req *intent.Request) error {
		return convs.SendAutomated(ctx, req.Conversation,
			"Broadcasts go out through the console at /v1/conversations for now.")
	})

	router.HandleFallback(func(ctx context.Context, req *intent.Request) error {
		return convs.SendAutomated(ctx, req.Conversation,
			"Sorry, I did not quite get that. You can ask about service times, send a prayer request, or sign up for an event.")
	})
}
