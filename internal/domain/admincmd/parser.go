// Package admincmd inspects inbound messages from recognized operators for
// in-band control directives before ordinary routing occurs.
package admincmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/domain/operator"
)

// Recognized directives. Checked in order; first match wins and
// short-circuits normal routing for that message.
const (
	CmdListPending = "!pending"
	CmdListMine    = "!mine"
	CmdCloseActive = "!close"
	CmdHelp        = "!help"
	CmdReplyPrefix = "!r"
)

const helpText = `Operator commands:
!pending - unassigned vs. operated conversation counts
!mine - conversations you currently own
!close [n] - release your active conversation
!r [n] <text> - reply into an owned conversation
!help - this summary`

// Parser matches and executes in-band operator directives.
type Parser struct {
	convs *conversation.Service
	log   zerolog.Logger
}

// NewParser builds the admin command parser.
func NewParser(convs *conversation.Service, log zerolog.Logger) *Parser {
	return &Parser{
		convs: convs,
		log:   log.With().Str("component", "admin-commands").Logger(),
	}
}

// Handle checks one inbound message from a recognized operator. It returns
// true when a directive matched, in which case the reply has already been
// sent to the operator's own thread and routing must stop.
func (p *Parser) Handle(ctx context.Context, op *operator.Operator, opConv *conversation.Conversation, content string) (bool, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case CmdListPending:
		return true, p.listPending(ctx, opConv)
	case CmdListMine:
		return true, p.listMine(ctx, op, opConv)
	case CmdCloseActive:
		return true, p.closeActive(ctx, op, opConv, fields[1:])
	case CmdHelp:
		return true, p.convs.SendAutomated(ctx, opConv, helpText)
	case CmdReplyPrefix:
		return true, p.targetedReply(ctx, op, opConv, content, fields[1:])
	default:
		return false, nil
	}
}

func (p *Parser) listPending(ctx context.Context, opConv *conversation.Conversation) error {
	automated := conversation.ModeAutomated
	operated := conversation.ModeOperated

	pending, err := p.convs.Count(ctx, conversation.Filter{Mode: &automated})
	if err != nil {
		return err
	}
	owned, err := p.convs.Count(ctx, conversation.Filter{Mode: &operated})
	if err != nil {
		return err
	}

	reply := fmt.Sprintf("%d unassigned, %d operated.", pending, owned)
	return p.convs.SendAutomated(ctx, opConv, reply)
}

func (p *Parser) listMine(ctx context.Context, op *operator.Operator, opConv *conversation.Conversation) error {
	owned, err := p.ownedBy(ctx, op)
	if err != nil {
		return err
	}
	if len(owned) == 0 {
		return p.convs.SendAutomated(ctx, opConv, "You own no conversations right now.")
	}

	var b strings.Builder
	b.WriteString("Your conversations:")
	for i, conv := range owned {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, describe(conv)))
	}
	return p.convs.SendAutomated(ctx, opConv, b.String())
}

func (p *Parser) closeActive(ctx context.Context, op *operator.Operator, opConv *conversation.Conversation, args []string) error {
	owned, err := p.ownedBy(ctx, op)
	if err != nil {
		return err
	}

	switch {
	case len(owned) == 0:
		return p.convs.SendAutomated(ctx, opConv, "Nothing to close.")

	case len(owned) == 1:
		return p.release(ctx, op, opConv, owned[0])

	default:
		if len(args) > 0 {
			index, err := strconv.Atoi(args[0])
			if err == nil && index >= 1 && index <= len(owned) {
				return p.release(ctx, op, opConv, owned[index-1])
			}
		}
		var b strings.Builder
		b.WriteString(fmt.Sprintf("You own %d conversations, pick one with %s <n>:", len(owned), CmdCloseActive))
		for i, conv := range owned {
			b.WriteString(fmt.Sprintf("\n%d. %s", i+1, describe(conv)))
		}
		return p.convs.SendAutomated(ctx, opConv, b.String())
	}
}

func (p *Parser) release(ctx context.Context, op *operator.Operator, opConv *conversation.Conversation, target *conversation.Conversation) error {
	if _, err := p.convs.Release(ctx, target.PublicID, op, "An assistant will take it from here. Thanks for waiting!"); err != nil {
		return err
	}
	return p.convs.SendAutomated(ctx, opConv, fmt.Sprintf("Released %s.", describe(target)))
}

// targetedReply sends free text into an owned conversation. Only
// conversations whose response preference permits external-channel replies
// are offered.
func (p *Parser) targetedReply(ctx context.Context, op *operator.Operator, opConv *conversation.Conversation, raw string, args []string) error {
	owned, err := p.ownedBy(ctx, op)
	if err != nil {
		return err
	}

	reachable := owned[:0:0]
	for _, conv := range owned {
		if conv.ResponsePreference.AllowsExternal() {
			reachable = append(reachable, conv)
		}
	}

	if len(reachable) == 0 {
		return p.convs.SendAutomated(ctx, opConv, "No conversation accepts external replies right now.")
	}

	if len(args) == 0 {
		return p.listTargets(ctx, opConv, reachable)
	}

	// The directive may arrive with surrounding whitespace; slice the
	// marker off the trimmed form so it never leaks into the reply.
	raw = strings.TrimSpace(raw)
	target := reachable[0]
	text := strings.TrimSpace(raw[len(CmdReplyPrefix):])

	if len(reachable) > 1 {
		index, err := strconv.Atoi(args[0])
		if err != nil || index < 1 || index > len(reachable) {
			return p.listTargets(ctx, opConv, reachable)
		}
		target = reachable[index-1]
		text = strings.TrimSpace(strings.TrimPrefix(text, args[0]))
	}

	if text == "" {
		return p.convs.SendAutomated(ctx, opConv, "Nothing to send. Usage: !r [n] <text>")
	}

	if _, err := p.convs.SendOutbound(ctx, target, text, conversation.KindText, &op.PublicID); err != nil {
		return err
	}
	return p.convs.SendAutomated(ctx, opConv, fmt.Sprintf("Sent to %s.", describe(target)))
}

func (p *Parser) listTargets(ctx context.Context, opConv *conversation.Conversation, reachable []*conversation.Conversation) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Pick a conversation with %s <n> <text>:", CmdReplyPrefix))
	for i, conv := range reachable {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, describe(conv)))
	}
	return p.convs.SendAutomated(ctx, opConv, b.String())
}

func (p *Parser) ownedBy(ctx context.Context, op *operator.Operator) ([]*conversation.Conversation, error) {
	operated := conversation.ModeOperated
	return p.convs.List(ctx, conversation.Filter{
		Mode:               &operated,
		AssignedOperatorID: &op.PublicID,
	}, nil)
}

func describe(conv *conversation.Conversation) string {
	if conv.DisplayName != nil && *conv.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", *conv.DisplayName, conv.Address)
	}
	return conv.Address
}
