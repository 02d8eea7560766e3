package fanout

import "fmt"

// Live-viewer event names delivered to connected operator consoles.
const (
	EventMessageNew          = "message:new"
	EventConversationUpdated = "conversation:updated"
	EventConversationNew     = "conversation:new"
	EventTyping              = "typing"
	EventPresenceJoined      = "presence:joined"
	EventPresenceLeft        = "presence:left"
	EventPresenceState       = "presence:state"
)

// Shared-bus channels used to replay events across sibling processes.
const (
	BusChannelMessageCreated      = "conversation.message.created"
	BusChannelConversationUpdated = "conversation.updated"
	BusChannelConversationCreated = "conversation.created"
)

// RoomOperators is the global broadcast room every operator console joins.
const RoomOperators = "operators"

// RoomConversation returns the room name for a single conversation.
func RoomConversation(publicID string) string {
	return fmt.Sprintf("conversation:%s", publicID)
}

// Event is a single fan-out unit: a named payload addressed to a room.
type Event struct {
	Name    string `json:"event"`
	Room    string `json:"room"`
	Payload any    `json:"payload"`
}

// busChannelFor maps an event name to its shared-bus channel. Ephemeral
// events (typing, presence) are process-local and have no bus channel.
func busChannelFor(name string) (string, bool) {
	switch name {
	case EventMessageNew:
		return BusChannelMessageCreated, true
	case EventConversationUpdated:
		return BusChannelConversationUpdated, true
	case EventConversationNew:
		return BusChannelConversationCreated, true
	default:
		return "", false
	}
}

// BusChannels lists every channel a process subscribes to at startup.
func BusChannels() []string {
	return []string{
		BusChannelMessageCreated,
		BusChannelConversationUpdated,
		BusChannelConversationCreated,
	}
}
