package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bus abstracts the shared publish/subscribe transport between processes.
// Implemented by the Redis bus; nil disables cross-process replay.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}

// envelope is the wire format on the shared bus. Origin carries the
// publishing process ID so a process never replays its own events.
type envelope struct {
	Origin  string          `json:"origin"`
	Name    string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Subscriber is one live viewer connection registered with the hub.
type Subscriber struct {
	ID         string
	OperatorID string

	hub *Hub
	ch  chan Event
}

// Events returns the subscriber's delivery channel. The channel is closed
// when the subscriber is unregistered.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub owns the per-connection registry: which subscriber is in which room,
// local delivery, presence counts, and the bridge to the shared bus.
// Presence is per-process state; a viewer's presence is only known to the
// process holding its connection.
type Hub struct {
	log       zerolog.Logger
	bus       Bus
	processID string

	mu    sync.RWMutex
	subs  map[string]*Subscriber
	rooms map[string]map[string]*Subscriber
}

const subscriberBuffer = 64

// NewHub creates a hub with a fresh process identity.
func NewHub(bus Bus, log zerolog.Logger) *Hub {
	return &Hub{
		log:       log.With().Str("component", "fanout-hub").Logger(),
		bus:       bus,
		processID: uuid.New().String(),
		subs:      make(map[string]*Subscriber),
		rooms:     make(map[string]map[string]*Subscriber),
	}
}

// ProcessID returns the hub's process identity used for echo suppression.
func (h *Hub) ProcessID() string {
	return h.processID
}

// Register adds a viewer connection. Every operator console joins the global
// operator broadcast room on registration.
func (h *Hub) Register(operatorID string) *Subscriber {
	sub := &Subscriber{
		ID:         uuid.New().String(),
		OperatorID: operatorID,
		hub:        h,
		ch:         make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	h.Join(sub, RoomOperators)
	return sub
}

// Unregister removes the connection from every room and closes its channel.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub.ID)

	var left []string
	for room, members := range h.rooms {
		if _, ok := members[sub.ID]; ok {
			delete(members, sub.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
			left = append(left, room)
		}
	}
	close(sub.ch)
	h.mu.Unlock()

	for _, room := range left {
		h.deliverLocal(Event{
			Name: EventPresenceLeft,
			Room: room,
			Payload: presencePayload{
				Room:       room,
				OperatorID: sub.OperatorID,
				Occupants:  h.Occupants(room),
			},
		})
	}
}

// Join adds the subscriber to a room and announces presence to the room.
// The joining subscriber receives a presence:state snapshot.
func (h *Hub) Join(sub *Subscriber, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Subscriber)
		h.rooms[room] = members
	}
	members[sub.ID] = sub
	occupants := len(members)
	h.mu.Unlock()

	h.deliverLocal(Event{
		Name: EventPresenceJoined,
		Room: room,
		Payload: presencePayload{
			Room:       room,
			OperatorID: sub.OperatorID,
			Occupants:  occupants,
		},
	})
	h.deliverTo(sub, Event{
		Name: EventPresenceState,
		Room: room,
		Payload: presencePayload{
			Room:      room,
			Occupants: occupants,
		},
	})
}

// Leave removes the subscriber from a room and announces the departure.
func (h *Hub) Leave(sub *Subscriber, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if ok {
		delete(members, sub.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	h.deliverLocal(Event{
		Name: EventPresenceLeft,
		Room: room,
		Payload: presencePayload{
			Room:       room,
			OperatorID: sub.OperatorID,
			Occupants:  h.Occupants(room),
		},
	})
}

// Occupants returns the local occupant count of a room.
func (h *Hub) Occupants(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish delivers the event to local viewers and, for persistent event
// kinds, replicates it to sibling processes over the shared bus. Bus
// publish failures are logged; local delivery is never rolled back.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	h.deliverLocal(ev)

	channel, ok := busChannelFor(ev.Name)
	if !ok || h.bus == nil {
		return
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Name).Msg("marshal fan-out payload")
		return
	}
	raw, err := json.Marshal(envelope{
		Origin:  h.processID,
		Name:    ev.Name,
		Room:    ev.Room,
		Payload: payload,
	})
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Name).Msg("marshal fan-out envelope")
		return
	}

	if err := h.bus.Publish(ctx, channel, raw); err != nil {
		h.log.Error().Err(err).Str("channel", channel).Msg("publish fan-out event to bus")
	}
}

// RunBridge subscribes to the shared bus once and replays sibling events to
// local viewers. Events that originated here are dropped to avoid echo
// loops; bus deliveries are never re-published.
func (h *Hub) RunBridge(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	return h.bus.Subscribe(ctx, BusChannels(), func(channel string, payload []byte) {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			h.log.Warn().Err(err).Str("channel", channel).Msg("drop malformed bus event")
			return
		}
		if env.Origin == h.processID {
			return
		}
		h.deliverLocal(Event{
			Name:    env.Name,
			Room:    env.Room,
			Payload: env.Payload,
		})
	})
}

func (h *Hub) deliverLocal(ev Event) {
	h.mu.RLock()
	members := h.rooms[ev.Room]
	targets := make([]*Subscriber, 0, len(members))
	for _, sub := range members {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		h.deliverTo(sub, ev)
	}
}

// deliverTo drops the event when the subscriber's buffer is full. Slow
// consumers rejoin and resync over REST rather than blocking the hub.
//
// The send happens under the read lock with a liveness check: Unregister
// removes the subscriber and closes its channel under the write lock, so a
// send can never race the close.
func (h *Hub) deliverTo(sub *Subscriber, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return
	}

	select {
	case sub.ch <- ev:
	default:
		h.log.Warn().
			Str("subscriber", sub.ID).
			Str("event", ev.Name).
			Msg("subscriber buffer full, dropping event")
	}
}

type presencePayload struct {
	Room       string `json:"room"`
	OperatorID string `json:"operator_id,omitempty"`
	Occupants  int    `json:"occupants"`
}
