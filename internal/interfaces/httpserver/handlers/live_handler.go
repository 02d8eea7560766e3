package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/operator"
	"github.com/flockhq/flock-server/internal/fanout"
	"github.com/flockhq/flock-server/internal/infrastructure/auth"
	"github.com/flockhq/flock-server/internal/infrastructure/metrics"
)

// LiveHandler upgrades operator consoles to websocket viewers and relays
// hub events to them.
type LiveHandler struct {
	hub       *fanout.Hub
	operators operator.Repository
	log       zerolog.Logger
}

// NewLiveHandler creates a live-viewer handler.
func NewLiveHandler(hub *fanout.Hub, operators operator.Repository, log zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		hub:       hub,
		operators: operators,
		log:       log.With().Str("component", "live-handler").Logger(),
	}
}

// clientFrame is what a connected console sends upstream.
type clientFrame struct {
	Action string `json:"action"` // join, leave, typing
	Room   string `json:"room"`
	State  bool   `json:"state,omitempty"` // typing on/off
}

// Serve handles one websocket session. It blocks until the client goes
// away or the server shuts down.
func (h *LiveHandler) Serve(c *gin.Context) {
	operatorID := auth.OperatorID(c)
	if operatorID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no operator identity"})
		return
	}
	if _, err := h.operators.FindByPublicID(c.Request.Context(), operatorID); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown operator"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	metrics.LiveViewers.Inc()
	defer metrics.LiveViewers.Dec()

	sub := h.hub.Register(operatorID)
	defer h.hub.Unregister(sub)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.writePump(ctx, cancel, conn, sub)
	h.readPump(ctx, conn, sub, operatorID)

	conn.Close(websocket.StatusNormalClosure, "bye")
}

func (h *LiveHandler) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *fanout.Subscriber) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error().Err(err).Str("event", ev.Name).Msg("marshal event")
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) readPump(ctx context.Context, conn *websocket.Conn, sub *fanout.Subscriber, operatorID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.log.Debug().Err(err).Msg("unreadable client frame")
			continue
		}
		if frame.Room == "" {
			continue
		}

		switch frame.Action {
		case "join":
			h.hub.Join(sub, frame.Room)
		case "leave":
			h.hub.Leave(sub, frame.Room)
		case "typing":
			h.hub.Publish(ctx, fanout.Event{
				Name: fanout.EventTyping,
				Room: frame.Room,
				Payload: map[string]any{
					"operator_id": operatorID,
					"typing":      frame.State,
				},
			})
		}
	}
}
