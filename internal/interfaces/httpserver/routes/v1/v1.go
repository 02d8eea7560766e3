package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/interfaces/httpserver/handlers"
)

// Routes holds the v1 route configuration.
type Routes struct {
	handlers     *handlers.Provider
	gatewayToken string
	log          zerolog.Logger
}

// NewRoutes creates the v1 routes instance.
func NewRoutes(handlerProvider *handlers.Provider, gatewayToken string, log zerolog.Logger) *Routes {
	return &Routes{
		handlers:     handlerProvider,
		gatewayToken: gatewayToken,
		log:          log,
	}
}

// Register wires all v1 routes. Console routes sit behind the auth
// middleware; the inbound webhook authenticates with the gateway's
// shared token instead.
func (r *Routes) Register(engine *gin.Engine, authMiddleware gin.HandlerFunc) {
	group := engine.Group("/v1")

	webhooks := group.Group("/webhooks")
	webhooks.Use(gatewayTokenMiddleware(r.gatewayToken))
	RegisterWebhookRoutes(webhooks, r.handlers.Webhook, r.log)

	console := group
	if authMiddleware != nil {
		console = group.Group("")
		console.Use(authMiddleware)
	}
	RegisterConversationRoutes(console, r.handlers.Conversation, r.log)
	RegisterOperatorRoutes(console, r.handlers.Operator, r.log)
	console.GET("/ws", r.handlers.Live.Serve)
}

// gatewayTokenMiddleware verifies the shared secret the chat gateway
// sends with webhook deliveries. An empty configured token disables the
// check.
func gatewayTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid gateway token"})
			return
		}
		c.Next()
	}
}
