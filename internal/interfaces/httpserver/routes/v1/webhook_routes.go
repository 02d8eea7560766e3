package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/interfaces/httpserver/handlers"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver/requests"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver/responses"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// RegisterWebhookRoutes wires the chat gateway's delivery endpoint.
func RegisterWebhookRoutes(router gin.IRoutes, handler *handlers.WebhookHandler, log zerolog.Logger) {
	router.POST("/inbound", inboundWebhook(handler, log))
}

func inboundWebhook(handler *handlers.WebhookHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requests.InboundWebhook
		if err := c.ShouldBindJSON(&req); err != nil {
			platformerrors.WriteValidationError(c, err.Error())
			return
		}

		if err := handler.HandleInbound(c.Request.Context(), req.From, req.DisplayName, req.Body); err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.AcceptedResponse{Status: "ok"})
	}
}
