package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/domain/conversation"
	"github.com/flockhq/flock-server/internal/infrastructure/auth"
	"github.com/flockhq/flock-server/internal/infrastructure/metrics"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver/handlers"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver/requests"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver/responses"
	"github.com/flockhq/flock-server/internal/utils/platformerrors"
)

// RegisterConversationRoutes wires the operator console's conversation
// endpoints.
func RegisterConversationRoutes(router gin.IRoutes, handler *handlers.ConversationHandler, log zerolog.Logger) {
	router.GET("/conversations", listConversations(handler, log))
	router.GET("/conversations/:id", getConversation(handler, log))
	router.GET("/conversations/:id/messages", listMessages(handler, log))
	router.POST("/conversations/:id/claim", claimConversation(handler, log))
	router.POST("/conversations/:id/transfer", transferConversation(handler, log))
	router.POST("/conversations/:id/release", releaseConversation(handler, log))
	router.POST("/conversations/:id/suspend", suspendConversation(handler, log))
	router.POST("/conversations/:id/resume", resumeConversation(handler, log))
	router.POST("/conversations/:id/reply", replyConversation(handler, log))
	router.POST("/conversations/:id/read", markConversationRead(handler, log))
}

func listConversations(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query requests.ListConversationsQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			platformerrors.WriteValidationError(c, err.Error())
			return
		}

		filter := conversation.Filter{}
		if query.Mode != "" {
			mode := conversation.Mode(query.Mode)
			switch mode {
			case conversation.ModeAutomated, conversation.ModeOperated, conversation.ModeSuspended:
				filter.Mode = &mode
			default:
				platformerrors.WriteValidationError(c, "unknown mode: "+query.Mode)
				return
			}
		}
		if query.OperatorID != "" {
			filter.AssignedOperatorID = &query.OperatorID
		}

		convs, total, err := handler.List(c.Request.Context(), filter, &conversation.Pagination{
			Limit:  query.Limit,
			Offset: query.Offset,
		})
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}

		c.JSON(http.StatusOK, responses.NewListConversationsResponse(convs, total))
	}
}

func getConversation(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := handler.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.NewConversationResponse(conv))
	}
}

func listMessages(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query requests.ListMessagesQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			platformerrors.WriteValidationError(c, err.Error())
			return
		}

		msgs, err := handler.Messages(c.Request.Context(), c.Param("id"), &conversation.Pagination{
			Limit:  query.Limit,
			Offset: query.Offset,
		})
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}

		c.JSON(http.StatusOK, responses.NewListMessagesResponse(msgs))
	}
}

func claimConversation(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := handler.Claim(c.Request.Context(), c.Param("id"), auth.OperatorID(c))
		if err != nil {
			if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
				metrics.ClaimConflictsTotal.Inc()
			}
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.NewConversationResponse(conv))
	}
}

func transferConversation(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requests.TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			platformerrors.WriteValidationError(c, err.Error())
			return
		}

		conv, err := handler.Transfer(c.Request.Context(), c.Param("id"), auth.OperatorID(c), req.ToOperatorID)
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.NewConversationResponse(conv))
	}
}

func releaseConversation(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requests.ReleaseRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			platformerrors.WriteValidationError(c, err.Error())
			return
		}

		conv, err := handler.Release(c.Request.Context(), c.Param("id"), auth.OperatorID(c), req.Farewell)
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.NewConversationResponse(conv))
	}
}

func suspendConversation(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := handler.Suspend(c.Request.Context(), c.Param("id"))
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.NewConversationResponse(conv))
	}
}

func resumeConversation(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := handler.Resume(c.Request.Context(), c.Param("id"))
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.NewConversationResponse(conv))
	}
}

func replyConversation(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requests.ReplyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			platformerrors.WriteValidationError(c, err.Error())
			return
		}

		msg, err := handler.Reply(c.Request.Context(), c.Param("id"), auth.OperatorID(c), req.Content)
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusCreated, responses.NewMessageResponse(msg))
	}
}

func markConversationRead(handler *handlers.ConversationHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := handler.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.AcceptedResponse{Status: "ok"})
	}
}
