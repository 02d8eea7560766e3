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

// RegisterOperatorRoutes wires the operator directory endpoints.
func RegisterOperatorRoutes(router gin.IRoutes, handler *handlers.OperatorHandler, log zerolog.Logger) {
	router.GET("/operators", listOperators(handler, log))
	router.POST("/operators", createOperator(handler, log))
}

func listOperators(handler *handlers.OperatorHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ops, err := handler.List(c.Request.Context())
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusOK, responses.NewListOperatorsResponse(ops))
	}
}

func createOperator(handler *handlers.OperatorHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requests.CreateOperatorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			platformerrors.WriteValidationError(c, err.Error())
			return
		}

		op, err := handler.Create(c.Request.Context(), req.DisplayName, req.Address, req.Roles)
		if err != nil {
			platformerrors.WriteError(c, err, log)
			return
		}
		c.JSON(http.StatusCreated, responses.NewOperatorResponse(op))
	}
}
