package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flockhq/flock-server/internal/infrastructure/auth"
	"github.com/flockhq/flock-server/internal/interfaces/httpserver/handlers"
	v1 "github.com/flockhq/flock-server/internal/interfaces/httpserver/routes/v1"
)

// Provider holds all route providers.
type Provider struct {
	V1            *v1.Routes
	authValidator *auth.Validator
}

// NewProvider creates a new route provider.
func NewProvider(handlerProvider *handlers.Provider, authValidator *auth.Validator, gatewayToken string, log zerolog.Logger) *Provider {
	return &Provider{
		V1:            v1.NewRoutes(handlerProvider, gatewayToken, log),
		authValidator: authValidator,
	}
}

// Register registers all routes on the engine.
func (p *Provider) Register(engine *gin.Engine) {
	var authMiddleware gin.HandlerFunc
	if p.authValidator != nil {
		authMiddleware = p.authValidator.Middleware()
	}
	p.V1.Register(engine, authMiddleware)
}
