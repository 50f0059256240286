package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bingify/tokenvault/internal/config"
	"github.com/bingify/tokenvault/internal/http/handler"
	httpmiddleware "github.com/bingify/tokenvault/internal/http/middleware"
	"github.com/bingify/tokenvault/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, tokenHandler *handler.TokenHandler, credentialHandler *handler.CredentialHandler, healthHandler *handler.HealthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", healthHandler.Health)

	v1 := r.Group("/v1", authMiddleware.RequireUser)
	{
		tokens := v1.Group("/tokens")
		{
			tokens.PUT("/:provider", tokenHandler.SaveToken)
			tokens.GET("/:provider", tokenHandler.GetToken)
			tokens.DELETE("/:provider", tokenHandler.DeleteToken)
		}

		users := v1.Group("/users", authMiddleware.RequireAdmin)
		{
			users.GET("/:user_id/tokens/:provider", tokenHandler.GetTokenForUser)
		}

		admin := v1.Group("/admin", authMiddleware.RequireAdmin)
		{
			admin.DELETE("/credentials/:provider/cache", credentialHandler.InvalidateCache)
		}
	}

	return r
}
