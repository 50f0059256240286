package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bingify/tokenvault/internal/domain"
)

// CredentialInvalidator drops cached provider client credentials, for use
// after the pair is rotated in the database.
type CredentialInvalidator interface {
	Invalidate(ctx context.Context, provider domain.Provider) error
}

// CredentialHandler exposes the admin credential-cache surface.
type CredentialHandler struct {
	cache  CredentialInvalidator
	logger *zap.Logger
}

func NewCredentialHandler(cache CredentialInvalidator, logger *zap.Logger) *CredentialHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &CredentialHandler{cache: cache, logger: logger}
}

// InvalidateCache evicts a provider's cached client pair so the next refresh
// resolves the rotated credentials from the database.
func (h *CredentialHandler) InvalidateCache(c *gin.Context) {
	provider, ok := providerParam(c)
	if !ok {
		return
	}

	if err := h.cache.Invalidate(c.Request.Context(), provider); err != nil {
		h.logger.Error("credential cache invalidation failed", zap.Error(err), zap.String("provider", provider.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not invalidate cached credentials."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "provider": provider.String()})
}
