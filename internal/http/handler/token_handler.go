package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bingify/tokenvault/internal/domain"
	"github.com/bingify/tokenvault/internal/expiry"
	httpmiddleware "github.com/bingify/tokenvault/internal/http/middleware"
	tokensvc "github.com/bingify/tokenvault/internal/service/token"
)

// TokenHandler exposes the token lifecycle REST surface.
type TokenHandler struct {
	tokens *tokensvc.Service
	logger *zap.Logger
}

// NewTokenHandler wires the handler.
func NewTokenHandler(tokens *tokensvc.Service, logger *zap.Logger) *TokenHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &TokenHandler{tokens: tokens, logger: logger}
}

type saveTokenRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SaveToken stores a credential obtained by the OAuth callback exchange.
func (h *TokenHandler) SaveToken(c *gin.Context) {
	identity, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	provider, ok := providerParam(c)
	if !ok {
		return
	}

	var req saveTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "access_token is required."})
		return
	}

	upsert := domain.TokenUpsert{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	switch {
	case req.ExpiresAt != "":
		upsert.ExpiresAt = expiry.ParseExpiresAt(req.ExpiresAt)
	case req.ExpiresIn > 0:
		expiresAt := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		upsert.ExpiresAt = &expiresAt
	}

	if err := h.tokens.SaveToken(c.Request.Context(), identity.UserID, provider, upsert); err != nil {
		h.logger.Error("save token failed", zap.Error(err), zap.String("provider", provider.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not store token."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "provider": provider.String()})
}

// GetToken serves a guaranteed-valid token for the caller, refreshing first
// when needed.
func (h *TokenHandler) GetToken(c *gin.Context) {
	identity, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	provider, ok := providerParam(c)
	if !ok {
		return
	}

	result, err := h.tokens.ValidToken(c.Request.Context(), identity.UserID, provider)
	h.writeTokenResult(c, result, err)
}

// GetTokenForUser is the elevated variant serving another user's credential.
func (h *TokenHandler) GetTokenForUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid user id."})
		return
	}
	provider, ok := providerParam(c)
	if !ok {
		return
	}

	result, svcErr := h.tokens.ValidTokenForUser(c.Request.Context(), userID, provider)
	h.writeTokenResult(c, result, svcErr)
}

// DeleteToken unlinks the caller's stored credential.
func (h *TokenHandler) DeleteToken(c *gin.Context) {
	identity, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	provider, ok := providerParam(c)
	if !ok {
		return
	}

	deleted, err := h.tokens.DeleteToken(c.Request.Context(), identity.UserID, provider)
	if err != nil {
		h.logger.Error("delete token failed", zap.Error(err), zap.String("provider", provider.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not delete token."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": deleted})
}

func (h *TokenHandler) writeTokenResult(c *gin.Context, result tokensvc.Result, err error) {
	if err == nil {
		response := gin.H{
			"provider":     result.Provider.String(),
			"access_token": result.Token.AccessToken,
			"refreshed":    result.Refreshed,
		}
		if result.Token.ExpiresAt != nil {
			response["expires_at"] = result.Token.ExpiresAt.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, response)
		return
	}

	body := gin.H{
		"error":             "token_unavailable",
		"error_description": err.Error(),
		"provider":          result.Provider.String(),
		"requires_reauth":   result.RequiresReauth,
		"token_deleted":     result.TokenDeleted,
	}
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		body["error"] = "token_not_found"
		c.JSON(http.StatusNotFound, body)
	case result.RequiresReauth:
		body["error"] = "reauthentication_required"
		c.JSON(http.StatusUnauthorized, body)
	default:
		c.JSON(http.StatusBadGateway, body)
	}
}

func providerParam(c *gin.Context) (domain.Provider, bool) {
	provider, ok := domain.ParseProvider(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Unsupported provider."})
		return "", false
	}
	return provider, true
}
