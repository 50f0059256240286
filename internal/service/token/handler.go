package token

import (
	"context"

	"go.uber.org/zap"

	"github.com/bingify/tokenvault/internal/domain"
	"github.com/bingify/tokenvault/internal/oautherr"
)

// HandledError is the error handler's verdict on a classified refresh failure.
type HandledError struct {
	Kind           oautherr.Kind
	TokenDeleted   bool
	RequiresReauth bool
	Message        string
	Provider       domain.Provider
}

// handleRefreshError classifies a refresh failure and evicts the stored
// credential when the classification says it is dead. It never returns an
// error itself: its job is classification and signaling, and amplifying a
// storage fault on top of a refresh fault helps nobody. Eviction failures are
// logged and swallowed; the credential is presumed untrustworthy either way,
// so the reauth verdict stands regardless of whether the delete landed.
func (s *Service) handleRefreshError(ctx context.Context, err error, provider domain.Provider, scope Scope, userID int64) HandledError {
	kind := oautherr.ClassifyProvider(provider, err)
	handled := HandledError{
		Kind:           kind,
		RequiresReauth: oautherr.RequiresReauth(kind),
		Message:        err.Error(),
		Provider:       provider,
	}

	fields := []zap.Field{
		zap.String("provider", provider.String()),
		zap.String("scope", string(scope)),
		zap.Int64("user_id", userID),
		zap.String("kind", kind.String()),
		zap.Error(err),
	}

	switch kind {
	case oautherr.KindTokenInvalid, oautherr.KindRefreshTokenInvalid:
		handled.TokenDeleted = s.evictToken(ctx, scope, userID, provider)
		s.logger.Warn("token refresh failed, credential evicted", fields...)
	case oautherr.KindInsufficientPermissions:
		// Token is structurally valid, it just lacks a scope. Keep it.
		s.logger.Warn("token refresh failed: insufficient permissions", fields...)
	case oautherr.KindNetworkError:
		s.logger.Warn("token refresh failed: network error, presumed transient", fields...)
	default:
		s.logger.Error("token refresh failed: unclassified error", fields...)
	}

	return handled
}

// evictToken removes a credential the provider no longer honors. The session
// and elevated scopes take separate paths so each can be audited on its own.
func (s *Service) evictToken(ctx context.Context, scope Scope, userID int64, provider domain.Provider) bool {
	switch scope {
	case ScopeOwner:
		return s.deleteQuietly(ctx, userID, provider, "elevated")
	default:
		return s.deleteQuietly(ctx, userID, provider, "session")
	}
}

func (s *Service) deleteQuietly(ctx context.Context, userID int64, provider domain.Provider, via string) bool {
	deleted, err := s.store.Delete(ctx, userID, provider)
	if err != nil {
		s.logger.Warn("failed to evict invalid token",
			zap.String("via", via),
			zap.Int64("user_id", userID),
			zap.String("provider", provider.String()),
			zap.Error(err))
		return false
	}
	return deleted
}
