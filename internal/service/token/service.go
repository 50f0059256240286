// Package token owns the stored-credential lifecycle: serving valid access
// tokens on demand, refreshing expired ones through the provider, and
// evicting credentials the provider has declared dead.
package token

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	adapteroauth "github.com/bingify/tokenvault/internal/adapter/oauth"
	"github.com/bingify/tokenvault/internal/domain"
	"github.com/bingify/tokenvault/internal/expiry"
	"github.com/bingify/tokenvault/internal/oautherr"
	"github.com/bingify/tokenvault/internal/repository"
)

// Scope distinguishes the two entry points sharing one lock namespace: the
// authenticated caller acting on their own credential, and an elevated caller
// resolving some other user's credential (a space owner's, typically).
type Scope string

const (
	ScopeUser  Scope = "user"
	ScopeOwner Scope = "owner"
)

// Result is the orchestrator's answer. On failure Token is nil and the
// eviction/reauth verdicts describe what the error handler decided.
type Result struct {
	Token          *domain.OAuthToken
	Provider       domain.Provider
	Refreshed      bool
	TokenDeleted   bool
	RequiresReauth bool
}

// Service coordinates the token store, expiry policy, provider refresh
// clients, and error handling behind two get-valid-token entry points.
type Service struct {
	store    repository.TokenStore
	creds    repository.CredentialRepo
	registry adapteroauth.Registry
	group    *singleflight.Group
	logger   *zap.Logger
}

// NewService wires the orchestrator. The singleflight group is owned by the
// instance so tests never share lock state.
func NewService(store repository.TokenStore, creds repository.CredentialRepo, registry adapteroauth.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.L()
	}
	return &Service{
		store:    store,
		creds:    creds,
		registry: registry,
		group:    new(singleflight.Group),
		logger:   logger,
	}
}

// ValidToken returns a guaranteed-fresh token for the caller's own credential,
// refreshing it first when the expiry policy demands.
func (s *Service) ValidToken(ctx context.Context, userID int64, provider domain.Provider) (Result, error) {
	return s.validToken(ctx, ScopeUser, userID, provider)
}

// ValidTokenForUser is the elevated variant: it serves another user's
// credential, as when a participant's request needs the space owner's token.
func (s *Service) ValidTokenForUser(ctx context.Context, userID int64, provider domain.Provider) (Result, error) {
	return s.validToken(ctx, ScopeOwner, userID, provider)
}

// SaveToken persists a credential obtained by an external callback exchange.
func (s *Service) SaveToken(ctx context.Context, userID int64, provider domain.Provider, in domain.TokenUpsert) error {
	return s.store.Upsert(ctx, userID, provider, in)
}

// DeleteToken unlinks a stored credential. Deleting an absent row succeeds.
func (s *Service) DeleteToken(ctx context.Context, userID int64, provider domain.Provider) (bool, error) {
	return s.store.Delete(ctx, userID, provider)
}

func lockKey(scope Scope, userID int64, provider domain.Provider) string {
	return fmt.Sprintf("%s-%d-%s", scope, userID, provider)
}

// validToken funnels all callers for one (scope, user, provider) key through
// a single in-flight refresh. Providers may invalidate a refresh token after
// first use, so a second concurrent refresh on the same key would fail
// spuriously; waiters share the first caller's outcome instead. The key is
// released when the call completes, success or failure.
func (s *Service) validToken(ctx context.Context, scope Scope, userID int64, provider domain.Provider) (Result, error) {
	v, err, shared := s.group.Do(lockKey(scope, userID, provider), func() (any, error) {
		return s.refreshIfNeeded(ctx, scope, userID, provider)
	})
	if shared {
		s.logger.Debug("joined in-flight refresh",
			zap.String("scope", string(scope)),
			zap.Int64("user_id", userID),
			zap.String("provider", provider.String()))
	}
	result, ok := v.(Result)
	if !ok {
		result = Result{Provider: provider}
	}
	return result, err
}

func (s *Service) refreshIfNeeded(ctx context.Context, scope Scope, userID int64, provider domain.Provider) (Result, error) {
	stored, err := s.store.Get(ctx, userID, provider)
	if err != nil {
		return Result{Provider: provider}, err
	}

	if !expiry.IsExpired(stored.ExpiresAt) {
		return Result{Token: stored, Provider: provider}, nil
	}

	if stored.RefreshToken == "" {
		// Terminal: nothing to refresh with. The caller must relink.
		s.logger.Info("expired token has no refresh token",
			zap.Int64("user_id", userID),
			zap.String("provider", provider.String()))
		return Result{Provider: provider, RequiresReauth: true}, domain.ErrNoRefreshToken
	}

	refreshed, err := s.refresh(ctx, stored)
	if err != nil {
		handled := s.handleRefreshError(ctx, err, provider, scope, userID)
		return Result{
			Provider:       provider,
			TokenDeleted:   handled.TokenDeleted,
			RequiresReauth: handled.RequiresReauth,
		}, err
	}

	return Result{Token: refreshed, Provider: provider, Refreshed: true}, nil
}

// refresh performs the provider call and persists the outcome. A refresh that
// succeeds upstream but fails to persist is reported as a refresh failure;
// there is deliberately no persistence retry.
func (s *Service) refresh(ctx context.Context, stored *domain.OAuthToken) (*domain.OAuthToken, error) {
	client, err := s.registry.For(stored.Provider)
	if err != nil {
		return nil, err
	}
	creds, err := s.creds.Credentials(ctx, stored.Provider)
	if err != nil {
		return nil, err
	}

	resp, err := client.Refresh(ctx, *creds, stored.RefreshToken)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}

	upsert := domain.TokenUpsert{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if upsert.RefreshToken == "" {
		// Provider did not rotate; keep the stored refresh token alive.
		upsert.RefreshToken = stored.RefreshToken
	}
	if resp.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		upsert.ExpiresAt = &expiresAt
	}

	if err := s.store.Upsert(ctx, stored.UserID, stored.Provider, upsert); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	persisted, err := s.store.Get(ctx, stored.UserID, stored.Provider)
	if err != nil {
		return nil, fmt.Errorf("reload refreshed token: %w", err)
	}

	s.logger.Info("token refreshed",
		zap.Int64("user_id", stored.UserID),
		zap.String("provider", stored.Provider.String()))
	return persisted, nil
}
