package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bingify/tokenvault/internal/domain"
	"github.com/bingify/tokenvault/internal/repository"
)

const credentialKeyPrefix = "tokenvault:credentials:"

// CredentialCache is a Redis read-through decorator over a CredentialRepo.
// Refreshes hit the credential lookup on every attempt; caching keeps that
// off the database. Cache failures fall through to the underlying repo.
type CredentialCache struct {
	client redis.UniversalClient
	next   repository.CredentialRepo
	ttl    time.Duration
	logger *zap.Logger
}

var _ repository.CredentialRepo = (*CredentialCache)(nil)

// NewCredentialCache constructs the decorator.
func NewCredentialCache(client redis.UniversalClient, next repository.CredentialRepo, ttl time.Duration, logger *zap.Logger) *CredentialCache {
	if logger == nil {
		logger = zap.L()
	}
	return &CredentialCache{client: client, next: next, ttl: ttl, logger: logger}
}

// Credentials returns the cached client pair or loads and caches it.
func (c *CredentialCache) Credentials(ctx context.Context, provider domain.Provider) (*domain.ProviderCredentials, error) {
	key := credentialKeyPrefix + provider.String()

	if bytes, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var creds domain.ProviderCredentials
		if err := json.Unmarshal(bytes, &creds); err == nil {
			return &creds, nil
		}
		c.logger.Warn("discarding undecodable cached credentials", zap.String("provider", provider.String()))
		_ = c.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		c.logger.Warn("credential cache read failed", zap.Error(err))
	}

	creds, err := c.next.Credentials(ctx, provider)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(creds); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("credential cache write failed", zap.Error(err))
		}
	}
	return creds, nil
}

// Invalidate drops the cached pair for a provider, for use after rotation.
func (c *CredentialCache) Invalidate(ctx context.Context, provider domain.Provider) error {
	if err := c.client.Del(ctx, credentialKeyPrefix+provider.String()).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("invalidate credentials: %w", err)
	}
	return nil
}
