package repository

import (
	"context"

	"github.com/bingify/tokenvault/internal/domain"
)

// TokenStore is the encrypted persistence boundary for stored credentials.
// Rows are keyed by (user_id, provider) and opaque at rest; no component
// other than the store caches token state across calls.
type TokenStore interface {
	Upsert(ctx context.Context, userID int64, provider domain.Provider, in domain.TokenUpsert) error
	// Get returns domain.ErrTokenNotFound when no row exists for the key.
	Get(ctx context.Context, userID int64, provider domain.Provider) (*domain.OAuthToken, error)
	// Delete reports whether a row was removed; deleting an absent row is not
	// an error, so eviction stays idempotent.
	Delete(ctx context.Context, userID int64, provider domain.Provider) (bool, error)
}

// CredentialRepo resolves client credentials used for provider refresh calls.
type CredentialRepo interface {
	// Credentials returns domain.ErrCredentialsNotConfigured when neither the
	// database nor environment configuration carries the provider's client pair.
	Credentials(ctx context.Context, provider domain.Provider) (*domain.ProviderCredentials, error)
}
