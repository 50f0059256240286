package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bingify/tokenvault/internal/crypto"
	"github.com/bingify/tokenvault/internal/domain"
)

// Compile-time interface assertions.
var (
	_ TokenStore     = (*PostgresTokenStore)(nil)
	_ CredentialRepo = (*PostgresCredentialRepo)(nil)
)

// PostgresTokenStore implements TokenStore on pgx with payload encryption.
type PostgresTokenStore struct {
	pool *pgxpool.Pool
	enc  *crypto.Encryptor
	node *snowflake.Node
}

func NewPostgresTokenStore(pool *pgxpool.Pool, enc *crypto.Encryptor, node *snowflake.Node) *PostgresTokenStore {
	return &PostgresTokenStore{pool: pool, enc: enc, node: node}
}

func (s *PostgresTokenStore) Upsert(ctx context.Context, userID int64, provider domain.Provider, in domain.TokenUpsert) error {
	if in.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", domain.ErrInvalidTokenRecord)
	}
	ciphertext, err := sealTokenRecord(s.enc, in)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (id, user_id, provider, ciphertext, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (user_id, provider)
		DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = now()`,
		s.node.Generate().Int64(), userID, provider.String(), ciphertext)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) Get(ctx context.Context, userID int64, provider domain.Provider) (*domain.OAuthToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, ciphertext, created_at, updated_at
		FROM oauth_tokens
		WHERE user_id = $1 AND provider = $2`,
		userID, provider.String())

	var (
		token      domain.OAuthToken
		ciphertext string
	)
	if err := row.Scan(&token.ID, &ciphertext, &token.CreatedAt, &token.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("token for %s: %w", provider, domain.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	record, expiresAt, err := openTokenRecord(s.enc, ciphertext)
	if err != nil {
		return nil, err
	}
	token.UserID = userID
	token.Provider = provider
	token.AccessToken = record.AccessToken
	token.RefreshToken = record.RefreshToken
	token.ExpiresAt = expiresAt
	return &token, nil
}

func (s *PostgresTokenStore) Delete(ctx context.Context, userID int64, provider domain.Provider) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM oauth_tokens
		WHERE user_id = $1 AND provider = $2`,
		userID, provider.String())
	if err != nil {
		return false, fmt.Errorf("delete token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PostgresCredentialRepo resolves provider client credentials from the
// oauth_provider_credentials table, falling back to environment configuration.
type PostgresCredentialRepo struct {
	pool     *pgxpool.Pool
	enc      *crypto.Encryptor
	fallback map[domain.Provider]domain.ProviderCredentials
}

// NewPostgresCredentialRepo wires the repo. envFallback entries with an empty
// ClientID are ignored.
func NewPostgresCredentialRepo(pool *pgxpool.Pool, enc *crypto.Encryptor, envFallback map[domain.Provider]domain.ProviderCredentials) *PostgresCredentialRepo {
	fallback := make(map[domain.Provider]domain.ProviderCredentials, len(envFallback))
	for provider, creds := range envFallback {
		if creds.ClientID != "" && creds.ClientSecret != "" {
			fallback[provider] = creds
		}
	}
	return &PostgresCredentialRepo{pool: pool, enc: enc, fallback: fallback}
}

func (r *PostgresCredentialRepo) Credentials(ctx context.Context, provider domain.Provider) (*domain.ProviderCredentials, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT client_id, client_secret_ciphertext
		FROM oauth_provider_credentials
		WHERE provider = $1`,
		provider.String())

	var clientID, secretCiphertext string
	err := row.Scan(&clientID, &secretCiphertext)
	switch {
	case err == nil:
		secret, openErr := r.enc.Open(secretCiphertext)
		if openErr != nil {
			return nil, fmt.Errorf("open client secret: %w", openErr)
		}
		return &domain.ProviderCredentials{
			Provider:     provider,
			ClientID:     clientID,
			ClientSecret: string(secret),
		}, nil
	case errors.Is(err, pgx.ErrNoRows):
		return r.fallbackCredentials(provider)
	default:
		return nil, fmt.Errorf("get credentials: %w", err)
	}
}

// fallbackCredentials serves the env-sourced client pair when the database has
// no row for the provider.
func (r *PostgresCredentialRepo) fallbackCredentials(provider domain.Provider) (*domain.ProviderCredentials, error) {
	if creds, ok := r.fallback[provider]; ok {
		copyCreds := creds
		return &copyCreds, nil
	}
	return nil, fmt.Errorf("credentials for %s: %w", provider, domain.ErrCredentialsNotConfigured)
}
