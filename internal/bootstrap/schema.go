// Package bootstrap establishes startup invariants for the service.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const tokensTable = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	id         BIGINT PRIMARY KEY,
	user_id    BIGINT NOT NULL,
	provider   TEXT NOT NULL,
	ciphertext TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, provider)
)`

const credentialsTable = `
CREATE TABLE IF NOT EXISTS oauth_provider_credentials (
	provider                 TEXT PRIMARY KEY,
	client_id                TEXT NOT NULL,
	client_secret_ciphertext TEXT NOT NULL,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the storage tables when they are absent, so the service
// can be pointed at an empty database and come up working.
func EnsureSchema(pool *pgxpool.Pool, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, stmt := range []string{tokensTable, credentialsTable} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	if logger != nil {
		logger.Info("storage schema ensured")
	}
	return nil
}
