package domain

import "errors"

var (
	// ErrTokenNotFound signals no stored credential for the (user, provider) key.
	ErrTokenNotFound = errors.New("token: not found")
	// ErrNoRefreshToken signals an expired credential with nothing to refresh it.
	ErrNoRefreshToken = errors.New("token: expired and no refresh token available")
	// ErrInvalidTokenRecord signals a stored payload that failed shape validation.
	ErrInvalidTokenRecord = errors.New("token: invalid stored record")
	// ErrUnknownProvider signals an unsupported provider discriminator.
	ErrUnknownProvider = errors.New("token: unknown provider")
	// ErrCredentialsNotConfigured signals missing client credentials for a provider.
	ErrCredentialsNotConfigured = errors.New("token: provider credentials not configured")
)
