package domain

import (
	"strings"
	"time"
)

// Provider identifies an external OAuth identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderTwitch Provider = "twitch"
)

// ParseProvider normalizes a provider discriminator coming from the wire.
func ParseProvider(name string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(name))) {
	case ProviderGoogle:
		return ProviderGoogle, true
	case ProviderTwitch:
		return ProviderTwitch, true
	default:
		return "", false
	}
}

// String implements fmt.Stringer.
func (p Provider) String() string { return string(p) }

// OAuthToken is the stored credential pair for one (user, provider) key.
// At most one row exists per key. RefreshToken is empty for tokens that
// cannot be refreshed; a nil ExpiresAt means non-expiring or unknown expiry.
type OAuthToken struct {
	ID           int64
	UserID       int64
	Provider     Provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenUpsert carries the fields written on create or refresh. The store
// replaces the whole credential payload; refresh-token carry-forward is the
// caller's responsibility.
type TokenUpsert struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// ProviderCredentials are the client credentials used for token refresh.
type ProviderCredentials struct {
	Provider     Provider
	ClientID     string
	ClientSecret string
}
