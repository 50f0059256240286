// Package oauth encapsulates outbound HTTP calls to external IdP token
// endpoints. One client per provider; request shape and response parsing
// differ enough between IdPs that each gets its own implementation.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bingify/tokenvault/internal/domain"
)

const (
	// GoogleTokenURL is Google's OAuth2 token endpoint.
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	// TwitchTokenURL is Twitch's OAuth2 token endpoint.
	TwitchTokenURL = "https://id.twitch.tv/oauth2/token"
)

// TokenResponse models a provider's refresh grant response. RefreshToken is
// empty when the provider did not rotate it.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	Scope        string
	Raw          map[string]any
}

// HTTPError carries a non-2xx token endpoint response, raw body included, so
// downstream classification can inspect both status and provider vocabulary.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("token refresh failed: status=%d body=%s", e.StatusCode, e.Body)
}

// RefreshClient exchanges a refresh token for a new access token. A single
// attempt only; retries, if any, belong to the caller.
type RefreshClient interface {
	Refresh(ctx context.Context, creds domain.ProviderCredentials, refreshToken string) (*TokenResponse, error)
}

// Registry selects the client for a provider.
type Registry map[domain.Provider]RefreshClient

// NewRegistry wires the default per-provider clients. A nil httpClient gets a
// 10s-timeout default shared by all clients.
func NewRegistry(httpClient *http.Client) Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return Registry{
		domain.ProviderGoogle: &GoogleClient{httpClient: httpClient, endpoint: GoogleTokenURL},
		domain.ProviderTwitch: &TwitchClient{httpClient: httpClient, endpoint: TwitchTokenURL},
	}
}

// For returns the client registered for the provider.
func (r Registry) For(provider domain.Provider) (RefreshClient, error) {
	client, ok := r[provider]
	if !ok {
		return nil, fmt.Errorf("refresh client for %s: %w", provider, domain.ErrUnknownProvider)
	}
	return client, nil
}

// GoogleClient refreshes Google-issued tokens. Google typically does not
// rotate the refresh token on refresh.
type GoogleClient struct {
	httpClient *http.Client
	endpoint   string
}

var _ RefreshClient = (*GoogleClient)(nil)

func (c *GoogleClient) Refresh(ctx context.Context, creds domain.ProviderCredentials, refreshToken string) (*TokenResponse, error) {
	raw, err := postRefreshGrant(ctx, c.httpClient, c.endpoint, creds, refreshToken)
	if err != nil {
		return nil, err
	}
	return tokenResponseFromRaw(raw), nil
}

// TwitchClient refreshes Twitch-issued tokens. Twitch rotates the refresh
// token in its response; callers must persist the replacement.
type TwitchClient struct {
	httpClient *http.Client
	endpoint   string
}

var _ RefreshClient = (*TwitchClient)(nil)

func (c *TwitchClient) Refresh(ctx context.Context, creds domain.ProviderCredentials, refreshToken string) (*TokenResponse, error) {
	raw, err := postRefreshGrant(ctx, c.httpClient, c.endpoint, creds, refreshToken)
	if err != nil {
		return nil, err
	}
	return tokenResponseFromRaw(raw), nil
}

func postRefreshGrant(ctx context.Context, client *http.Client, endpoint string, creds domain.ProviderCredentials, refreshToken string) (map[string]any, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("refresh token missing")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("refresh %s: %w", creds.Provider, domain.ErrCredentialsNotConfigured)
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", creds.ClientID)
	data.Set("client_secret", creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	return raw, nil
}

func tokenResponseFromRaw(raw map[string]any) *TokenResponse {
	token := &TokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        scopeValue(raw["scope"]),
		Raw:          raw,
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	return token
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// scopeValue accepts both string ("a b") and array (["a","b"]) scope shapes;
// Twitch uses the array form.
func scopeValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := stringValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
