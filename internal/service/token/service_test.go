package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	adapteroauth "github.com/bingify/tokenvault/internal/adapter/oauth"
	"github.com/bingify/tokenvault/internal/domain"
	"github.com/bingify/tokenvault/internal/oautherr"
)

const testUserID int64 = 123

func TestValidToken_FreshTokenReturnedAsIs(t *testing.T) {
	h := newTokenTestHarness(t)
	expires := time.Now().Add(time.Hour)
	h.seed(domain.ProviderGoogle, "access-old", "rt1", &expires)

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.NoError(t, err)
	require.False(t, result.Refreshed)
	require.Equal(t, "access-old", result.Token.AccessToken)
	require.Zero(t, h.google.calls.Load())
}

func TestValidToken_NilExpiryNeverRefreshes(t *testing.T) {
	h := newTokenTestHarness(t)
	h.seed(domain.ProviderGoogle, "access-old", "rt1", nil)

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.NoError(t, err)
	require.False(t, result.Refreshed)
	require.Zero(t, h.google.calls.Load())
}

func TestValidToken_RefreshCarriesForwardRefreshToken(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-10 * time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)
	h.google.response = &adapteroauth.TokenResponse{AccessToken: "new", ExpiresIn: 3600}

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.NoError(t, err)
	require.True(t, result.Refreshed)
	require.Equal(t, domain.ProviderGoogle, result.Provider)
	require.Equal(t, "new", result.Token.AccessToken)
	// Google omitted refresh_token; the stored one stays alive.
	require.Equal(t, "rt1", result.Token.RefreshToken)
	require.NotNil(t, result.Token.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(time.Hour), *result.Token.ExpiresAt, 5*time.Second)
	require.Equal(t, "rt1", h.google.lastRefreshToken)
	require.Equal(t, int64(1), h.google.calls.Load())
}

func TestValidToken_TwitchRotatesRefreshToken(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderTwitch, "old", "rt1", &expired)
	h.twitch.response = &adapteroauth.TokenResponse{AccessToken: "new", RefreshToken: "rt2", ExpiresIn: 14400}

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderTwitch)
	require.NoError(t, err)
	require.Equal(t, "rt2", result.Token.RefreshToken)

	stored, err := h.store.Get(context.Background(), testUserID, domain.ProviderTwitch)
	require.NoError(t, err)
	require.Equal(t, "rt2", stored.RefreshToken)
}

func TestValidToken_ExpiredWithoutRefreshTokenIsTerminal(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "", &expired)

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.ErrorIs(t, err, domain.ErrNoRefreshToken)
	require.True(t, result.RequiresReauth)
	require.Zero(t, h.google.calls.Load())
}

func TestValidToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)
	h.google.response = &adapteroauth.TokenResponse{AccessToken: "new", ExpiresIn: 3600}

	release := make(chan struct{})
	h.google.block = release

	const callers = 8
	var (
		start   sync.WaitGroup
		done    sync.WaitGroup
		mu      sync.Mutex
		tokens  []string
		errlist []error
	)
	start.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			start.Done()
			result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
			mu.Lock()
			defer mu.Unlock()
			errlist = append(errlist, err)
			if result.Token != nil {
				tokens = append(tokens, result.Token.AccessToken)
			}
		}()
	}

	start.Wait()
	// Give every caller time to join the in-flight refresh before it finishes.
	time.Sleep(100 * time.Millisecond)
	close(release)
	done.Wait()

	require.Equal(t, int64(1), h.google.calls.Load())
	require.Len(t, tokens, callers)
	for i, err := range errlist {
		require.NoError(t, err, "caller %d", i)
	}
	for _, token := range tokens {
		require.Equal(t, "new", token)
	}
}

func TestValidToken_DifferentScopesLockIndependently(t *testing.T) {
	require.NotEqual(t,
		lockKey(ScopeUser, testUserID, domain.ProviderGoogle),
		lockKey(ScopeOwner, testUserID, domain.ProviderGoogle))
	require.NotEqual(t,
		lockKey(ScopeUser, testUserID, domain.ProviderGoogle),
		lockKey(ScopeUser, testUserID, domain.ProviderTwitch))
}

func TestValidToken_InvalidGrantEvictsToken(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)
	h.google.err = errors.New("invalid_grant: Token has been expired or revoked")

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_grant")
	require.False(t, result.Refreshed)
	require.True(t, result.TokenDeleted)
	require.True(t, result.RequiresReauth)

	_, err = h.store.Get(context.Background(), testUserID, domain.ProviderGoogle)
	require.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestHandleRefreshError_EvictionIsIdempotent(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)

	refreshErr := errors.New("invalid_grant")
	first := h.service.handleRefreshError(context.Background(), refreshErr, domain.ProviderGoogle, ScopeUser, testUserID)
	require.True(t, first.TokenDeleted)
	require.True(t, first.RequiresReauth)

	// Second handling of the same dead credential: nothing left to delete,
	// verdict unchanged, no error escapes.
	second := h.service.handleRefreshError(context.Background(), refreshErr, domain.ProviderGoogle, ScopeUser, testUserID)
	require.False(t, second.TokenDeleted)
	require.True(t, second.RequiresReauth)
	require.Equal(t, oautherr.KindTokenInvalid, second.Kind)
}

func TestValidToken_NetworkErrorKeepsToken(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)
	h.google.err = errors.New("network unreachable")

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.Error(t, err)
	require.False(t, result.TokenDeleted)
	require.False(t, result.RequiresReauth)

	_, err = h.store.Get(context.Background(), testUserID, domain.ProviderGoogle)
	require.NoError(t, err)
}

func TestValidToken_InsufficientPermissionsKeepsToken(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderTwitch, "old", "rt1", &expired)
	h.twitch.err = &adapteroauth.HTTPError{StatusCode: http.StatusForbidden, Body: "missing scope"}

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderTwitch)
	require.Error(t, err)
	require.False(t, result.TokenDeleted)
	require.False(t, result.RequiresReauth)
}

func TestValidToken_DeletionFailureDoesNotChangeVerdict(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)
	h.google.err = errors.New("invalid_grant")
	h.store.deleteErr = errors.New("storage down")

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_grant")
	require.False(t, result.TokenDeleted)
	// The credential is presumed untrustworthy even though eviction failed.
	require.True(t, result.RequiresReauth)
}

func TestValidToken_PersistFailureIsRefreshFailure(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)
	h.google.response = &adapteroauth.TokenResponse{AccessToken: "new", ExpiresIn: 3600}
	h.store.upsertErr = errors.New("write failed")

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.Error(t, err)
	require.Contains(t, err.Error(), "persist refreshed token")
	require.False(t, result.Refreshed)
	require.False(t, result.TokenDeleted)
}

func TestValidToken_MissingTokenPassesThrough(t *testing.T) {
	h := newTokenTestHarness(t)

	_, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.ErrorIs(t, err, domain.ErrTokenNotFound)
	require.Zero(t, h.google.calls.Load())
}

func TestValidToken_MissingCredentialsIsHardFailure(t *testing.T) {
	h := newTokenTestHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.ProviderGoogle, "old", "rt1", &expired)
	h.creds.err = domain.ErrCredentialsNotConfigured

	result, err := h.service.ValidToken(context.Background(), testUserID, domain.ProviderGoogle)
	require.ErrorIs(t, err, domain.ErrCredentialsNotConfigured)
	require.False(t, result.TokenDeleted)
	require.Zero(t, h.google.calls.Load())

	_, err = h.store.Get(context.Background(), testUserID, domain.ProviderGoogle)
	require.NoError(t, err)
}

func TestValidTokenForUser_RefreshesElevatedScope(t *testing.T) {
	h := newTokenTestHarness(t)
	ownerID := int64(777)
	expired := time.Now().Add(-time.Minute)
	h.seedFor(ownerID, domain.ProviderTwitch, "old", "rt1", &expired)
	h.twitch.response = &adapteroauth.TokenResponse{AccessToken: "owner-new", RefreshToken: "rt2", ExpiresIn: 3600}

	result, err := h.service.ValidTokenForUser(context.Background(), ownerID, domain.ProviderTwitch)
	require.NoError(t, err)
	require.True(t, result.Refreshed)
	require.Equal(t, "owner-new", result.Token.AccessToken)
	require.Equal(t, ownerID, result.Token.UserID)
}

// ---- Test harness and fakes ----

type tokenTestHarness struct {
	service *Service
	store   *memoryTokenStore
	creds   *fakeCredentialRepo
	google  *fakeRefreshClient
	twitch  *fakeRefreshClient
}

func newTokenTestHarness(t *testing.T) *tokenTestHarness {
	t.Helper()
	store := newMemoryTokenStore()
	creds := &fakeCredentialRepo{}
	google := &fakeRefreshClient{}
	twitch := &fakeRefreshClient{}
	registry := adapteroauth.Registry{
		domain.ProviderGoogle: google,
		domain.ProviderTwitch: twitch,
	}
	return &tokenTestHarness{
		service: NewService(store, creds, registry, zap.NewNop()),
		store:   store,
		creds:   creds,
		google:  google,
		twitch:  twitch,
	}
}

func (h *tokenTestHarness) seed(provider domain.Provider, access, refresh string, expiresAt *time.Time) {
	h.seedFor(testUserID, provider, access, refresh, expiresAt)
}

func (h *tokenTestHarness) seedFor(userID int64, provider domain.Provider, access, refresh string, expiresAt *time.Time) {
	_ = h.store.Upsert(context.Background(), userID, provider, domain.TokenUpsert{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	})
}

type memoryTokenStore struct {
	mu        sync.Mutex
	tokens    map[string]domain.OAuthToken
	getErr    error
	upsertErr error
	deleteErr error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: map[string]domain.OAuthToken{}}
}

func storeKey(userID int64, provider domain.Provider) string {
	return fmt.Sprintf("%d-%s", userID, provider)
}

func (m *memoryTokenStore) Upsert(_ context.Context, userID int64, provider domain.Provider, in domain.TokenUpsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	now := time.Now()
	token, exists := m.tokens[storeKey(userID, provider)]
	if !exists {
		token = domain.OAuthToken{ID: int64(len(m.tokens) + 1), UserID: userID, Provider: provider, CreatedAt: now}
	}
	token.AccessToken = in.AccessToken
	token.RefreshToken = in.RefreshToken
	token.ExpiresAt = in.ExpiresAt
	token.UpdatedAt = now
	m.tokens[storeKey(userID, provider)] = token
	return nil
}

func (m *memoryTokenStore) Get(_ context.Context, userID int64, provider domain.Provider) (*domain.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	token, ok := m.tokens[storeKey(userID, provider)]
	if !ok {
		return nil, fmt.Errorf("token for %s: %w", provider, domain.ErrTokenNotFound)
	}
	copyToken := token
	return &copyToken, nil
}

func (m *memoryTokenStore) Delete(_ context.Context, userID int64, provider domain.Provider) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	key := storeKey(userID, provider)
	_, ok := m.tokens[key]
	delete(m.tokens, key)
	return ok, nil
}

type fakeCredentialRepo struct {
	err error
}

func (f *fakeCredentialRepo) Credentials(_ context.Context, provider domain.Provider) (*domain.ProviderCredentials, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ProviderCredentials{Provider: provider, ClientID: "client", ClientSecret: "secret"}, nil
}

type fakeRefreshClient struct {
	calls            atomic.Int64
	lastRefreshToken string
	response         *adapteroauth.TokenResponse
	err              error
	block            chan struct{}
}

func (f *fakeRefreshClient) Refresh(_ context.Context, _ domain.ProviderCredentials, refreshToken string) (*adapteroauth.TokenResponse, error) {
	f.calls.Add(1)
	f.lastRefreshToken = refreshToken
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.response == nil {
		return nil, fmt.Errorf("refresh response not configured")
	}
	return f.response, nil
}
