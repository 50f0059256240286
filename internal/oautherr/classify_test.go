package oautherr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	adapteroauth "github.com/bingify/tokenvault/internal/adapter/oauth"
	"github.com/bingify/tokenvault/internal/domain"
)

type statusCodeError struct{ code int }

func (e *statusCodeError) Error() string   { return "upstream call failed" }
func (e *statusCodeError) StatusCode() int { return e.code }

func TestClassify_StatusTakesPrecedenceOverMessage(t *testing.T) {
	// Status 401 wins even when the message matches the 403 vocabulary.
	err := &adapteroauth.HTTPError{StatusCode: http.StatusUnauthorized, Body: "forbidden"}
	require.Equal(t, KindTokenInvalid, Classify(err))
}

func TestClassify_StatusShapes(t *testing.T) {
	require.Equal(t, KindTokenInvalid, Classify(&statusCodeError{code: http.StatusUnauthorized}))
	require.Equal(t, KindInsufficientPermissions, Classify(&statusCodeError{code: http.StatusForbidden}))

	wrapped := fmt.Errorf("call provider: %w", &adapteroauth.HTTPError{StatusCode: http.StatusForbidden, Body: "nope"})
	require.Equal(t, KindInsufficientPermissions, Classify(wrapped))
}

func TestClassify_MessageSubstrings(t *testing.T) {
	cases := []struct {
		message string
		want    Kind
	}{
		{"request returned 401", KindTokenInvalid},
		{"Unauthorized access", KindTokenInvalid},
		{"invalid credentials supplied", KindTokenInvalid},
		{"invalid_grant: bad token", KindTokenInvalid},
		{"Token has been expired or revoked.", KindTokenInvalid},
		{"got 403 from upstream", KindInsufficientPermissions},
		{"Forbidden", KindInsufficientPermissions},
		{"insufficient scope for request", KindInsufficientPermissions},
		{"refresh token is invalid", KindRefreshTokenInvalid},
		{"refresh token expired", KindRefreshTokenInvalid},
		{"network unreachable", KindNetworkError},
		{"fetch failed", KindNetworkError},
		{"dial tcp: ECONNREFUSED", KindNetworkError},
		{"something else entirely", KindUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(errors.New(tc.message)), "message %q", tc.message)
	}
}

func TestClassify_RefreshTokenAloneIsNotEnough(t *testing.T) {
	require.Equal(t, KindUnknown, Classify(errors.New("refresh token rotated")))
}

func TestClassify_NilError(t *testing.T) {
	require.Equal(t, KindUnknown, Classify(nil))
}

func TestClassifyProvider_GoogleVocabulary(t *testing.T) {
	require.Equal(t, KindTokenInvalid, ClassifyProvider(domain.ProviderGoogle, errors.New("token_expired")))
	require.Equal(t, KindTokenInvalid, ClassifyProvider(domain.ProviderGoogle, errors.New("invalid_grant")))
}

func TestClassifyProvider_TwitchVocabulary(t *testing.T) {
	require.Equal(t, KindTokenInvalid, ClassifyProvider(domain.ProviderTwitch, errors.New("Invalid token provided")))
}

func TestClassifyProvider_FallsBackToGeneric(t *testing.T) {
	require.Equal(t, KindInsufficientPermissions, ClassifyProvider(domain.ProviderTwitch, errors.New("forbidden")))
	require.Equal(t, KindUnknown, ClassifyProvider(domain.ProviderGoogle, errors.New("weird failure")))
}

func TestRequiresReauth(t *testing.T) {
	require.True(t, RequiresReauth(KindTokenInvalid))
	require.True(t, RequiresReauth(KindRefreshTokenInvalid))
	require.False(t, RequiresReauth(KindInsufficientPermissions))
	require.False(t, RequiresReauth(KindNetworkError))
	require.False(t, RequiresReauth(KindUnknown))
}
