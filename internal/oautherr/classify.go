// Package oautherr maps the heterogeneous failure shapes coming out of token
// stores and provider endpoints onto a closed taxonomy of OAuth error kinds.
package oautherr

import (
	"errors"
	"net"
	"net/http"
	"strings"

	adapteroauth "github.com/bingify/tokenvault/internal/adapter/oauth"
	"github.com/bingify/tokenvault/internal/domain"
)

// Kind is the classified failure category.
type Kind string

const (
	KindTokenInvalid            Kind = "TOKEN_INVALID"
	KindInsufficientPermissions Kind = "INSUFFICIENT_PERMISSIONS"
	KindRefreshTokenInvalid     Kind = "REFRESH_TOKEN_INVALID"
	KindNetworkError            Kind = "NETWORK_ERROR"
	KindUnknown                 Kind = "UNKNOWN"
)

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// RequiresReauth reports whether the user must relink the provider. Only a
// dead credential forces that; permission gaps and transient network failures
// do not.
func RequiresReauth(kind Kind) bool {
	return kind == KindTokenInvalid || kind == KindRefreshTokenInvalid
}

// Classify maps an error to its Kind. A numeric HTTP status, when one can be
// recovered from the error chain, takes precedence over message matching.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if status, ok := statusFromError(err); ok {
		switch status {
		case http.StatusUnauthorized:
			return KindTokenInvalid
		case http.StatusForbidden:
			return KindInsufficientPermissions
		}
	}

	message := strings.ToLower(err.Error())

	if containsAny(message, "401", "unauthorized", "invalid credentials", "invalid_grant", "token has been expired or revoked") {
		return KindTokenInvalid
	}
	if containsAny(message, "403", "forbidden", "insufficient") {
		return KindInsufficientPermissions
	}
	if strings.Contains(message, "refresh token") &&
		(strings.Contains(message, "invalid") || strings.Contains(message, "expired")) {
		return KindRefreshTokenInvalid
	}
	if isNetworkError(err, message) {
		return KindNetworkError
	}
	return KindUnknown
}

// ClassifyProvider recognizes provider-specific vocabulary before falling back
// to the generic classifier. Providers surface equivalent failures with
// different phrasing, and the provider rules are strictly more specific.
func ClassifyProvider(provider domain.Provider, err error) Kind {
	if err == nil {
		return KindUnknown
	}
	message := strings.ToLower(err.Error())

	switch provider {
	case domain.ProviderGoogle:
		if containsAny(message, "invalid_grant", "token_expired") {
			return KindTokenInvalid
		}
	case domain.ProviderTwitch:
		if strings.Contains(message, "invalid token") {
			return KindTokenInvalid
		}
	}
	return Classify(err)
}

// statusFromError digs a numeric HTTP status out of the error chain. Three
// shapes are recognized: the refresh clients' *HTTPError, anything exposing
// StatusCode() int, and anything exposing HTTPStatus() int.
func statusFromError(err error) (int, bool) {
	var httpErr *adapteroauth.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode(), true
	}
	var statused interface{ HTTPStatus() int }
	if errors.As(err, &statused) {
		return statused.HTTPStatus(), true
	}
	return 0, false
}

func isNetworkError(err error, message string) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(message, "network", "fetch failed", "econnrefused", "connection refused")
}

func containsAny(message string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(message, needle) {
			return true
		}
	}
	return false
}
