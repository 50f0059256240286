// Package expiry decides when a stored access token should be refreshed.
package expiry

import "time"

// Buffer is subtracted from the real expiry so a token is refreshed before it
// lapses mid-request. A token handed out with less than this margin left could
// be valid at dispatch and rejected by the provider on arrival.
const Buffer = 5 * time.Minute

// IsExpired reports whether the token should be considered expired. A nil
// expiry is fail-open: the token is treated as non-expiring rather than stale.
func IsExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return time.Until(*expiresAt) <= Buffer
}

// ParseExpiresAt maps a stored RFC3339 timestamp to a concrete expiry.
// Unparsable input yields nil, which IsExpired treats as non-expiring.
func ParseExpiresAt(value string) *time.Time {
	if value == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &ts
}
