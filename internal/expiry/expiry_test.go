package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsExpired_NilIsNonExpiring(t *testing.T) {
	require.False(t, IsExpired(nil))
}

func TestIsExpired_PastTimestamp(t *testing.T) {
	past := time.Now().Add(-10 * time.Minute)
	require.True(t, IsExpired(&past))
}

func TestIsExpired_WithinBuffer(t *testing.T) {
	soon := time.Now().Add(4 * time.Minute)
	require.True(t, IsExpired(&soon))
}

func TestIsExpired_BeyondBuffer(t *testing.T) {
	later := time.Now().Add(Buffer + time.Minute)
	require.False(t, IsExpired(&later))
}

func TestParseExpiresAt(t *testing.T) {
	ts := ParseExpiresAt("2026-01-02T15:04:05Z")
	require.NotNil(t, ts)
	require.Equal(t, 2026, ts.Year())

	require.Nil(t, ParseExpiresAt(""))
	require.Nil(t, ParseExpiresAt("not-a-timestamp"))
	require.Nil(t, ParseExpiresAt("1700000000"))
}
