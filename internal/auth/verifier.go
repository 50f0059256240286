// Package auth verifies the platform-issued bearer JWTs that identify callers
// to this service.
package auth

import (
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID int64
	Admin  bool
}

// serviceClaims carries the custom claim set alongside the standard claims.
type serviceClaims struct {
	Admin bool `json:"admin,omitempty"`
}

// Verifier validates HS256-signed service tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a verifier for the shared signing secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses and validates the token and returns the caller identity.
func (v *Verifier) Verify(token string) (*Identity, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	var (
		std    gojwt.Claims
		custom serviceClaims
	)
	if err := parsed.Claims(v.secret, &std, &custom); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if err := std.Validate(gojwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("validate claims: %w", err)
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("invalid subject claim")
	}

	return &Identity{UserID: userID, Admin: custom.Admin}, nil
}
