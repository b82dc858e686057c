package sessionkit

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimbusmail/sessionkit/identity"
)

// TokenValidator answers whether a bearer token is still accepted by the
// identity service. It is stateless: no caching, no retries. Any transport
// failure maps to invalid — recovery paths fail closed.
type TokenValidator struct {
	svc identity.Service
}

// NewTokenValidator returns a validator backed by svc.
func NewTokenValidator(svc identity.Service) *TokenValidator {
	return &TokenValidator{svc: svc}
}

// Verify reports whether token is live. Tokens that parse as JWTs with an
// already-passed exp claim are rejected locally without a network round-trip;
// everything else is settled by the remote check.
func (v *TokenValidator) Verify(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	if expiredLocally(token, time.Now()) {
		return false
	}
	valid, err := v.svc.VerifyToken(ctx, token)
	if err != nil {
		return false
	}
	return valid
}

// expiredLocally pre-screens a JWT's exp claim without signature
// verification. Opaque tokens and claims we cannot read defer to the remote
// check.
func expiredLocally(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
