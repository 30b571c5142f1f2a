// Package jwtx wraps golang-jwt with the small signing surface the token
// codecs need: sign a claim set, verify a compact token's structure and
// signature, and run the individual claim checks in a fixed order.
//
// Verifiers here only establish that the token is well-formed and signed
// by the expected key. Claim validation (issuer, audience, expiry) is the
// caller's job via the Validate helpers, so the caller controls ordering
// and which checks are enforced.
package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrMissingClaim = errors.New("jwtx: required claim missing")
)

// Signer signs a claim set into a compact serialized token.
type Signer interface {
	Alg() string
	Sign(claims jwt.MapClaims) (string, error)
}

// Verifier checks structure and signature and returns the raw claims.
type Verifier interface {
	Alg() string
	Verify(token string) (jwt.MapClaims, error)
}

// verify runs the shared parse path for all algorithms. Only the given
// algorithm is accepted; anything else (including alg=none) fails.
func verify(token, alg string, key any) (jwt.MapClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		// Claim checks are performed by the caller, in its order.
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSig
		}
		return nil, ErrMalformed
	}
	if !parsed.Valid {
		return nil, ErrInvalidSig
	}

	return claims, nil
}
