package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ValidateIssuer checks the iss claim against the expected value.
// An empty expected issuer means nothing is enforced.
func ValidateIssuer(claims jwt.MapClaims, expected string) error {
	if expected == "" {
		return nil
	}

	iss, err := claims.GetIssuer()
	if err != nil || iss != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks that at least one of the allowed audiences is
// present in the aud claim. An empty allowed set means nothing is enforced.
func ValidateAudience(claims jwt.MapClaims, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return ErrAudience
	}

	for _, want := range allowed {
		if slices.Contains(aud, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry enforces exp and nbf. Both claims are required: a token
// without an expiry is rejected outright rather than treated as eternal.
func ValidateExpiry(claims jwt.MapClaims, now time.Time) error {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ErrMissingClaim
	}
	if now.After(exp.Time) {
		return ErrExpired
	}

	nbf, err := claims.GetNotBefore()
	if err != nil || nbf == nil {
		return ErrMissingClaim
	}
	if now.Before(nbf.Time) {
		return ErrNotYetValid
	}

	return nil
}
