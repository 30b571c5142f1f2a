package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// HS256 signs and verifies with a shared secret, so one type does both.
type HS256 struct {
	secret []byte
}

// NewHS256 creates a combined HMAC-SHA256 signer/verifier.
func NewHS256(secret []byte) (*HS256, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtx: empty hs256 secret")
	}
	return &HS256{secret: secret}, nil
}

func (h *HS256) Alg() string { return jwt.SigningMethodHS256.Alg() }

func (h *HS256) Sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *HS256) Verify(token string) (jwt.MapClaims, error) {
	return verify(token, h.Alg(), h.secret)
}
