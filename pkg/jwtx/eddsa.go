package jwtx

import (
	"crypto/ed25519"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type edDSASigner struct {
	key ed25519.PrivateKey
}

// NewSignerEdDSA creates an Ed25519 signer.
func NewSignerEdDSA(key ed25519.PrivateKey) (Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("jwtx: bad ed25519 private key size %d", len(key))
	}
	return &edDSASigner{key: key}, nil
}

func (s *edDSASigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

func (s *edDSASigner) Sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
}

type edDSAVerifier struct {
	key ed25519.PublicKey
}

// NewVerifierEdDSA creates an Ed25519 verifier.
func NewVerifierEdDSA(key ed25519.PublicKey) (Verifier, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("jwtx: bad ed25519 public key size %d", len(key))
	}
	return &edDSAVerifier{key: key}, nil
}

func (v *edDSAVerifier) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

func (v *edDSAVerifier) Verify(token string) (jwt.MapClaims, error) {
	return verify(token, v.Alg(), v.key)
}
