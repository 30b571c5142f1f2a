// Package protect provides authenticated encryption for opaque payloads,
// used to keep self-contained token claims confidential on the wire.
package protect

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrInvalidCiphertext reports data that could not be authenticated or is
// structurally too short to contain a nonce.
var ErrInvalidCiphertext = errors.New("protect: invalid ciphertext")

// Protector is the data-protection contract consumed by token codecs.
// Implementations must provide authenticated encryption: Unprotect fails
// on any tampering.
type Protector interface {
	Protect(plaintext []byte) ([]byte, error)
	Unprotect(ciphertext []byte) ([]byte, error)
}

// AEAD protects payloads with XChaCha20-Poly1305. The output layout is
// [24-byte nonce][ciphertext+tag], with a fresh random nonce per call.
type AEAD struct {
	key []byte
}

// New returns an AEAD protector for the given 32-byte key.
func New(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("protect: key must be %d bytes, got %d", KeySize, len(key))
	}

	// Keep our own copy so callers can't mutate the key after the fact.
	k := make([]byte, KeySize)
	copy(k, key)
	return &AEAD{key: k}, nil
}

func (a *AEAD) Protect(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, fmt.Errorf("protect: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("protect: nonce generation failed: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (a *AEAD) Unprotect(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, fmt.Errorf("protect: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	return plaintext, nil
}

// NewKey generates a random key of the right size. Handy for ephemeral
// dev setups where no key file is configured.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("protect: key generation failed: %w", err)
	}
	return key, nil
}
