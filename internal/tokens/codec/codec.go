// Package codec implements the pluggable token wire formats and the
// registry that routes a token purpose to its codec.
//
// Two codecs ship by default: a self-contained signed JWT (validated from
// its own contents) and an opaque reference token (just a store id).
// Every decode failure collapses into ErrInvalidToken; callers get no
// detail about which check failed. Context cancellation is the one
// exception and surfaces as ctx.Err().
package codec

import (
	"context"
	"errors"

	"github.com/copperline/tokensmith/internal/tokens/domain"
)

// ErrInvalidToken is the uniform decode failure. Bad signature, expired,
// wrong issuer or audience, malformed structure: all of them look the
// same to the caller on purpose.
var ErrInvalidToken = errors.New("codec: invalid token")

// Codec encodes token metadata to a wire string and back.
type Codec interface {
	// Encode produces the wire-level token string for the record.
	Encode(ctx context.Context, info domain.TokenInfo) (string, error)

	// Decode parses and validates a token string for the expected
	// purpose. Any validation failure returns ErrInvalidToken.
	Decode(ctx context.Context, token string, purpose domain.Purpose) (*domain.TokenInfo, error)
}
