package codec

import (
	"context"
	"errors"

	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/pkg/idx"
)

// Reference encodes a token as its store-assigned ULID and nothing else.
// Decode only checks the identifier's form; status, expiry and revocation
// live server-side, so the caller must follow up with a store lookup.
type Reference struct{}

func NewReference() *Reference { return &Reference{} }

func (c *Reference) Encode(ctx context.Context, info domain.TokenInfo) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if info.ID == "" {
		return "", errors.New("codec: reference token needs a store-assigned id")
	}
	return info.ID, nil
}

func (c *Reference) Decode(ctx context.Context, token string, purpose domain.Purpose) (*domain.TokenInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := idx.Parse(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Only the identifier is known at this point. Status and expiry come
	// from the store record the id points at.
	return &domain.TokenInfo{
		ID:      id.String(),
		Format:  domain.FormatReference,
		Purpose: purpose,
	}, nil
}
