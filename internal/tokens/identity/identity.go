// Package identity declares the contract the token service needs from a
// user store. The concrete directory lives elsewhere; this package only
// fixes the capability surface so the service can skip claims the
// directory cannot provide instead of failing on them.
package identity

import (
	"context"
	"errors"
)

// ErrNotFound reports an unknown user id.
var ErrNotFound = errors.New("identity: user not found")

// Directory resolves users and exposes their claim material, generic over
// the implementation's native user type U.
type Directory[U any] interface {
	// FindByID returns the live user for an id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (U, error)

	UserID(ctx context.Context, user U) (string, error)
	UserName(ctx context.Context, user U) (string, error)

	// Optional claim material. Only consulted when the matching
	// Supports* flag reports true.
	Email(ctx context.Context, user U) (string, error)
	SecurityStamp(ctx context.Context, user U) (string, error)
	Claims(ctx context.Context, user U) (map[string]string, error)

	SupportsEmail() bool
	SupportsSecurityStamp() bool
	SupportsClaims() bool
}
