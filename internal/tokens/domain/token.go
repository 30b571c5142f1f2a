package domain

import "time"

// Format selects the wire encoding of a token. The value is also what the
// codec registry keys on, so custom formats just need a unique string.
type Format string

const (
	// FormatJWT is a self-contained signed token. Validation happens
	// entirely from the token's own contents; no store lookup needed.
	FormatJWT Format = "jwt"

	// FormatReference is an opaque identifier. All state lives server-side
	// and validity is decided by a store lookup.
	FormatReference Format = "reference"
)

// Purpose is what a token is issued for. The purpose decides which format
// (and therefore codec) produced it and will validate it.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

// Status is the lifecycle state of a stored token. Transitions only move
// away from active: active -> inactive (consumed) or active -> revoked.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusRevoked  Status = "revoked"
)

// TokenInfo is the canonical metadata for a token, independent of how the
// token is encoded on the wire or persisted.
type TokenInfo struct {
	// ID is the unique token identifier, assigned at creation and never
	// changed. For reference tokens this is also the wire form.
	ID string

	Format  Format
	Subject string
	Purpose Purpose
	Status  Status

	// ExpiresAt is the absolute expiry. The zero value means no expiry.
	// An expired token is invalid regardless of Status.
	ExpiresAt time.Time

	// Payload carries the claims for self-contained tokens. Reference
	// tokens usually have none.
	Payload map[string]string
}

// Expired reports whether the token's expiry has passed at the given time.
// Tokens without an expiry never expire.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// TokenPair is what a successful issuance or refresh returns.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`
}
