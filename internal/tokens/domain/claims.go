package domain

// Claim keys used in token payloads. Kept as named constants so the schema
// lives in one place instead of magic strings scattered through codecs and
// services.
const (
	ClaimSubject   = "sub"
	ClaimTokenID   = "jti"
	ClaimIssuer    = "iss"
	ClaimAudience  = "aud"
	ClaimExpiry    = "exp"
	ClaimNotBefore = "nbf"
	ClaimIssuedAt  = "iat"

	ClaimName          = "name"
	ClaimEmail         = "email"
	ClaimSecurityStamp = "security_stamp"
)

// registeredClaims are the keys the self-contained codec manages itself.
// Payload entries under these keys are ignored on encode so a caller can't
// smuggle a forged expiry or subject through the payload map.
var registeredClaims = map[string]struct{}{
	ClaimIssuer:    {},
	ClaimAudience:  {},
	ClaimExpiry:    {},
	ClaimNotBefore: {},
	ClaimIssuedAt:  {},
	ClaimSubject:   {},
	ClaimTokenID:   {},
}

// IsRegisteredClaim reports whether key is managed by the codec rather than
// the caller-supplied payload.
func IsRegisteredClaim(key string) bool {
	_, ok := registeredClaims[key]
	return ok
}
