package codec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/pkg/jwtx"
	"github.com/copperline/tokensmith/pkg/protect"
	"github.com/golang-jwt/jwt/v5"
)

// protectedClaim carries the encrypted payload when a protector is
// configured. Registered claims stay in the clear so validation works
// without unprotecting first.
const protectedClaim = "data"

// SelfContainedConfig configures the signed-token codec.
type SelfContainedConfig struct {
	Signer   jwtx.Signer
	Verifier jwtx.Verifier

	// Issuer is stamped on every encoded token. When non-empty, decode
	// rejects tokens whose iss claim differs.
	Issuer string

	// Audiences are stamped on every encoded token. When non-empty,
	// decode requires the token's aud to contain at least one of them.
	Audiences []string

	// Protector, when set, encrypts the claim payload. Decode then
	// requires the protected payload to unprotect cleanly.
	Protector protect.Protector

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// SelfContained encodes token metadata into a compact signed JWT whose
// validity is checked entirely from its own contents.
type SelfContained struct {
	cfg SelfContainedConfig
}

func NewSelfContained(cfg SelfContainedConfig) (*SelfContained, error) {
	if cfg.Signer == nil || cfg.Verifier == nil {
		return nil, errors.New("codec: self-contained codec needs a signer and a verifier")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SelfContained{cfg: cfg}, nil
}

func (c *SelfContained) Encode(ctx context.Context, info domain.TokenInfo) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if info.ID == "" || info.Subject == "" {
		return "", errors.New("codec: token id and subject are required")
	}
	// Without an expiry the token could never decode again (exp is a
	// required claim), so refuse to mint one.
	if info.ExpiresAt.IsZero() {
		return "", errors.New("codec: self-contained tokens require an expiry")
	}

	claims := jwt.MapClaims{}

	if c.cfg.Protector != nil {
		sealed, err := c.sealPayload(info.Payload)
		if err != nil {
			return "", err
		}
		claims[protectedClaim] = sealed
	} else {
		for k, v := range info.Payload {
			if domain.IsRegisteredClaim(k) {
				continue
			}
			claims[k] = v
		}
	}

	now := c.cfg.Now()
	claims[domain.ClaimSubject] = info.Subject
	claims[domain.ClaimTokenID] = info.ID
	claims[domain.ClaimIssuedAt] = now.Unix()
	claims[domain.ClaimNotBefore] = now.Unix()
	claims[domain.ClaimExpiry] = info.ExpiresAt.Unix()
	if c.cfg.Issuer != "" {
		claims[domain.ClaimIssuer] = c.cfg.Issuer
	}
	if len(c.cfg.Audiences) > 0 {
		claims[domain.ClaimAudience] = c.cfg.Audiences
	}

	return c.cfg.Signer.Sign(claims)
}

// Decode validates in a fixed order: signature, issuer, audience, expiry
// (exp then nbf), then claim reconstruction. The first failed check wins
// and every failure is reported as the same ErrInvalidToken.
func (c *SelfContained) Decode(ctx context.Context, token string, purpose domain.Purpose) (*domain.TokenInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := c.cfg.Verifier.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if err := jwtx.ValidateIssuer(claims, c.cfg.Issuer); err != nil {
		return nil, ErrInvalidToken
	}
	if err := jwtx.ValidateAudience(claims, c.cfg.Audiences); err != nil {
		return nil, ErrInvalidToken
	}
	if err := jwtx.ValidateExpiry(claims, c.cfg.Now()); err != nil {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrInvalidToken
	}
	id, ok := claims[domain.ClaimTokenID].(string)
	if !ok || id == "" {
		return nil, ErrInvalidToken
	}

	payload, err := c.extractPayload(claims)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if payload[domain.ClaimSubject] == "" {
		payload[domain.ClaimSubject] = subject
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &domain.TokenInfo{
		ID:        id,
		Format:    domain.FormatJWT,
		Subject:   subject,
		Purpose:   purpose,
		Status:    domain.StatusActive,
		ExpiresAt: exp.Time,
		Payload:   payload,
	}, nil
}

func (c *SelfContained) sealPayload(payload map[string]string) (string, error) {
	if payload == nil {
		payload = map[string]string{}
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sealed, err := c.cfg.Protector.Protect(plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *SelfContained) extractPayload(claims jwt.MapClaims) (map[string]string, error) {
	if c.cfg.Protector != nil {
		sealed, ok := claims[protectedClaim].(string)
		if !ok {
			return nil, ErrInvalidToken
		}
		raw, err := base64.RawURLEncoding.DecodeString(sealed)
		if err != nil {
			return nil, ErrInvalidToken
		}
		plain, err := c.cfg.Protector.Unprotect(raw)
		if err != nil {
			return nil, ErrInvalidToken
		}
		payload := map[string]string{}
		if err := json.Unmarshal(plain, &payload); err != nil {
			return nil, ErrInvalidToken
		}
		return payload, nil
	}

	payload := map[string]string{}
	for k, v := range claims {
		if domain.IsRegisteredClaim(k) || k == protectedClaim {
			continue
		}
		// The payload schema is flat string-to-string; anything else in
		// the token is not ours to interpret.
		if s, ok := v.(string); ok {
			payload[k] = s
		}
	}
	return payload, nil
}
