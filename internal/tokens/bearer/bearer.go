// Package bearer adapts the token service to an authentication
// pipeline: it pulls a bearer token out of an Authorization header
// value, validates it and produces a claim set. Invalid tokens yield
// no result rather than an error so other authentication schemes can
// still have a go at the request.
package bearer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/codec"
	"github.com/copperline/tokensmith/internal/tokens/deny"
	"github.com/copperline/tokensmith/internal/tokens/service"
	"github.com/copperline/tokensmith/pkg/slogx"
)

const bearerPrefix = "Bearer "

// Outcome is the terminal state of one validation attempt.
type Outcome int

const (
	// OutcomeNone means no usable bearer token was presented, or the
	// presented one failed validation. Not an error; fallback schemes
	// may proceed.
	OutcomeNone Outcome = iota

	// OutcomeAccepted means the token validated and Claims are set.
	OutcomeAccepted

	// OutcomeRejected means the token validated but its id is on the
	// deny list. The request must not fall through to other schemes.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "none"
	}
}

// Result is what one validation attempt produced. Subject, TokenID and
// Claims are only set when Outcome is OutcomeAccepted.
type Result struct {
	Outcome Outcome
	Subject string
	TokenID string
	Claims  map[string]string
}

// Validator validates inbound bearer tokens against the token service
// and an optional deny policy.
type Validator[T, U any] struct {
	svc    *service.Service[T, U]
	policy deny.Policy
}

// New builds a validator. A nil policy disables the deny check.
func New[T, U any](svc *service.Service[T, U], policy deny.Policy) *Validator[T, U] {
	return &Validator[T, U]{svc: svc, policy: policy}
}

// Validate runs the validation state machine for one request.
//
// A prior accepted result short-circuits: an upstream scheme (session
// cookie, mTLS) already authenticated the request and this adapter
// stays out of the way. Header extraction, signature checks and claim
// validation failures all collapse to OutcomeNone. Deny-list hits are
// OutcomeRejected. Infrastructure failures (deny backend down, context
// cancelled) are real errors, never silently mapped to an outcome.
func (v *Validator[T, U]) Validate(ctx context.Context, prior *Result, authorization string) (Result, error) {
	log := slogx.FromContext(ctx)

	if prior != nil && prior.Outcome == OutcomeAccepted {
		return *prior, nil
	}

	token, ok := extractToken(authorization)
	if !ok {
		return Result{Outcome: OutcomeNone}, nil
	}

	info, err := v.svc.ReadAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, codec.ErrInvalidToken) {
			return Result{Outcome: OutcomeNone}, nil
		}
		return Result{}, err
	}

	if v.policy != nil && info.ID != "" {
		denied, err := v.policy.Denied(ctx, info.ID)
		if err != nil {
			return Result{}, err
		}
		if denied {
			log.Warn("denied token presented",
				slog.String("token_id", info.ID),
				slog.String("subject", info.Subject),
			)
			return Result{Outcome: OutcomeRejected}, nil
		}
	}

	claims := make(map[string]string, len(info.Payload))
	for k, val := range info.Payload {
		claims[k] = val
	}

	return Result{
		Outcome: OutcomeAccepted,
		Subject: info.Subject,
		TokenID: info.ID,
		Claims:  claims,
	}, nil
}

// Deny validates the access token and puts its id on the deny list for
// the token's remaining lifetime. Invalid or already-expired tokens are
// a no-op.
func (v *Validator[T, U]) Deny(ctx context.Context, token string) error {
	if v.policy == nil {
		return nil
	}

	info, err := v.svc.ReadAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, codec.ErrInvalidToken) {
			return nil
		}
		return err
	}
	if info.ID == "" {
		return nil
	}

	ttl := time.Until(info.ExpiresAt)
	if !info.ExpiresAt.IsZero() && ttl <= 0 {
		return nil
	}
	return v.policy.Deny(ctx, info.ID, ttl)
}

// extractToken pulls the token out of an Authorization header value.
// The scheme comparison is case-insensitive per RFC 7235.
func extractToken(authorization string) (string, bool) {
	if len(authorization) <= len(bearerPrefix) {
		return "", false
	}
	if !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}

	token := strings.TrimSpace(authorization[len(bearerPrefix):])
	return token, token != ""
}
