// Package service orchestrates token issuance, validation, rotation and
// revocation for users, on top of the lifecycle manager and the codec
// registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/codec"
	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/identity"
	"github.com/copperline/tokensmith/internal/tokens/manager"
	"github.com/copperline/tokensmith/internal/tokens/store"
	"github.com/copperline/tokensmith/pkg/idx"
	"github.com/copperline/tokensmith/pkg/slogx"
)

const (
	// DefaultAccessTTL is the default access token lifetime.
	DefaultAccessTTL = 24 * time.Hour

	// DefaultRefreshTTL is the default refresh token lifetime.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// ErrInvalidRefresh is the uniform failure for the refresh path. Expired,
// revoked, consumed, unknown, malformed and no-such-user all collapse
// into it so a caller can't probe which one happened.
var ErrInvalidRefresh = errors.New("service: invalid refresh token")

// Options configures the token service.
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// StoreAccessTokens persists access-token metadata alongside refresh
	// tokens. Self-contained access tokens verify on their own, so this
	// is off unless the deployment wants server-side lookup of them.
	StoreAccessTokens bool

	// RefreshPerMinute caps refresh attempts per subject. Zero disables
	// the limiter.
	RefreshPerMinute int
}

// Service issues and validates tokens for users. T is the store driver's
// native record type, U the identity directory's native user type.
type Service[T, U any] struct {
	mgr      *manager.Manager[T]
	registry *codec.Registry
	users    identity.Directory[U]
	opts     Options
	limiter  *subjectLimiter
	now      func() time.Time
}

func New[T, U any](
	mgr *manager.Manager[T],
	registry *codec.Registry,
	users identity.Directory[U],
	opts Options,
) *Service[T, U] {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}

	s := &Service[T, U]{
		mgr:      mgr,
		registry: registry,
		users:    users,
		opts:     opts,
		now:      time.Now,
	}
	if opts.RefreshPerMinute > 0 {
		s.limiter = newSubjectLimiter(opts.RefreshPerMinute)
	}
	return s
}

// IssueAccessToken builds the claim payload for the user and returns an
// encoded access token. A nil user yields an empty string, not an error;
// callers must treat "" as no token issued.
func (s *Service[T, U]) IssueAccessToken(ctx context.Context, user *U) (string, error) {
	if user == nil {
		return "", nil
	}

	subject, payload, err := s.buildPayload(ctx, *user)
	if err != nil {
		return "", err
	}

	format, cdc, err := s.registry.Resolve(domain.PurposeAccess)
	if err != nil {
		return "", err
	}

	info := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    format,
		Subject:   subject,
		Purpose:   domain.PurposeAccess,
		Status:    domain.StatusActive,
		ExpiresAt: s.now().Add(s.opts.AccessTTL),
		Payload:   payload,
	}

	// Self-contained tokens carry their own proof; persisting their
	// metadata is optional and off by default.
	if s.opts.StoreAccessTokens {
		if _, err := s.mgr.StoreNew(ctx, info); err != nil {
			return "", fmt.Errorf("service: persist access token: %w", err)
		}
	}

	return cdc.Encode(ctx, info)
}

// ReadAccessToken decodes and validates an access token string. Any
// validation failure surfaces as codec.ErrInvalidToken.
func (s *Service[T, U]) ReadAccessToken(ctx context.Context, token string) (*domain.TokenInfo, error) {
	_, cdc, err := s.registry.Resolve(domain.PurposeAccess)
	if err != nil {
		return nil, err
	}
	return cdc.Decode(ctx, token, domain.PurposeAccess)
}

// IssueRefreshToken persists a new refresh token record for the user and
// returns its encoded form. Refresh tokens always live in the store; the
// default reference format is just the record id.
func (s *Service[T, U]) IssueRefreshToken(ctx context.Context, user *U) (string, error) {
	if user == nil {
		return "", nil
	}

	subject, err := s.users.UserID(ctx, *user)
	if err != nil {
		return "", err
	}

	format, cdc, err := s.registry.Resolve(domain.PurposeRefresh)
	if err != nil {
		return "", err
	}

	info := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    format,
		Subject:   subject,
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: s.now().Add(s.opts.RefreshTTL),
	}

	if _, err := s.mgr.StoreNew(ctx, info); err != nil {
		return "", fmt.Errorf("service: persist refresh token: %w", err)
	}

	return cdc.Encode(ctx, info)
}

// Refresh validates a refresh token and rotates it: the presented token
// is marked consumed and persisted before any new token is minted, so a
// replayed token cannot win even if issuance fails halfway. Every
// validation failure returns ErrInvalidRefresh with no further detail.
func (s *Service[T, U]) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	_, cdc, err := s.registry.Resolve(domain.PurposeRefresh)
	if err != nil {
		return nil, err
	}

	decoded, err := cdc.Decode(ctx, refreshToken, domain.PurposeRefresh)
	if err != nil {
		if errors.Is(err, codec.ErrInvalidToken) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	st := s.mgr.Store()
	native, err := st.FindByID(ctx, decoded.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	status, err := st.Status(ctx, native)
	if err != nil {
		return nil, err
	}
	if status != domain.StatusActive {
		return nil, ErrInvalidRefresh
	}

	expiresAt, err := st.Expiration(ctx, native)
	if err != nil {
		return nil, err
	}
	if !expiresAt.IsZero() && s.now().After(expiresAt) {
		return nil, ErrInvalidRefresh
	}

	subject, err := st.Subject(ctx, native)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil && !s.limiter.allow(subject) {
		log.Warn("refresh rate limit hit", slog.String("subject", subject))
		return nil, ErrInvalidRefresh
	}

	user, err := s.users.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	// Consume the old token first. A conditional-update conflict means a
	// concurrent refresh already consumed it; that request wins, this one
	// gets the uniform failure.
	if err := st.SetStatus(ctx, native, domain.StatusInactive); err != nil {
		return nil, err
	}
	if err := st.Update(ctx, native); err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	accessToken, err := s.IssueAccessToken(ctx, &user)
	if err != nil {
		return nil, err
	}
	newRefresh, err := s.IssueRefreshToken(ctx, &user)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.opts.AccessTTL,
	}, nil
}

// RevokeRefreshToken marks the token revoked. Missing, malformed or
// already-consumed tokens are success: the caller wanted it gone and it
// is. When a user is supplied the token must belong to them.
func (s *Service[T, U]) RevokeRefreshToken(ctx context.Context, user *U, refreshToken string) error {
	_, cdc, err := s.registry.Resolve(domain.PurposeRefresh)
	if err != nil {
		return err
	}

	decoded, err := cdc.Decode(ctx, refreshToken, domain.PurposeRefresh)
	if err != nil {
		if errors.Is(err, codec.ErrInvalidToken) {
			return nil
		}
		return err
	}

	st := s.mgr.Store()
	native, err := st.FindByID(ctx, decoded.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if user != nil {
		userID, err := s.users.UserID(ctx, *user)
		if err != nil {
			return err
		}
		subject, err := st.Subject(ctx, native)
		if err != nil {
			return err
		}
		if subject != userID {
			// Not this user's token. Report success without touching it.
			return nil
		}
	}

	if err := st.SetStatus(ctx, native, domain.StatusRevoked); err != nil {
		return err
	}
	if err := st.Update(ctx, native); err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// buildPayload assembles the claim map for a user. Capabilities the
// directory doesn't support are skipped, not errored.
func (s *Service[T, U]) buildPayload(ctx context.Context, user U) (string, map[string]string, error) {
	subject, err := s.users.UserID(ctx, user)
	if err != nil {
		return "", nil, err
	}

	payload := map[string]string{
		domain.ClaimSubject: subject,
	}

	if name, err := s.users.UserName(ctx, user); err == nil && name != "" {
		payload[domain.ClaimName] = name
	} else if err != nil {
		return "", nil, err
	}

	if s.users.SupportsEmail() {
		email, err := s.users.Email(ctx, user)
		if err != nil {
			return "", nil, err
		}
		if email != "" {
			payload[domain.ClaimEmail] = email
		}
	}

	if s.users.SupportsSecurityStamp() {
		stamp, err := s.users.SecurityStamp(ctx, user)
		if err != nil {
			return "", nil, err
		}
		if stamp != "" {
			payload[domain.ClaimSecurityStamp] = stamp
		}
	}

	if s.users.SupportsClaims() {
		claims, err := s.users.Claims(ctx, user)
		if err != nil {
			return "", nil, err
		}
		for k, v := range claims {
			if _, taken := payload[k]; taken {
				continue
			}
			payload[k] = v
		}
	}

	return subject, payload, nil
}
