package service_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/codec"
	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/identity"
	"github.com/copperline/tokensmith/internal/tokens/manager"
	"github.com/copperline/tokensmith/internal/tokens/service"
	"github.com/copperline/tokensmith/internal/tokens/store"
	"github.com/copperline/tokensmith/internal/tokens/store/memory"
	"github.com/copperline/tokensmith/pkg/idx"
	"github.com/copperline/tokensmith/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	id     string
	name   string
	email  string
	stamp  string
	claims map[string]string
}

type testDirectory struct {
	users          map[string]testUser
	supportsEmail  bool
	supportsStamp  bool
	supportsClaims bool
}

var _ identity.Directory[testUser] = (*testDirectory)(nil)

func (d *testDirectory) FindByID(_ context.Context, id string) (testUser, error) {
	u, ok := d.users[id]
	if !ok {
		return testUser{}, identity.ErrNotFound
	}
	return u, nil
}

func (d *testDirectory) UserID(_ context.Context, u testUser) (string, error)   { return u.id, nil }
func (d *testDirectory) UserName(_ context.Context, u testUser) (string, error) { return u.name, nil }
func (d *testDirectory) Email(_ context.Context, u testUser) (string, error)    { return u.email, nil }
func (d *testDirectory) SecurityStamp(_ context.Context, u testUser) (string, error) {
	return u.stamp, nil
}
func (d *testDirectory) Claims(_ context.Context, u testUser) (map[string]string, error) {
	return u.claims, nil
}
func (d *testDirectory) SupportsEmail() bool         { return d.supportsEmail }
func (d *testDirectory) SupportsSecurityStamp() bool { return d.supportsStamp }
func (d *testDirectory) SupportsClaims() bool        { return d.supportsClaims }

type fixture struct {
	svc *service.Service[*memory.Token, testUser]
	mgr *manager.Manager[*memory.Token]
	dir *testDirectory
}

func newFixture(t *testing.T, opts service.Options) *fixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA(priv)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierEdDSA(pub)
	require.NoError(t, err)

	jwtCodec, err := codec.NewSelfContained(codec.SelfContainedConfig{
		Signer:   signer,
		Verifier: verifier,
		Issuer:   "tokensmith-test",
	})
	require.NoError(t, err)

	registry := codec.NewRegistry()
	registry.Register(domain.FormatJWT, jwtCodec)
	registry.Register(domain.FormatReference, codec.NewReference())
	registry.MapPurpose(domain.PurposeAccess, domain.FormatJWT)
	registry.MapPurpose(domain.PurposeRefresh, domain.FormatReference)

	mgr := manager.New[*memory.Token](memory.New())
	t.Cleanup(func() { _ = mgr.Close() })

	dir := &testDirectory{
		users: map[string]testUser{
			"u1": {
				id:     "u1",
				name:   "alice",
				email:  "u1@example.com",
				stamp:  "stamp-1",
				claims: map[string]string{"role": "admin"},
			},
		},
		supportsEmail:  true,
		supportsStamp:  true,
		supportsClaims: true,
	}

	return &fixture{
		svc: service.New[*memory.Token, testUser](mgr, registry, dir, opts),
		mgr: mgr,
		dir: dir,
	}
}

func (f *fixture) user(t *testing.T, id string) *testUser {
	t.Helper()

	u, ok := f.dir.users[id]
	require.True(t, ok)
	return &u
}

func TestIssueAccessTokenNilUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	token, err := f.svc.IssueAccessToken(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestIssueAndReadAccessToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()

	token, err := f.svc.IssueAccessToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	info, err := f.svc.ReadAccessToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "u1", info.Subject)
	require.Equal(t, "u1", info.Payload[domain.ClaimSubject])
	require.Equal(t, "u1@example.com", info.Payload[domain.ClaimEmail])
	require.Equal(t, "alice", info.Payload[domain.ClaimName])
	require.Equal(t, "stamp-1", info.Payload[domain.ClaimSecurityStamp])
	require.Equal(t, "admin", info.Payload["role"])
}

func TestIssueAccessTokenSkipsUnsupportedCapabilities(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	f.dir.supportsEmail = false
	f.dir.supportsStamp = false
	f.dir.supportsClaims = false

	ctx := context.Background()
	token, err := f.svc.IssueAccessToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)

	info, err := f.svc.ReadAccessToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "u1", info.Payload[domain.ClaimSubject])
	require.NotContains(t, info.Payload, domain.ClaimEmail)
	require.NotContains(t, info.Payload, domain.ClaimSecurityStamp)
	require.NotContains(t, info.Payload, "role")
}

func TestReadAccessTokenRejectsGarbage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	_, err := f.svc.ReadAccessToken(context.Background(), "garbage")
	require.ErrorIs(t, err, codec.ErrInvalidToken)
}

func TestAccessTokenNotPersistedByDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()

	_, err := f.svc.IssueAccessToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)

	ids, err := f.mgr.FindMatching(ctx, store.Filter{Purpose: domain.PurposeAccess})
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestAccessTokenPersistedWhenConfigured(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{StoreAccessTokens: true})
	ctx := context.Background()

	_, err := f.svc.IssueAccessToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)

	ids, err := f.mgr.FindMatching(ctx, store.Filter{Purpose: domain.PurposeAccess})
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestIssueRefreshTokenPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()

	token, err := f.svc.IssueRefreshToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Reference format: the token string is the record id.
	info, err := f.mgr.FindByID(ctx, token)
	require.NoError(t, err)
	require.Equal(t, domain.PurposeRefresh, info.Purpose)
	require.Equal(t, domain.StatusActive, info.Status)
	require.Equal(t, "u1", info.Subject)
	require.Empty(t, info.Payload)
}

func TestRefreshRotatesAndConsumes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()

	refresh, err := f.svc.IssueRefreshToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, refresh, pair.RefreshToken)

	// The old token is consumed, not deleted.
	info, err := f.mgr.FindByID(ctx, refresh)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInactive, info.Status)

	// Replay of the consumed token fails uniformly.
	_, err = f.svc.Refresh(ctx, refresh)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	// The rotated token still works.
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshFailsUniformly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()

	t.Run("malformed token", func(t *testing.T) {
		_, err := f.svc.Refresh(ctx, "not-a-ulid")
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.svc.Refresh(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("revoked token", func(t *testing.T) {
		refresh, err := f.svc.IssueRefreshToken(ctx, f.user(t, "u1"))
		require.NoError(t, err)

		ok, err := f.mgr.Revoke(ctx, refresh)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.svc.Refresh(ctx, refresh)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("vanished user", func(t *testing.T) {
		f.dir.users["u2"] = testUser{id: "u2", name: "bob"}
		refresh, err := f.svc.IssueRefreshToken(ctx, f.user(t, "u2"))
		require.NoError(t, err)

		delete(f.dir.users, "u2")
		_, err = f.svc.Refresh(ctx, refresh)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)

		// The token survived untouched; only live users can consume it.
		info, err := f.mgr.FindByID(ctx, refresh)
		require.NoError(t, err)
		require.Equal(t, domain.StatusActive, info.Status)
	})
}

func TestRefreshExpiredToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()

	// Plant an already-expired record directly; the reference token string
	// is its id.
	expired := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    domain.FormatReference,
		Subject:   "u1",
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	_, err := f.mgr.StoreNew(ctx, expired)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, expired.ID)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestRefreshRateLimited(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{RefreshPerMinute: 1})
	ctx := context.Background()

	refresh, err := f.svc.IssueRefreshToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, refresh)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	// The limited attempt must not have consumed the token.
	info, err := f.mgr.FindByID(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, info.Status)
}

func TestRevokeRefreshToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()

	refresh, err := f.svc.IssueRefreshToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeRefreshToken(ctx, f.user(t, "u1"), refresh))

	info, err := f.mgr.FindByID(ctx, refresh)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRevoked, info.Status)

	_, err = f.svc.Refresh(ctx, refresh)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestRevokeRefreshTokenIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()
	u := f.user(t, "u1")

	// Garbage and unknown tokens are success.
	require.NoError(t, f.svc.RevokeRefreshToken(ctx, u, "garbage"))
	require.NoError(t, f.svc.RevokeRefreshToken(ctx, u, "01HZZZZZZZZZZZZZZZZZZZZZZZ"))

	refresh, err := f.svc.IssueRefreshToken(ctx, u)
	require.NoError(t, err)
	require.NoError(t, f.svc.RevokeRefreshToken(ctx, u, refresh))
	require.NoError(t, f.svc.RevokeRefreshToken(ctx, u, refresh))
}

func TestRevokeRefreshTokenChecksOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture(t, service.Options{})
	ctx := context.Background()
	f.dir.users["u2"] = testUser{id: "u2", name: "bob"}

	refresh, err := f.svc.IssueRefreshToken(ctx, f.user(t, "u1"))
	require.NoError(t, err)

	// u2 revoking u1's token reports success but changes nothing.
	require.NoError(t, f.svc.RevokeRefreshToken(ctx, f.user(t, "u2"), refresh))

	info, err := f.mgr.FindByID(ctx, refresh)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, info.Status)
}
