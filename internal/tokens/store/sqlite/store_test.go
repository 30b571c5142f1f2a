package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/store"
	"github.com/copperline/tokensmith/internal/tokens/store/sqlite"
	"github.com/copperline/tokensmith/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tokens.db")
	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createToken(t *testing.T, s *sqlite.Store, info domain.TokenInfo) {
	t.Helper()

	ctx := context.Background()
	tok, err := s.New(ctx, info)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, tok))
}

func TestCreateFindRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	info := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    domain.FormatReference,
		Subject:   "u1",
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Payload:   map[string]string{"email": "u1@example.com"},
	}
	createToken(t, s, info)

	tok, err := s.FindByID(ctx, info.ID)
	require.NoError(t, err)

	got, err := s.TokenInfo(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, info.ID, got.ID)
	require.Equal(t, info.Subject, got.Subject)
	require.Equal(t, info.Purpose, got.Purpose)
	require.Equal(t, info.Status, got.Status)
	require.Equal(t, info.Payload, got.Payload)
	require.WithinDuration(t, info.ExpiresAt, got.ExpiresAt, time.Second)

	_, err = s.FindByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConditionalUpdate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	info := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    domain.FormatReference,
		Subject:   "u1",
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	createToken(t, s, info)

	first, err := s.FindByID(ctx, info.ID)
	require.NoError(t, err)
	second, err := s.FindByID(ctx, info.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, first, domain.StatusInactive))
	require.NoError(t, s.Update(ctx, first))

	require.NoError(t, s.SetStatus(ctx, second, domain.StatusInactive))
	require.ErrorIs(t, s.Update(ctx, second), store.ErrConflict)

	// A fresh read sees the consumed status and can move it to revoked.
	third, err := s.FindByID(ctx, info.ID)
	require.NoError(t, err)
	status, err := s.Status(ctx, third)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInactive, status)
}

func TestFindFilters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	mk := func(purpose domain.Purpose, subject string, status domain.Status) string {
		info := domain.TokenInfo{
			ID:        idx.New().String(),
			Format:    domain.FormatReference,
			Subject:   subject,
			Purpose:   purpose,
			Status:    status,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		createToken(t, s, info)
		return info.ID
	}

	refreshU1 := mk(domain.PurposeRefresh, "u1", domain.StatusActive)
	mk(domain.PurposeAccess, "u1", domain.StatusActive)
	revokedU1 := mk(domain.PurposeRefresh, "u1", domain.StatusRevoked)
	mk(domain.PurposeRefresh, "u2", domain.StatusActive)

	ids, err := s.Find(ctx, store.Filter{Purpose: domain.PurposeRefresh, Subject: "u1"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{refreshU1, revokedU1}, ids)

	ids, err = s.Find(ctx, store.Filter{Subject: "u1", Status: domain.StatusRevoked})
	require.NoError(t, err)
	require.Equal(t, []string{revokedU1}, ids)
}

func TestPurgeExpired(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	expired := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    domain.FormatReference,
		Subject:   "u1",
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    domain.FormatReference,
		Subject:   "u1",
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	eternal := domain.TokenInfo{
		ID:      idx.New().String(),
		Format:  domain.FormatReference,
		Subject: "u1",
		Purpose: domain.PurposeRefresh,
		Status:  domain.StatusActive,
	}
	for _, info := range []domain.TokenInfo{expired, live, eternal} {
		createToken(t, s, info)
	}

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.FindByID(ctx, expired.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindByID(ctx, live.ID)
	require.NoError(t, err)
	_, err = s.FindByID(ctx, eternal.ID)
	require.NoError(t, err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}
