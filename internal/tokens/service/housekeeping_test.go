package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/manager"
	"github.com/copperline/tokensmith/internal/tokens/service"
	"github.com/copperline/tokensmith/internal/tokens/store"
	"github.com/copperline/tokensmith/internal/tokens/store/memory"
	"github.com/copperline/tokensmith/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingPurgesOnStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := manager.New[*memory.Token](memory.New())
	t.Cleanup(func() { _ = mgr.Close() })

	expired := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    domain.FormatReference,
		Subject:   "u1",
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	_, err := mgr.StoreNew(ctx, expired)
	require.NoError(t, err)

	live := domain.TokenInfo{
		ID:        idx.New().String(),
		Format:    domain.FormatReference,
		Subject:   "u1",
		Purpose:   domain.PurposeRefresh,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	_, err = mgr.StoreNew(ctx, live)
	require.NoError(t, err)

	hk := service.NewHousekeeping(mgr, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	hk.Start()
	hk.Stop()

	// The first purge runs before the first tick, so Stop after Start is
	// enough to observe it.
	ids, err := mgr.FindMatching(ctx, store.Filter{Purpose: domain.PurposeRefresh})
	require.NoError(t, err)
	require.Equal(t, []string{live.ID}, ids)
}

func TestHousekeepingDefaultsInterval(t *testing.T) {
	t.Parallel()

	mgr := manager.New[*memory.Token](memory.New())
	t.Cleanup(func() { _ = mgr.Close() })

	hk := service.NewHousekeeping(mgr, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	require.Equal(t, time.Hour, hk.Interval)
}
