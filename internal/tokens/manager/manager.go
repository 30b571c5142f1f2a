// Package manager provides generic token lifecycle operations over any
// store driver. It owns the store's lifetime: closing the manager closes
// the store, and a closed manager refuses every call.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/store"
)

// ErrClosed reports use of a manager after Close.
var ErrClosed = errors.New("manager: closed")

type Manager[T any] struct {
	store  store.Store[T]
	closed atomic.Bool
}

func New[T any](s store.Store[T]) *Manager[T] {
	return &Manager[T]{store: s}
}

func (m *Manager[T]) guard() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

// FindByID returns the metadata for the stored token, or store.ErrNotFound.
func (m *Manager[T]) FindByID(ctx context.Context, id string) (domain.TokenInfo, error) {
	if err := m.guard(); err != nil {
		return domain.TokenInfo{}, err
	}

	tok, err := m.store.FindByID(ctx, id)
	if err != nil {
		return domain.TokenInfo{}, err
	}
	return m.store.TokenInfo(ctx, tok)
}

// FindMatching returns the ids of stored tokens matching the filter.
func (m *Manager[T]) FindMatching(ctx context.Context, f store.Filter) ([]string, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}
	return m.store.Find(ctx, f)
}

// Revoke marks the token revoked. Returns false when the id does not
// exist. Revoking an already-revoked token still counts as success.
func (m *Manager[T]) Revoke(ctx context.Context, id string) (bool, error) {
	if err := m.guard(); err != nil {
		return false, err
	}

	tok, err := m.store.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	status, err := m.store.Status(ctx, tok)
	if err != nil {
		return false, err
	}
	if status == domain.StatusRevoked {
		return true, nil
	}

	if err := m.store.SetStatus(ctx, tok, domain.StatusRevoked); err != nil {
		return false, err
	}
	if err := m.store.Update(ctx, tok); err != nil {
		return false, fmt.Errorf("manager: revoke %s: %w", id, err)
	}
	return true, nil
}

// PurgeExpired deletes all expired records and returns the count removed.
func (m *Manager[T]) PurgeExpired(ctx context.Context) (int64, error) {
	if err := m.guard(); err != nil {
		return 0, err
	}
	return m.store.PurgeExpired(ctx)
}

// StoreNew materializes and persists a record for the given metadata,
// returning the store's native handle.
func (m *Manager[T]) StoreNew(ctx context.Context, info domain.TokenInfo) (T, error) {
	var zero T
	if err := m.guard(); err != nil {
		return zero, err
	}

	tok, err := m.store.New(ctx, info)
	if err != nil {
		return zero, err
	}
	if err := m.store.Create(ctx, tok); err != nil {
		return zero, err
	}
	return tok, nil
}

// Store exposes the underlying store for callers that need the native
// accessors (e.g. the refresh rotation path).
func (m *Manager[T]) Store() store.Store[T] {
	return m.store
}

// Close releases the store. Further calls fail fast with ErrClosed.
// Close is idempotent.
func (m *Manager[T]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.store.Close()
}
