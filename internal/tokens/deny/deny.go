// Package deny tracks token ids that must be rejected before their
// natural expiry, e.g. after logout or credential compromise. Entries
// carry a TTL matching the token's remaining lifetime so the list
// cleans itself up.
package deny

import (
	"context"
	"sync"
	"time"
)

// Policy answers whether a token id has been denied and records new
// denials.
type Policy interface {
	// Denied reports whether the token id is on the list.
	Denied(ctx context.Context, tokenID string) (bool, error)

	// Deny puts the token id on the list for ttl. A ttl of zero or less
	// is a no-op: the token is already past its lifetime.
	Deny(ctx context.Context, tokenID string, ttl time.Duration) error
}

// Memory is an in-process Policy. Expired entries are dropped lazily on
// read and swept whenever the map is touched under the write lock.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

var _ Policy = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Denied(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if m.now().After(until) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Deny(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, until := range m.entries {
		if now.After(until) {
			delete(m.entries, id)
		}
	}
	m.entries[tokenID] = now.Add(ttl)
	return nil
}
