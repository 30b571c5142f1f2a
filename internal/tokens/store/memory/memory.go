// Package memory is an in-process token store. It implements the full
// store contract, including the conditional-update check, and doubles as
// the reference implementation used throughout the tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/store"
)

// Token is the native record type. readStatus remembers the status the
// record had when it was loaded so Update can detect concurrent writes.
type Token struct {
	info       domain.TokenInfo
	readStatus domain.Status
}

// Store holds records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.TokenInfo
}

var _ store.Store[*Token] = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[string]domain.TokenInfo)}
}

func (s *Store) New(ctx context.Context, info domain.TokenInfo) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Token{info: cloneInfo(info), readStatus: info.Status}, nil
}

func (s *Store) Create(ctx context.Context, tok *Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[tok.info.ID] = cloneInfo(tok.info)
	return nil
}

func (s *Store) Update(ctx context.Context, tok *Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[tok.info.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != tok.readStatus {
		return store.ErrConflict
	}

	s.records[tok.info.ID] = cloneInfo(tok.info)
	tok.readStatus = tok.info.Status
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &Token{info: cloneInfo(info), readStatus: info.Status}, nil
}

func (s *Store) Find(ctx context.Context, f store.Filter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, info := range s.records {
		if f.Purpose != "" && info.Purpose != f.Purpose {
			continue
		}
		if f.Subject != "" && info.Subject != f.Subject {
			continue
		}
		if f.Status != "" && info.Status != f.Status {
			continue
		}
		if !f.ExpiredBefore.IsZero() {
			if info.ExpiresAt.IsZero() || !info.ExpiresAt.Before(f.ExpiredBefore) {
				continue
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, info := range s.records {
		if !info.ExpiresAt.IsZero() && info.ExpiresAt.Before(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) TokenInfo(ctx context.Context, tok *Token) (domain.TokenInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.TokenInfo{}, err
	}
	return cloneInfo(tok.info), nil
}

func (s *Store) Status(ctx context.Context, tok *Token) (domain.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return tok.info.Status, nil
}

func (s *Store) SetStatus(ctx context.Context, tok *Token, status domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tok.info.Status = status
	return nil
}

func (s *Store) Expiration(ctx context.Context, tok *Token) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return tok.info.ExpiresAt, nil
}

func (s *Store) Subject(ctx context.Context, tok *Token) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return tok.info.Subject, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}

func cloneInfo(info domain.TokenInfo) domain.TokenInfo {
	out := info
	if info.Payload != nil {
		out.Payload = make(map[string]string, len(info.Payload))
		for k, v := range info.Payload {
			out.Payload[k] = v
		}
	}
	return out
}
