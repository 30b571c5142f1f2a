// Package store defines the persistence contract for token records.
// Concrete drivers (memory, sqlite) implement Store over their own native
// record type; the lifecycle manager stays storage-agnostic.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/domain"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrConflict reports an optimistic-concurrency failure: the record's
	// status changed between read and update. Refresh rotation relies on
	// this to detect a token consumed by a concurrent request.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// Filter narrows a Find call. Zero-valued fields are ignored.
type Filter struct {
	Purpose domain.Purpose
	Subject string
	Status  domain.Status

	// ExpiredBefore matches records whose expiry is strictly before the
	// given instant. Records without an expiry never match.
	ExpiredBefore time.Time
}

// Store is the durable persistence contract, generic over the driver's
// native record type T. Native records are handles owned by the store;
// callers read and mutate them only through these methods.
//
// Update must be conditional on the record's status as of the last read
// and fail with ErrConflict when it changed underneath; that check is
// what makes refresh-token consumption single-use under concurrency.
type Store[T any] interface {
	// New materializes a native record from generic metadata without
	// persisting it.
	New(ctx context.Context, info domain.TokenInfo) (T, error)

	// Create persists a record produced by New.
	Create(ctx context.Context, tok T) error

	// Update persists mutations made through SetStatus. Returns
	// ErrConflict if the stored status no longer matches the status the
	// record had when it was read.
	Update(ctx context.Context, tok T) error

	// FindByID returns the record with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (T, error)

	// Find returns the ids of records matching the filter.
	Find(ctx context.Context, f Filter) ([]string, error)

	// PurgeExpired deletes every record whose expiry is strictly before
	// now and returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)

	// TokenInfo converts a native record back to generic metadata.
	TokenInfo(ctx context.Context, tok T) (domain.TokenInfo, error)

	// Accessors over the native record.
	Status(ctx context.Context, tok T) (domain.Status, error)
	SetStatus(ctx context.Context, tok T, status domain.Status) error
	Expiration(ctx context.Context, tok T) (time.Time, error)
	Subject(ctx context.Context, tok T) (string, error)

	// Close releases underlying resources. The store is unusable after.
	Close() error
}
