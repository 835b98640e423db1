// Package store persists user records and identity-document blobs. Two
// implementations share one contract: a JSON file store and a Postgres-backed
// keyed store. Both keep the logical read-modify-write-all shape; callers are
// responsible for serializing mutation cycles (see internal/dispatch).
package store

import (
	"context"
	"errors"

	"onboardbot/internal/model"
)

var (
	// ErrStorageUnavailable marks a record store or document directory that
	// cannot be created, read or written. Fatal at Init, recoverable per
	// operation afterwards.
	ErrStorageUnavailable = errors.New("store: storage unavailable")
	// ErrCorruptState marks a persisted collection that cannot be parsed.
	// Processing must halt rather than silently reset user data.
	ErrCorruptState = errors.New("store: corrupt record collection")
)

// Store is the persistence contract for user records and documents.
type Store interface {
	// Init prepares the persistence medium. Idempotent.
	Init(ctx context.Context) error
	// GetAll returns the full record collection in insertion order.
	GetAll(ctx context.Context) ([]model.UserRecord, error)
	// SaveAll atomically replaces the persisted collection. A concurrent
	// reader never observes a partially written collection.
	SaveAll(ctx context.Context, records []model.UserRecord) error
	// SaveDocument stores an opaque blob under a unique name and returns a
	// stable reference usable to fetch it later.
	SaveDocument(ctx context.Context, name string, data []byte) (string, error)
}
