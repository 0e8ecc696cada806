// Package state implements the scope-keyed key/value store described by the
// substrate's state model: a Get/Set/Delete/ListKeys contract over JSON
// values, pluggable backends (memory, file-backed WAL, Postgres), and
// forward-only migrations.
package state

import (
	"context"
	"errors"

	"github.com/agentmesh/substrate/component"
)

// ErrKeyNotFound names a missing key. Get does not return it: Get reports a
// missing key with found == false and a nil error.
var ErrKeyNotFound = errors.New("state: key not found")

// ErrMigrationOutOfOrder is returned when ApplyMigration is called with a
// version that does not immediately follow the highest applied version.
var ErrMigrationOutOfOrder = errors.New("state: migration applied out of order")

// Key addresses a single value: a scope plus a name within that scope.
type Key struct {
	Scope component.Scope
	Name  string
}

// Store is the pluggable backend contract. Writes are atomic per key; the
// contract makes no multi-key transactional guarantee, though a backend may
// provide one (see Transactor).
type Store interface {
	Get(ctx context.Context, key Key) (value any, found bool, err error)
	Set(ctx context.Context, key Key, value any) error
	// Delete removes key and reports whether it previously existed.
	Delete(ctx context.Context, key Key) (existed bool, err error)
	// ListKeys returns the names of keys in scope whose name starts with
	// prefix.
	ListKeys(ctx context.Context, scope component.Scope, prefix string) ([]string, error)
	// ApplyMigration records that the forward-only migration identified by
	// version has been applied, running apply() exactly once per version.
	// It returns ErrMigrationOutOfOrder if version does not immediately
	// follow the highest previously applied version.
	ApplyMigration(ctx context.Context, version int, apply func(ctx context.Context) error) error
}

// Transactor is an optional capability a Store backend may implement to
// support multi-key transactions within a single scope. Backends that don't
// implement it only guarantee per-key atomicity.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Access adapts a Store, bound to one scope, to component.StateAccess so
// components can read/write without knowing about Key or Store directly.
type Access struct {
	Store Store
	Scope component.Scope
}

func (a Access) Read(ctx context.Context, key string) (any, bool, error) {
	return a.Store.Get(ctx, Key{Scope: a.Scope, Name: key})
}

func (a Access) Write(ctx context.Context, key string, value any) error {
	return a.Store.Set(ctx, Key{Scope: a.Scope, Name: key}, value)
}

func (a Access) Delete(ctx context.Context, key string) (bool, error) {
	return a.Store.Delete(ctx, Key{Scope: a.Scope, Name: key})
}

func (a Access) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return a.Store.ListKeys(ctx, a.Scope, prefix)
}

var _ component.StateAccess = Access{}
