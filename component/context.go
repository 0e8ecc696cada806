package component

import (
	"context"
	"sync"
)

// StateAccess is the handle an ExecutionContext exposes for reading and
// writing state-scoped values. Concrete implementations live in the state
// package; this interface lets component code depend only on the contract.
type StateAccess interface {
	Read(ctx context.Context, key string) (any, bool, error)
	Write(ctx context.Context, key string, value any) error
	// Delete removes key and reports whether it previously existed.
	Delete(ctx context.Context, key string) (existed bool, err error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

type sharedKey struct {
	scope Scope
	key   string
}

// sharedStore is the mutable map backing ExecutionContext.Shared. Contexts
// created with Inherit hold a pointer to the same sharedStore as their
// parent so writes become visible across the whole inheriting subtree;
// Isolate and CopyOnWrite contexts get their own.
type sharedStore struct {
	mu   sync.RWMutex
	data map[sharedKey]any
}

func newSharedStore() *sharedStore {
	return &sharedStore{data: make(map[sharedKey]any)}
}

func (s *sharedStore) snapshot() *sharedStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := newSharedStore()
	for k, v := range s.data {
		clone.data[k] = v
	}
	return clone
}

func (s *sharedStore) get(scope Scope, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[sharedKey{scope, key}]
	return v, ok
}

func (s *sharedStore) set(scope Scope, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sharedKey{scope, key}] = value
}

// ExecutionContext is the scoped, per-request container every component
// executes inside. It carries request-scoped data, shared memory visible to
// descendants per the chosen InheritancePolicy, an optional state-access
// handle, and a parent link for scope-tree walks.
type ExecutionContext struct {
	Scope          Scope
	ConversationID string
	UserID         string

	// Data holds request-local values, never inherited by children.
	Data map[string]any

	State StateAccess

	parent *ExecutionContext
	shared *sharedStore
	policy InheritancePolicy
}

// NewRootExecutionContext creates the top-level context for a request. It has
// no parent and owns a fresh shared store.
func NewRootExecutionContext(scope Scope) *ExecutionContext {
	return &ExecutionContext{
		Scope:  scope,
		Data:   make(map[string]any),
		shared: newSharedStore(),
	}
}

// Parent returns the context this one was derived from, or nil for a root
// context.
func (c *ExecutionContext) Parent() *ExecutionContext { return c.parent }

// Child creates a new ExecutionContext scoped under c, applying the given
// inheritance policy to the shared-memory view.
func (c *ExecutionContext) Child(scope Scope, policy InheritancePolicy) *ExecutionContext {
	child := &ExecutionContext{
		Scope:          scope,
		ConversationID: c.ConversationID,
		UserID:         c.UserID,
		Data:           make(map[string]any),
		State:          c.State,
		parent:         c,
		policy:         policy,
	}
	switch policy {
	case Inherit:
		child.shared = c.shared
	case Isolate:
		child.shared = newSharedStore()
	case CopyOnWrite:
		child.shared = c.shared.snapshot()
	default:
		child.shared = newSharedStore()
	}
	return child
}

// SharedGet reads a value written under scope/key, visible per the
// inheritance policy used to create this context (or any ancestor it
// inherited from).
func (c *ExecutionContext) SharedGet(scope Scope, key string) (any, bool) {
	return c.shared.get(scope, key)
}

// SharedSet writes a value under scope/key. With Inherit, the write is
// immediately visible to the parent and every other descendant sharing the
// same underlying store. With Isolate or CopyOnWrite, it is visible only
// within this context's own subtree.
func (c *ExecutionContext) SharedSet(scope Scope, key string, value any) {
	c.shared.set(scope, key, value)
}
