package secctx

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ContextHandle is an arena-managed reference to a native security context.
type ContextHandle struct {
	id       uint64
	native   any
	arena    *Arena
	released atomic.Bool
}

// ID returns the arena-unique handle identifier.
func (h *ContextHandle) ID() uint64 {
	return h.id
}

// Native returns the provider-specific context value.
func (h *ContextHandle) Native() any {
	return h.native
}

// SetNative replaces the native value. Providers use it when a step returns a
// new native context for the same logical handshake.
func (h *ContextHandle) SetNative(native any) {
	h.native = native
}

// Released reports whether Release has been called.
func (h *ContextHandle) Released() bool {
	return h.released.Load()
}

// Release deletes the native context. Only the first call reaches the provider;
// later calls return ErrReleased.
func (h *ContextHandle) Release() error {
	if h == nil {
		return nil
	}
	if !h.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	return h.arena.release(h)
}

// String identifies the handle in logs without exposing native state.
func (h *ContextHandle) String() string {
	if h == nil {
		return "ctx(<nil>)"
	}
	return fmt.Sprintf("ctx(%d)", h.id)
}

// Arena tracks the live context handles of one provider.
type Arena struct {
	mu      sync.Mutex
	next    uint64
	live    map[uint64]*ContextHandle
	deleted uint64

	del func(native any) error
}

// NewArena creates an arena. del deletes a native context and is called
// exactly once per handle; it may be nil when natives need no cleanup.
func NewArena(del func(native any) error) *Arena {
	return &Arena{
		live: make(map[uint64]*ContextHandle),
		del:  del,
	}
}

// New allocates a handle for native.
func (a *Arena) New(native any) *ContextHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	h := &ContextHandle{id: a.next, native: native, arena: a}
	a.live[h.id] = h
	return h
}

// Live returns the number of handles not yet released.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Deleted returns how many handles have been released.
func (a *Arena) Deleted() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deleted
}

func (a *Arena) release(h *ContextHandle) error {
	a.mu.Lock()
	delete(a.live, h.id)
	a.deleted++
	a.mu.Unlock()

	if a.del == nil || h.native == nil {
		return nil
	}
	if err := a.del(h.native); err != nil {
		return fmt.Errorf("delete security context %d: %w", h.id, err)
	}
	return nil
}

// Close releases every handle still live in the arena.
func (a *Arena) Close() error {
	a.mu.Lock()
	handles := make([]*ContextHandle, 0, len(a.live))
	for _, h := range a.live {
		handles = append(handles, h)
	}
	a.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Release(); err != nil && !errors.Is(err, ErrReleased) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
