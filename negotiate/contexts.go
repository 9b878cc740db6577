package negotiate

import (
	"context"
	"errors"
	"hash/maphash"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-negotiate/secctx"
)

const shardCount = 32

// slot is the table entry for one correlation key. It exists while a
// request holds the key or a handshake is pending.
type slot struct {
	pending *secctx.ContextHandle
	touched time.Time
	held    bool

	// correlation identifies the handshake in audit events across legs.
	correlation string

	// changed is closed and replaced on every state change.
	changed chan struct{}
}

func (s *slot) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

type shard struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// contextTable maps correlation keys to pending security contexts and lets
// at most one request per key work on a handshake at a time.
type contextTable struct {
	seed    maphash.Seed
	shards  [shardCount]shard
	clock   Clock
	maxAge  time.Duration
	logger  *slog.Logger
	pending atomic.Int64

	// closed makes released leases delete their pending handshake, since
	// no sweep runs after Close.
	closed atomic.Bool
}

func newContextTable(clock Clock, maxAge time.Duration, logger *slog.Logger) *contextTable {
	t := &contextTable{
		seed:   maphash.MakeSeed(),
		clock:  clock,
		maxAge: maxAge,
		logger: logger,
	}
	for i := range t.shards {
		t.shards[i].slots = make(map[string]*slot)
	}
	return t
}

func (t *contextTable) shard(key string) *shard {
	return &t.shards[maphash.String(t.seed, key)%shardCount]
}

// Acquire waits until no other request holds key and then holds it.
// The wait ends early with the context's error.
func (t *contextTable) Acquire(ctx context.Context, key string) (*Lease, error) {
	return t.wait(ctx, key, func(s *slot) bool { return !s.held })
}

// AwaitFree waits until no request holds key and no handshake is pending
// for it, and then holds it. Holding the key while a challenge is written
// keeps challenges for one key from overlapping.
func (t *contextTable) AwaitFree(ctx context.Context, key string) (*Lease, error) {
	return t.wait(ctx, key, func(s *slot) bool { return !s.held && s.pending == nil })
}

func (t *contextTable) wait(ctx context.Context, key string, ready func(*slot) bool) (*Lease, error) {
	sh := t.shard(key)
	for {
		sh.mu.Lock()
		s := sh.slots[key]
		if s == nil {
			s = &slot{correlation: uuid.NewString(), changed: make(chan struct{})}
			sh.slots[key] = s
		}
		if ready(s) {
			s.held = true
			sh.mu.Unlock()
			return &Lease{table: t, shard: sh, key: key, slot: s}, nil
		}
		changed := s.changed
		sh.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Has reports whether a handshake is pending for key.
func (t *contextTable) Has(key string) bool {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s := sh.slots[key]
	return s != nil && s.pending != nil
}

// Len returns the number of pending handshakes.
func (t *contextTable) Len() int {
	return int(t.pending.Load())
}

// Sweep releases pending handshakes idle for longer than the maximum age.
// Keys held by a request are skipped. It returns the number released.
func (t *contextTable) Sweep(now time.Time) int {
	var victims []*secctx.ContextHandle
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for key, s := range sh.slots {
			if s.held || s.pending == nil || now.Sub(s.touched) <= t.maxAge {
				continue
			}
			victims = append(victims, s.pending)
			s.pending = nil
			t.pending.Add(-1)
			delete(sh.slots, key)
			s.broadcast()
		}
		sh.mu.Unlock()
	}

	for _, h := range victims {
		t.release(h, "expired")
	}
	return len(victims)
}

// Close releases every pending handshake not held by a request. Handshakes
// held at that moment are released when their request lets go of the key.
func (t *contextTable) Close() {
	t.closed.Store(true)
	t.Sweep(t.clock.Now().Add(t.maxAge + time.Nanosecond))
}

func (t *contextTable) release(h *secctx.ContextHandle, reason string) {
	if h == nil {
		return
	}
	if err := h.Release(); err != nil && !errors.Is(err, secctx.ErrReleased) {
		t.logger.Warn("Delete security context failed", "context", h, "reason", reason, "error", err)
		return
	}
	t.logger.Debug("Security context deleted", "context", h, "reason", reason)
}

// Lease is a request's exclusive hold on a correlation key.
type Lease struct {
	table *contextTable
	shard *shard
	key   string
	slot  *slot
	done  bool
}

// Key returns the correlation key.
func (l *Lease) Key() string {
	return l.key
}

// Correlation returns the handshake's audit correlation ID.
func (l *Lease) Correlation() string {
	return l.slot.correlation
}

// Pending returns the pending handshake for the key, or nil.
func (l *Lease) Pending() *secctx.ContextHandle {
	l.shard.mu.Lock()
	defer l.shard.mu.Unlock()
	return l.slot.pending
}

// Store records h as the pending handshake and refreshes its age. A
// different handle pending before is released.
func (l *Lease) Store(h *secctx.ContextHandle) {
	l.shard.mu.Lock()
	old := l.slot.pending
	l.slot.pending = h
	l.slot.touched = l.table.clock.Now()
	switch {
	case old == nil && h != nil:
		l.table.pending.Add(1)
	case old != nil && h == nil:
		l.table.pending.Add(-1)
	}
	l.shard.mu.Unlock()

	if old != nil && old != h {
		l.table.release(old, "replaced")
	}
}

// Complete deletes the pending handshake and h, if it differs, and frees the
// key. It is safe to call more than once.
func (l *Lease) Complete(h *secctx.ContextHandle) {
	l.shard.mu.Lock()
	if l.done {
		// The key may belong to another request by now.
		l.shard.mu.Unlock()
		l.table.release(h, "complete")
		return
	}
	old := l.slot.pending
	if old != nil {
		l.slot.pending = nil
		l.table.pending.Add(-1)
	}
	l.shard.mu.Unlock()

	l.table.release(old, "complete")
	if h != old {
		l.table.release(h, "complete")
	}
	l.Release()
}

// Release frees the key, keeping any pending handshake for the next leg.
// Calls after the first do nothing.
func (l *Lease) Release() {
	l.shard.mu.Lock()
	if l.done {
		l.shard.mu.Unlock()
		return
	}
	l.done = true
	l.slot.held = false

	var orphan *secctx.ContextHandle
	if l.table.closed.Load() && l.slot.pending != nil {
		orphan = l.slot.pending
		l.slot.pending = nil
		l.table.pending.Add(-1)
	}
	if l.slot.pending == nil && l.shard.slots[l.key] == l.slot {
		delete(l.shard.slots, l.key)
	}
	l.slot.broadcast()
	l.shard.mu.Unlock()

	l.table.release(orphan, "closed")
}

// sweeper runs the table sweep periodically.
type sweeper struct {
	table    *contextTable
	interval time.Duration
	onSweep  func(n int)

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func newSweeper(t *contextTable, interval time.Duration, onSweep func(n int)) *sweeper {
	return &sweeper{table: t, interval: interval, onSweep: onSweep}
}

// start begins the sweep loop.
func (sw *sweeper) start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return
	}
	sw.running = true
	sw.stopCh = make(chan struct{})
	sw.stoppedCh = make(chan struct{})

	go sw.loop()
}

// stop halts the sweep loop and waits for it to exit.
func (sw *sweeper) stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	close(sw.stopCh)
	stoppedCh := sw.stoppedCh
	sw.mu.Unlock()

	<-stoppedCh
}

func (sw *sweeper) loop() {
	defer func() {
		sw.mu.Lock()
		sw.running = false
		close(sw.stoppedCh)
		sw.mu.Unlock()
	}()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stopCh:
			return
		case <-ticker.C:
			if n := sw.table.Sweep(sw.table.clock.Now()); n > 0 {
				sw.table.logger.Debug("Swept idle security contexts", "count", n)
				if sw.onSweep != nil {
					sw.onSweep(n)
				}
			}
		}
	}
}
