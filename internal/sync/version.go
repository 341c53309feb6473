package sync

import "sync"

// Allocator owns the process-wide version counter.
//
// All tables share one version space. The counter is seeded from the
// store's maximum version at startup and never decreases for the life
// of the process. Gaps are expected: a change that loses the
// last-writer-wins check never consumes a number, and Allocate is
// called once per applied change, never batched.
//
// The mutex is injected so the counter can share the sync server's
// request-level critical section; the allocator is not a bare atomic.
// The lock is held for the duration of the access only, never across
// store I/O.
type Allocator struct {
	mu      *sync.Mutex
	current int64
}

// NewAllocator creates an allocator seeded with the given version,
// guarded by the provided mutex. If mu is nil a private mutex is used.
func NewAllocator(mu *sync.Mutex, initial int64) *Allocator {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Allocator{mu: mu, current: initial}
}

// Current returns a snapshot of the counter.
func (a *Allocator) Current() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Allocate atomically increments the counter and returns the new
// value. Concurrently applied changes receive distinct numbers.
func (a *Allocator) Allocate() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current++
	return a.current
}

// AdvanceTo raises the counter to max(current, observed). Called after
// any operation that may have advanced the store's true maximum, e.g.
// a backfill or a write through another entry point. The counter is
// never rewound.
func (a *Allocator) AdvanceTo(observed int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if observed > a.current {
		a.current = observed
	}
}
