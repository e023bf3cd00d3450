// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package barrier provides the small synchronization primitives shared
// by the scheduler and execution state: a reusable round barrier, a
// termination barrier that tracks how many workers are still active, a
// try-lockable mutex used for the node active/inactive transition, a
// worker-local PRNG for steal-target selection, and a pair of
// bit-packing helpers (PackUint32/UnpackUint32).
package barrier

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// RoundBarrier is a cyclic, reusable rendezvous for exactly `parties`
// goroutines. Whichever goroutine's Arrive call completes the barrier
// (observes the Nth arrival) runs leaderFn exactly once before any
// caller is released, and its boolean result is delivered to every
// caller of that round — standing in for the runtime's leader
// computation (drain total_in_agg, decide whether another round is
// needed) without requiring the leader to specifically be the
// lowest-numbered worker: leaderFn's effect depends only on shared
// state, not on which goroutine happens to execute it.
type RoundBarrier struct {
	parties int

	mu         sync.Mutex
	cond       *sync.Cond
	arrived    int
	generation uint64
	moreWork   bool
}

// NewRoundBarrier creates a barrier for the given number of parties.
func NewRoundBarrier(parties int) *RoundBarrier {
	b := &RoundBarrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Arrive blocks until every party has called Arrive for the current
// round, running leaderFn exactly once on the way through, and returns
// leaderFn's result to every caller.
func (b *RoundBarrier) Arrive(leaderFn func() bool) (moreWork bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.arrived++
	if b.arrived < b.parties {
		for b.generation == gen {
			b.cond.Wait()
		}
		return b.moreWork
	}

	b.moreWork = leaderFn()
	b.arrived = 0
	b.generation++
	b.cond.Broadcast()
	return b.moreWork
}

// TerminationBarrier tracks how many of N workers currently consider
// themselves active (holding runnable work or a non-empty queue).
// AllInactive reports whether the count has dropped to zero, the
// condition get_work's busy_wait checks (combined with stop_flag)
// before declaring "no more work".
type TerminationBarrier struct {
	active atomic.Int32
}

// NewTerminationBarrier creates a barrier with all n workers initially
// marked active.
func NewTerminationBarrier(n int) *TerminationBarrier {
	tb := &TerminationBarrier{}
	tb.active.Store(int32(n))
	return tb
}

// MarkActive increments the active count; called when a worker
// transitions from PROCESS_INACTIVE to PROCESS_ACTIVE.
func (tb *TerminationBarrier) MarkActive() {
	tb.active.Add(1)
}

// MarkInactive decrements the active count; called when a worker
// transitions to PROCESS_INACTIVE after failing to find or steal work.
func (tb *TerminationBarrier) MarkInactive() {
	tb.active.Add(-1)
}

// AllInactive reports whether every worker is currently inactive.
func (tb *TerminationBarrier) AllInactive() bool {
	return tb.active.Load() <= 0
}

// Reset reinitializes the active count to n, called by the round
// leader at the start of a new round.
func (tb *TerminationBarrier) Reset(n int) {
	tb.active.Store(int32(n))
}

// TryMutex is a mutex that additionally exposes whether it is currently
// held, used for the worker active/inactive transition: a worker
// attempts the inactive transition only if it can acquire its own
// mutex without blocking (scheduler.Worker.TryMakeInactive). The
// worker's queue is not re-checked once the mutex is held.
type TryMutex struct {
	mu     sync.Mutex
	locked atomic.Bool
}

// Lock acquires the mutex, blocking if necessary.
func (m *TryMutex) Lock() {
	m.mu.Lock()
	m.locked.Store(true)
}

// TryLock attempts to acquire the mutex without blocking.
func (m *TryMutex) TryLock() bool {
	if m.mu.TryLock() {
		m.locked.Store(true)
		return true
	}
	return false
}

// Unlock releases the mutex.
func (m *TryMutex) Unlock() {
	m.locked.Store(false)
	m.mu.Unlock()
}

// Locked reports whether the mutex is currently held by some goroutine.
// Advisory only — useful for diagnostics, not for synchronization
// decisions (the lock may be released between the check and use).
func (m *TryMutex) Locked() bool {
	return m.locked.Load()
}

// WorkerRand is a worker-local pseudo-random source for
// select_steal_target, avoiding contention on a shared global
// generator across workers that steal concurrently.
type WorkerRand struct {
	r *rand.Rand
}

// NewWorkerRand creates a PRNG seeded from workerID and a fixed stream
// constant, giving each worker an independent, deterministic-per-seed
// sequence.
func NewWorkerRand(workerID uint64) *WorkerRand {
	return &WorkerRand{r: rand.New(rand.NewPCG(workerID, 0x9e3779b97f4a7c15))}
}

// IntN returns a pseudo-random integer in [0, n).
func (w *WorkerRand) IntN(n int) int {
	return w.r.IntN(n)
}

// PackUint32 combines two uint32 halves into one uint64, high half
// first. No other package in this module calls it or UnpackUint32.
func PackUint32(high, low uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}

// UnpackUint32 splits a uint64 produced by PackUint32 back into its
// two halves.
func UnpackUint32(v uint64) (high, low uint32) {
	return uint32(v >> 32), uint32(v)
}
