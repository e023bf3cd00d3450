// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package scheduler implements the work-stealing scheduler (C9): one
// worker per OS thread, each holding a deque of ready nodes, stealing
// from peers when its own deque runs dry, coordinated at round
// boundaries by a barrier pair from internal/barrier.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/linrt/internal/barrier"
	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/tuple"
)

// cacheLinePad separates independently-locked fields that would
// otherwise share a cache line under concurrent access from different
// workers, mirroring the three padded groups in the original
// scheduler (the active/inactive mutex, the node queue, and the
// node-ownership set are each given their own line).
type cacheLinePad [128]byte

// WorkUnit is one piece of work handed to a worker by GetWork: the
// node to run next.
type WorkUnit struct {
	Node *node.Node
}

// Worker is one scheduling thread's state: its own ready-node deque,
// an active/inactive flag participating in termination detection, and
// the set of node ids it owns (assigned via Pool.AssignNode), each
// kept on a separate cache line.
type Worker struct {
	ID int

	_ cacheLinePad

	activeMu barrier.TryMutex
	active   bool

	_ cacheLinePad

	queue       *nodeDeque
	currentNode *node.Node

	_ cacheLinePad

	ownedMu sync.Mutex
	owned   map[tuple.NodeID]struct{}

	rnd *barrier.WorkerRand

	term *barrier.TerminationBarrier
	stop *atomic.Bool
}

// newWorker creates a worker bound to id, sharing pool's termination
// barrier and stop flag.
func newWorker(id int, term *barrier.TerminationBarrier, stop *atomic.Bool) *Worker {
	return &Worker{
		ID:     id,
		active: true,
		queue:  newNodeDeque(),
		owned:  make(map[tuple.NodeID]struct{}),
		rnd:    barrier.NewWorkerRand(uint64(id)),
		term:   term,
		stop:   stop,
	}
}

// MakeActive transitions the worker to PROCESS_ACTIVE, called when it
// finds or is handed new work after having gone inactive.
func (w *Worker) MakeActive() {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	if !w.active {
		w.active = true
		w.term.MarkActive()
	}
}

// MakeInactive transitions the worker to PROCESS_INACTIVE, called
// after a failed steal attempt across every peer.
func (w *Worker) MakeInactive() {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	if w.active {
		w.active = false
		w.term.MarkInactive()
	}
}

// IsActive reports the worker's current active/inactive state.
func (w *Worker) IsActive() bool {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	return w.active
}

// TryMakeInactive attempts the active -> inactive transition without
// blocking. BusyWait calls this on every failed steal sweep; blocking
// there on activeMu would stall the very loop responsible for keeping
// the worker looking for work, behind whatever peer happens to be
// touching its own active flag at that instant. Reports whether the
// attempt was made at all — false means activeMu was contended and the
// caller should just try again on its next iteration.
func (w *Worker) TryMakeInactive() (attempted bool) {
	if !w.activeMu.TryLock() {
		return false
	}
	defer w.activeMu.Unlock()
	if w.active {
		w.active = false
		w.term.MarkInactive()
	}
	return true
}

// AddNode records that the worker owns id, as reported by Owns. Routing
// for NewWorkOther does not read this set: Pool.OwnerOf answers from
// the pool's own owner map.
func (w *Worker) AddNode(id tuple.NodeID) {
	w.ownedMu.Lock()
	defer w.ownedMu.Unlock()
	w.owned[id] = struct{}{}
}

// RemoveNode drops id from the worker's ownership set, called once the
// node's candidate-GC has reclaimed it.
func (w *Worker) RemoveNode(id tuple.NodeID) {
	w.ownedMu.Lock()
	defer w.ownedMu.Unlock()
	delete(w.owned, id)
}

// Owns reports whether id is in the worker's ownership set.
func (w *Worker) Owns(id tuple.NodeID) bool {
	w.ownedMu.Lock()
	defer w.ownedMu.Unlock()
	_, ok := w.owned[id]
	return ok
}

// Push enqueues n onto the worker's own deque, waking the worker to
// PROCESS_ACTIVE if it had gone idle. n transitions to InQueue here,
// completing the Idle->InQueue edge Enqueue's wasIdle return signals.
func (w *Worker) Push(n *node.Node) {
	n.SetState(node.InQueue)
	w.queue.Push(n)
	w.MakeActive()
}

// GetWork returns the next node this worker should run: its own
// current node if set, otherwise the next entry popped from its own
// deque. The caller is responsible for stealing (see BusyWait) when
// this returns false.
func (w *Worker) GetWork() (WorkUnit, bool) {
	if w.currentNode != nil {
		n := w.currentNode
		w.currentNode = nil
		return WorkUnit{Node: n}, true
	}
	n, ok := w.queue.Pop()
	if !ok {
		return WorkUnit{}, false
	}
	return WorkUnit{Node: n}, true
}

// SelectStealTarget picks a pseudo-random peer to attempt a steal
// from, excluding itself, mirroring select_steal_target's avoid-bias
// random choice rather than always scanning peers in id order.
func (w *Worker) SelectStealTarget(peers []*Worker) *Worker {
	n := len(peers)
	if n <= 1 {
		return nil
	}
	start := w.rnd.IntN(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if peers[idx] != w {
			return peers[idx]
		}
	}
	return nil
}

// BusyWait repeatedly attempts to find work for w — first a steal from
// a randomly selected peer, then (if every peer looks empty) marks the
// worker inactive and reports false once the pool has fully
// terminated. Returns true as soon as a steal succeeds, with the
// stolen node pushed onto w's own deque ready for GetWork.
func (w *Worker) BusyWait(peers []*Worker) bool {
	for {
		if w.stop.Load() {
			w.MakeInactive()
			return false
		}
		target := w.SelectStealTarget(peers)
		if target != nil {
			if n, ok := target.queue.Steal(); ok {
				w.queue.Push(n)
				w.MakeActive()
				return true
			}
		}
		allEmpty := true
		for _, p := range peers {
			if p != w && p.queue.Len() > 0 {
				allEmpty = false
				break
			}
		}
		if allEmpty {
			w.TryMakeInactive()
			if w.term.AllInactive() {
				return false
			}
			time.Sleep(time.Millisecond)
		}
	}
}
