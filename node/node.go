// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package node defines the runtime's unit of scheduling (C6): one fact
// store, one input queue, and the small state machine the scheduler
// drives a node through as work arrives and is consumed.
package node

import (
	"sync"
	"sync/atomic"

	"github.com/dreamware/linrt/store"
	"github.com/dreamware/linrt/tuple"
)

// SchedState is a node's position in the scheduler's state machine.
type SchedState int32

const (
	// Idle means the node has no pending input and is not queued on
	// any worker's node queue.
	Idle SchedState = iota
	// InQueue means the node has been pushed onto a worker's node
	// queue and is waiting to be dequeued and run.
	InQueue
	// Running means a worker currently holds and is executing this
	// node; mu is not held for the duration.
	Running
)

// Item is one unit of input delivered to a node's queue: a derived
// tuple plus whether it is an aggregate contribution (routed through
// store.AddAggTuple/RemoveAggTuple rather than store.AddTuple).
type Item struct {
	Tuple *tuple.Tuple
	IsAgg bool
	// Negative marks a retraction (aggregate removal or linear
	// consumption notice) rather than a fresh derivation.
	Negative bool
}

// Node is one addressable unit of the program graph: a fact store, an
// input queue fed by other nodes (possibly on other workers), and the
// scheduling state the work-stealing scheduler transitions it through.
//
// mu guards the queue against cross-worker delivery: Enqueue,
// DrainQueue, HasWork and TryGoIdle each take it for the duration of
// the call, including on the worker that is running the node. state is
// an atomic; SetState does not take mu. The store has its own mutex.
type Node struct {
	FakeID       tuple.NodeID
	TranslatedID tuple.NodeID
	Store        *store.Store

	mu    sync.Mutex
	queue []Item
	state atomic.Int32
}

// New creates a node bound to translated/fake ids and a fresh store
// covering preds.
func New(fakeID, translatedID tuple.NodeID, preds []*tuple.Predicate) *Node {
	return &Node{
		FakeID:       fakeID,
		TranslatedID: translatedID,
		Store:        store.New(preds),
	}
}

// State returns the node's current scheduling state. Safe to call
// without holding mu: scheduler peers only need a snapshot to decide
// whether to wake this node, not linearizable ordering with queue
// mutation.
func (n *Node) State() SchedState {
	return SchedState(n.state.Load())
}

// SetState updates the scheduling state.
func (n *Node) SetState(s SchedState) {
	n.state.Store(int32(s))
}

// TryGoIdle attempts to transition the node from Running to Idle at the
// end of a firing, under the same mu Enqueue checks state against: a
// plain check-then-SetState(Idle) done without mu would race a
// concurrent Enqueue that observes the stale Running state, skips the
// re-push it owes because wasIdle comes back false, and leaves the item
// it just queued stranded with nothing scheduled to drain it. Reports
// whether the node actually went idle; false means new work arrived
// before this call and the caller must keep running the node itself
// rather than wait for a push that will never come.
func (n *Node) TryGoIdle() (wentIdle bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) > 0 {
		return false
	}
	n.state.Store(int32(Idle))
	return true
}

// Enqueue appends item to the node's input queue and reports whether
// the node was Idle immediately beforehand — the scheduler uses this
// to decide whether the node must be (re)pushed onto a worker's node
// queue (new_work/new_work_other, spec.md §4.4).
func (n *Node) Enqueue(item Item) (wasIdle bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	wasIdle = SchedState(n.state.Load()) == Idle
	n.queue = append(n.queue, item)
	return wasIdle
}

// DrainQueue removes and returns every queued item, leaving the queue
// empty. Called by the owning worker at the start of a firing; the
// queue is per-node FIFO, so items are returned in arrival order,
// satisfying the "tuples are consumed in queue order" guarantee.
func (n *Node) DrainQueue() []Item {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return nil
	}
	items := n.queue
	n.queue = nil
	return items
}

// HasWork reports whether the node has queued input.
func (n *Node) HasWork() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue) > 0
}
