// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/linrt/internal/barrier"
	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/tuple"
)

// FireFunc runs one node's queued work to completion on behalf of
// worker w. The bytecode interpreter this ultimately drives is out of
// scope for this runtime; cmd/linrtd supplies a FireFunc built on
// package exec and its own demo rule table.
type FireFunc func(w *Worker, n *node.Node)

// RoundEndFunc is invoked by exactly one worker (the round leader) once
// every worker has run dry, to flush round-scoped bookkeeping (e.g.
// aggregate tables via store.EndIteration) and report whether that
// flush produced new work. The callback is free to call Pool.NewWork /
// Pool.NewWorkOther to deliver materialized tuples before returning.
type RoundEndFunc func() (moreWork bool)

// Pool is the fixed set of workers cooperatively running one loaded
// program: each worker owns a disjoint subset of the node graph (via
// AssignNode) and round boundaries are synchronized by a round barrier
// paired with a termination barrier, mirroring the teacher source's
// stealer/threaded split between per-worker state and pool-wide
// coordination.
type Pool struct {
	workers []*Worker

	round *barrier.RoundBarrier
	term  *barrier.TerminationBarrier
	stop  atomic.Bool

	ownerMu sync.Mutex
	owner   map[tuple.NodeID]*Worker
}

// New creates a pool of numWorkers workers, all initially active.
func New(numWorkers int) *Pool {
	p := &Pool{
		round: barrier.NewRoundBarrier(numWorkers),
		term:  barrier.NewTerminationBarrier(numWorkers),
		owner: make(map[tuple.NodeID]*Worker),
	}
	p.workers = make([]*Worker, numWorkers)
	for i := range p.workers {
		p.workers[i] = newWorker(i, p.term, &p.stop)
	}
	return p
}

// Workers returns the pool's workers, in worker-id order.
func (p *Pool) Workers() []*Worker { return p.workers }

// AssignNode gives n's fake id to a worker chosen by a simple
// round-robin split of the node id space, and returns that worker.
// Called once per node at load time (and again for ids minted at
// runtime via registry.CreateNodeID), so later deliveries to n know
// which worker's deque to push onto.
func (p *Pool) AssignNode(n *node.Node) *Worker {
	w := p.workers[int(n.FakeID)%len(p.workers)]
	w.AddNode(n.FakeID)

	p.ownerMu.Lock()
	p.owner[n.FakeID] = w
	p.ownerMu.Unlock()

	return w
}

// OwnerOf returns the worker that owns id, or nil if id has not been
// assigned via AssignNode.
func (p *Pool) OwnerOf(id tuple.NodeID) *Worker {
	p.ownerMu.Lock()
	defer p.ownerMu.Unlock()
	return p.owner[id]
}

// NewWork delivers item to target, a node self already owns (or is
// currently running): if target was idle, it is pushed onto self's
// own deque so self picks it up without involving any other worker.
func (p *Pool) NewWork(self *Worker, target *node.Node, item node.Item) {
	if target.Enqueue(item) {
		self.Push(target)
	}
}

// NewWorkOther delivers item to target, a node owned by a different
// worker: if target was idle, it is pushed onto owner's deque (waking
// owner if it had gone inactive) rather than self's, since self is not
// the worker responsible for running target.
func (p *Pool) NewWorkOther(self *Worker, owner *Worker, target *node.Node, item node.Item) {
	if target.Enqueue(item) {
		owner.Push(target)
	}
}

// NewWorkRemote would deliver a message to a node owned by another OS
// process over MPI in the original runtime; inter-process transport
// payloads are a documented non-goal of this runtime (spec §1), so
// this returns an error rather than silently dropping the delivery.
func (p *Pool) NewWorkRemote(payload []byte) error {
	return errors.New("scheduler: remote work dispatch (inter-process transport) is not implemented by this runtime")
}

// Stop requests every worker give up looking for work and return from
// Run at the next opportunity.
func (p *Pool) Stop() { p.stop.Store(true) }

// Run starts one goroutine per worker and blocks until every worker
// has returned: either because the pool ran out of work across every
// round (onRoundEnd reported no more work, or was nil), because ctx
// was cancelled, or because Stop was called.
func (p *Pool) Run(ctx context.Context, fire FireFunc, onRoundEnd RoundEndFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			return p.runWorker(ctx, w, fire, onRoundEnd)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, w *Worker, fire FireFunc, onRoundEnd RoundEndFunc) error {
	for {
		select {
		case <-ctx.Done():
			p.stop.Store(true)
			return ctx.Err()
		default:
		}

		wu, ok := w.GetWork()
		if !ok {
			if !w.BusyWait(p.workers) {
				if p.stop.Load() {
					return nil
				}
				more := p.round.Arrive(func() bool { return p.endRound(onRoundEnd) })
				if !more {
					return nil
				}
				continue
			}
			wu, ok = w.GetWork()
			if !ok {
				continue
			}
		}
		wu.Node.SetState(node.Running)
		fire(w, wu.Node)
		if !wu.Node.TryGoIdle() {
			// Work arrived while this node was Running: Enqueue saw a
			// non-idle node and never pushed it anywhere, so this
			// worker is the only one that will ever run it again.
			// Keep it InQueue and hold onto it directly rather than
			// drop it back into the deque, matching GetWork's
			// currentNode fast path.
			wu.Node.SetState(node.InQueue)
			w.currentNode = wu.Node
		}
	}
}

// endRound runs once per round, on whichever worker's Arrive call
// completed the barrier (see barrier.RoundBarrier's documented
// leader-identity simplification): it flushes round-scoped state via
// onRoundEnd and, if that produced new work, reactivates every worker
// for another round.
func (p *Pool) endRound(onRoundEnd RoundEndFunc) bool {
	if onRoundEnd == nil {
		return false
	}
	more := onRoundEnd()
	if more {
		p.term.Reset(len(p.workers))
		for _, w := range p.workers {
			w.active = true
		}
	}
	return more
}
