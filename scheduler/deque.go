// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package scheduler

import (
	"sync"

	"github.com/dreamware/linrt/node"
)

// nodeDeque is a double-ended queue of ready nodes: the owning worker
// pushes and pops its own end (LIFO, for cache locality — a node just
// run is likely to have fresh queued work), while other workers steal
// from the opposite end (FIFO), adapted from the Chase-Lev
// work-stealing deque shape. A single mutex guards both ends rather
// than the split owner/thief lock-free scheme: correctness matters far
// more here than shaving a stolen-node's latency, and every other
// queue in this runtime (node.Node's own input queue, the round
// barrier) is already mutex-based.
type nodeDeque struct {
	mu     sync.Mutex
	buf    []*node.Node
	bottom int
	top    int
}

func newNodeDeque() *nodeDeque {
	return &nodeDeque{buf: make([]*node.Node, 64)}
}

// Push adds n to the owner's end.
func (d *nodeDeque) Push(n *node.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bottom-d.top >= len(d.buf) {
		d.grow()
	}
	d.buf[d.bottom%len(d.buf)] = n
	d.bottom++
}

// Pop removes and returns from the owner's end.
func (d *nodeDeque) Pop() (*node.Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.top >= d.bottom {
		return nil, false
	}
	d.bottom--
	n := d.buf[d.bottom%len(d.buf)]
	return n, true
}

// Steal removes and returns from the opposite end, for another worker
// to call on an idle worker's deque.
func (d *nodeDeque) Steal() (*node.Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.top >= d.bottom {
		return nil, false
	}
	n := d.buf[d.top%len(d.buf)]
	d.top++
	return n, true
}

func (d *nodeDeque) grow() {
	grown := make([]*node.Node, len(d.buf)*2)
	for i := d.top; i < d.bottom; i++ {
		grown[i%len(grown)] = d.buf[i%len(d.buf)]
	}
	d.buf = grown
}

// Len reports the number of nodes currently queued.
func (d *nodeDeque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bottom - d.top
}
