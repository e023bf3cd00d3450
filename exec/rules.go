// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package exec

import "container/heap"

// RuleID identifies a compiled rule by its position in the program's
// rule table. Lower ids are higher priority: the interpreter always
// fires the lowest-numbered ready rule before any higher-numbered one,
// so rule order in the source program determines firing order among
// simultaneously-ready rules.
type RuleID uint32

// ruleHeap is a container/heap min-heap over RuleID, giving O(log n)
// insertion and O(log n) extraction of the lowest (highest-priority)
// ready rule.
type ruleHeap []RuleID

func (h ruleHeap) Len() int            { return len(h) }
func (h ruleHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h ruleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *ruleHeap) Push(x any)         { *h = append(*h, x.(RuleID)) }
func (h *ruleHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// rulePriorityQueue pairs the heap with a ready set so MarkReady can
// cheaply no-op on a rule that is already pending, instead of letting
// the same rule id accumulate duplicate heap entries.
type rulePriorityQueue struct {
	h     ruleHeap
	ready map[RuleID]bool
}

func newRulePriorityQueue() *rulePriorityQueue {
	return &rulePriorityQueue{ready: make(map[RuleID]bool)}
}

// MarkReady pushes rule onto the queue unless it is already pending.
func (q *rulePriorityQueue) MarkReady(rule RuleID) {
	if q.ready[rule] {
		return
	}
	q.ready[rule] = true
	heap.Push(&q.h, rule)
}

// Pop removes and returns the lowest-id ready rule.
func (q *rulePriorityQueue) Pop() (RuleID, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	rule := heap.Pop(&q.h).(RuleID)
	delete(q.ready, rule)
	return rule, true
}

// Len reports how many rules are currently pending.
func (q *rulePriorityQueue) Len() int { return q.h.Len() }
