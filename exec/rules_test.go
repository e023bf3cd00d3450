// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRulePriorityQueuePopsLowestIDFirst(t *testing.T) {
	q := newRulePriorityQueue()
	q.MarkReady(5)
	q.MarkReady(1)
	q.MarkReady(3)

	var order []RuleID
	for {
		r, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, r)
	}
	assert.Equal(t, []RuleID{1, 3, 5}, order)
}

func TestRulePriorityQueueMarkReadyIsIdempotent(t *testing.T) {
	q := newRulePriorityQueue()
	q.MarkReady(2)
	q.MarkReady(2)
	assert.Equal(t, 1, q.Len())
}
