// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/tuple"
)

func TestNodeDequePushPopIsLIFO(t *testing.T) {
	d := newNodeDeque()
	n1 := node.New(1, 1, nil)
	n2 := node.New(2, 2, nil)
	d.Push(n1)
	d.Push(n2)

	got, ok := d.Pop()
	require.True(t, ok)
	assert.Same(t, n2, got)

	got, ok = d.Pop()
	require.True(t, ok)
	assert.Same(t, n1, got)

	_, ok = d.Pop()
	assert.False(t, ok)
}

func TestNodeDequeStealTakesFromOppositeEnd(t *testing.T) {
	d := newNodeDeque()
	n1 := node.New(1, 1, nil)
	n2 := node.New(2, 2, nil)
	d.Push(n1)
	d.Push(n2)

	stolen, ok := d.Steal()
	require.True(t, ok)
	assert.Same(t, n1, stolen)
	assert.Equal(t, 1, d.Len())
}

func TestNodeDequeGrowsPastInitialCapacity(t *testing.T) {
	d := newNodeDeque()
	for i := 0; i < 200; i++ {
		id := tuple.NodeID(i)
		d.Push(node.New(id, id, nil))
	}
	assert.Equal(t, 200, d.Len())
}
