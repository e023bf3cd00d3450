// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/tuple"
)

var factPred = &tuple.Predicate{ID: 1, Name: "fact", Arity: 1, FieldTypes: []tuple.Kind{tuple.KindInt}}

func TestPoolAssignNodeTracksOwnership(t *testing.T) {
	p := New(2)
	n := node.New(3, 3, []*tuple.Predicate{factPred})
	w := p.AssignNode(n)

	assert.True(t, w.Owns(3))
	assert.Same(t, w, p.OwnerOf(3))
}

func TestPoolNewWorkPushesOntoSelfWhenIdle(t *testing.T) {
	p := New(1)
	self := p.Workers()[0]
	n := node.New(1, 1, []*tuple.Predicate{factPred})

	p.NewWork(self, n, node.Item{Tuple: tuple.New(factPred, []tuple.Field{tuple.IntField(1)}, 0)})

	got, ok := self.queue.Pop()
	require.True(t, ok)
	assert.Same(t, n, got)
}

func TestPoolNewWorkOtherPushesOntoOwner(t *testing.T) {
	p := New(2)
	self, owner := p.Workers()[0], p.Workers()[1]
	n := node.New(2, 2, []*tuple.Predicate{factPred})

	p.NewWorkOther(self, owner, n, node.Item{Tuple: tuple.New(factPred, []tuple.Field{tuple.IntField(1)}, 0)})

	got, ok := owner.queue.Pop()
	require.True(t, ok)
	assert.Same(t, n, got)
	_, ok = self.queue.Pop()
	assert.False(t, ok)
}

func TestPoolNewWorkRemoteReturnsNotImplementedError(t *testing.T) {
	p := New(1)
	err := p.NewWorkRemote([]byte("anything"))
	assert.Error(t, err)
}

func TestPoolRunFiresQueuedNodeThenTerminates(t *testing.T) {
	p := New(2)
	n := node.New(1, 1, []*tuple.Predicate{factPred})
	w := p.AssignNode(n)
	n.Enqueue(node.Item{Tuple: tuple.New(factPred, []tuple.Field{tuple.IntField(1)}, 0)})
	w.Push(n)

	var firedCount atomic.Int32
	fire := func(_ *Worker, n *node.Node) {
		for _, item := range n.DrainQueue() {
			n.Store.AddTuple(item.Tuple)
		}
		firedCount.Add(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Run(ctx, fire, nil)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, firedCount.Load(), int32(1))
	assert.Equal(t, 1, n.Store.CountTotal(factPred))
}
