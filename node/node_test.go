// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/linrt/tuple"
)

var testPred = &tuple.Predicate{ID: 1, Name: "p", Arity: 1, FieldTypes: []tuple.Kind{tuple.KindInt}}

func TestNodeStartsIdleWithEmptyQueue(t *testing.T) {
	n := New(1, 100, []*tuple.Predicate{testPred})
	assert.Equal(t, Idle, n.State())
	assert.False(t, n.HasWork())
}

func TestNodeEnqueueReportsWasIdle(t *testing.T) {
	n := New(1, 100, []*tuple.Predicate{testPred})
	item := Item{Tuple: tuple.New(testPred, []tuple.Field{tuple.IntField(1)}, 0)}

	wasIdle := n.Enqueue(item)
	assert.True(t, wasIdle)
	assert.True(t, n.HasWork())

	n.SetState(InQueue)
	wasIdle = n.Enqueue(item)
	assert.False(t, wasIdle)
}

func TestNodeDrainQueueReturnsInOrderAndEmpties(t *testing.T) {
	n := New(1, 100, []*tuple.Predicate{testPred})
	n.Enqueue(Item{Tuple: tuple.New(testPred, []tuple.Field{tuple.IntField(1)}, 0)})
	n.Enqueue(Item{Tuple: tuple.New(testPred, []tuple.Field{tuple.IntField(2)}, 0)})

	items := n.DrainQueue()
	assert.Len(t, items, 2)
	assert.EqualValues(t, 1, items[0].Tuple.Fields[0].Int())
	assert.EqualValues(t, 2, items[1].Tuple.Fields[0].Int())
	assert.False(t, n.HasWork())
	assert.Nil(t, n.DrainQueue())
}
