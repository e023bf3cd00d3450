// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/linrt/tuple"
)

func sumPred() *tuple.Predicate {
	return &tuple.Predicate{
		Name: "total", Arity: 2,
		FieldTypes: []tuple.Kind{tuple.KindInt, tuple.KindInt},
		Aggregate:  &tuple.AggregateSpec{Op: tuple.AggSum, KeyArity: 1, ValueIndex: 1},
	}
}

func contrib(key, val int64, depth uint32) *tuple.Tuple {
	return tuple.New(sumPred(), []tuple.Field{tuple.IntField(key), tuple.IntField(val)}, depth)
}

func TestTableSumAggregation(t *testing.T) {
	spec := sumPred().Aggregate
	tbl := New(spec)

	tbl.Add(contrib(1, 10, 0))
	tbl.Add(contrib(1, 20, 0))
	tbl.Add(contrib(2, 5, 0))

	v, ok := tbl.Value([]tuple.Field{tuple.IntField(1)})
	require.True(t, ok)
	assert.EqualValues(t, 30, v.Int())

	v, ok = tbl.Value([]tuple.Field{tuple.IntField(2)})
	require.True(t, ok)
	assert.EqualValues(t, 5, v.Int())

	assert.Equal(t, 2, tbl.Size())
}

func TestTableRemoveEmptiesGroup(t *testing.T) {
	spec := sumPred().Aggregate
	tbl := New(spec)

	c := contrib(1, 10, 0)
	tbl.Add(c)

	emptied := tbl.Remove(c)
	assert.True(t, emptied)
	_, ok := tbl.Value([]tuple.Field{tuple.IntField(1)})
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Size())
}

func TestTableRemovePartialRecomputes(t *testing.T) {
	spec := sumPred().Aggregate
	tbl := New(spec)

	a := contrib(1, 10, 0)
	b := contrib(1, 20, 0)
	tbl.Add(a)
	tbl.Add(b)

	emptied := tbl.Remove(a)
	assert.False(t, emptied)

	v, ok := tbl.Value([]tuple.Field{tuple.IntField(1)})
	require.True(t, ok)
	assert.EqualValues(t, 20, v.Int())
}

func TestTableRemoveDepthUnwindsSpeculation(t *testing.T) {
	spec := sumPred().Aggregate
	tbl := New(spec)

	tbl.Add(contrib(1, 10, 0))
	tbl.Add(contrib(1, 20, 2))
	tbl.Add(contrib(2, 5, 2))

	emptied := tbl.RemoveDepth(2)
	assert.Len(t, emptied, 1)
	assert.Equal(t, []tuple.Field{tuple.IntField(2)}, emptied[0])

	v, ok := tbl.Value([]tuple.Field{tuple.IntField(1)})
	require.True(t, ok)
	assert.EqualValues(t, 10, v.Int())

	_, ok = tbl.Value([]tuple.Field{tuple.IntField(2)})
	assert.False(t, ok)
}

func TestTableCountAndMinMax(t *testing.T) {
	countSpec := &tuple.AggregateSpec{Op: tuple.AggCount, KeyArity: 1, ValueIndex: 1}
	ct := New(countSpec)
	ct.Add(contrib(1, 0, 0))
	ct.Add(contrib(1, 0, 0))
	v, _ := ct.Value([]tuple.Field{tuple.IntField(1)})
	assert.EqualValues(t, 2, v.Int())

	minSpec := &tuple.AggregateSpec{Op: tuple.AggMin, KeyArity: 1, ValueIndex: 1}
	mt := New(minSpec)
	mt.Add(contrib(1, 30, 0))
	mt.Add(contrib(1, 10, 0))
	mt.Add(contrib(1, 20, 0))
	v, _ = mt.Value([]tuple.Field{tuple.IntField(1)})
	assert.EqualValues(t, 10, v.Int())

	maxSpec := &tuple.AggregateSpec{Op: tuple.AggMax, KeyArity: 1, ValueIndex: 1}
	xt := New(maxSpec)
	xt.Add(contrib(1, 30, 0))
	xt.Add(contrib(1, 10, 0))
	v, _ = xt.Value([]tuple.Field{tuple.IntField(1)})
	assert.EqualValues(t, 30, v.Int())
}
