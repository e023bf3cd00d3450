// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/linrt/tuple"
)

var intPred = &tuple.Predicate{Name: "p", Arity: 1, FieldTypes: []tuple.Kind{tuple.KindInt}}

func mk(v int64) *tuple.Tuple {
	return tuple.New(intPred, []tuple.Field{tuple.IntField(v)}, 0)
}

func TestInsertIdempotence(t *testing.T) {
	tr := New(1)

	l1, isNew := tr.Insert(mk(1))
	require.True(t, isNew)
	assert.EqualValues(t, 1, l1.Tuple.Count)

	l2, isNew := tr.Insert(mk(1))
	assert.False(t, isNew)
	assert.Same(t, l1, l2)
	assert.EqualValues(t, 2, l1.Tuple.Count)
	assert.Equal(t, 1, tr.Size())

	var seen []int64
	it := tr.MatchAll()
	for {
		l, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, l.Tuple.Fields[0].Int())
	}
	assert.Equal(t, []int64{1}, seen)
}

func TestDeleteParity(t *testing.T) {
	tr := New(1)
	l, _ := tr.Insert(mk(5))
	tr.Insert(mk(5)) // count now 2

	info := tr.Delete(l)
	assert.False(t, info.Empty())
	assert.EqualValues(t, 1, l.Tuple.Count)

	info = tr.Delete(l)
	assert.True(t, info.Empty())
	gcNodes := info.Release()
	assert.Empty(t, gcNodes)
	assert.Equal(t, 0, tr.Size())

	assert.Panics(t, func() { tr.Delete(l) })
}

func TestInsertionOrderPreservedAcrossRederivation(t *testing.T) {
	tr := New(1)
	l1, _ := tr.Insert(mk(1))
	tr.Insert(mk(2))
	tr.Insert(mk(1)) // re-derivation, must not move position

	var order []int64
	it := tr.MatchAll()
	for {
		l, ok := it.Next()
		if !ok {
			break
		}
		order = append(order, l.Tuple.Fields[0].Int())
	}
	assert.Equal(t, []int64{1, 2}, order)
	assert.EqualValues(t, 2, l1.Tuple.Count)
}

func TestDeletedThenReinsertedAppearsAtTail(t *testing.T) {
	tr := New(1)
	l1, _ := tr.Insert(mk(1))
	tr.Insert(mk(2))

	info := tr.Delete(l1)
	require.True(t, info.Empty())
	info.Release()

	tr.Insert(mk(1)) // reinsert after full deletion

	var order []int64
	it := tr.MatchAll()
	for {
		l, ok := it.Next()
		if !ok {
			break
		}
		order = append(order, l.Tuple.Fields[0].Int())
	}
	assert.Equal(t, []int64{2, 1}, order)
}

func TestIteratorToleratesDeleteOfCurrentLeaf(t *testing.T) {
	tr := New(1)
	tr.Insert(mk(1))
	l2, _ := tr.Insert(mk(2))
	tr.Insert(mk(3))

	it := tr.MatchAll()
	var order []int64
	for {
		l, ok := it.Next()
		if !ok {
			break
		}
		order = append(order, l.Tuple.Fields[0].Int())
		if l == l2 {
			info := tr.Delete(l2)
			info.Release()
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, order)
}

func pairPred() *tuple.Predicate {
	return &tuple.Predicate{Name: "q", Arity: 2, FieldTypes: []tuple.Kind{tuple.KindInt, tuple.KindInt}}
}

func TestMatchWildcardAndExact(t *testing.T) {
	pred := pairPred()
	tr := New(2)
	tr.Insert(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.IntField(10)}, 0))
	tr.Insert(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.IntField(20)}, 0))
	tr.Insert(tuple.New(pred, []tuple.Field{tuple.IntField(2), tuple.IntField(10)}, 0))

	pattern := Pattern{{Kind: Exact, Value: tuple.IntField(1)}, {Kind: Wildcard}}
	it := tr.Match(pattern)
	var got [][2]int64
	for {
		l, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, [2]int64{l.Tuple.Fields[0].Int(), l.Tuple.Fields[1].Int()})
	}
	assert.Equal(t, [][2]int64{{1, 10}, {1, 20}}, got)
}

func TestMatchBindVariableEqualityConstraint(t *testing.T) {
	pred := pairPred()
	tr := New(2)
	tr.Insert(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.IntField(1)}, 0))
	tr.Insert(tuple.New(pred, []tuple.Field{tuple.IntField(2), tuple.IntField(3)}, 0))

	pattern := Pattern{{Kind: Bind, Var: 0}, {Kind: Bind, Var: 0}}
	it := tr.Match(pattern)
	l, ok := it.Next()
	require.True(t, ok)
	assert.True(t, l.Tuple.Fields[0].Equal(tuple.IntField(1)))

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestFindLocatesByFieldValue(t *testing.T) {
	pred := pairPred()
	tr := New(2)
	l, _ := tr.Insert(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.IntField(2)}, 0))

	found, ok := tr.Find([]tuple.Field{tuple.IntField(1), tuple.IntField(2)})
	require.True(t, ok)
	assert.Same(t, l, found)

	_, ok = tr.Find([]tuple.Field{tuple.IntField(9), tuple.IntField(9)})
	assert.False(t, ok)
}

func TestGCCandidatesFromDeletedTuple(t *testing.T) {
	pred := &tuple.Predicate{Name: "msg", Arity: 1, FieldTypes: []tuple.Kind{tuple.KindNode}}
	tr := New(1)
	l, _ := tr.Insert(tuple.New(pred, []tuple.Field{tuple.NodeField(7)}, 0))

	info := tr.Delete(l)
	require.True(t, info.Empty())
	ids := info.Release()
	require.Len(t, ids, 1)
	assert.EqualValues(t, 7, ids[0])
}
