// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/linrt/internal/trie"
	"github.com/dreamware/linrt/tuple"
)

var triePred = &tuple.Predicate{ID: 1, Name: "fact", Arity: 1, FieldTypes: []tuple.Kind{tuple.KindInt}}
var compactPred = &tuple.Predicate{ID: 2, Name: "slot", Arity: 2, FieldTypes: []tuple.Kind{tuple.KindInt, tuple.KindInt}, Compact: true}
var aggPred = &tuple.Predicate{
	ID: 3, Name: "total", Arity: 2,
	FieldTypes: []tuple.Kind{tuple.KindInt, tuple.KindInt},
	Aggregate:  &tuple.AggregateSpec{Op: tuple.AggSum, KeyArity: 1, ValueIndex: 1},
}

func newTestStore() *Store {
	return New([]*tuple.Predicate{triePred, compactPred, aggPred})
}

func TestStoreAddAndDeleteTuple(t *testing.T) {
	s := newTestStore()

	isNew, _ := s.AddTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(1)}, 0))
	assert.True(t, isNew)
	assert.Equal(t, 1, s.CountTotal(triePred))

	isNew, _ = s.AddTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(1)}, 0))
	assert.False(t, isNew, "re-derivation must not create a second leaf")

	info, found := s.DeleteTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(1)}, 0))
	require.True(t, found)
	assert.False(t, info.Empty())

	info, found = s.DeleteTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(1)}, 0))
	require.True(t, found)
	assert.True(t, info.Empty())
	info.Release()
	assert.Equal(t, 0, s.CountTotal(triePred))
}

func TestStoreDeleteByLeaf(t *testing.T) {
	s := newTestStore()
	_, h := s.AddTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(9)}, 0))

	info := s.DeleteByLeaf(triePred, h)
	assert.True(t, info.Empty())
	info.Release()
	assert.Equal(t, 0, s.CountTotal(triePred))
}

func TestStoreCompactPredicate(t *testing.T) {
	s := newTestStore()
	isNew, h := s.AddTuple(tuple.New(compactPred, []tuple.Field{tuple.IntField(3), tuple.IntField(100)}, 0))
	assert.True(t, isNew)
	assert.True(t, h.isCompact)
	assert.Equal(t, 1, s.CountTotal(compactPred))

	info := s.DeleteByLeaf(compactPred, h)
	assert.True(t, info.Empty())
	assert.Equal(t, 0, s.CountTotal(compactPred))
}

func TestStoreMatchPredicateWithPattern(t *testing.T) {
	pred := &tuple.Predicate{ID: 4, Name: "pair", Arity: 2, FieldTypes: []tuple.Kind{tuple.KindInt, tuple.KindInt}}
	s := New([]*tuple.Predicate{pred})
	s.AddTuple(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.IntField(10)}, 0))
	s.AddTuple(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.IntField(20)}, 0))
	s.AddTuple(tuple.New(pred, []tuple.Field{tuple.IntField(2), tuple.IntField(10)}, 0))

	pattern := trie.Pattern{{Kind: trie.Exact, Value: tuple.IntField(1)}, {Kind: trie.Wildcard}}
	it := s.MatchPredicate(pred, pattern)
	var got []int64
	for {
		tpl, _, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, tpl.Fields[1].Int())
	}
	assert.Equal(t, []int64{10, 20}, got)
}

func TestStoreDeleteByIndex(t *testing.T) {
	pred := &tuple.Predicate{ID: 5, Name: "owned", Arity: 2, FieldTypes: []tuple.Kind{tuple.KindInt, tuple.KindNode}}
	s := New([]*tuple.Predicate{pred})
	s.AddTuple(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.NodeField(42)}, 0))
	s.AddTuple(tuple.New(pred, []tuple.Field{tuple.IntField(1), tuple.NodeField(43)}, 0))
	s.AddTuple(tuple.New(pred, []tuple.Field{tuple.IntField(2), tuple.NodeField(44)}, 0))

	pattern := trie.Pattern{{Kind: trie.Exact, Value: tuple.IntField(1)}, {Kind: trie.Wildcard}}
	gc := s.DeleteByIndex(pred, pattern)
	assert.ElementsMatch(t, []tuple.NodeID{42, 43}, gc)
	assert.Equal(t, 1, s.CountTotal(pred))
}

func TestStoreAggregateRoundTrip(t *testing.T) {
	s := newTestStore()
	s.AddAggTuple(tuple.New(aggPred, []tuple.Field{tuple.IntField(1), tuple.IntField(10)}, 0))
	s.AddAggTuple(tuple.New(aggPred, []tuple.Field{tuple.IntField(1), tuple.IntField(20)}, 0))

	out := s.EndIteration()
	require.Len(t, out, 1)
	assert.EqualValues(t, 30, out[0].Fields[1].Int())

	assert.Empty(t, s.EndIteration(), "no new contributions since the last flush")
}

func TestStoreTotalFactsAndDumpAll(t *testing.T) {
	s := newTestStore()
	s.AddTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(1)}, 0))
	s.AddTuple(tuple.New(compactPred, []tuple.Field{tuple.IntField(2), tuple.IntField(3)}, 0))

	assert.Equal(t, 2, s.TotalFacts())
	assert.Len(t, s.DumpAll(), 2)
}

func TestStoreDumpPrintAndWipeout(t *testing.T) {
	s := newTestStore()
	s.AddTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(2)}, 0))
	s.AddTuple(tuple.New(triePred, []tuple.Field{tuple.IntField(1)}, 0))

	dumped := s.Dump(triePred)
	assert.Equal(t, []string{"fact(2)#1@0", "fact(1)#1@0"}, dumped)

	printed := s.Print(triePred)
	assert.Equal(t, []string{"fact(1)#1@0", "fact(2)#1@0"}, printed)

	gc := s.Wipeout()
	assert.Empty(t, gc)
	assert.Equal(t, 0, s.CountTotal(triePred))
}
