// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package compact implements the dense alternative to package trie used
// for predicates declared "compact" in their descriptor: a predicate
// whose first field is a small, densely-populated integer key can be
// stored as a contiguous array instead of paying trie overhead.
package compact

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/dreamware/linrt/tuple"
)

// Array is a dense, set-style store keyed by a tuple's first field
// (assumed to be a small non-negative integer). It grows on demand and
// tracks occupied slots in a bitset for O(1)-amortized iteration.
type Array struct {
	slots    []*tuple.Tuple
	present  *bitset.BitSet
	size     int
}

// New creates an empty compact array.
func New() *Array {
	return &Array{present: bitset.New(0)}
}

// Size returns the number of occupied slots.
func (a *Array) Size() int { return a.size }

func keyOf(t *tuple.Tuple) uint {
	return uint(t.Fields[0].Int())
}

func (a *Array) ensure(key uint) {
	if int(key) < len(a.slots) {
		return
	}
	grown := make([]*tuple.Tuple, key+1)
	copy(grown, a.slots)
	a.slots = grown
}

// Insert adds tpl, keyed by its first field. If a tuple with the same
// key is already present, its count is incremented by tpl.Count and ok
// is false, mirroring trie.Insert's dedup contract.
func (a *Array) Insert(tpl *tuple.Tuple) (ok bool) {
	key := keyOf(tpl)
	a.ensure(key)
	if a.present.Test(key) {
		a.slots[key].Count += tpl.Count
		return false
	}
	a.slots[key] = tpl
	a.present.Set(key)
	a.size++
	return true
}

// Get returns the tuple stored at key, if any.
func (a *Array) Get(key uint) (*tuple.Tuple, bool) {
	if int(key) >= len(a.slots) || !a.present.Test(key) {
		return nil, false
	}
	return a.slots[key], true
}

// Delete decrements the derivation count of the tuple at key, removing
// the slot once the count reaches zero. It reports whether the slot
// was removed (count reached zero) and the tuple's node-typed fields
// for candidate-GC purposes, matching trie.DeleteInfo's contract. A
// removed slot keeps its zero-count tuple (only its presence bit is
// cleared), so a further Delete of the same key panics.
func (a *Array) Delete(key uint) (removed bool, gcNodes []tuple.NodeID) {
	if int(key) >= len(a.slots) || a.slots[key] == nil {
		return false, nil
	}
	t := a.slots[key]
	if t.Count == 0 {
		panic("compact: delete of a tuple with derivation count already zero")
	}
	t.Count--
	if t.Count > 0 {
		return false, nil
	}
	a.present.Clear(key)
	a.size--
	return true, gcCandidates(t)
}

// ForceDelete unconditionally removes the slot at key regardless of its
// remaining derivation count, mirroring trie.ForceDelete for bulk
// pattern-based removal.
func (a *Array) ForceDelete(key uint) (gcNodes []tuple.NodeID) {
	if int(key) >= len(a.slots) || !a.present.Test(key) {
		return nil
	}
	t := a.slots[key]
	a.slots[key] = nil
	a.present.Clear(key)
	a.size--
	return gcCandidates(t)
}

func gcCandidates(t *tuple.Tuple) []tuple.NodeID {
	var out []tuple.NodeID
	seen := make(map[tuple.NodeID]bool)
	for _, f := range t.Fields {
		if f.Kind() == tuple.KindNode {
			id := f.Node()
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Iterator walks occupied slots in ascending key order.
type Iterator struct {
	a   *Array
	idx uint
}

// Iterate returns an iterator over all occupied slots.
func (a *Array) Iterate() *Iterator {
	return &Iterator{a: a}
}

// Next advances the iterator.
func (it *Iterator) Next() (*tuple.Tuple, bool) {
	next, found := it.a.present.NextSet(it.idx)
	if !found {
		return nil, false
	}
	it.idx = next + 1
	return it.a.slots[next], true
}

// Wipeout clears every slot, returning the node ids of every removed
// tuple's node-typed fields as candidate-GC nodes.
func (a *Array) Wipeout() []tuple.NodeID {
	var out []tuple.NodeID
	seen := make(map[tuple.NodeID]bool)
	it := a.Iterate()
	for {
		t, ok := it.Next()
		if !ok {
			break
		}
		for _, id := range gcCandidates(t) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	a.slots = nil
	a.present = bitset.New(0)
	a.size = 0
	return out
}
