// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package store implements the per-node persistent fact store (C5): for
// every persistent predicate it holds either a trie (internal/trie) or
// a compact array (internal/compact), selected by the predicate's
// Compact flag, plus an optional aggregate table (package aggregate)
// for predicates with an AggregateSpec.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dreamware/linrt/aggregate"
	"github.com/dreamware/linrt/internal/compact"
	"github.com/dreamware/linrt/internal/trie"
	"github.com/dreamware/linrt/tuple"
)

// Handle identifies a stored tuple by identity, the way a trie.Leaf or
// a compact array key does, so that a later retraction (delete_by_leaf)
// can act without re-searching. It is opaque to callers outside this
// package.
type Handle struct {
	leaf       *trie.Leaf
	compactKey uint
	isCompact  bool
}

type predEntry struct {
	pred    *tuple.Predicate
	trie    *trie.Trie
	compact *compact.Array
	agg     *aggregate.Table
	dirty   bool // has pending aggregate contributions since last EndIteration
}

// Store is one node's persistent fact store, covering every predicate
// declared in the loaded program.
type Store struct {
	mu      sync.Mutex
	entries map[tuple.PredicateID]*predEntry
}

// New creates a store with one entry per predicate in preds.
func New(preds []*tuple.Predicate) *Store {
	s := &Store{entries: make(map[tuple.PredicateID]*predEntry, len(preds))}
	for _, p := range preds {
		e := &predEntry{pred: p}
		if p.Compact {
			e.compact = compact.New()
		} else {
			e.trie = trie.New(p.Arity)
		}
		if p.Aggregate != nil {
			e.agg = aggregate.New(p.Aggregate)
		}
		s.entries[p.ID] = e
	}
	return s
}

func (s *Store) entry(pred *tuple.Predicate) *predEntry {
	e, ok := s.entries[pred.ID]
	if !ok {
		panic(fmt.Sprintf("store: predicate %q not registered in this node's store", pred.Name))
	}
	return e
}

// AddTuple inserts tpl into its predicate's container. It reports
// whether the tuple is new (a fresh leaf/slot was created) and the
// handle identifying it. On isNew == true the store owns tpl; on false
// the existing leaf's count was bumped by tpl.Count and the caller must
// not retain tpl.
func (s *Store) AddTuple(tpl *tuple.Tuple) (isNew bool, h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(tpl.Pred)
	if e.compact != nil {
		ok := e.compact.Insert(tpl)
		return ok, Handle{compactKey: uint(tpl.Fields[0].Int()), isCompact: true}
	}
	leaf, ok := e.trie.Insert(tpl)
	return ok, Handle{leaf: leaf}
}

// DeleteInfo mirrors trie.DeleteInfo at the store level: Empty reports
// whether the tuple's derivation count reached zero, and Release
// performs the deferred physical detachment and reports candidate-GC
// node ids.
type DeleteInfo struct {
	empty   bool
	release func() []tuple.NodeID
}

// Empty reports whether Release must be called.
func (d DeleteInfo) Empty() bool { return d.empty }

// Release performs the deferred physical release, returning
// candidate-GC node ids. A no-op when Empty() is false.
func (d DeleteInfo) Release() []tuple.NodeID {
	if !d.empty || d.release == nil {
		return nil
	}
	return d.release()
}

// DeleteTuple locates the leaf holding a tuple with the same field
// values as tpl and decrements its derivation count, mirroring the
// runtime's value-addressed retraction path (used when a rule body only
// reconstructed the fields, not the original leaf pointer).
func (s *Store) DeleteTuple(tpl *tuple.Tuple) (DeleteInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(tpl.Pred)
	if e.compact != nil {
		key := uint(tpl.Fields[0].Int())
		removed, gc := e.compact.Delete(key)
		return DeleteInfo{empty: removed, release: func() []tuple.NodeID { return gc }}, true
	}
	leaf, ok := e.trie.Find(tpl.Fields)
	if !ok {
		return DeleteInfo{}, false
	}
	info := e.trie.Delete(leaf)
	return DeleteInfo{empty: info.Empty(), release: info.Release}, true
}

// DeleteByLeaf removes the tuple identified by h, a handle obtained
// from AddTuple or a match iterator, used when a linear rule has
// consumed a tuple matched by pointer identity rather than by value.
func (s *Store) DeleteByLeaf(pred *tuple.Predicate, h Handle) DeleteInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(pred)
	if h.isCompact {
		removed, gc := e.compact.Delete(h.compactKey)
		return DeleteInfo{empty: removed, release: func() []tuple.NodeID { return gc }}
	}
	info := e.trie.Delete(h.leaf)
	return DeleteInfo{empty: info.Empty(), release: info.Release}
}

// DeleteByIndex removes every tuple of pred whose fields satisfy
// pattern, returning the combined candidate-GC node ids across every
// removal. Used for bulk, pattern-based retraction rather than
// single-derivation decrement.
func (s *Store) DeleteByIndex(pred *tuple.Predicate, pattern trie.Pattern) []tuple.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(pred)
	var gc []tuple.NodeID
	if e.compact != nil {
		it := e.compact.Iterate()
		var keys []uint
		for {
			t, ok := it.Next()
			if !ok {
				break
			}
			if trie.Matches(t, pattern) {
				keys = append(keys, uint(t.Fields[0].Int()))
			}
		}
		for _, k := range keys {
			gc = append(gc, e.compact.ForceDelete(k)...)
		}
		return gc
	}
	it := e.trie.Match(pattern)
	var leaves []*trie.Leaf
	for {
		l, ok := it.Next()
		if !ok {
			break
		}
		leaves = append(leaves, l)
	}
	for _, l := range leaves {
		info := e.trie.ForceDelete(l)
		gc = append(gc, info.Release()...)
	}
	return gc
}

// AddAggTuple registers tpl as a positive contribution to the aggregate
// table of its predicate, which must declare an AggregateSpec.
func (s *Store) AddAggTuple(tpl *tuple.Tuple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(tpl.Pred)
	if e.agg == nil {
		panic(fmt.Sprintf("store: predicate %q has no aggregate spec", tpl.Pred.Name))
	}
	e.agg.Add(tpl)
	e.dirty = true
}

// RemoveAggTuple retracts tpl as a contribution to its predicate's
// aggregate table.
func (s *Store) RemoveAggTuple(tpl *tuple.Tuple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(tpl.Pred)
	if e.agg == nil {
		panic(fmt.Sprintf("store: predicate %q has no aggregate spec", tpl.Pred.Name))
	}
	e.agg.Remove(tpl)
	e.dirty = true
}

// EndIteration flushes every aggregate table with pending contributions
// since the last call, returning one fully materialized tuple per
// populated group. Called by the scheduler at round boundaries.
func (s *Store) EndIteration() []*tuple.Tuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*tuple.Tuple
	for _, e := range s.entries {
		if e.agg == nil || !e.dirty {
			continue
		}
		for _, key := range e.agg.Keys() {
			v, ok := e.agg.Value(key)
			if !ok {
				continue
			}
			fields := append(append([]tuple.Field(nil), key...), v)
			out = append(out, tuple.New(e.pred, fields, 0))
		}
		e.dirty = false
	}
	return out
}

// Iterator is the uniform, lazy, single-pass cursor returned by
// MatchPredicate, regardless of whether the predicate is trie- or
// compact-backed.
type Iterator struct {
	trieIt   *trie.Iterator
	compIt   *compact.Iterator
	pattern  trie.Pattern
}

// Next advances the iterator, returning the next matching tuple and a
// handle usable with DeleteByLeaf.
func (it *Iterator) Next() (*tuple.Tuple, Handle, bool) {
	if it.trieIt != nil {
		l, ok := it.trieIt.Next()
		if !ok {
			return nil, Handle{}, false
		}
		return l.Tuple, Handle{leaf: l}, true
	}
	for {
		t, ok := it.compIt.Next()
		if !ok {
			return nil, Handle{}, false
		}
		if it.pattern == nil || trie.Matches(t, it.pattern) {
			return t, Handle{compactKey: uint(t.Fields[0].Int()), isCompact: true}, true
		}
	}
}

// MatchPredicate returns an iterator over every stored tuple of pred
// satisfying pattern (nil means unfiltered), in the container's native
// order: leaf insertion order for trie-backed predicates, ascending key
// order for compact-backed ones.
func (s *Store) MatchPredicate(pred *tuple.Predicate, pattern trie.Pattern) *Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(pred)
	if e.compact != nil {
		return &Iterator{compIt: e.compact.Iterate(), pattern: pattern}
	}
	return &Iterator{trieIt: e.trie.Match(pattern)}
}

// CountTotal returns the number of distinct tuples currently stored for
// pred.
func (s *Store) CountTotal(pred *tuple.Predicate) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(pred)
	if e.compact != nil {
		return e.compact.Size()
	}
	return e.trie.Size()
}

// Dump renders every stored tuple of pred in the container's native
// (unsorted) order, for raw introspection.
func (s *Store) Dump(pred *tuple.Predicate) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(pred)
	var out []string
	if e.compact != nil {
		it := e.compact.Iterate()
		for {
			t, ok := it.Next()
			if !ok {
				break
			}
			out = append(out, t.String())
		}
		return out
	}
	it := e.trie.MatchAll()
	for {
		l, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, l.Tuple.String())
	}
	return out
}

// Print renders every stored tuple of pred sorted by string
// representation, for stable, human-facing introspection.
func (s *Store) Print(pred *tuple.Predicate) []string {
	out := s.Dump(pred)
	sort.Strings(out)
	return out
}

// TotalFacts returns the number of distinct tuples stored across every
// predicate in this store.
func (s *Store) TotalFacts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, e := range s.entries {
		if e.compact != nil {
			total += e.compact.Size()
		} else {
			total += e.trie.Size()
		}
	}
	return total
}

// DumpAll renders every stored tuple across every predicate, in
// predicate-then-native-container order, for whole-node introspection.
func (s *Store) DumpAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.compact != nil {
			it := e.compact.Iterate()
			for {
				t, ok := it.Next()
				if !ok {
					break
				}
				out = append(out, t.String())
			}
			continue
		}
		it := e.trie.MatchAll()
		for {
			l, ok := it.Next()
			if !ok {
				break
			}
			out = append(out, l.Tuple.String())
		}
	}
	return out
}

// Wipeout releases every tuple in every predicate's container,
// returning the combined candidate-GC node ids.
func (s *Store) Wipeout() []tuple.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var gc []tuple.NodeID
	for _, e := range s.entries {
		if e.compact != nil {
			gc = append(gc, e.compact.Wipeout()...)
			continue
		}
		it := e.trie.MatchAll()
		var leaves []*trie.Leaf
		for {
			l, ok := it.Next()
			if !ok {
				break
			}
			leaves = append(leaves, l)
		}
		for _, l := range leaves {
			info := e.trie.ForceDelete(l)
			gc = append(gc, info.Release()...)
		}
	}
	return gc
}
