// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package trie implements the per-predicate tuple index described by
// the runtime: a multi-level prefix tree keyed by tuple field values,
// with every stored tuple also threaded onto a doubly-linked leaf list
// in insertion order. The trie's levels give O(1)-ish exact lookup
// (used by Insert to detect re-derivation) and O(1) detachment by leaf
// identity; the leaf list is what iteration actually walks, because
// the runtime requires match iteration to observe tuples in insertion
// order regardless of whether a pattern is applied.
package trie

import "github.com/dreamware/linrt/tuple"

// levelNode routes by the field value at one tuple position. Entries
// are bucketed by field hash with a short collision list, mirroring
// the teacher's popcount-compressed child arrays but keyed by a
// generic hash instead of a fixed byte stride, since tuple fields are
// not restricted to small integer ranges.
type levelNode struct {
	branches map[uint64][]*branch
}

func newLevelNode() *levelNode {
	return &levelNode{branches: make(map[uint64][]*branch)}
}

// branch is one entry in a level: either an intermediate edge to the
// next level (next != nil) or, at the final tuple position, the leaf
// holding the stored tuple (leaf != nil). Never both.
type branch struct {
	field tuple.Field
	next  *levelNode
	leaf  *Leaf
}

// Leaf is a tuple's identity inside a trie. It carries the stored
// tuple, the doubly-linked list pointers used for insertion-ordered
// iteration, and the back-pointer into the trie's final level needed
// to detach the leaf in O(1) without re-searching.
type Leaf struct {
	Tuple *tuple.Tuple

	prev, next *Leaf
	removed    bool

	level     *levelNode // final-level node holding this leaf's branch, nil for arity 0
	bucketKey uint64
}

// Trie indexes every tuple of one predicate.
type Trie struct {
	arity int
	root  *levelNode
	zero  *Leaf // used only when arity == 0

	head, tail *Leaf
	size       int
	generation uint64
}

// New creates an empty trie for a predicate of the given arity.
func New(arity int) *Trie {
	return &Trie{arity: arity, root: newLevelNode()}
}

// Size returns the number of distinct tuples (leaves) currently stored.
func (tr *Trie) Size() int { return tr.size }

// Insert adds tpl to the trie. If an identical tuple (by field value)
// is already present, its leaf's derivation count is incremented by
// tpl.Count instead of creating a second leaf, and ok is false — the
// caller must treat tpl as discarded. On ok == true, the trie now owns
// tpl and the returned leaf's position at the tail of the iteration
// order is fixed until the leaf is deleted and a fresh tuple with the
// same fields is later reinserted.
func (tr *Trie) Insert(tpl *tuple.Tuple) (leaf *Leaf, ok bool) {
	if tr.arity == 0 {
		if tr.zero != nil && !tr.zero.removed {
			tr.zero.Tuple.Count += tpl.Count
			return tr.zero, false
		}
		tr.zero = tr.newLeaf(tpl)
		return tr.zero, true
	}

	level := tr.root
	for i := 0; i < tr.arity-1; i++ {
		level = descendOrCreate(level, tpl.Fields[i])
	}

	last := tpl.Fields[tr.arity-1]
	hash := last.Hash()
	for _, b := range level.branches[hash] {
		if b.leaf != nil && b.field.Equal(last) && !b.leaf.removed {
			b.leaf.Tuple.Count += tpl.Count
			return b.leaf, false
		}
	}

	l := tr.newLeaf(tpl)
	l.level = level
	l.bucketKey = hash
	level.branches[hash] = append(level.branches[hash], &branch{field: last, leaf: l})
	return l, true
}

// Find locates the leaf holding a tuple with exactly these field
// values, without inserting. Used by delete-by-value (store.DeleteTuple)
// where the caller has reconstructed the tuple's fields but not the
// leaf pointer itself.
func (tr *Trie) Find(fields []tuple.Field) (*Leaf, bool) {
	if tr.arity == 0 {
		if tr.zero != nil && !tr.zero.removed {
			return tr.zero, true
		}
		return nil, false
	}

	level := tr.root
	for i := 0; i < tr.arity-1; i++ {
		next := descend(level, fields[i])
		if next == nil {
			return nil, false
		}
		level = next
	}

	last := fields[tr.arity-1]
	hash := last.Hash()
	for _, b := range level.branches[hash] {
		if b.leaf != nil && b.field.Equal(last) && !b.leaf.removed {
			return b.leaf, true
		}
	}
	return nil, false
}

func descend(level *levelNode, field tuple.Field) *levelNode {
	hash := field.Hash()
	for _, b := range level.branches[hash] {
		if b.next != nil && b.field.Equal(field) {
			return b.next
		}
	}
	return nil
}

func descendOrCreate(level *levelNode, field tuple.Field) *levelNode {
	hash := field.Hash()
	for _, b := range level.branches[hash] {
		if b.next != nil && b.field.Equal(field) {
			return b.next
		}
	}
	next := newLevelNode()
	level.branches[hash] = append(level.branches[hash], &branch{field: field, next: next})
	return next
}

func (tr *Trie) newLeaf(tpl *tuple.Tuple) *Leaf {
	l := &Leaf{Tuple: tpl}
	if tr.tail == nil {
		tr.head, tr.tail = l, l
	} else {
		tr.tail.next = l
		l.prev = tr.tail
		tr.tail = l
	}
	tr.size++
	return l
}

// DeleteInfo is the deferred physical-release handle returned by
// Delete. Decrementing a leaf's count to zero only marks it
// logically gone; Release performs the O(1) detachment from both the
// trie index and the leaf list, and reports any node-typed fields the
// removed tuple carried, since those nodes are candidates for the
// garbage collector to revisit (see package gc).
//
// Calling Release is mandatory whenever Delete reports a count that
// reached zero (Empty() == true) and must happen before any iterator
// that might still be positioned on this leaf is discarded, so that
// unlinking and the iterator's own bookkeeping stay consistent.
type DeleteInfo struct {
	trie    *Trie
	leaf    *Leaf
	release bool
}

// Empty reports whether the tuple's derivation count reached zero,
// i.e. whether Release must be called.
func (d DeleteInfo) Empty() bool { return d.release }

// Release performs the deferred physical detachment, returning the
// node ids referenced by the removed tuple's fields as candidate-GC
// nodes. Calling Release when Empty() is false is a no-op.
func (d DeleteInfo) Release() []tuple.NodeID {
	if !d.release {
		return nil
	}
	d.trie.detach(d.leaf)
	return gcCandidates(d.leaf.Tuple)
}

// Delete decrements leaf's derivation count by one. The caller owns
// leaf (it must have been obtained from Insert or a Match iterator on
// this trie) — decrementing a leaf already at zero is a programming
// error and panics, mirroring the source's fatal invariant-violation
// policy for retractions beyond the tracked multiplicity.
func (tr *Trie) Delete(leaf *Leaf) DeleteInfo {
	if leaf.Tuple.Count == 0 {
		panic("trie: delete of a tuple with derivation count already zero")
	}
	leaf.Tuple.Count--
	if leaf.Tuple.Count > 0 {
		return DeleteInfo{}
	}
	return DeleteInfo{trie: tr, leaf: leaf, release: true}
}

// ForceDelete unconditionally removes leaf regardless of its remaining
// derivation count, used by DeleteByIndex for bulk pattern-based
// removal rather than single-derivation retraction.
func (tr *Trie) ForceDelete(leaf *Leaf) DeleteInfo {
	leaf.Tuple.Count = 0
	return DeleteInfo{trie: tr, leaf: leaf, release: true}
}

func (tr *Trie) detach(leaf *Leaf) {
	if leaf.removed {
		return
	}
	if leaf.prev != nil {
		leaf.prev.next = leaf.next
	} else {
		tr.head = leaf.next
	}
	if leaf.next != nil {
		leaf.next.prev = leaf.prev
	} else {
		tr.tail = leaf.prev
	}
	// leaf.prev/.next are intentionally left untouched: an iterator
	// resting on leaf at the moment of detachment must still be able
	// to step to what came after it.
	leaf.removed = true
	tr.size--
	tr.generation++

	if leaf.level == nil {
		if tr.zero == leaf {
			tr.zero = nil
		}
		return
	}
	bucket := leaf.level.branches[leaf.bucketKey]
	for i, b := range bucket {
		if b.leaf == leaf {
			bucket[i] = bucket[len(bucket)-1]
			leaf.level.branches[leaf.bucketKey] = bucket[:len(bucket)-1]
			break
		}
	}
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

// Pattern constrains a Match: PatternKind selects whether a position
// is unconstrained, pinned to an exact value, or bound to a variable
// that must take the same value at every position sharing its Var id.
type PatternKind uint8

const (
	Wildcard PatternKind = iota
	Exact
	Bind
)

type PatternElem struct {
	Kind  PatternKind
	Value tuple.Field // meaningful when Kind == Exact
	Var   int         // meaningful when Kind == Bind
}

type Pattern []PatternElem

// Iterator is a lazy, finite, single-pass external iterator over a
// trie's leaves in insertion order. It tolerates a Delete (and
// Release) of the leaf it is currently positioned on: the next leaf
// to visit is captured before the leaf is handed to the caller, so a
// retraction performed while processing the current leaf cannot
// disturb the iterator's progress. Deletes of already-visited leaves
// are likewise safe; deletes of not-yet-visited leaves simply remove
// them from the remaining traversal.
type Iterator struct {
	next    *Leaf
	pattern Pattern // nil means unfiltered
}

// MatchAll returns an iterator over every leaf in the trie, visited in
// insertion order.
func (tr *Trie) MatchAll() *Iterator {
	return &Iterator{next: tr.head}
}

// Match returns an iterator over the leaves whose tuple satisfies
// pattern, still visited in insertion order: the runtime's ordering
// guarantee (§4.2) applies identically whether or not a pattern is
// supplied, so Match filters the same insertion-ordered walk rather
// than attempting a structural descent that would reorder results.
func (tr *Trie) Match(pattern Pattern) *Iterator {
	if pattern == nil {
		return tr.MatchAll()
	}
	return &Iterator{next: tr.head, pattern: pattern}
}

func matches(l *Leaf, pattern Pattern) bool {
	return Matches(l.Tuple, pattern)
}

// Matches reports whether t's fields satisfy pattern. Exported so that
// other containers indexing the same predicate family (see package
// compact) can filter with identical wildcard/exact/bind semantics
// without duplicating the constraint logic.
func Matches(t *tuple.Tuple, pattern Pattern) bool {
	bound := make(map[int]tuple.Field)
	for i, elem := range pattern {
		if i >= len(t.Fields) {
			return false
		}
		field := t.Fields[i]
		switch elem.Kind {
		case Wildcard:
			continue
		case Exact:
			if !field.Equal(elem.Value) {
				return false
			}
		case Bind:
			if prev, ok := bound[elem.Var]; ok {
				if !field.Equal(prev) {
					return false
				}
			} else {
				bound[elem.Var] = field
			}
		}
	}
	return true
}

// Next advances the iterator, returning the next matching leaf still
// present. It returns ok == false once the traversal is exhausted.
func (it *Iterator) Next() (leaf *Leaf, ok bool) {
	for {
		for it.next != nil && it.next.removed {
			it.next = it.next.next
		}
		if it.next == nil {
			return nil, false
		}
		result := it.next
		it.next = result.next
		if it.pattern == nil || matches(result, it.pattern) {
			return result, true
		}
	}
}
