// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package aggregate implements the C4 aggregate table: storage for
// predicates declared with a reduction operator (sum, count, min, max,
// first), where every contributing tuple is kept individually so that
// a later retraction can recompute the reduced value without rescanning
// the whole predicate, but the reduced value itself is only
// recomputed lazily, on read, the way the runtime's aggregate support
// defers materialization until the value is actually matched against.
package aggregate

import (
	"github.com/dreamware/linrt/tuple"
)

// contribution is one input tuple folded into a group's aggregate
// value, tagged with the derivation depth it arrived at so a
// depth-scoped retraction (the runtime's "forget everything derived at
// depth >= d" operation) can find it.
type contribution struct {
	fields []tuple.Field // full contributing tuple, including the key prefix
	depth  uint32
}

// Group holds every contribution sharing one key and the lazily
// recomputed reduced value.
type Group struct {
	key   []tuple.Field
	items []contribution
	dirty bool
	cache tuple.Field
}

// Table is the aggregate store for one predicate: groups keyed by the
// predicate's AggregateSpec.KeyArity leading fields.
type Table struct {
	spec   *tuple.AggregateSpec
	groups map[uint64]*bucket
}

// bucket handles hash collisions between distinct keys, mirroring the
// trie's per-level branch lists.
type bucket struct {
	entries []*Group
}

// New creates an empty aggregate table for the given spec.
func New(spec *tuple.AggregateSpec) *Table {
	return &Table{spec: spec, groups: make(map[uint64]*bucket)}
}

func hashKey(key []tuple.Field) uint64 {
	h := uint64(14695981039346656037)
	for _, f := range key {
		h ^= f.Hash()
		h *= 1099511628211
	}
	return h
}

func sameKey(a, b []tuple.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (t *Table) lookup(key []tuple.Field) *Group {
	h := hashKey(key)
	b := t.groups[h]
	if b == nil {
		return nil
	}
	for _, g := range b.entries {
		if sameKey(g.key, key) {
			return g
		}
	}
	return nil
}

func (t *Table) groupFor(key []tuple.Field) *Group {
	if g := t.lookup(key); g != nil {
		return g
	}
	h := hashKey(key)
	g := &Group{key: append([]tuple.Field(nil), key...), dirty: true}
	b := t.groups[h]
	if b == nil {
		b = &bucket{}
		t.groups[h] = b
	}
	b.entries = append(b.entries, g)
	return g
}

// Add folds tpl into the group keyed by its leading KeyArity fields.
func (t *Table) Add(tpl *tuple.Tuple) {
	key := tpl.GroupKey(t.spec.KeyArity)
	g := t.groupFor(key)
	g.items = append(g.items, contribution{fields: tpl.Fields, depth: tpl.Depth})
	g.dirty = true
}

// Remove retracts one contribution matching tpl's full field list from
// its group. It reports whether the group became empty (and was
// therefore removed from the table entirely).
func (t *Table) Remove(tpl *tuple.Tuple) (groupEmptied bool) {
	key := tpl.GroupKey(t.spec.KeyArity)
	g := t.lookup(key)
	if g == nil {
		return false
	}
	for i, c := range g.items {
		if sameFields(c.fields, tpl.Fields) {
			g.items[i] = g.items[len(g.items)-1]
			g.items = g.items[:len(g.items)-1]
			g.dirty = true
			break
		}
	}
	if len(g.items) == 0 {
		h := hashKey(key)
		b := t.groups[h]
		for i, e := range b.entries {
			if e == g {
				b.entries[i] = b.entries[len(b.entries)-1]
				b.entries = b.entries[:len(b.entries)-1]
				break
			}
		}
		if len(b.entries) == 0 {
			delete(t.groups, h)
		}
		return true
	}
	return false
}

func sameFields(a, b []tuple.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// RemoveDepth retracts every contribution across every group that was
// derived at depth >= d, used to unwind speculative derivations. It
// returns the keys of groups that became empty as a result.
func (t *Table) RemoveDepth(d uint32) (emptied [][]tuple.Field) {
	for h, b := range t.groups {
		for i := 0; i < len(b.entries); {
			g := b.entries[i]
			kept := g.items[:0]
			for _, c := range g.items {
				if c.depth < d {
					kept = append(kept, c)
				}
			}
			g.items = kept
			g.dirty = true
			if len(g.items) == 0 {
				emptied = append(emptied, g.key)
				b.entries[i] = b.entries[len(b.entries)-1]
				b.entries = b.entries[:len(b.entries)-1]
				continue
			}
			i++
		}
		if len(b.entries) == 0 {
			delete(t.groups, h)
		}
	}
	return emptied
}

// Value returns the reduced value for key, recomputing it if the group
// has been mutated since the last read.
func (t *Table) Value(key []tuple.Field) (tuple.Field, bool) {
	g := t.lookup(key)
	if g == nil || len(g.items) == 0 {
		return tuple.Field{}, false
	}
	if g.dirty {
		g.cache = reduce(t.spec.Op, t.spec.ValueIndex, g.items)
		g.dirty = false
	}
	return g.cache, true
}

func reduce(op tuple.AggOp, valueIndex int, items []contribution) tuple.Field {
	switch op {
	case tuple.AggCount:
		return tuple.IntField(int64(len(items)))
	case tuple.AggSum:
		var sum int64
		var fsum float64
		isFloat := items[0].fields[valueIndex].Kind() == tuple.KindFloat
		for _, c := range items {
			if isFloat {
				fsum += c.fields[valueIndex].Float()
			} else {
				sum += c.fields[valueIndex].Int()
			}
		}
		if isFloat {
			return tuple.FloatField(fsum)
		}
		return tuple.IntField(sum)
	case tuple.AggMin, tuple.AggMax:
		best := items[0].fields[valueIndex]
		for _, c := range items[1:] {
			v := c.fields[valueIndex]
			if less(v, best) == (op == tuple.AggMin) {
				best = v
			}
		}
		return best
	case tuple.AggFirst:
		return items[0].fields[valueIndex]
	default:
		return tuple.Field{}
	}
}

func less(a, b tuple.Field) bool {
	if a.Kind() == tuple.KindFloat {
		return a.Float() < b.Float()
	}
	return a.Int() < b.Int()
}

// Size returns the number of distinct groups currently populated.
func (t *Table) Size() int {
	n := 0
	for _, b := range t.groups {
		n += len(b.entries)
	}
	return n
}

// Keys returns every currently populated group's key, for Dump/Print
// introspection.
func (t *Table) Keys() [][]tuple.Field {
	var out [][]tuple.Field
	for _, b := range t.groups {
		for _, g := range b.entries {
			out = append(out, g.key)
		}
	}
	return out
}
