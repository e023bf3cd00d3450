// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package registry implements the program-wide node registry (C7): the
// mapping from fake node id to node, populated at load time from the
// program image and grown at runtime by CreateNodeID/AllocateIDs.
//
// Mutations (Load, CreateNodeID, AllocateIDs) are serialized by one
// mutex. FindNode, after load, reads a lock-free snapshot: the
// underlying map is never mutated in place, only swapped for an
// extended copy, so a reader that loads the snapshot pointer once sees
// a consistent, if possibly slightly stale, view.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/dreamware/linrt/image"
	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/tuple"
)

// slot is one registry entry: the translated (user-visible) id paired
// with the node, promoted from placeholder to a real *node.Node the
// first time a worker initializes it.
type slot struct {
	translatedID tuple.NodeID
	once         sync.Once
	node         *node.Node
}

func (s *slot) ensure(fakeID tuple.NodeID, preds []*tuple.Predicate) *node.Node {
	s.once.Do(func() {
		s.node = node.New(fakeID, s.translatedID, preds)
	})
	return s.node
}

// Registry is the single program-wide node directory.
type Registry struct {
	mu    sync.Mutex
	preds []*tuple.Predicate

	snapshot atomic.Pointer[map[tuple.NodeID]*slot]

	maxNodeID       tuple.NodeID
	maxTranslatedID tuple.NodeID
}

// Load builds a registry from a program image's parsed node table. preds
// is the full predicate set every node's store will be constructed
// with. Mirrors database::database's constructor: max_node_id and
// max_translated_id track the maximum fake/user id seen across the
// table, not simply the entry count, and an image with zero nodes is a
// fatal load failure.
func Load(table *image.NodeTable, preds []*tuple.Predicate) (*Registry, error) {
	if len(table.Entries) == 0 {
		return nil, errors.New("registry: the program has no nodes to run")
	}

	m := make(map[tuple.NodeID]*slot, len(table.Entries))
	r := &Registry{preds: preds}
	for _, e := range table.Entries {
		m[e.FakeID] = &slot{translatedID: e.UserID}
		if e.FakeID > r.maxNodeID {
			r.maxNodeID = e.FakeID
		}
		if e.UserID > r.maxTranslatedID {
			r.maxTranslatedID = e.UserID
		}
	}
	r.snapshot.Store(&m)
	return r, nil
}

// FindNode returns the node for fakeID, promoting its placeholder entry
// to a live *node.Node on first access. A miss is fatal: it indicates a
// corrupt program image or an internal accounting error, never a
// recoverable condition, so it panics rather than returning an error.
func (r *Registry) FindNode(fakeID tuple.NodeID) *node.Node {
	m := *r.snapshot.Load()
	s, ok := m[fakeID]
	if !ok {
		panic(errors.AssertionFailedf("registry: could not find node with id %d", fakeID))
	}
	return s.ensure(fakeID, r.preds)
}

// CreateNodeID allocates and registers a new node under id, enforcing
// strict monotonicity relative to every id seen so far — except that
// the very first allocation (when the registry's high-water mark is
// still its initial zero value) is unconstrained, mirroring
// create_node_id's `if (max_node_id > 0) assert(...)` guard.
func (r *Registry) CreateNodeID(id tuple.NodeID) *node.Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxNodeID > 0 {
		if !(r.maxNodeID < id) || !(r.maxTranslatedID < id) {
			panic(errors.AssertionFailedf(
				"registry: create_node_id %d violates monotonicity (max_node_id=%d, max_translated_id=%d)",
				id, r.maxNodeID, r.maxTranslatedID))
		}
	}

	r.maxNodeID = id
	r.maxTranslatedID = id

	n := node.New(id, id, r.preds)

	old := *r.snapshot.Load()
	grown := make(map[tuple.NodeID]*slot, len(old)+1)
	for k, v := range old {
		grown[k] = v
	}
	s := &slot{translatedID: id, node: n}
	s.once.Do(func() {}) // already constructed; mark promoted
	grown[id] = s
	r.snapshot.Store(&grown)

	return n
}

// AllocateIDs reserves a contiguous run of size ids for both the fake
// and translated id spaces without creating nodes for them, returning
// the first (fake, translated) pair of the reserved range.
func (r *Registry) AllocateIDs(size uint64) (firstFake, firstTranslated tuple.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	firstFake = r.maxNodeID + 1
	firstTranslated = r.maxTranslatedID + 1

	r.maxNodeID += tuple.NodeID(size)
	r.maxTranslatedID += tuple.NodeID(size)

	return firstFake, firstTranslated
}

// TotalFacts sums CountTotal-equivalent totals (store.Store.TotalFacts)
// across every currently promoted node. Placeholder (never-initialized)
// nodes contribute zero, matching total_facts iterating the live nodes
// map.
func (r *Registry) TotalFacts() int {
	m := *r.snapshot.Load()
	total := 0
	for _, s := range m {
		if s.node != nil {
			total += s.node.Store.TotalFacts()
		}
	}
	return total
}

// nodeLineRow pairs a rendered node line with the translated id it
// sorts by, used only by PrintSorted.
type nodeLineRow struct {
	translated tuple.NodeID
	line       string
}

// PrintSorted returns one line per promoted node, sorted by translated
// id, mirroring print_db's node_sorter comparator.
func (r *Registry) PrintSorted() []string {
	m := *r.snapshot.Load()
	var rows []nodeLineRow
	for _, s := range m {
		if s.node == nil {
			continue
		}
		rows = append(rows, nodeLineRow{translated: s.node.TranslatedID, line: nodeLine(s.node)})
	}
	sortRows(rows)
	out := make([]string, len(rows))
	for i, rr := range rows {
		out[i] = rr.line
	}
	return out
}

func sortRows(rows []nodeLineRow) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].translated < rows[j-1].translated; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

func nodeLine(n *node.Node) string {
	return fmt.Sprintf("node(%d): %d facts", n.TranslatedID, n.Store.TotalFacts())
}

// DumpAll returns the raw (unsorted by any key) dump of every promoted
// node's store contents, matching dump_db's plain map-order walk.
func (r *Registry) DumpAll() []string {
	m := *r.snapshot.Load()
	var out []string
	for _, s := range m {
		if s.node == nil {
			continue
		}
		out = append(out, s.node.Store.DumpAll()...)
	}
	return out
}

// String renders the set of registered fake node ids as a compact
// brace-delimited list, matching database::print's `{id, id, ...}`
// rendering.
func (r *Registry) String() string {
	m := *r.snapshot.Load()
	ids := make([]tuple.NodeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	s := "{"
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d", id)
	}
	return s + "}"
}
