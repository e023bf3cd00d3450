// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/binary"
	"log"

	"github.com/dreamware/linrt/exec"
	"github.com/dreamware/linrt/gc"
	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/scheduler"
	"github.com/dreamware/linrt/tuple"
)

// demoImageMagic fills the program image's leading magic bytes. image.Load
// never validates it, matching the real loader's unchecked-magic policy.
var demoImageMagic = [8]byte{'L', 'I', 'N', 'R', 'T', 'D', 'E', 'M'}

// demoRuleSumEvents is the one rule body this demo runtime knows how to
// evaluate directly, standing in for the bytecode interpreter: event(V)
// contributes V to total(0, sum(V)).
const demoRuleSumEvents exec.RuleID = 0

var (
	eventPred = &tuple.Predicate{ID: 1, Name: "event", Arity: 1, FieldTypes: []tuple.Kind{tuple.KindInt}}
	totalPred = &tuple.Predicate{
		ID:         2,
		Name:       "total",
		Arity:      2,
		FieldTypes: []tuple.Kind{tuple.KindInt, tuple.KindInt},
		Aggregate:  &tuple.AggregateSpec{Op: tuple.AggSum, KeyArity: 1, ValueIndex: 1},
	}

	demoPredicates = []*tuple.Predicate{eventPred, totalPred}
)

// buildDemoImage encodes a synthetic program image with numNodes entries
// (fake id == user id, 0-indexed), in the same wire format image.Load
// parses from a compiled program. The rules/predicates/code sections a
// real compiler would append after the node table are never written
// here: loading them is the bytecode loader's job, out of scope for this
// runtime (spec §1).
func buildDemoImage(numNodes int) []byte {
	buf := new(bytes.Buffer)
	buf.Write(demoImageMagic[:])
	_ = binary.Write(buf, binary.NativeEndian, uint32(1)) // version major
	_ = binary.Write(buf, binary.NativeEndian, uint32(0)) // version minor
	buf.WriteByte(0)                                      // definitions count, unused by this demo
	_ = binary.Write(buf, binary.NativeEndian, uint32(numNodes))
	for i := 0; i < numNodes; i++ {
		_ = binary.Write(buf, binary.NativeEndian, uint64(i))
		_ = binary.Write(buf, binary.NativeEndian, uint64(i))
	}
	return buf.Bytes()
}

// seedEvents enqueues eventsPerNode sequential event(v) tuples onto each
// node's input queue, followed by a retraction of event(1) (when there
// are at least two), standing in for the bytecode loader's initial fact
// injection and exercising both the add_tuple and delete_tuple paths the
// demo rule drives.
func seedEvents(owners map[tuple.NodeID]*scheduler.Worker, nodes []*node.Node, eventsPerNode int) {
	for _, n := range nodes {
		owner := owners[n.FakeID]
		wake := func(item node.Item) {
			if n.Enqueue(item) {
				owner.Push(n)
			}
		}
		for v := 0; v < eventsPerNode; v++ {
			wake(node.Item{Tuple: tuple.New(eventPred, []tuple.Field{tuple.IntField(int64(v))}, 0)})
		}
		if eventsPerNode > 1 {
			retracted := tuple.New(eventPred, []tuple.Field{tuple.IntField(1)}, 0)
			wake(node.Item{Tuple: retracted, Negative: true})
		}
	}
}

// demoFire runs demoRuleSumEvents against every event tuple a node's
// queue delivers, using one *exec.State per worker. It does not
// implement the bytecode interpreter (out of scope): it drives the same
// Setup/Stage/Process/Cleanup sequence the interpreter would, for the
// single rule this demo hand-codes, and retracts a previously persisted
// event (and its aggregate contribution) when the queue delivers a
// negative item for it. candidates collects the GC candidate node ids
// surfaced by every physical release, for draining at the next round
// boundary (demoRoundEnd) rather than acting on them mid-iteration.
func demoFire(states []*exec.State, candidates *gc.CandidateSet) scheduler.FireFunc {
	return func(w *scheduler.Worker, n *node.Node) {
		st := states[w.ID]
		for _, item := range n.DrainQueue() {
			tpl := item.Tuple
			if tpl.Pred != eventPred {
				continue
			}

			if item.Negative {
				if info, ok := n.Store.DeleteTuple(tpl); ok && info.Empty() {
					candidates.Add(info.Release()...)
					contrib := tuple.New(totalPred, []tuple.Field{tuple.IntField(0), tpl.Fields[0]}, tpl.Depth+1)
					st.Setup(n, tpl, tpl.Count, tpl.Depth, true)
					st.AddToAggregate(contrib, true)
					st.Cleanup()
				}
				continue
			}

			st.Setup(n, tpl, tpl.Count, tpl.Depth, false)
			st.StagePersistentTuple(tpl)
			for _, pred := range st.ProcessPersistentTuple() {
				st.MarkActiveRules(pred, []exec.RuleID{demoRuleSumEvents})
			}
			if _, ok := st.NextReadyRule(); ok {
				contrib := tuple.New(totalPred, []tuple.Field{tuple.IntField(0), tpl.Fields[0]}, tpl.Depth+1)
				st.AddToAggregate(contrib, false)
			}
			candidates.Add(st.DeleteLeaves()...)
			st.Cleanup()
		}
	}
}

// demoRoundEnd flushes every node's aggregate table at the end of a
// round, logs the materialized total(s), and drains candidates: every
// id it reclaims is removed from its owning worker's ownership set
// (Worker.RemoveNode; Pool.OwnerOf still reports that worker
// afterwards). This demo has no further rule to
// feed a materialized aggregate into, so it always reports no more
// work: the run ends after the round that consumes the seeded events.
func demoRoundEnd(nodes []*node.Node, candidates *gc.CandidateSet, pool *scheduler.Pool) scheduler.RoundEndFunc {
	return func() bool {
		for _, n := range nodes {
			for _, tpl := range n.Store.EndIteration() {
				log.Printf("node(%d): materialized %s", n.TranslatedID, tpl.String())
			}
		}
		for _, id := range candidates.Drain() {
			if owner := pool.OwnerOf(id); owner != nil {
				owner.RemoveNode(id)
			}
			log.Printf("gc: reclaimed candidate node %d", id)
		}
		return false
	}
}
