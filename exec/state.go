// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package exec implements per-firing execution state (C8): the
// scratch space a worker uses while processing one node's queued
// tuple, covering register storage, rule scheduling bitmaps, the
// match-result cache, and the classification of tuples generated by a
// rule body into persistent/local/action partitions before they are
// committed to stores or routed to other nodes.
//
// A State is reused across firings on the same worker (Setup resets
// it for the next tuple, Cleanup releases what the previous firing
// borrowed); it is never shared between workers.
package exec

import (
	"github.com/bits-and-blooms/bitset"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dreamware/linrt/internal/pool"
	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/registry"
	"github.com/dreamware/linrt/store"
	"github.com/dreamware/linrt/tuple"
)

// matchStoreSize bounds the instruction-address -> match-descriptor
// cache. Sized generously since entries are small and the cache only
// needs to survive within one firing's re-matching of the same
// instruction across backtracking attempts.
const matchStoreSize = 256

// Register holds exactly one of a store handle (a matched persistent
// tuple, consumable by DeleteByLeaf) or a queued tuple pointer (a
// matched item still sitting in the node's input queue); the two are
// disjoint; HasHandle reports which is live.
type Register struct {
	Handle    store.Handle
	Tuple     *tuple.Tuple
	HasHandle bool
}

// SetHandle stores a persistent-tuple match.
func (r *Register) SetHandle(h store.Handle) { *r = Register{Handle: h, HasHandle: true} }

// SetTuple stores a queued-tuple match.
func (r *Register) SetTuple(t *tuple.Tuple) { *r = Register{Tuple: t} }

// CallFrame is a saved return point for the (out-of-scope) bytecode
// interpreter: the instruction to resume at and the register window
// active when the call was made. The interpreter's opcode semantics
// are not implemented here; this only provides the stack the
// execution state is required to carry.
type CallFrame struct {
	ReturnAddr int
	Saved      []Register
}

// MatchDescriptor is the cached result of matching one instruction's
// pattern against the store, keyed by instruction address so a rule
// body that re-enters the same join point during backtracking does
// not re-run the search.
type MatchDescriptor struct {
	Handles []store.Handle
	Tuples  []*tuple.Tuple
}

// pendingDelete is one entry on the leaves-for-deletion list: a
// persistent tuple consumed by a linear rule body, staged for
// physical removal by DeleteLeaves rather than removed eagerly, so that a
// rule body can still read the tuple (via its Register) after it has
// matched but before the firing commits.
type pendingDelete struct {
	pred   *tuple.Predicate
	handle store.Handle
}

// ActionTuple is a tuple generated by a rule body destined for a node
// other than the one currently firing, staged until the firing
// commits so a rule that aborts mid-body never leaks a partial send.
type ActionTuple struct {
	Target   tuple.NodeID
	Tuple    *tuple.Tuple
	IsAgg    bool
	Negative bool
}

// State is one worker's execution scratch space for firing a single
// node against one queued tuple (or, when PersistentOnly is set,
// against a tuple for a predicate with no dependent rule body at
// all).
type State struct {
	Node  *node.Node
	Tuple *tuple.Tuple
	Count uint64
	Depth uint32

	// PersistentOnly marks a firing that only needs to add tpl to the
	// node's store, with no rule body to run. It is recorded by Setup
	// only: Setup resets the call stack, registers and temporary
	// partitions in this path as in any other.
	PersistentOnly bool

	Registers []Register
	CallStack []CallFrame

	consPool   *pool.Pool[tuple.Cons]
	structPool *pool.Pool[tuple.Struct]

	ruleReady  *rulePriorityQueue
	predActive *bitset.BitSet

	matchStore *lru.Cache[int, *MatchDescriptor]

	// removed guards against re-consuming the same persistent tuple
	// twice within one firing (a rule body may reference the same
	// matched linear tuple across more than one retraction point).
	// Cleared at Cleanup, not Setup: a single firing may stage several
	// retractions before it commits.
	removed map[store.Handle]struct{}

	persistentTuples []*tuple.Tuple
	localTuples      []node.Item
	actionTuples     []ActionTuple

	leavesForDeletion []pendingDelete
}

// New creates a reusable execution state sized for numRules rules and
// numPreds predicates.
func New(numRules, numPreds int, consPool *pool.Pool[tuple.Cons], structPool *pool.Pool[tuple.Struct]) *State {
	cache, err := lru.New[int, *MatchDescriptor](matchStoreSize)
	if err != nil {
		panic(err) // matchStoreSize is a positive compile-time constant
	}
	_ = numRules // rule ids are sparse: the ready heap grows on demand
	return &State{
		consPool:   consPool,
		structPool: structPool,
		ruleReady:  newRulePriorityQueue(),
		predActive: bitset.New(uint(numPreds)),
		matchStore: cache,
		removed:    make(map[store.Handle]struct{}),
	}
}

// Setup prepares the state for firing node against tpl, staged with
// the given derivation count and depth. persistentOnly is stored in
// PersistentOnly for the no-rule-body fast path; it does not skip the
// reset of registers, call stack and staged partitions.
func (s *State) Setup(n *node.Node, tpl *tuple.Tuple, count uint64, depth uint32, persistentOnly bool) {
	s.Node = n
	s.Tuple = tpl
	s.Count = count
	s.Depth = depth
	s.PersistentOnly = persistentOnly

	s.Registers = s.Registers[:0]
	s.CallStack = s.CallStack[:0]
	s.persistentTuples = s.persistentTuples[:0]
	s.localTuples = s.localTuples[:0]
	s.actionTuples = s.actionTuples[:0]
	s.leavesForDeletion = s.leavesForDeletion[:0]
}

// Cleanup clears the removed-tuple guard for the next firing and
// unbinds the node and tuple. It does not touch cons/struct cells:
// those return to their pools only through ReleaseCons/ReleaseStruct.
func (s *State) Cleanup() {
	for k := range s.removed {
		delete(s.removed, k)
	}
	s.Node = nil
	s.Tuple = nil
}

// ReleaseCons drops a reference to c, returning it to the pool once
// its refcount reaches zero.
func (s *State) ReleaseCons(c *tuple.Cons) {
	if c != nil && c.DecRef() {
		s.consPool.Put(c)
	}
}

// ReleaseStruct drops a reference to st, returning it to the pool once
// its refcount reaches zero.
func (s *State) ReleaseStruct(st *tuple.Struct) {
	if st != nil && st.DecRef() {
		s.structPool.Put(st)
	}
}

// MarkActiveRules records that pred just gained or lost a contributing
// tuple and marks every rule in dependents as ready to (re-)evaluate,
// the execution-state half of the "activate dependent rules" step.
func (s *State) MarkActiveRules(pred *tuple.Predicate, dependents []RuleID) {
	s.predActive.Set(uint(pred.ID))
	for _, r := range dependents {
		s.ruleReady.MarkReady(r)
	}
}

// NextReadyRule pops the highest-priority (lowest id) ready rule.
func (s *State) NextReadyRule() (RuleID, bool) {
	return s.ruleReady.Pop()
}

// CacheMatch records the match found at instruction address addr so a
// later re-entry to the same join point within this firing can reuse
// it instead of re-searching the store.
func (s *State) CacheMatch(addr int, m *MatchDescriptor) {
	s.matchStore.Add(addr, m)
}

// CachedMatch retrieves a previously cached match for addr, if any.
func (s *State) CachedMatch(addr int) (*MatchDescriptor, bool) {
	return s.matchStore.Get(addr)
}

// AddToAggregate registers tpl as a contribution to tpl.Pred's
// aggregate table on the firing node's store. When negative is true,
// tpl instead cancels a matching positive contribution: the cheapest
// search that can disambiguate it is tried first (Partial, then Full,
// then Normal) against contributions staged earlier in this same
// firing, falling back to canceling a contribution already committed
// to the store when nothing staged here matches.
func (s *State) AddToAggregate(tpl *tuple.Tuple, negative bool) {
	if !negative {
		s.Node.Store.AddAggTuple(tpl)
		return
	}
	if _, ok := s.SearchForNegativeTuplePartial(tpl.Pred, tpl); ok {
		return
	}
	if _, ok := s.SearchForNegativeTupleFull(tpl.Pred, tpl); ok {
		return
	}
	if _, ok := s.SearchForNegativeTupleNormal(tpl.Pred, tpl); ok {
		return
	}
	s.Node.Store.RemoveAggTuple(tpl)
}

// StagePersistentTuple records a tuple generated by the rule body for
// this node's own persistent store, committed at commit time by
// ProcessPersistentTuple's caller rather than immediately, so a rule
// body that later aborts never partially commits.
func (s *State) StagePersistentTuple(tpl *tuple.Tuple) {
	s.persistentTuples = append(s.persistentTuples, tpl)
}

// StageLocalTuple records a tuple destined for the same node's own
// input queue (a linear tuple re-derived within this firing).
func (s *State) StageLocalTuple(item node.Item) {
	s.localTuples = append(s.localTuples, item)
}

// StageActionTuple records a tuple destined for a different node.
func (s *State) StageActionTuple(a ActionTuple) {
	s.actionTuples = append(s.actionTuples, a)
}

// StageDeletion marks the persistent tuple identified by handle for
// physical removal once the firing commits.
func (s *State) StageDeletion(pred *tuple.Predicate, h store.Handle) {
	s.removed[h] = struct{}{}
	s.leavesForDeletion = append(s.leavesForDeletion, pendingDelete{pred: pred, handle: h})
}

// ProcessPersistentTuple commits every staged persistent tuple to the
// firing node's store, returning the predicates that gained a
// genuinely new tuple (one entry per new tuple), for the caller to feed
// into MarkActiveRules.
func (s *State) ProcessPersistentTuple() (newPreds []*tuple.Predicate) {
	st := s.Node.Store
	for _, tpl := range s.persistentTuples {
		isNew, _ := st.AddTuple(tpl)
		if isNew {
			newPreds = append(newPreds, tpl.Pred)
		}
	}
	return newPreds
}

// ProcessLocalTuples delivers every staged local tuple onto the firing
// node's own queue, reporting whether the node was idle immediately
// before the first delivery (the scheduler uses this, via
// node.Enqueue's existing wasIdle contract, to decide whether the node
// needs to be re-pushed onto a worker's run queue).
func (s *State) ProcessLocalTuples() (wasIdle bool) {
	for i, item := range s.localTuples {
		idle := s.Node.Enqueue(item)
		if i == 0 {
			wasIdle = idle
		}
	}
	return wasIdle
}

// ProcessActionTuples delivers every staged action tuple to its target
// node via reg, returning the distinct target node ids whose queue
// transitioned from idle to non-idle — the set the scheduler must push
// onto some worker's run queue (new_work_other, spec.md §4.4).
func (s *State) ProcessActionTuples(reg *registry.Registry) (woken []tuple.NodeID) {
	seen := make(map[tuple.NodeID]struct{})
	for _, a := range s.actionTuples {
		target := reg.FindNode(a.Target)
		if target.Enqueue(node.Item{Tuple: a.Tuple, IsAgg: a.IsAgg, Negative: a.Negative}) {
			if _, ok := seen[a.Target]; !ok {
				seen[a.Target] = struct{}{}
				woken = append(woken, a.Target)
			}
		}
	}
	return woken
}

// DeleteLeaves physically releases every tuple staged by StageDeletion
// and returns the combined candidate-GC node ids surfaced by their
// release.
func (s *State) DeleteLeaves() []tuple.NodeID {
	st := s.Node.Store
	var gc []tuple.NodeID
	for _, p := range s.leavesForDeletion {
		info := st.DeleteByLeaf(p.pred, p.handle)
		gc = append(gc, info.Release()...)
	}
	return gc
}
