// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package exec

import "github.com/dreamware/linrt/tuple"

// Retracting a negative contribution to an aggregate (AddToAggregate
// called with negative=true) must first try to cancel a positive
// contribution this same firing staged earlier, in case a rule body
// derives and retracts the same contribution before either one commits
// — nothing else would ever unstage it. The three variants below differ
// only in how precisely they must match the canceled contribution
// against s.persistentTuples: Partial (group key
// only, cheapest, requires pred to carry an AggregateSpec), Full (exact
// field equality), and Normal (Full's fallback for predicates with no
// AggregateSpec, where a group key cannot be taken). AddToAggregate
// tries them in that order and falls back to canceling a contribution
// already committed to the store when none of them find a match.

// SearchForNegativeTuplePartial looks for a tuple staged earlier in this
// firing as a positive contribution to pred sharing neg's aggregate
// group key, unstages it, and returns it.
func (s *State) SearchForNegativeTuplePartial(pred *tuple.Predicate, neg *tuple.Tuple) (*tuple.Tuple, bool) {
	if pred.Aggregate == nil {
		return nil, false
	}
	key := neg.GroupKey(pred.Aggregate.KeyArity)
	for i, tpl := range s.persistentTuples {
		if tpl.Pred != pred {
			continue
		}
		if sameFieldSlice(key, tpl.GroupKey(pred.Aggregate.KeyArity)) {
			return s.unstagePersistentTuple(i), true
		}
	}
	return nil, false
}

// SearchForNegativeTupleFull looks for a tuple staged earlier in this
// firing as a positive contribution to pred with fields identical to
// neg, unstages it, and returns it.
func (s *State) SearchForNegativeTupleFull(pred *tuple.Predicate, neg *tuple.Tuple) (*tuple.Tuple, bool) {
	for i, tpl := range s.persistentTuples {
		if tpl.Pred != pred {
			continue
		}
		if tpl.SameFields(neg) {
			return s.unstagePersistentTuple(i), true
		}
	}
	return nil, false
}

// SearchForNegativeTupleNormal is SearchForNegativeTupleFull's fallback
// for predicates with no AggregateSpec, where SearchForNegativeTuplePartial's
// group-key match does not apply.
func (s *State) SearchForNegativeTupleNormal(pred *tuple.Predicate, neg *tuple.Tuple) (*tuple.Tuple, bool) {
	return s.SearchForNegativeTupleFull(pred, neg)
}

// unstagePersistentTuple removes and returns the staged tuple at index
// i, preserving the relative order of the remaining entries.
func (s *State) unstagePersistentTuple(i int) *tuple.Tuple {
	tpl := s.persistentTuples[i]
	s.persistentTuples = append(s.persistentTuples[:i], s.persistentTuples[i+1:]...)
	return tpl
}

func sameFieldSlice(a, b []tuple.Field) bool {
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
