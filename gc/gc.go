// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package gc implements the candidate-GC set (C10): nodes flagged when
// a tuple referencing them is removed from some store, drained at
// scheduler-chosen safe points (round boundaries) rather than
// processed inline, since the removal that produced the candidate may
// still be inside an in-progress iteration.
package gc

import (
	"sync"

	"github.com/dreamware/linrt/tuple"
)

// CandidateSet accumulates node ids that may now be collectible,
// deduplicating repeated additions of the same node within a batch.
type CandidateSet struct {
	mu   sync.Mutex
	ids  map[tuple.NodeID]struct{}
}

// New creates an empty candidate set.
func New() *CandidateSet {
	return &CandidateSet{ids: make(map[tuple.NodeID]struct{})}
}

// Add registers ids as GC candidates.
func (s *CandidateSet) Add(ids ...tuple.NodeID) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Len reports how many distinct candidates are currently pending.
func (s *CandidateSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Drain empties the set and returns every pending candidate, in no
// particular order. Called by the scheduler at a safe point (after a
// round's iteration has fully settled) before handing the ids to
// whatever actually reclaims node resources.
func (s *CandidateSet) Drain() []tuple.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return nil
	}
	out := make([]tuple.NodeID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.ids = make(map[tuple.NodeID]struct{})
	return out
}
