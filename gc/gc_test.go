// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/linrt/tuple"
)

func TestCandidateSetDeduplicatesAndDrains(t *testing.T) {
	s := New()
	s.Add(1, 2, 1)
	assert.Equal(t, 2, s.Len())

	drained := s.Drain()
	assert.ElementsMatch(t, []tuple.NodeID{1, 2}, drained)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Drain())
}

func TestCandidateSetAddNoopOnEmpty(t *testing.T) {
	s := New()
	s.Add()
	assert.Equal(t, 0, s.Len())
}
