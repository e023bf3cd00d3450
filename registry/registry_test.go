// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/linrt/image"
	"github.com/dreamware/linrt/tuple"
)

var regPred = &tuple.Predicate{ID: 1, Name: "p", Arity: 1, FieldTypes: []tuple.Kind{tuple.KindInt}}

func TestLoadRejectsEmptyTable(t *testing.T) {
	_, err := Load(&image.NodeTable{}, []*tuple.Predicate{regPred})
	assert.Error(t, err)
}

func TestLoadTracksMaxIds(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{
		{FakeID: 3, UserID: 30},
		{FakeID: 1, UserID: 50},
	}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)
	assert.EqualValues(t, 3, r.maxNodeID)
	assert.EqualValues(t, 50, r.maxTranslatedID)
}

func TestFindNodePromotesPlaceholderOnce(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{{FakeID: 1, UserID: 10}}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)

	n1 := r.FindNode(1)
	n2 := r.FindNode(1)
	assert.Same(t, n1, n2)
	assert.EqualValues(t, 10, n1.TranslatedID)
}

func TestFindNodeMissingPanics(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{{FakeID: 1, UserID: 10}}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)

	assert.Panics(t, func() { r.FindNode(99) })
}

func TestCreateNodeIDFirstAllocationUnconstrained(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{{FakeID: 0, UserID: 0}}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)

	n := r.CreateNodeID(1)
	assert.EqualValues(t, 1, n.FakeID)
	assert.Same(t, n, r.FindNode(1))
}

func TestCreateNodeIDEnforcesMonotonicity(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{{FakeID: 5, UserID: 5}}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)

	r.CreateNodeID(6)
	assert.Panics(t, func() { r.CreateNodeID(3) })
}

func TestAllocateIDsReservesContiguousRange(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{{FakeID: 10, UserID: 10}}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)

	fake, translated := r.AllocateIDs(3)
	assert.EqualValues(t, 11, fake)
	assert.EqualValues(t, 11, translated)
	assert.EqualValues(t, 13, r.maxNodeID)
}

func TestTotalFactsCountsOnlyPromotedNodes(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{
		{FakeID: 1, UserID: 1},
		{FakeID: 2, UserID: 2},
	}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)

	assert.Equal(t, 0, r.TotalFacts())

	n := r.FindNode(1)
	n.Store.AddTuple(tuple.New(regPred, []tuple.Field{tuple.IntField(1)}, 0))
	assert.Equal(t, 1, r.TotalFacts())
}

func TestStringRendersSortedIDSet(t *testing.T) {
	table := &image.NodeTable{Entries: []image.NodeEntry{
		{FakeID: 3, UserID: 3},
		{FakeID: 1, UserID: 1},
	}}
	r, err := Load(table, []*tuple.Predicate{regPred})
	require.NoError(t, err)
	assert.Equal(t, "{1, 3}", r.String())
}
