// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type widget struct {
	val int
}

func TestPoolGetPutStats(t *testing.T) {
	p := New[widget](func(w *widget) { w.val = 0 })

	w := p.Get()
	w.val = 7
	live, total := p.Stats()
	assert.EqualValues(t, 1, live)
	assert.EqualValues(t, 1, total)

	p.Put(w)
	live, _ = p.Stats()
	assert.EqualValues(t, 0, live)
	assert.Equal(t, 0, w.val, "reset must run before the value re-enters the pool")

	w2 := p.Get()
	_, total = p.Stats()
	assert.EqualValues(t, 1, total, "a reused slot must not bump total allocated")
	_ = w2
}

func TestNilPoolAlwaysAllocates(t *testing.T) {
	var p *Pool[widget]
	w := p.Get()
	assert.NotNil(t, w)
	p.Put(w) // must not panic
	live, total := p.Stats()
	assert.Zero(t, live)
	assert.Zero(t, total)
}
