// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

package tuple

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultInternTableSize bounds the number of distinct strings a single
// node's execution keeps resident. Interned strings beyond the bound
// are still valid (a fresh *InternedString is allocated), they simply
// lose the sharing benefit, which only affects the fast-path pointer
// comparison in Field.Equal, never correctness.
const defaultInternTableSize = 4096

// InternTable deduplicates string constants so that fields holding the
// same text share one *InternedString, the same pattern a node's
// execution state uses for its match-descriptor cache (see exec.State).
type InternTable struct {
	cache *lru.Cache[string, *InternedString]
}

// NewInternTable creates a table bounded to defaultInternTableSize
// entries.
func NewInternTable() *InternTable {
	c, err := lru.New[string, *InternedString](defaultInternTableSize)
	if err != nil {
		// Only returns an error for a non-positive size, which is a
		// compile-time constant here.
		panic(err)
	}
	return &InternTable{cache: c}
}

// Intern returns the canonical *InternedString for s, allocating one on
// first sight.
func (t *InternTable) Intern(s string) *InternedString {
	if v, ok := t.cache.Get(s); ok {
		return v
	}
	v := &InternedString{Value: s}
	t.cache.Add(s, v)
	return v
}
