// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package tuple defines the data model shared by every component of the
// runtime: typed fields, fixed-arity tuples carrying a derivation count
// and a depth, and the static predicate descriptors that give tuples
// their shape.
//
// Tuple arity and field types are fixed per predicate and never change
// at runtime; the only mutable parts of a stored tuple are its
// derivation count and depth, both of which are owned by whichever
// container currently holds the tuple (trie leaf, compact array slot,
// aggregate contribution, or a saved execution-state register).
package tuple

import (
	"fmt"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies the dynamic type carried by a Field.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindNode
	KindString
	KindCons
	KindStruct
	KindPtr
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindNode:
		return "node"
	case KindString:
		return "string"
	case KindCons:
		return "cons"
	case KindStruct:
		return "struct"
	case KindPtr:
		return "ptr"
	default:
		return "unknown"
	}
}

// NodeID identifies a node in the program graph. It is also a legal
// field value (KindNode), since rules route tuples between nodes.
type NodeID uint64

// Cons is a reference-counted list cell. The runtime never creates
// cycles among cons cells, so plain reference counting (decremented
// through exec.State.ReleaseCons) is sufficient to reclaim
// them; it is exposed here only as an opaque, comparable handle.
type Cons struct {
	Head Field
	Tail Field
	refs int32
}

// IncRef bumps the cell's reference count. Called when a register or a
// free-list entry starts referencing the cell.
func (c *Cons) IncRef() { c.refs++ }

// DecRef drops the reference count and reports whether it reached zero,
// at which point the caller should return the cell to its pool.
func (c *Cons) DecRef() bool {
	c.refs--
	return c.refs <= 0
}

// Struct is a reference-counted struct instance (a fixed-size record
// produced by the interpreter's "new struct" instruction). Like Cons,
// it is opaque here; the interpreter defines field layout.
type Struct struct {
	Fields []Field
	refs   int32
}

func (s *Struct) IncRef() { s.refs++ }

func (s *Struct) DecRef() bool {
	s.refs--
	return s.refs <= 0
}

// Field is a single tagged field value inside a Tuple. It is a plain
// value type (copyable, comparable with Equal) so that tries can use it
// directly as a routing key at each trie level.
type Field struct {
	kind  Kind
	i     int64
	f     float64
	b     bool
	node  NodeID
	str   *InternedString
	cons  *Cons
	strct *Struct
	ptr   unsafe.Pointer
}

func IntField(v int64) Field      { return Field{kind: KindInt, i: v} }
func FloatField(v float64) Field  { return Field{kind: KindFloat, f: v} }
func BoolField(v bool) Field      { return Field{kind: KindBool, b: v} }
func NodeField(v NodeID) Field    { return Field{kind: KindNode, node: v} }
func StringField(s *InternedString) Field {
	return Field{kind: KindString, str: s}
}
func ConsField(c *Cons) Field     { return Field{kind: KindCons, cons: c} }
func StructField(s *Struct) Field { return Field{kind: KindStruct, strct: s} }
func PtrField(p unsafe.Pointer) Field { return Field{kind: KindPtr, ptr: p} }

func (f Field) Kind() Kind { return f.kind }

// Int panics if f does not hold a KindInt value; it is a programming
// error to call the wrong accessor, not a recoverable condition.
func (f Field) Int() int64 {
	f.mustBe(KindInt)
	return f.i
}

func (f Field) Float() float64 {
	f.mustBe(KindFloat)
	return f.f
}

func (f Field) Bool() bool {
	f.mustBe(KindBool)
	return f.b
}

func (f Field) Node() NodeID {
	f.mustBe(KindNode)
	return f.node
}

func (f Field) String() *InternedString {
	f.mustBe(KindString)
	return f.str
}

func (f Field) ConsCell() *Cons {
	f.mustBe(KindCons)
	return f.cons
}

func (f Field) StructRef() *Struct {
	f.mustBe(KindStruct)
	return f.strct
}

func (f Field) Ptr() unsafe.Pointer {
	f.mustBe(KindPtr)
	return f.ptr
}

func (f Field) mustBe(k Kind) {
	if f.kind != k {
		panic(fmt.Sprintf("tuple: field accessed as %s but holds %s", k, f.kind))
	}
}

// Equal reports whether two fields carry the same value. Pointer-like
// kinds (Node excepted) compare by identity, matching how the trie
// treats cons cells and structs as opaque handles.
func (f Field) Equal(o Field) bool {
	if f.kind != o.kind {
		return false
	}
	switch f.kind {
	case KindInt:
		return f.i == o.i
	case KindFloat:
		return f.f == o.f
	case KindBool:
		return f.b == o.b
	case KindNode:
		return f.node == o.node
	case KindString:
		return f.str == o.str || (f.str != nil && o.str != nil && f.str.Value == o.str.Value)
	case KindCons:
		return f.cons == o.cons
	case KindStruct:
		return f.strct == o.strct
	case KindPtr:
		return f.ptr == o.ptr
	default:
		return false
	}
}

// Hash returns a stable hash of the field's value, used to route the
// field through a trie level's bucket map.
func (f Field) Hash() uint64 {
	var buf [9]byte
	buf[0] = byte(f.kind)
	switch f.kind {
	case KindInt:
		putUint64(buf[1:], uint64(f.i))
	case KindFloat:
		putUint64(buf[1:], uint64(f.f))
	case KindBool:
		if f.b {
			buf[1] = 1
		}
	case KindNode:
		putUint64(buf[1:], uint64(f.node))
	case KindString:
		if f.str != nil {
			return xxhash.Sum64String("s:" + f.str.Value)
		}
	case KindCons:
		putUint64(buf[1:], uint64(uintptr(unsafe.Pointer(f.cons))))
	case KindStruct:
		putUint64(buf[1:], uint64(uintptr(unsafe.Pointer(f.strct))))
	case KindPtr:
		putUint64(buf[1:], uint64(uintptr(f.ptr)))
	}
	return xxhash.Sum64(buf[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// InternedString is the canonical representation of a string constant:
// all tuple fields holding the same text share one *InternedString, so
// field equality and hashing can use pointer identity as a fast path.
type InternedString struct {
	Value string
}

// PredicateID uniquely identifies a predicate within a loaded program.
type PredicateID uint32

// AggOp names the reduction applied to an aggregate predicate's
// contributions.
type AggOp uint8

const (
	AggSum AggOp = iota
	AggCount
	AggMin
	AggMax
	AggFirst
)

// AggregateSpec configures an aggregate predicate: the first KeyArity
// fields group contributions, and ValueIndex names the field folded by
// Op across all contributions sharing a key.
type AggregateSpec struct {
	Op         AggOp
	KeyArity   int
	ValueIndex int
}

// Predicate is the static descriptor shared by every tuple of a given
// kind. Predicates are immutable once the program image is loaded.
type Predicate struct {
	ID            PredicateID
	Name          string
	Arity         int
	FieldTypes    []Kind
	Compact       bool // stored as a dense array rather than a trie
	Linear        bool // consumed on use rather than persisting
	PersistentID  int  // slot index in a node's persistent store
	Aggregate     *AggregateSpec
}

// Tuple is an instantiated predicate: an ordered, fixed-arity list of
// fields plus the multiplicity and derivation-depth bookkeeping the
// aggregate and retraction logic needs.
type Tuple struct {
	Pred   *Predicate
	Fields []Field
	Count  uint64
	Depth  uint32
}

// New builds a tuple with derivation count 1. Count must be bumped by
// the caller (or by store.Store.AddTuple's dedup path) for re-derivation.
func New(pred *Predicate, fields []Field, depth uint32) *Tuple {
	return &Tuple{Pred: pred, Fields: fields, Count: 1, Depth: depth}
}

// Key hashes the tuple's field values, ignoring Count and Depth, for use
// as a fast pre-filter before an exact field-by-field comparison.
func (t *Tuple) Key() uint64 {
	h := xxhash.New()
	for _, f := range t.Fields {
		var b [8]byte
		putUint64(b[:], f.Hash())
		_, _ = h.Write(b[:])
	}
	return h.Sum64()
}

// SameFields reports whether two tuples of the same predicate carry
// identical field values. It does not compare Count or Depth: those are
// per-leaf bookkeeping, not part of tuple identity.
func (t *Tuple) SameFields(o *Tuple) bool {
	if len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if !t.Fields[i].Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

// GroupKey returns the leading KeyArity fields used to bucket
// contributions to an aggregate predicate.
func (t *Tuple) GroupKey(keyArity int) []Field {
	return t.Fields[:keyArity]
}

// String renders a tuple for dump/print introspection.
func (t *Tuple) String() string {
	name := "?"
	if t.Pred != nil {
		name = t.Pred.Name
	}
	s := name + "("
	for i, f := range t.Fields {
		if i > 0 {
			s += ", "
		}
		s += fieldString(f)
	}
	return s + fmt.Sprintf(")#%d@%d", t.Count, t.Depth)
}

func fieldString(f Field) string {
	switch f.kind {
	case KindInt:
		return fmt.Sprintf("%d", f.i)
	case KindFloat:
		return fmt.Sprintf("%g", f.f)
	case KindBool:
		return fmt.Sprintf("%t", f.b)
	case KindNode:
		return fmt.Sprintf("@%d", f.node)
	case KindString:
		if f.str != nil {
			return fmt.Sprintf("%q", f.str.Value)
		}
		return `""`
	case KindCons:
		return "cons"
	case KindStruct:
		return "struct"
	case KindPtr:
		return "ptr"
	default:
		return "?"
	}
}
