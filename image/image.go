// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Package image reads the node table section of a compiled program
// image. Values are read in native byte order (the format does not
// require network byte order, see spec §6); only the header and node
// table are parsed here — the rules/predicates/code sections that
// follow are a documented external extension point, represented as an
// opaque io.Reader continuation handed back to the caller, since the
// bytecode loader itself is out of scope for this runtime.
package image

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/dreamware/linrt/tuple"
)

// MagicSize is the length, in bytes, of the program image's leading
// magic identifier, skipped without validation.
const MagicSize = 8

// versionSize is two uint32 fields (major, minor).
const versionSize = 2 * 4

// NodeEntry is one (fake_id, user_id) pair from the node table: fake_id
// is the id used inside the compiled program, user_id the id exposed to
// external callers (MPI rank, CLI-visible node number, ...).
type NodeEntry struct {
	FakeID tuple.NodeID
	UserID tuple.NodeID
}

// NodeTable is the parsed header plus node table of a program image,
// and the remaining unparsed bytes (rules/predicates/code sections).
type NodeTable struct {
	Entries []NodeEntry
	Rest    io.Reader
}

// Load reads and parses the header and node table from r. It returns an
// error wrapping cockroachdb/errors' assertion-failure kind when the
// image declares zero nodes, matching the runtime's load-failure
// policy: a program with no nodes cannot run and the failure is fatal
// to the caller, not recoverable.
func Load(r io.Reader) (*NodeTable, error) {
	if _, err := io.CopyN(io.Discard, r, MagicSize); err != nil {
		return nil, errors.Wrap(err, "image: reading magic")
	}
	if _, err := io.CopyN(io.Discard, r, versionSize); err != nil {
		return nil, errors.Wrap(err, "image: reading version")
	}
	if _, err := io.CopyN(io.Discard, r, 1); err != nil {
		return nil, errors.Wrap(err, "image: reading definitions count")
	}

	var numNodes uint32
	if err := binary.Read(r, binary.NativeEndian, &numNodes); err != nil {
		return nil, errors.Wrap(err, "image: reading num_nodes")
	}
	if numNodes == 0 {
		return nil, errors.AssertionFailedf("image: the program has no nodes to run")
	}

	entries := make([]NodeEntry, numNodes)
	for i := range entries {
		var fakeID, userID uint64
		if err := binary.Read(r, binary.NativeEndian, &fakeID); err != nil {
			return nil, errors.Wrapf(err, "image: reading node entry %d", i)
		}
		if err := binary.Read(r, binary.NativeEndian, &userID); err != nil {
			return nil, errors.Wrapf(err, "image: reading node entry %d", i)
		}
		entries[i] = NodeEntry{FakeID: tuple.NodeID(fakeID), UserID: tuple.NodeID(userID)}
	}

	return &NodeTable{Entries: entries, Rest: r}, nil
}
