// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package memtable is the write buffer the DB flushes to L0: a minimal
// ordered, sequence-tagged map. No production skiplist library fits this
// cleanly as a dependency, so this stays a plain sorted-slice implementation
// rather than reinventing a concurrent skiplist.
package memtable

import (
	"sort"

	"github.com/lsmdb/lsmdb/internal/base"
)

// Memtable is an insertion-ordered-by-key, sequence-tagged map of internal
// keys to values. It is not safe for concurrent use; the DB façade owns
// exclusive access to the active memtable.
type Memtable struct {
	cmp     base.Compare
	entries []entry
	size    uint64
}

type entry struct {
	key   base.InternalKey
	value []byte
}

// New creates an empty memtable using cmp to order user keys.
func New(cmp base.Compare) *Memtable {
	return &Memtable{cmp: cmp}
}

// Set inserts an internal key -> value mapping. Internal keys are never
// overwritten in place (a later Set with the same user key and a higher
// sequence simply shadows the earlier one per internal-key order).
func (m *Memtable) Set(key base.InternalKey, value []byte) {
	idx := sort.Search(len(m.entries), func(i int) bool {
		return base.InternalCompare(m.cmp, m.entries[i].key, key) >= 0
	})
	m.entries = append(m.entries, entry{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = entry{key: key, value: value}
	m.size += uint64(key.Size() + len(value))
}

// Get looks up the first entry with the given user key whose sequence is <=
// lookup.SeqNum(), per the descending-sequence internal-key order. It
// reports found=false and isDeletion=true for a live tombstone, so callers
// can stop searching older sources without mistaking "not here" for "deleted
// here."
func (m *Memtable) Get(lookup base.InternalKey) (value []byte, found, isDeletion bool) {
	idx := sort.Search(len(m.entries), func(i int) bool {
		return base.InternalCompare(m.cmp, m.entries[i].key, lookup) >= 0
	})
	if idx >= len(m.entries) {
		return nil, false, false
	}
	e := m.entries[idx]
	if !bytesEqual(e.key.UserKey, lookup.UserKey) {
		return nil, false, false
	}
	switch e.key.Kind() {
	case base.InternalKeyKindDeletion:
		return nil, false, true
	default:
		return e.value, true, false
	}
}

// ApproxMemoryUsage estimates bytes held by the memtable, compared against
// Options.WriteBufferSize to decide when to rotate.
func (m *Memtable) ApproxMemoryUsage() uint64 { return m.size }

// Len returns the number of entries, used by recovery to detect an empty
// residual memtable after the last log record.
func (m *Memtable) Len() int { return len(m.entries) }

// NewIter returns an iterator over the memtable in internal-key order,
// satisfying manifest.InternalIterator so it can feed a merging iterator
// during flush.
func (m *Memtable) NewIter() *Iter {
	return &Iter{m: m, i: -1}
}

// Iter walks a Memtable's entries in sorted order.
type Iter struct {
	m *Memtable
	i int
}

// First repositions at the first entry.
func (it *Iter) First() bool {
	it.i = 0
	return it.Valid()
}

// Next advances to the next entry.
func (it *Iter) Next() bool {
	it.i++
	return it.Valid()
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iter) Valid() bool { return it.i >= 0 && it.i < len(it.m.entries) }

// Key returns the current entry's internal key.
func (it *Iter) Key() base.InternalKey { return it.m.entries[it.i].key }

// Value returns the current entry's value.
func (it *Iter) Value() []byte { return it.m.entries[it.i].value }

// Close is a no-op; Iter holds no external resources.
func (it *Iter) Close() error { return nil }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
