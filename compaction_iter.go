// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
)

// compactionIterInputs is the minimal contract compactionIter needs from the
// underlying merge, satisfied by *mergingIter (and directly by a bare
// manifest.InternalIterator for a single-file source).
type compactionIterInputs interface {
	First() bool
	Next() bool
	Valid() bool
	Key() base.InternalKey
	Value() []byte
	Close() error
}

// compactionIter walks the merged compaction input and applies two drop
// rules: rule A collapses every entry for a user key except the newest one
// at or below smallestSeq; rule B drops a tombstone once it is provably
// unreachable from any deeper level. There is no Merge operator to fold
// (values are just Value and Deletion), so unlike real pebble's
// compactionIter this never needs to accumulate a merge chain.
type compactionIter struct {
	cmp         base.Compare
	iter        compactionIterInputs
	c           *compaction
	version     *manifest.Version
	smallestSeq base.SeqNum

	lastSeqForKey base.SeqNum
	haveCurUkey   bool
	curUkey       []byte

	key   base.InternalKey
	value []byte
	valid bool
	err   error
}

func newCompactionIter(cmp base.Compare, iter compactionIterInputs, c *compaction, version *manifest.Version, smallestSeq base.SeqNum) *compactionIter {
	return &compactionIter{
		cmp:           cmp,
		iter:          iter,
		c:             c,
		version:       version,
		smallestSeq:   smallestSeq,
		lastSeqForKey: base.MaxSeqNum,
	}
}

// First seeks to the first surviving entry, applying drop rules A and B as
// it scans.
func (i *compactionIter) First() bool {
	if !i.iter.First() {
		return i.setDone()
	}
	return i.findNextEntry()
}

// Next advances to the next surviving entry.
func (i *compactionIter) Next() bool {
	if !i.valid {
		return false
	}
	if !i.iter.Next() {
		return i.setDone()
	}
	return i.findNextEntry()
}

func (i *compactionIter) findNextEntry() bool {
	for {
		if !i.iter.Valid() {
			return i.setDone()
		}
		ik := i.iter.Key()

		// Step 9: a trailer with sequence 0 never comes from a live batch
		// (sequence numbers start at 1); treat it as corruption, skip it,
		// and reset the same-key dedup state.
		if ik.SeqNum() == 0 {
			i.haveCurUkey = false
			i.lastSeqForKey = base.MaxSeqNum
			if !i.iter.Next() {
				return i.setDone()
			}
			continue
		}

		if !i.haveCurUkey || i.cmp(i.curUkey, ik.UserKey) != 0 {
			// Step 4: new user key resets the dedup state.
			i.haveCurUkey = true
			i.curUkey = append(i.curUkey[:0], ik.UserKey...)
			i.lastSeqForKey = base.MaxSeqNum
		}

		seq := ik.SeqNum()
		dropA := i.lastSeqForKey <= i.smallestSeq
		if dropA {
			if !i.iter.Next() {
				return i.setDone()
			}
			continue
		}

		if ik.Kind() == base.InternalKeyKindDeletion && seq <= i.smallestSeq &&
			i.c.isBaseLevelForKey(i.version, i.cmp, ik.UserKey) {
			i.lastSeqForKey = seq
			if !i.iter.Next() {
				return i.setDone()
			}
			continue
		}

		i.lastSeqForKey = seq
		i.key = ik
		i.value = i.iter.Value()
		i.valid = true
		return true
	}
}

func (i *compactionIter) setDone() bool {
	i.valid = false
	return false
}

func (i *compactionIter) Valid() bool          { return i.valid }
func (i *compactionIter) Key() base.InternalKey { return i.key }
func (i *compactionIter) Value() []byte         { return i.value }
func (i *compactionIter) Close() error          { return i.iter.Close() }
