// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/stretchr/testify/require"
)

func collectCompactionIter(t *testing.T, ci *compactionIter) []string {
	t.Helper()
	var out []string
	for valid := ci.First(); valid; valid = ci.Next() {
		out = append(out, string(ci.Key().UserKey)+"="+string(ci.Value()))
	}
	return out
}

// TestCompactionIterDropsOlderVersionsBelowSmallestSeq exercises drop rule A:
// once an entry whose own sequence is at or below smallestSeq has been
// emitted, every still-older entry for the same key is unreachable by any
// live snapshot and is dropped.
func TestCompactionIterDropsOlderVersionsBelowSmallestSeq(t *testing.T) {
	iter := newSliceIter(
		val("k", 10, "newest"),
		val("k", 2, "unreachable"),
	)
	c := &compaction{level: 0}
	v := &manifest.Version{}

	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 10)
	require.Equal(t, []string{"k=newest"}, collectCompactionIter(t, ci))
}

// TestCompactionIterKeepsMultipleVersionsAboveSmallestSeq confirms that,
// absent an entry at or below smallestSeq, every version is kept — the
// algorithm only starts discarding once it has seen one entry that already
// satisfies the oldest live snapshot.
func TestCompactionIterKeepsMultipleVersionsAboveSmallestSeq(t *testing.T) {
	iter := newSliceIter(
		val("k", 10, "newest"),
		val("k", 5, "middle"),
		val("k", 2, "oldest"),
	)
	c := &compaction{level: 0}
	v := &manifest.Version{}

	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 1)
	require.Equal(t, []string{"k=newest", "k=middle", "k=oldest"}, collectCompactionIter(t, ci))
}

// TestCompactionIterKeepsEntryAboveSmallestSeq confirms an entry visible to
// a live snapshot is never dropped by rule A even if an older copy exists.
func TestCompactionIterKeepsEntryAboveSmallestSeq(t *testing.T) {
	iter := newSliceIter(
		val("k", 10, "newest"),
		val("k", 5, "still-visible-to-snapshot"),
	)
	c := &compaction{level: 0}
	v := &manifest.Version{}

	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 5)
	require.Equal(t, []string{"k=newest", "k=still-visible-to-snapshot"}, collectCompactionIter(t, ci))
}

// TestCompactionIterDropsTombstoneAtBaseLevel exercises drop rule B: a
// deletion at or below smallestSeq is dropped once no deeper level can hold
// an older copy of the key.
func TestCompactionIterDropsTombstoneAtBaseLevel(t *testing.T) {
	iter := newSliceIter(del("k", 1))
	c := &compaction{level: 4} // c.level+2 == 6 == manifest.NumLevels-1, last level empty
	v := &manifest.Version{}

	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 5)
	require.Empty(t, collectCompactionIter(t, ci))
}

// TestCompactionIterKeepsTombstoneWhenNotBaseLevel confirms a tombstone
// survives when a deeper level still has a file that could hold an older
// copy of the same key.
func TestCompactionIterKeepsTombstoneWhenNotBaseLevel(t *testing.T) {
	iter := newSliceIter(del("k", 1))
	c := &compaction{level: 0}
	v := &manifest.Version{}
	v.Files[2] = []*manifest.FileMetadata{{
		Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue),
		Largest:  base.MakeInternalKey([]byte("z"), 1, base.InternalKeyKindValue),
	}}

	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 5)
	require.Equal(t, []string{"k="}, collectCompactionIter(t, ci))
}

// TestCompactionIterDropsOlderEntryAfterTombstoneDrop confirms lastSeqForKey
// is still updated when rule B drops a tombstone, so an even-older entry for
// the same user key is caught by rule A on the very next iteration.
func TestCompactionIterDropsOlderEntryAfterTombstoneDrop(t *testing.T) {
	iter := newSliceIter(
		del("k", 3),
		val("k", 1, "stale"),
	)
	c := &compaction{level: 4}
	v := &manifest.Version{}

	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 5)
	require.Empty(t, collectCompactionIter(t, ci))
}

// TestCompactionIterSkipsCorruptZeroSequenceEntry confirms a trailer with
// sequence 0 is treated as corruption and skipped without aborting the scan.
func TestCompactionIterSkipsCorruptZeroSequenceEntry(t *testing.T) {
	iter := newSliceIter(
		val("k", 0, "corrupt"),
		val("k", 1, "good"),
	)
	c := &compaction{level: 0}
	v := &manifest.Version{}

	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 5)
	require.Equal(t, []string{"k=good"}, collectCompactionIter(t, ci))
}

func TestCompactionIterResetsStateOnNewUserKey(t *testing.T) {
	iter := newSliceIter(
		val("a", 10, "a-new"),
		val("a", 5, "a-old"),
		val("b", 8, "b-new"),
	)
	c := &compaction{level: 0}
	v := &manifest.Version{}

	// smallestSeq == 10 so the first "a" entry already satisfies the oldest
	// live snapshot, making the older "a" entry unreachable; "b" starts a
	// fresh per-key state so it is unaffected.
	ci := newCompactionIter(base.DefaultCompare, iter, c, v, 10)
	require.Equal(t, []string{"a=a-new", "b=b-new"}, collectCompactionIter(t, ci))
}
