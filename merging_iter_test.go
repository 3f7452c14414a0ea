// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/stretchr/testify/require"
)

// sliceIter is a manifest.InternalIterator over an in-memory, already-sorted
// run of entries, used to exercise mergingIter/levelIter without needing a
// real sstable.
type sliceIter struct {
	keys   []base.InternalKey
	values [][]byte
	index  int
}

func newSliceIter(entries ...sliceEntry) *sliceIter {
	it := &sliceIter{index: -1}
	for _, e := range entries {
		it.keys = append(it.keys, base.MakeInternalKey([]byte(e.key), e.seq, e.kind))
		it.values = append(it.values, []byte(e.value))
	}
	return it
}

type sliceEntry struct {
	key   string
	seq   base.SeqNum
	kind  base.InternalKeyKind
	value string
}

func val(key string, seq base.SeqNum, value string) sliceEntry {
	return sliceEntry{key: key, seq: seq, kind: base.InternalKeyKindValue, value: value}
}

func del(key string, seq base.SeqNum) sliceEntry {
	return sliceEntry{key: key, seq: seq, kind: base.InternalKeyKindDeletion}
}

func (s *sliceIter) First() bool {
	s.index = 0
	return s.Valid()
}

func (s *sliceIter) Next() bool {
	s.index++
	return s.Valid()
}

func (s *sliceIter) Valid() bool { return s.index >= 0 && s.index < len(s.keys) }
func (s *sliceIter) Key() base.InternalKey { return s.keys[s.index] }
func (s *sliceIter) Value() []byte         { return s.values[s.index] }
func (s *sliceIter) Close() error          { return nil }

func collectKeys(t *testing.T, it interface {
	First() bool
	Next() bool
	Valid() bool
	Key() base.InternalKey
}) []string {
	t.Helper()
	var out []string
	for valid := it.First(); valid; valid = it.Next() {
		out = append(out, string(it.Key().UserKey))
	}
	return out
}

func TestMergingIterOrdersAcrossSources(t *testing.T) {
	a := newSliceIter(val("a", 3, "a3"), val("c", 1, "c1"))
	b := newSliceIter(val("b", 2, "b2"), val("d", 4, "d4"))

	m := newMergingIter(base.DefaultCompare, a, b)
	require.Equal(t, []string{"a", "b", "c", "d"}, collectKeys(t, m))
}

func TestMergingIterOrdersSameUserKeyByDescendingSeq(t *testing.T) {
	a := newSliceIter(val("k", 5, "newer"))
	b := newSliceIter(val("k", 2, "older"))

	m := newMergingIter(base.DefaultCompare, a, b)
	require.True(t, m.First())
	require.Equal(t, base.SeqNum(5), m.Key().SeqNum())
	require.Equal(t, "newer", string(m.Value()))

	require.True(t, m.Next())
	require.Equal(t, base.SeqNum(2), m.Key().SeqNum())
	require.Equal(t, "older", string(m.Value()))

	require.False(t, m.Next())
}

func TestMergingIterHandlesExhaustedSource(t *testing.T) {
	a := newSliceIter()
	b := newSliceIter(val("x", 1, "v"))

	m := newMergingIter(base.DefaultCompare, a, b)
	require.Equal(t, []string{"x"}, collectKeys(t, m))
}

func TestLevelIterConcatenatesFilesInOrder(t *testing.T) {
	file1 := &manifest.FileMetadata{FileNum: 1}
	file2 := &manifest.FileMetadata{FileNum: 2}

	backing := map[base.FileNum]*sliceIter{
		1: newSliceIter(val("a", 1, "a1"), val("b", 1, "b1")),
		2: newSliceIter(val("c", 1, "c1"), val("d", 1, "d1")),
	}
	opened := 0
	newIter := func(meta *manifest.FileMetadata) (manifest.InternalIterator, error) {
		opened++
		return backing[meta.FileNum], nil
	}

	l := newLevelIter(newIter, []*manifest.FileMetadata{file1, file2})
	require.Equal(t, []string{"a", "b", "c", "d"}, collectKeys(t, l))
	require.Equal(t, 2, opened)
}

func TestLevelIterEmptyFileListIsNeverValid(t *testing.T) {
	l := newLevelIter(func(*manifest.FileMetadata) (manifest.InternalIterator, error) {
		t.Fatal("newIter should not be called for an empty file list")
		return nil, nil
	}, nil)
	require.False(t, l.First())
	require.False(t, l.Valid())
}
