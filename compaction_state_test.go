// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/objstorage"
	"github.com/stretchr/testify/require"
)

func TestCompactionStateWritesOneOutputAndBuildsVersionEdit(t *testing.T) {
	dir := t.TempDir()
	fs := objstorage.DefaultFS{}
	opts := (&Options{MaxOpenFiles: numNonTableCacheFiles + 5, MaxFileSize: 1 << 20}).EnsureDefaults()

	input0 := writeTestTable(t, fs, dir, 1, []string{"a", "b"})
	input1 := writeTestTable(t, fs, dir, 2, []string{"c", "d"})

	c := &compaction{level: 0}
	c.inputs[0] = []*manifest.FileMetadata{input0}
	c.inputs[1] = []*manifest.FileMetadata{input1}

	state := newCompactionState(c, opts, fs, dir)
	tc := newTableCache(dir, fs, opts)
	defer tc.close()

	require.NoError(t, state.openOutput(func() base.FileNum { return 3 }))
	for _, k := range []string{"a", "b", "c", "d"} {
		ik := base.MakeInternalKey([]byte(k), 1, base.InternalKeyKindValue)
		require.NoError(t, state.add(ik, []byte("v"+k)))
	}
	require.NoError(t, state.finishOutput(tc))

	ve := state.versionEdit()
	require.Len(t, ve.NewFiles, 1)
	require.Equal(t, 1, ve.NewFiles[0].Level)
	require.Equal(t, base.FileNum(3), ve.NewFiles[0].Meta.FileNum)
	require.Equal(t, "a", string(ve.NewFiles[0].Meta.Smallest.UserKey))
	require.Equal(t, "d", string(ve.NewFiles[0].Meta.Largest.UserKey))

	require.True(t, ve.DeletedFiles[manifest.DeletedFileEntry{Level: 0, FileNum: 1}])
	require.True(t, ve.DeletedFiles[manifest.DeletedFileEntry{Level: 1, FileNum: 2}])
	require.Len(t, ve.DeletedFiles, 2)
}

func TestCompactionStateCleanupUnlinksAllOutputs(t *testing.T) {
	dir := t.TempDir()
	fs := objstorage.DefaultFS{}
	opts := (&Options{MaxOpenFiles: numNonTableCacheFiles + 5, MaxFileSize: 1 << 20}).EnsureDefaults()

	c := &compaction{level: 0}
	state := newCompactionState(c, opts, fs, dir)
	tc := newTableCache(dir, fs, opts)
	defer tc.close()

	require.NoError(t, state.openOutput(func() base.FileNum { return 10 }))
	ik := base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue)
	require.NoError(t, state.add(ik, []byte("va")))
	require.NoError(t, state.finishOutput(tc))

	require.NoError(t, state.openOutput(func() base.FileNum { return 11 }))
	require.NoError(t, state.add(ik, []byte("va2")))
	// Leave the second output unfinished, mimicking an aborted compaction.

	state.cleanup()

	for _, fileNum := range []base.FileNum{10, 11} {
		name := fs.PathJoin(dir, base.MakeFilename(base.FileTypeTable, fileNum))
		_, err := fs.Stat(name)
		require.Error(t, err, "cleanup should have removed %s", name)
	}
}

func TestShouldSplitBeforeOnSize(t *testing.T) {
	dir := t.TempDir()
	fs := objstorage.DefaultFS{}
	opts := (&Options{MaxOpenFiles: numNonTableCacheFiles + 5, MaxFileSize: 1}).EnsureDefaults()

	c := &compaction{level: 0}
	state := newCompactionState(c, opts, fs, dir)

	require.False(t, state.shouldSplitBefore(base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue)), "no output open yet")

	require.NoError(t, state.openOutput(func() base.FileNum { return 1 }))
	require.NoError(t, state.add(base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue), []byte("a long enough value to exceed one byte")))

	require.True(t, state.shouldSplitBefore(base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindValue)))
}
