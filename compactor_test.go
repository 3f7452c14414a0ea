// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/stretchr/testify/require"
)

// TestFlush1RotatesQueueAndWritesTable confirms that flushing a non-empty
// immutable memtable produces exactly one new table and drains the queue.
// In an otherwise empty database PickMemtableOutputLevel places that table
// below L0, so the count covers every level.
func TestFlush1RotatesQueueAndWritesTable(t *testing.T) {
	d := openTestDB(t)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		require.NoError(t, d.Put(key, []byte("value"), nil))
	}

	d.mu.Lock()
	require.NoError(t, d.makeRoomForWriteLocked(d.opts.WriteBufferSize))
	v := d.mu.versions.Current()
	tableCount := 0
	for level := 0; level < manifest.NumLevels; level++ {
		tableCount += len(v.Files[level])
	}
	queueLen := len(d.mu.mem.queue)
	d.mu.Unlock()

	require.Equal(t, 1, tableCount)
	require.Zero(t, queueLen)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		val, err := d.Get(key)
		require.NoError(t, err)
		require.Equal(t, "value", string(val))
	}
}

// TestWriteLevel0TableSkipsEmptyMemtable confirms a memtable with no entries
// produces no output table: writeLevel0Table returns a nil meta.
func TestWriteLevel0TableSkipsEmptyMemtable(t *testing.T) {
	d := openTestDB(t)

	d.mu.Lock()
	mem := d.mu.mem.mutable
	meta, err := d.writeLevel0Table(mem)
	d.mu.Unlock()

	require.NoError(t, err)
	require.Nil(t, meta)
}

// TestMaybeCompactLockedRunsUntilScoreBelowOne drives many flushes and
// confirms that once the writes return the current version scores below 1,
// L0 stays bounded, and every key is still readable.
func TestMaybeCompactLockedRunsUntilScoreBelowOne(t *testing.T) {
	d, err := Open(t.TempDir(), &Options{
		CreateIfMissing: true,
		WriteBufferSize: 1024,
		MaxFileSize:     1 << 20,
	})
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, d.Put(key, []byte("a value long enough to grow the memtable quickly"), nil))
	}

	d.mu.Lock()
	v := d.mu.versions.Current()
	l0Count := len(v.Files[0])
	score := v.CompactionScore()
	d.mu.Unlock()

	require.Less(t, score, 1.0)
	require.Less(t, l0Count, manifest.L0CompactionTrigger*2, "maybeCompactLocked should keep L0 from growing unbounded")

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		val, err := d.Get(key)
		require.NoError(t, err)
		require.Equal(t, "a value long enough to grow the memtable quickly", string(val))
	}
}

// TestCompactDiskTablesMergesOverlappingInputs exercises compact1's full
// rewrite path (not a trivial move) by forcing an L1->L2 compaction and
// confirming the merged output preserves the newest value per key and drops
// nothing still reachable. In a fresh database the first flush (a, b) lands
// at L2 and the second (a, c), which overlaps it, lands at L1.
func TestCompactDiskTablesMergesOverlappingInputs(t *testing.T) {
	d, err := Open(t.TempDir(), &Options{
		CreateIfMissing: true,
		WriteBufferSize: 256,
		MaxFileSize:     1 << 20,
	})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Put([]byte("a"), []byte("v1"), nil))
	require.NoError(t, d.Put([]byte("b"), []byte("v1"), nil))
	d.mu.Lock()
	require.NoError(t, d.makeRoomForWriteLocked(d.opts.WriteBufferSize))
	d.mu.Unlock()

	require.NoError(t, d.Put([]byte("a"), []byte("v2"), nil))
	require.NoError(t, d.Put([]byte("c"), []byte("v1"), nil))
	d.mu.Lock()
	require.NoError(t, d.makeRoomForWriteLocked(d.opts.WriteBufferSize))

	v := d.mu.versions.Current()
	require.Len(t, v.Files[1], 1, "expected the second flush at L1")
	require.Len(t, v.Files[2], 1, "expected the first flush at L2")

	c := &compaction{level: 1, inputs: [3][]*manifest.FileMetadata{v.Files[1], v.Files[2], nil}}
	require.False(t, c.isTrivialMove(d.opts), "a compaction with level+1 overlap is never a trivial move")

	ve, err := d.compactDiskTables(c)
	require.NoError(t, err)
	require.NoError(t, d.mu.versions.LogAndApply(ve))
	d.mu.Unlock()

	val, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(val))

	val, err = d.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(val))

	val, err = d.Get([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(val))
}

// TestDeleteObsoleteFilesLockedRemovesUnreferencedTable confirms a table
// file dropped from the current version by a VersionEdit is actually
// unlinked from the filesystem.
func TestDeleteObsoleteFilesLockedRemovesUnreferencedTable(t *testing.T) {
	d, err := Open(t.TempDir(), &Options{
		CreateIfMissing: true,
		WriteBufferSize: 256,
		MaxFileSize:     1 << 20,
	})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Put([]byte("a"), []byte("v1"), nil))
	d.mu.Lock()
	require.NoError(t, d.makeRoomForWriteLocked(d.opts.WriteBufferSize))

	v := d.mu.versions.Current()
	require.Len(t, v.Files[manifest.MaxMemCompactLevel], 1)
	dropped := v.Files[manifest.MaxMemCompactLevel][0]

	ve := &manifest.VersionEdit{
		DeletedFiles: map[manifest.DeletedFileEntry]bool{
			{Level: manifest.MaxMemCompactLevel, FileNum: dropped.FileNum}: true,
		},
	}
	require.NoError(t, d.mu.versions.LogAndApply(ve))
	d.deleteObsoleteFilesLocked()
	d.mu.Unlock()

	name := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeTable, dropped.FileNum))
	_, err = d.fs.Stat(name)
	require.Error(t, err, "obsolete table file should have been removed")
}

// TestDeleteObsoleteFilesLockedRemovesUnreferencedTempFile confirms a
// numbered .dbtmp file with no corresponding live entry is unlinked the
// same way an obsolete table is.
func TestDeleteObsoleteFilesLockedRemovesUnreferencedTempFile(t *testing.T) {
	d := openTestDB(t)

	tempNum := d.mu.versions.NextFileNum()
	name := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeTemp, tempNum))
	f, err := d.fs.Create(name)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d.mu.Lock()
	d.deleteObsoleteFilesLocked()
	d.mu.Unlock()

	_, err = d.fs.Stat(name)
	require.Error(t, err, "obsolete temp file should have been removed")
}
