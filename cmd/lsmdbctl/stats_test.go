// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"bytes"
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/objstorage"
	"github.com/stretchr/testify/require"
)

func TestRunStatsPlotsWorstLevelFromRecoveredManifest(t *testing.T) {
	dir := t.TempDir()
	fs := objstorage.DefaultFS{}

	tableName := fs.PathJoin(dir, base.MakeFilename(base.FileTypeTable, 1))
	f, err := fs.Create(tableName)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	vs := manifest.New(dir, fs, base.DefaultCompare, "lsmdb.BytewiseComparator")
	require.NoError(t, vs.CreateFresh())
	require.NoError(t, vs.LogAndApply(&manifest.VersionEdit{
		DeletedFiles: map[manifest.DeletedFileEntry]bool{},
		NewFiles: []manifest.NewFileEntry{
			{Level: 0, Meta: &manifest.FileMetadata{
				FileNum:  1,
				Size:     100,
				Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue),
				Largest:  base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindValue),
			}},
		},
	}))

	var buf bytes.Buffer
	require.NoError(t, runStats(dir, &buf))
	require.Contains(t, buf.String(), "compaction score by level")
	require.Contains(t, buf.String(), "worst=L0")
}

func TestRunStatsFailsOnMissingManifest(t *testing.T) {
	var buf bytes.Buffer
	err := runStats(t.TempDir(), &buf)
	require.Error(t, err)
}
