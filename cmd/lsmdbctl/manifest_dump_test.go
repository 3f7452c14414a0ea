// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/stretchr/testify/require"
)

func TestFormatVersionEditIncludesBookkeepingFields(t *testing.T) {
	ve := &manifest.VersionEdit{
		ComparatorName:    "lsmdb.BytewiseComparator",
		LogNumber:         4,
		HasLogNumber:      true,
		NextFileNumber:    5,
		HasNextFileNumber: true,
		LastSequence:      100,
		HasLastSequence:   true,
	}

	out := formatVersionEdit(0, ve)
	require.Contains(t, out, "edit 0:")
	require.Contains(t, out, "comparator=lsmdb.BytewiseComparator")
	require.Contains(t, out, "log-number=4")
	require.Contains(t, out, "next-file-number=5")
	require.Contains(t, out, "last-sequence=100")
}

func TestFormatVersionEditListsNewAndDeletedFilesSortedByLevel(t *testing.T) {
	ve := &manifest.VersionEdit{
		NewFiles: []manifest.NewFileEntry{
			{Level: 1, Meta: &manifest.FileMetadata{
				FileNum:  7,
				Size:     1024,
				Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue),
				Largest:  base.MakeInternalKey([]byte("m"), 1, base.InternalKeyKindValue),
			}},
			{Level: 0, Meta: &manifest.FileMetadata{
				FileNum:  6,
				Size:     512,
				Smallest: base.MakeInternalKey([]byte("n"), 1, base.InternalKeyKindValue),
				Largest:  base.MakeInternalKey([]byte("z"), 1, base.InternalKeyKindValue),
			}},
		},
		DeletedFiles: map[manifest.DeletedFileEntry]bool{
			{Level: 0, FileNum: 3}: true,
			{Level: 1, FileNum: 4}: true,
		},
	}

	out := formatVersionEdit(2, ve)

	l0Idx := indexOf(t, out, "+ L0 000006")
	l1Idx := indexOf(t, out, "+ L1 000007")
	require.Less(t, l0Idx, l1Idx, "new files should list L0 before L1")

	require.Contains(t, out, "- L0 000003")
	require.Contains(t, out, "- L1 000004")
	require.Contains(t, out, "[n, z]")
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := -1
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0, "expected %q to contain %q", haystack, needle)
	return idx
}
