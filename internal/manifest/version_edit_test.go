// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/stretchr/testify/require"
)

func TestVersionEditEncodeDecodeRoundTrip(t *testing.T) {
	ve := &VersionEdit{
		ComparatorName:    "lsmdb.BytewiseComparator",
		LogNumber:         4,
		HasLogNumber:      true,
		NextFileNumber:    5,
		HasNextFileNumber: true,
		LastSequence:      100,
		HasLastSequence:   true,
		CompactPointers: map[int]base.InternalKey{
			1: base.MakeInternalKey([]byte("m"), 7, base.InternalKeyKindValue),
		},
		DeletedFiles: map[DeletedFileEntry]bool{
			{Level: 0, FileNum: 2}: true,
		},
		NewFiles: []NewFileEntry{
			{Level: 1, Meta: &FileMetadata{
				FileNum:  3,
				Size:     1024,
				Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue),
				Largest:  base.MakeInternalKey([]byte("z"), 1, base.InternalKeyKindValue),
			}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ve.Encode(&buf))

	var got VersionEdit
	require.NoError(t, got.Decode(&buf))

	require.Equal(t, ve.ComparatorName, got.ComparatorName)
	require.Equal(t, ve.LogNumber, got.LogNumber)
	require.True(t, got.HasLogNumber)
	require.Equal(t, ve.NextFileNumber, got.NextFileNumber)
	require.True(t, got.HasNextFileNumber)
	require.Equal(t, ve.LastSequence, got.LastSequence)
	require.True(t, got.HasLastSequence)
	require.True(t, got.DeletedFiles[DeletedFileEntry{Level: 0, FileNum: 2}])
	require.Len(t, got.NewFiles, 1)
	require.Equal(t, FileNum(3), got.NewFiles[0].Meta.FileNum)
	require.Equal(t, uint64(1024), got.NewFiles[0].Meta.Size)
	require.Equal(t, "a", string(got.NewFiles[0].Meta.Smallest.UserKey))
	require.Equal(t, "z", string(got.NewFiles[0].Meta.Largest.UserKey))
	require.Contains(t, got.CompactPointers, 1)
	require.Equal(t, "m", string(got.CompactPointers[1].UserKey))
}

func TestVersionEditDecodeRejectsUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x3f) // tag 63, not one of the known tags, fits in one varint byte
	var got VersionEdit
	err := got.Decode(&buf)
	require.Error(t, err)
}

func TestVersionEditAccumulateMergesBookkeepingAndFiles(t *testing.T) {
	base0 := &VersionEdit{DeletedFiles: map[DeletedFileEntry]bool{}}
	base0.Accumulate(&VersionEdit{
		HasLogNumber: true, LogNumber: 1,
		NewFiles: []NewFileEntry{{Level: 0, Meta: &FileMetadata{FileNum: 1}}},
	})
	base0.Accumulate(&VersionEdit{
		HasLogNumber: true, LogNumber: 2,
		DeletedFiles: map[DeletedFileEntry]bool{{Level: 0, FileNum: 1}: true},
		NewFiles:     []NewFileEntry{{Level: 1, Meta: &FileMetadata{FileNum: 2}}},
	})

	require.Equal(t, FileNum(2), base0.LogNumber)
	require.True(t, base0.DeletedFiles[DeletedFileEntry{Level: 0, FileNum: 1}])
	require.Len(t, base0.NewFiles, 2)
}

func TestBulkVersionEditApplySortsL0ByFileNumAndOtherLevelsBySmallest(t *testing.T) {
	var b BulkVersionEdit
	ve := &VersionEdit{
		NewFiles: []NewFileEntry{
			{Level: 0, Meta: &FileMetadata{FileNum: 5, Smallest: base.MakeInternalKey([]byte("z"), 1, base.InternalKeyKindValue), Largest: base.MakeInternalKey([]byte("z"), 1, base.InternalKeyKindValue)}},
			{Level: 0, Meta: &FileMetadata{FileNum: 2, Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue), Largest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue)}},
			{Level: 1, Meta: &FileMetadata{FileNum: 9, Smallest: base.MakeInternalKey([]byte("m"), 1, base.InternalKeyKindValue), Largest: base.MakeInternalKey([]byte("n"), 1, base.InternalKeyKindValue)}},
			{Level: 1, Meta: &FileMetadata{FileNum: 8, Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue), Largest: base.MakeInternalKey([]byte("c"), 1, base.InternalKeyKindValue)}},
		},
		DeletedFiles: map[DeletedFileEntry]bool{},
	}
	require.NoError(t, b.Accumulate(ve))

	files := b.Apply(nil, base.DefaultCompare)

	require.Len(t, files[0], 2)
	require.Equal(t, FileNum(2), files[0][0].FileNum)
	require.Equal(t, FileNum(5), files[0][1].FileNum)

	require.Len(t, files[1], 2)
	require.Equal(t, FileNum(8), files[1][0].FileNum)
	require.Equal(t, FileNum(9), files[1][1].FileNum)
}

func TestBulkVersionEditApplyHonorsDeletionsAgainstBaseVersion(t *testing.T) {
	baseVersion := &Version{}
	baseVersion.Files[0] = []*FileMetadata{
		{FileNum: 1, Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue), Largest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindValue)},
		{FileNum: 2, Smallest: base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindValue), Largest: base.MakeInternalKey([]byte("b"), 1, base.InternalKeyKindValue)},
	}

	var b BulkVersionEdit
	require.NoError(t, b.Accumulate(&VersionEdit{
		DeletedFiles: map[DeletedFileEntry]bool{{Level: 0, FileNum: 1}: true},
	}))

	files := b.Apply(baseVersion, base.DefaultCompare)
	require.Len(t, files[0], 1)
	require.Equal(t, FileNum(2), files[0][0].FileNum)
}
