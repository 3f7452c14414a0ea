// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package manifest holds the version set: the immutable, levelled collection
// of table-file descriptors and the log of edits against it.
package manifest

import (
	"sort"

	"github.com/lsmdb/lsmdb/internal/base"
)

// NumLevels is the fixed number of levels the engine manages.
const NumLevels = 7

// FileMetadata is the per-table descriptor: file number, byte size, and the
// inclusive internal-key bounds of the table.
type FileMetadata struct {
	FileNum FileNum
	Size    uint64

	Smallest base.InternalKey
	Largest  base.InternalKey

	SmallestSeqNum base.SeqNum
	LargestSeqNum  base.SeqNum

	// MarkedForCompaction records that Version.UpdateStats received a read
	// sample for this file (the first sample sets it); it is the
	// seek-triggered compaction signal.
	MarkedForCompaction bool

	// CreationTime is a Unix timestamp, informational only.
	CreationTime int64
}

// FileNum re-exports base.FileNum so manifest callers need not import base
// directly for the common case.
type FileNum = base.FileNum

// Clone returns a FileMetadata safe to retain independently of the
// originating VersionEdit decode buffer.
func (m *FileMetadata) Clone() *FileMetadata {
	clone := *m
	clone.Smallest = m.Smallest.Clone()
	clone.Largest = m.Largest.Clone()
	return &clone
}

// TotalSize returns the total size of all the files in fs.
func TotalSize(fs []*FileMetadata) (size uint64) {
	for _, f := range fs {
		size += f.Size
	}
	return size
}

// KeyRange returns the minimum smallest and maximum largest internal key
// across f0 and f1 combined.
func KeyRange(cmp base.Compare, f0, f1 []*FileMetadata) (smallest, largest base.InternalKey) {
	first := true
	for _, files := range [2][]*FileMetadata{f0, f1} {
		for _, m := range files {
			if first {
				first = false
				smallest, largest = m.Smallest, m.Largest
				continue
			}
			if base.InternalCompare(cmp, m.Smallest, smallest) < 0 {
				smallest = m.Smallest
			}
			if base.InternalCompare(cmp, m.Largest, largest) > 0 {
				largest = m.Largest
			}
		}
	}
	return smallest, largest
}

// ByFileNum sorts L0 files in ascending file-number order; "newer first on
// ties" is expressed by the caller walking this slice in reverse.
type ByFileNum []*FileMetadata

func (b ByFileNum) Len() int           { return len(b) }
func (b ByFileNum) Less(i, j int) bool { return b[i].FileNum < b[j].FileNum }
func (b ByFileNum) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }

// BySmallest sorts L>=1 files in ascending smallest-key order.
type BySmallest struct {
	Files []*FileMetadata
	Cmp   base.Compare
}

func (b BySmallest) Len() int { return len(b.Files) }
func (b BySmallest) Less(i, j int) bool {
	return base.InternalCompare(b.Cmp, b.Files[i].Smallest, b.Files[j].Smallest) < 0
}
func (b BySmallest) Swap(i, j int) { b.Files[i], b.Files[j] = b.Files[j], b.Files[i] }

// SortBySmallest sorts fs in place by ascending smallest key.
func SortBySmallest(fs []*FileMetadata, cmp base.Compare) {
	sort.Sort(BySmallest{Files: fs, Cmp: cmp})
}
