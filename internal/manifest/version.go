// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lsmdb/lsmdb/internal/base"
	"golang.org/x/exp/slices"
)

// MaxMemCompactLevel is the deepest level a memtable flush may target
// directly, bypassing L0.
const MaxMemCompactLevel = 2

// MaxGrandparentOverlapBytes bounds how much L+2 data a single L+1 output may
// overlap; this is the default value, overridden by Options in the root
// package with 10x MaxFileSize, one threshold for every level.
const MaxGrandparentOverlapBytes = 10 << 20

// readBytesPeriod is a per-file read allowance size. UpdateStats does not
// consult it: a file becomes eligible for seek-triggered compaction on its
// first read sample.
const readBytesPeriod = 1 << 20

// TableNewIter opens an iterator over the given file; supplied by the DB
// façade (backed by the table cache) so Version never touches storage
// directly.
type TableNewIter func(meta *FileMetadata) (InternalIterator, error)

// InternalIterator is the minimal iterator contract Version needs from a
// table reader; block-format decoding itself is out of scope here.
type InternalIterator interface {
	First() bool
	Next() bool
	Valid() bool
	Key() base.InternalKey
	Value() []byte
	Close() error
}

// ReadStat identifies the first file consulted during a Get whose
// bloom/index did not contain the key, used to drive seek-triggered
// compaction.
type ReadStat struct {
	File  *FileMetadata
	Level int
}

// Version is an immutable snapshot of the table-file set, organized by
// level. Versions are reference counted and chained by VersionSet; Ref/Unref
// manage that lifetime so an iterator or snapshot may keep a retired Version
// alive after a newer one has replaced it as current.
type Version struct {
	Files [NumLevels][]*FileMetadata

	// compactionScore/compactionLevel cache the result of the scoring pass
	// VersionSet performs after every logAndApply.
	compactionScore float64
	compactionLevel int

	// fileToCompact/fileToCompactLevel record the outcome of a read sample
	// that exhausted a file's allowance.
	fileToCompact      *FileMetadata
	fileToCompactLevel int

	refs int32

	list       *VersionList
	prev, next *Version
}

// Ref increments the reference count.
func (v *Version) Ref() { atomic.AddInt32(&v.refs, 1) }

// Unref decrements the reference count, unlinking the Version from its list
// once it reaches zero.
func (v *Version) Unref() {
	if atomic.AddInt32(&v.refs, -1) == 0 && v.list != nil {
		v.list.mu.Lock()
		v.list.remove(v)
		v.list.mu.Unlock()
	}
}

// CompactionScore and CompactionLevel report the cached scoring result.
func (v *Version) CompactionScore() float64 { return v.compactionScore }
func (v *Version) CompactionLevel() int     { return v.compactionLevel }

// FileToCompact reports the file (if any) a prior read sample marked for
// seek-triggered compaction, and the level it lives at.
func (v *Version) FileToCompact() (*FileMetadata, int) {
	return v.fileToCompact, v.fileToCompactLevel
}

// String renders a one-line-per-level summary, used in log messages.
func (v *Version) String() string {
	var buf bytes.Buffer
	for level := 0; level < NumLevels; level++ {
		if len(v.Files[level]) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%d:", level)
		for _, f := range v.Files[level] {
			fmt.Fprintf(&buf, " %s-%s", f.Smallest.UserKey, f.Largest.UserKey)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// CheckOrdering validates a Version's core invariants: L0 files in
// ascending file-number order, L>=1 files disjoint and sorted by smallest
// key.
func (v *Version) CheckOrdering(cmp base.Compare) error {
	for level, files := range v.Files {
		if level == 0 {
			var prevNum FileNum
			for i, f := range files {
				if i != 0 && prevNum >= f.FileNum {
					return base.CorruptionErrorf(
						"manifest: level 0 files not in increasing file-number order: %d, %d",
						prevNum, f.FileNum)
				}
				prevNum = f.FileNum
			}
			continue
		}
		var prevLargest base.InternalKey
		for i, f := range files {
			if i != 0 && base.InternalCompare(cmp, prevLargest, f.Smallest) >= 0 {
				return base.CorruptionErrorf(
					"manifest: level %d files overlap: %q, %q", level, prevLargest, f.Smallest)
			}
			if base.InternalCompare(cmp, f.Smallest, f.Largest) > 0 {
				return base.CorruptionErrorf(
					"manifest: level %d file has inverted bounds: %q, %q", level, f.Smallest, f.Largest)
			}
			prevLargest = f.Largest
		}
	}
	return nil
}

// Overlaps returns the files at level whose user-key range intersects
// [start, end]. At L0, files may overlap each other, so the range is
// expanded to the union of every intersecting file's own range and the scan
// repeats to a fixed point.
func (v *Version) Overlaps(level int, cmp base.Compare, start, end []byte) []*FileMetadata {
	if level == 0 {
		return v.overlapsL0(cmp, start, end)
	}
	files := v.Files[level]
	lower := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Largest.UserKey, start) >= 0
	})
	upper := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Smallest.UserKey, end) > 0
	})
	return files[lower:upper]
}

func (v *Version) overlapsL0(cmp base.Compare, start, end []byte) []*FileMetadata {
	var ret []*FileMetadata
	for {
		ret = ret[:0]
		restart := false
		for _, f := range v.Files[0] {
			if cmp(f.Largest.UserKey, start) < 0 || cmp(f.Smallest.UserKey, end) > 0 {
				continue
			}
			ret = append(ret, f)
			if cmp(f.Smallest.UserKey, start) < 0 {
				start = f.Smallest.UserKey
				restart = true
			}
			if cmp(f.Largest.UserKey, end) > 0 {
				end = f.Largest.UserKey
				restart = true
			}
		}
		if !restart {
			return ret
		}
	}
}

// Get performs a point lookup at the given internal key, walking L0 newest
// first then binary-searching each level >= 1 for the unique covering file.
func (v *Version) Get(cmp base.Compare, newIter TableNewIter, key base.InternalKey) (value []byte, found bool, stat *ReadStat, err error) {
	userKey := key.UserKey

	l0 := append([]*FileMetadata(nil), v.Files[0]...)
	sort.Sort(sort.Reverse(ByFileNum(l0)))

	var firstMiss *ReadStat
	checkFile := func(level int, f *FileMetadata) (value []byte, found, hit bool, err error) {
		if cmp(userKey, f.Smallest.UserKey) < 0 || cmp(userKey, f.Largest.UserKey) > 0 {
			return nil, false, false, nil
		}
		iter, err := newIter(f)
		if err != nil {
			return nil, false, false, err
		}
		defer iter.Close()
		for valid := iter.First(); valid; valid = iter.Next() {
			ik := iter.Key()
			if cmp(ik.UserKey, userKey) != 0 {
				continue
			}
			if ik.SeqNum() > key.SeqNum() {
				continue
			}
			switch ik.Kind() {
			case base.InternalKeyKindDeletion:
				return nil, false, true, nil
			case base.InternalKeyKindValue:
				val := append([]byte(nil), iter.Value()...)
				return val, true, true, nil
			}
		}
		if firstMiss == nil {
			firstMiss = &ReadStat{File: f, Level: level}
		}
		return nil, false, false, nil
	}

	for _, f := range l0 {
		value, found, hit, err := checkFile(0, f)
		if err != nil {
			return nil, false, nil, err
		}
		if hit {
			return value, found, firstMiss, nil
		}
	}

	for level := 1; level < NumLevels; level++ {
		files := v.Files[level]
		idx := sort.Search(len(files), func(i int) bool {
			return cmp(files[i].Largest.UserKey, userKey) >= 0
		})
		if idx >= len(files) || cmp(files[idx].Smallest.UserKey, userKey) > 0 {
			continue
		}
		value, found, hit, err := checkFile(level, files[idx])
		if err != nil {
			return nil, false, nil, err
		}
		if hit {
			return value, found, firstMiss, nil
		}
	}

	return nil, false, firstMiss, nil
}

// UpdateStats marks stat.File for compaction, records it as the version's
// file to compact, and returns true. No per-file read allowance is kept or
// decremented: the first sample marks the file, and a file that is already
// marked (or a nil stat) returns false.
func (v *Version) UpdateStats(stat *ReadStat) bool {
	if stat == nil || stat.File == nil {
		return false
	}
	if stat.File.MarkedForCompaction {
		return false
	}
	stat.File.MarkedForCompaction = true
	v.fileToCompact = stat.File
	v.fileToCompactLevel = stat.Level
	return true
}

// RecordReadSample counts the files containing internalKey's user key; if at
// least two contain it, the sample is attributed to the first and
// UpdateStats is invoked.
func (v *Version) RecordReadSample(cmp base.Compare, key base.InternalKey) bool {
	var first *ReadStat
	matches := 0

	for _, f := range v.Files[0] {
		if cmp(key.UserKey, f.Smallest.UserKey) >= 0 && cmp(key.UserKey, f.Largest.UserKey) <= 0 {
			matches++
			if first == nil {
				first = &ReadStat{File: f, Level: 0}
			}
		}
	}
	for level := 1; level < NumLevels && matches < 2; level++ {
		files := v.Files[level]
		idx := sort.Search(len(files), func(i int) bool {
			return cmp(files[i].Largest.UserKey, key.UserKey) >= 0
		})
		if idx < len(files) && cmp(files[idx].Smallest.UserKey, key.UserKey) <= 0 {
			matches++
			if first == nil {
				first = &ReadStat{File: files[idx], Level: level}
			}
		}
	}

	if matches >= 2 {
		return v.UpdateStats(first)
	}
	return false
}

// PickMemtableOutputLevel returns the deepest level L such that L <=
// MaxMemCompactLevel, the key range does not overlap any file at L, and the
// range overlaps at most maxGrandparentOverlapBytes of files at L+2. It
// returns 0 if any condition fails at L=0.
func (v *Version) PickMemtableOutputLevel(cmp base.Compare, smallest, largest []byte, maxGrandparentOverlapBytes uint64) int {
	level := 0
	if len(v.Overlaps(0, cmp, smallest, largest)) > 0 {
		return 0
	}
	for level < MaxMemCompactLevel {
		if len(v.Overlaps(level+1, cmp, smallest, largest)) > 0 {
			break
		}
		if level+2 < NumLevels {
			overlaps := v.Overlaps(level+2, cmp, smallest, largest)
			if TotalSize(overlaps) > maxGrandparentOverlapBytes {
				break
			}
		}
		level++
	}
	return level
}

// VersionList is the doubly linked list of live Versions the VersionSet
// chains together.
type VersionList struct {
	mu   sync.Mutex
	root Version
}

// Init prepares an empty, circular list.
func (l *VersionList) Init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

// Empty reports whether the list has no Versions installed.
func (l *VersionList) Empty() bool { return l.root.next == &l.root }

// Front returns the oldest live Version.
func (l *VersionList) Front() *Version { return l.root.next }

// Back returns the most recently installed Version.
func (l *VersionList) Back() *Version { return l.root.prev }

// PushBack appends v as the new most-recent Version.
func (l *VersionList) PushBack(v *Version) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v.list != nil || v.prev != nil || v.next != nil {
		panic("manifest: version list is inconsistent")
	}
	v.prev = l.root.prev
	v.prev.next = v
	v.next = &l.root
	v.next.prev = v
	v.list = l
}

func (l *VersionList) remove(v *Version) {
	if v == &l.root {
		panic("manifest: cannot remove version list root node")
	}
	if v.list != l {
		panic("manifest: version list is inconsistent")
	}
	v.prev.next = v.next
	v.next.prev = v.prev
	v.next = nil
	v.prev = nil
	v.list = nil
}

// sortedFileNums returns an ascending copy of nums, sorted with
// golang.org/x/exp/slices; nums itself is left unchanged.
func sortedFileNums(nums []FileNum) []FileNum {
	out := append([]FileNum(nil), nums...)
	slices.SortFunc(out, func(a, b FileNum) bool { return a < b })
	return out
}
