// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/objstorage"
	"github.com/lsmdb/lsmdb/sstable"
)

// compactionState accumulates the output files produced by a single
// compaction run, splitting into a new file whenever the current one grows
// past MaxFileSize or accumulates too much grandparent overlap.
type compactionState struct {
	c       *compaction
	opts    *Options
	fs      objstorage.FS
	dirname string

	grandparents *grandparentTracker

	outputs []*manifest.FileMetadata

	curFileNum      base.FileNum
	curFile         objstorage.File
	curWriter       *sstable.Writer
	curSmallest     base.InternalKey
	curHaveSmallest bool
	curLargest      base.InternalKey
}

func newCompactionState(c *compaction, opts *Options, fs objstorage.FS, dirname string) *compactionState {
	return &compactionState{
		c:            c,
		opts:         opts,
		fs:           fs,
		dirname:      dirname,
		grandparents: newGrandparentTracker(opts.Comparer.Compare, c.inputs[2], opts.maxGrandparentOverlapBytes()),
	}
}

// shouldSplitBefore reports whether the output currently being built should
// be finished before writing key: either it has already grown past
// MaxFileSize, or the grandparent-overlap tracker says so.
func (s *compactionState) shouldSplitBefore(key base.InternalKey) bool {
	if s.curWriter == nil {
		return false
	}
	if s.curWriter.EstimatedSize() > int64(s.opts.MaxFileSize) {
		return true
	}
	return s.grandparents.shouldStopBefore(key)
}

// openOutput allocates a new output file number and opens its Writer.
func (s *compactionState) openOutput(nextFileNum func() base.FileNum) error {
	s.curFileNum = nextFileNum()
	name := s.fs.PathJoin(s.dirname, base.MakeFilename(base.FileTypeTable, s.curFileNum))
	f, err := s.fs.Create(name)
	if err != nil {
		return err
	}
	s.curFile = f
	s.curWriter = sstable.NewWriter(f, s.opts.sstableOptions())
	s.curHaveSmallest = false
	return nil
}

// add writes key/value to the currently open output, recording the
// running smallest/largest bounds.
func (s *compactionState) add(key base.InternalKey, value []byte) error {
	if !s.curHaveSmallest {
		s.curSmallest = key.Clone()
		s.curHaveSmallest = true
	}
	s.curLargest = key.Clone()
	return s.curWriter.Add(key, value)
}

// finishOutput closes the current output file, verifies it opens cleanly
// through the table cache (rejecting silently corrupted writes), and
// records its FileMetadata.
func (s *compactionState) finishOutput(tc *tableCache) error {
	if s.curWriter == nil {
		return nil
	}
	if err := s.curWriter.Close(); err != nil {
		s.curFile.Close()
		return err
	}
	if err := s.curFile.Close(); err != nil {
		return err
	}

	info, err := s.fs.Stat(s.fs.PathJoin(s.dirname, base.MakeFilename(base.FileTypeTable, s.curFileNum)))
	if err != nil {
		return err
	}

	meta := &manifest.FileMetadata{
		FileNum:  s.curFileNum,
		Size:     uint64(info.Size()),
		Smallest: s.curSmallest,
		Largest:  s.curLargest,
	}

	if _, err := tc.get(meta.FileNum); err != nil {
		return base.MarkCorruption(err, "compaction: output table failed verification read")
	}

	s.outputs = append(s.outputs, meta)
	s.curWriter = nil
	s.curFile = nil
	return nil
}

// cleanup unlinks every output file produced so far, used when a
// compaction aborts mid-way.
func (s *compactionState) cleanup() {
	if s.curFile != nil {
		s.curFile.Close()
		s.fs.Remove(s.fs.PathJoin(s.dirname, base.MakeFilename(base.FileTypeTable, s.curFileNum)))
	}
	for _, m := range s.outputs {
		s.fs.Remove(s.fs.PathJoin(s.dirname, base.MakeFilename(base.FileTypeTable, m.FileNum)))
	}
}

// versionEdit builds the VersionEdit installing this compaction's outputs
// at c.level+1 and deleting every input file at c.level and c.level+1.
func (s *compactionState) versionEdit() *manifest.VersionEdit {
	ve := &manifest.VersionEdit{
		DeletedFiles: map[manifest.DeletedFileEntry]bool{},
	}
	for _, m := range s.outputs {
		ve.NewFiles = append(ve.NewFiles, manifest.NewFileEntry{Level: s.c.level + 1, Meta: m})
	}
	for i := 0; i < 2; i++ {
		for _, f := range s.c.inputs[i] {
			ve.DeletedFiles[manifest.DeletedFileEntry{Level: s.c.level + i, FileNum: f.FileNum}] = true
		}
	}
	return ve
}
