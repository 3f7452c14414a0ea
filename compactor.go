// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"context"
	"time"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/internal/memtable"
	"github.com/lsmdb/lsmdb/internal/record"
	"github.com/lsmdb/lsmdb/sstable"
	"golang.org/x/sync/errgroup"
)

// makeRoomForWriteLocked rotates the active memtable to immutable and
// flushes it synchronously once it would exceed addedBytes past
// WriteBufferSize: rotation and the inline compaction trigger both happen
// before the write proceeds. d.mu must be held.
func (d *DB) makeRoomForWriteLocked(addedBytes uint64) error {
	if d.mu.mem.mutable.ApproxMemoryUsage()+addedBytes <= d.opts.WriteBufferSize {
		return nil
	}

	oldLogFile := d.mu.mem.logFile
	oldMem := d.mu.mem.mutable

	logNum := d.mu.versions.NextFileNum()
	name := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeLog, logNum))
	f, err := d.fs.Create(name)
	if err != nil {
		d.mu.versions.ReuseFileNum(logNum)
		return err
	}

	d.mu.mem.queue = append(d.mu.mem.queue, oldMem)
	d.mu.mem.logFile = f
	d.mu.mem.log = record.NewWriter(f, 0)
	d.mu.mem.logNum = logNum
	d.mu.mem.mutable = memtable.New(d.cmp)

	d.opts.EventListener.walCreated(WALCreateInfo{JobID: d.nextJobID(), Path: name, FileNum: logNum})

	if err := d.flush1(); err != nil {
		return err
	}
	return oldLogFile.Close()
}

// flush1 flushes every immutable memtable in the queue to a new table at the
// level pickOutputLevel chooses, then runs maybeCompactLocked, which keeps
// compacting until no compaction is due.
func (d *DB) flush1() error {
	for len(d.mu.mem.queue) > 0 {
		mem := d.mu.mem.queue[0]
		if mem.Len() == 0 {
			d.mu.mem.queue = d.mu.mem.queue[1:]
			continue
		}

		jobID := d.nextJobID()
		start := time.Now()
		d.opts.EventListener.flushBegin(FlushInfo{JobID: jobID})

		meta, err := d.writeLevel0Table(mem)
		if err != nil {
			d.opts.EventListener.flushEnd(FlushInfo{JobID: jobID, Err: err})
			return err
		}

		ve := &manifest.VersionEdit{LogNumber: d.mu.mem.logNum, HasLogNumber: true}
		if meta != nil {
			ve.NewFiles = []manifest.NewFileEntry{{Level: d.pickOutputLevel(meta), Meta: meta}}
		}
		if err := d.mu.versions.LogAndApply(ve); err != nil {
			d.opts.EventListener.flushEnd(FlushInfo{JobID: jobID, Err: err})
			return err
		}

		var out base.FileNum
		var outBytes uint64
		if meta != nil {
			out = meta.FileNum
			outBytes = meta.Size
		}
		d.metrics.recordFlush(time.Since(start).Nanoseconds(), outBytes)
		d.metrics.updateLevelGauges(d.mu.versions.Current())
		d.opts.EventListener.flushEnd(FlushInfo{JobID: jobID, Output: out})
		d.mu.mem.queue = d.mu.mem.queue[1:]
	}

	d.deleteObsoleteFilesLocked()
	return d.maybeCompactLocked()
}

// pickOutputLevel chooses the memtable flush's destination level via
// Version.PickMemtableOutputLevel.
func (d *DB) pickOutputLevel(meta *manifest.FileMetadata) int {
	v := d.mu.versions.Current()
	return v.PickMemtableOutputLevel(d.cmp, meta.Smallest.UserKey, meta.Largest.UserKey, d.opts.maxGrandparentOverlapBytes())
}

// writeLevel0Table streams mem into a new sstable. A resulting empty file
// reuses its allocated number and returns a nil meta.
func (d *DB) writeLevel0Table(mem *memtable.Memtable) (*manifest.FileMetadata, error) {
	fileNum := d.mu.versions.NextFileNum()
	name := d.fs.PathJoin(d.dirname, base.MakeFilename(base.FileTypeTable, fileNum))

	f, err := d.fs.Create(name)
	if err != nil {
		d.mu.versions.ReuseFileNum(fileNum)
		return nil, err
	}

	w := sstable.NewWriter(f, d.opts.sstableOptions())
	it := mem.NewIter()
	for valid := it.First(); valid; valid = it.Next() {
		if err := w.Add(it.Key(), it.Value()); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return nil, err
	}
	if w.EntryCount == 0 {
		f.Close()
		d.fs.Remove(name)
		d.mu.versions.ReuseFileNum(fileNum)
		return nil, nil
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	if _, err := d.tableCache.get(fileNum); err != nil {
		d.fs.Remove(name)
		return nil, base.MarkCorruption(err, "flush: output table failed verification read")
	}

	info, err := d.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	return &manifest.FileMetadata{
		FileNum:  fileNum,
		Size:     uint64(info.Size()),
		Smallest: w.Smallest,
		Largest:  w.Largest,
	}, nil
}

// maybeScheduleReadCompaction records a seek-triggered compaction sample
// and runs maybeCompactLocked if UpdateStats marked the file for compaction.
func (d *DB) maybeScheduleReadCompaction(v *manifest.Version, stat *manifest.ReadStat) {
	if !v.UpdateStats(stat) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.closed {
		return
	}
	d.maybeCompactLocked()
}

// maybeCompactLocked runs compactions to a fixed point: after each pass,
// re-checks whether the new version still scores >= 1, since a compaction
// can push a level over its own threshold. The engine is single-threaded,
// so this loop runs synchronously rather than scheduling a background pass.
func (d *DB) maybeCompactLocked() error {
	for {
		c := pickCompaction(d.mu.versions, d.opts)
		if c == nil {
			return nil
		}
		if err := d.compact1(c); err != nil {
			return err
		}
	}
}

// compact1 runs one compaction: a trivial move if possible, otherwise a
// full rewrite through compactDiskTables.
func (d *DB) compact1(c *compaction) error {
	jobID := d.nextJobID()
	start := time.Now()
	d.opts.EventListener.compactionBegin(CompactionInfo{
		JobID: jobID, FromLevel: c.level, ToLevel: c.level + 1,
		Input: len(c.inputs[0]) + len(c.inputs[1]),
	})

	if c.isTrivialMove(d.opts) {
		meta := c.inputs[0][0]
		ve := &manifest.VersionEdit{
			DeletedFiles: map[manifest.DeletedFileEntry]bool{
				{Level: c.level, FileNum: meta.FileNum}: true,
			},
			NewFiles: []manifest.NewFileEntry{{Level: c.level + 1, Meta: meta}},
		}
		err := d.mu.versions.LogAndApply(ve)
		if err == nil {
			d.metrics.recordCompaction(time.Since(start).Nanoseconds(), c.level+1, meta.Size)
			d.metrics.updateLevelGauges(d.mu.versions.Current())
		}
		d.opts.EventListener.compactionEnd(CompactionInfo{JobID: jobID, FromLevel: c.level, ToLevel: c.level + 1, Err: err})
		return err
	}

	ve, err := d.compactDiskTables(c)
	if err != nil {
		d.opts.EventListener.compactionEnd(CompactionInfo{JobID: jobID, FromLevel: c.level, ToLevel: c.level + 1, Err: err})
		return err
	}
	if err := d.mu.versions.LogAndApply(ve); err != nil {
		d.opts.EventListener.compactionEnd(CompactionInfo{JobID: jobID, FromLevel: c.level, ToLevel: c.level + 1, Err: err})
		return err
	}
	d.deleteObsoleteFilesLocked()

	var outBytes uint64
	for _, e := range ve.NewFiles {
		outBytes += e.Meta.Size
	}
	d.metrics.recordCompaction(time.Since(start).Nanoseconds(), c.level+1, outBytes)
	d.metrics.updateLevelGauges(d.mu.versions.Current())

	d.opts.EventListener.compactionEnd(CompactionInfo{
		JobID: jobID, FromLevel: c.level, ToLevel: c.level + 1, Output: len(ve.NewFiles),
	})
	return nil
}

// compactDiskTables merges c's input files into new L+1 output(s). d.mu is
// held across I/O: the engine is single-threaded, so a long compaction
// simply blocks the next write rather than racing it for file state.
func (d *DB) compactDiskTables(c *compaction) (ve *manifest.VersionEdit, retErr error) {
	v := d.mu.versions.Current()
	smallestSeq := d.mu.snapshots.Oldest(d.mu.versions.LastSequence())

	iter, err := d.newCompactionInputIter(c)
	if err != nil {
		return nil, err
	}
	ci := newCompactionIter(d.cmp, iter, c, v, smallestSeq)

	state := newCompactionState(c, d.opts, d.fs, d.dirname)
	defer func() {
		iter.Close()
		if retErr != nil {
			state.cleanup()
		}
	}()

	for valid := ci.First(); valid; valid = ci.Next() {
		key := ci.Key()
		if state.shouldSplitBefore(key) {
			if err := state.finishOutput(d.tableCache); err != nil {
				return nil, err
			}
		}
		if state.curWriter == nil {
			if err := state.openOutput(d.mu.versions.NextFileNum); err != nil {
				return nil, err
			}
		}
		if err := state.add(key, ci.Value()); err != nil {
			return nil, err
		}
	}
	if err := state.finishOutput(d.tableCache); err != nil {
		return nil, err
	}

	return state.versionEdit(), nil
}

// newCompactionInputIter builds the merging iterator over a compaction's
// inputs: one iterator per L0 file when c.level==0, otherwise a
// concatenating levelIter, always merged with a levelIter over the level+1
// inputs.
func (d *DB) newCompactionInputIter(c *compaction) (*mergingIter, error) {
	var iters []manifest.InternalIterator

	if c.level == 0 {
		for _, f := range c.inputs[0] {
			it, err := d.tableCache.newIter(f)
			if err != nil {
				return nil, err
			}
			iters = append(iters, it)
		}
	} else {
		iters = append(iters, newLevelIter(d.tableCache.newIter, c.inputs[0]))
	}
	iters = append(iters, newLevelIter(d.tableCache.newIter, c.inputs[1]))

	return newMergingIter(d.cmp, iters...), nil
}

// deleteObsoleteFilesLocked removes log/manifest/table files no longer
// referenced by any live Version. d.mu is held; the filesystem sweep itself
// fans out with errgroup since each Remove is an independent syscall.
func (d *DB) deleteObsoleteFilesLocked() {
	live := d.mu.versions.LiveFiles()
	logNumber := d.mu.versions.LogNumber()
	manifestNumber := d.mu.versions.ManifestNumber()

	entries, err := d.fs.List(d.dirname)
	if err != nil {
		return
	}

	var toRemove []string
	for _, name := range entries {
		fileType, fileNum, ok := base.ParseFilename(name)
		if !ok {
			continue
		}
		keep := true
		switch fileType {
		case base.FileTypeLog:
			keep = fileNum >= logNumber
		case base.FileTypeManifest:
			keep = fileNum >= manifestNumber
		case base.FileTypeTable, base.FileTypeTemp:
			_, keep = live[fileNum]
		default:
			continue
		}
		if keep {
			continue
		}
		if fileType == base.FileTypeTable {
			d.tableCache.evict(fileNum)
		}
		toRemove = append(toRemove, name)
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, name := range toRemove {
		name := name
		g.Go(func() error {
			d.fs.Remove(d.fs.PathJoin(d.dirname, name))
			return nil
		})
	}
	g.Wait()
}
