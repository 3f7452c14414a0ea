// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"io"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/batch"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/internal/memtable"
	"github.com/lsmdb/lsmdb/internal/record"
	"github.com/lsmdb/lsmdb/objstorage"
)

// Open opens (or creates) the database rooted at dirname: it acquires the
// directory lock, recovers (or initializes) the manifest, replays every WAL
// segment at or after the manifest's log number into a fresh memtable, and
// opens a new WAL for subsequent writes.
func Open(dirname string, opts *Options) (db *DB, retErr error) {
	opts = opts.EnsureDefaults()
	fs := objstorage.DefaultFS{}

	if err := fs.MkdirAll(dirname); err != nil {
		return nil, err
	}

	lockName := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeLock, 0))
	fileLock, err := fs.Lock(lockName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			fileLock.Close()
		}
	}()

	sessionID := uuid.New().String()
	opts.Logger.Infof("opening database %q (session %s)", dirname, sessionID)

	currentName := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeCurrent, 0))
	_, statErr := fs.Stat(currentName)
	exists := statErr == nil
	if !exists && !os.IsNotExist(statErr) {
		return nil, statErr
	}

	if !exists {
		if !opts.CreateIfMissing {
			return nil, errors.Mark(errors.Newf("lsmdb: database %q does not exist", dirname), base.KindInvalidArgument)
		}
	} else if opts.ErrorIfExists {
		return nil, errors.Mark(errors.Newf("lsmdb: database %q already exists", dirname), base.KindInvalidArgument)
	}

	d := &DB{
		dirname: dirname,
		fs:      fs,
		opts:    opts,
		cmp:     opts.Comparer.Compare,
	}
	d.tableCache = newTableCache(dirname, fs, opts)
	d.metrics = newMetrics(dirname)
	d.mu.versions = manifest.New(dirname, fs, d.cmp, opts.Comparer.Name)
	d.mu.mem.mutable = memtable.New(d.cmp)

	if !exists {
		if err := d.mu.versions.CreateFresh(); err != nil {
			return nil, err
		}
	} else {
		if err := d.mu.versions.Recover(); err != nil {
			return nil, err
		}
	}

	if err := d.replayLogFiles(); err != nil {
		return nil, err
	}

	logNum := d.mu.versions.NextFileNum()
	logName := fs.PathJoin(dirname, base.MakeFilename(base.FileTypeLog, logNum))
	logFile, err := fs.Create(logName)
	if err != nil {
		return nil, err
	}
	d.mu.mem.logFile = logFile
	d.mu.mem.logNum = logNum
	d.mu.mem.log = record.NewWriter(logFile, 0)

	ve := &manifest.VersionEdit{LogNumber: logNum, HasLogNumber: true}
	if err := d.mu.versions.LogAndApply(ve); err != nil {
		return nil, err
	}
	opts.EventListener.walCreated(WALCreateInfo{JobID: d.nextJobID(), Path: logName, FileNum: logNum})

	d.mu.Lock()
	d.deleteObsoleteFilesLocked()
	if err := d.maybeCompactLocked(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	d.fileLock = fileLock
	return d, nil
}

// replayLogFiles replays every WAL at or after the manifest's recorded log
// number into the mutable memtable: each batch's entries are inserted at the
// sequence number it carried originally, and the engine's last-sequence
// counter is advanced past the highest one seen. A log file that grows the
// memtable past WriteBufferSize during replay is flushed immediately rather
// than held entirely in memory.
func (d *DB) replayLogFiles() error {
	entries, err := d.fs.List(d.dirname)
	if err != nil {
		return err
	}

	type logFile struct {
		num  base.FileNum
		name string
	}
	var logs []logFile
	logNumber := d.mu.versions.LogNumber()
	for _, name := range entries {
		fileType, num, ok := base.ParseFilename(name)
		if ok && fileType == base.FileTypeLog && num >= logNumber {
			logs = append(logs, logFile{num: num, name: name})
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].num < logs[j].num })

	var maxSeq base.SeqNum
	for _, lf := range logs {
		seq, err := d.replayLogFile(lf.name)
		if err != nil {
			return err
		}
		d.mu.versions.MarkFileNumUsed(lf.num)
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	if maxSeq > d.mu.versions.LastSequence() {
		d.mu.versions.SetLastSequence(maxSeq)
	}
	return nil
}

// replayLogFile reads one WAL end to end, applying every batch it carries to
// the mutable memtable, and returns the highest sequence number consumed. A
// truncated trailing record ends replay of this file without error, matching
// a crash mid-append, but is logged so the gap is visible.
func (d *DB) replayLogFile(name string) (base.SeqNum, error) {
	f, err := d.fs.Open(d.fs.PathJoin(d.dirname, name))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var maxSeq base.SeqNum
	rr := record.NewReader(f)
	for {
		payload, err := rr.Next()
		if err != nil {
			if err != io.EOF {
				d.opts.Logger.Errorf("lsmdb: %s: truncated record, stopping replay: %v", name, err)
			}
			break
		}
		bat, err := batch.Decode(payload)
		if err != nil {
			d.opts.Logger.Errorf("lsmdb: skipping corrupt batch in %s: %v", name, err)
			continue
		}
		for i, e := range bat.Entries {
			ik := base.MakeInternalKey(e.Key, bat.Seq+base.SeqNum(i), e.Kind)
			d.mu.mem.mutable.Set(ik, e.Value)
		}
		if last := bat.Seq + base.SeqNum(len(bat.Entries)) - 1; last > maxSeq {
			maxSeq = last
		}

		if d.mu.mem.mutable.ApproxMemoryUsage() > d.opts.WriteBufferSize {
			d.mu.mem.queue = append(d.mu.mem.queue, d.mu.mem.mutable)
			d.mu.mem.mutable = memtable.New(d.cmp)
			if err := d.flush1(); err != nil {
				return 0, err
			}
		}
	}
	return maxSeq, nil
}
