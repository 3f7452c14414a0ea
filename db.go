// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"io"
	"sync"
	"time"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/internal/memtable"
	"github.com/lsmdb/lsmdb/internal/record"
	"github.com/lsmdb/lsmdb/objstorage"
)

// DB is the engine façade: a single-writer, embedded LSM-tree key-value
// store bound to one directory. Writes and compactions are single-threaded;
// reads may run concurrently with both.
type DB struct {
	dirname string
	fs      objstorage.FS
	opts    *Options
	cmp     base.Compare

	fileLock io.Closer

	tableCache *tableCache
	metrics    *Metrics

	mu struct {
		sync.Mutex

		closed bool

		versions *manifest.VersionSet

		mem struct {
			log     *record.Writer
			logFile objstorage.File
			logNum  base.FileNum

			mutable *memtable.Memtable
			queue   []*memtable.Memtable
		}

		snapshots manifest.SnapshotList

		compact struct {
			flushing   bool
			compacting bool
		}

		nextJobID int
	}
}

// Get looks up key at the database's most recent sequence number.
func (d *DB) Get(key []byte) ([]byte, error) {
	return d.getInternal(key, base.InternalKeySeqNumMax)
}

func (d *DB) getInternal(key []byte, seq base.SeqNum) ([]byte, error) {
	start := time.Now()
	defer func() { d.metrics.recordGet(time.Since(start).Nanoseconds()) }()

	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	lookup := base.InternalKey{UserKey: key, Trailer: uint64(seq)<<8 | uint64(base.InternalKeyKindMax)}

	if value, found, isDeletion := d.mu.mem.mutable.Get(lookup); found || isDeletion {
		d.mu.Unlock()
		if isDeletion {
			return nil, ErrNotFound
		}
		return value, nil
	}
	for i := len(d.mu.mem.queue) - 1; i >= 0; i-- {
		if value, found, isDeletion := d.mu.mem.queue[i].Get(lookup); found || isDeletion {
			d.mu.Unlock()
			if isDeletion {
				return nil, ErrNotFound
			}
			return value, nil
		}
	}

	v := d.mu.versions.Current()
	v.Ref()
	d.mu.Unlock()
	defer v.Unref()

	value, found, stat, err := v.Get(d.cmp, d.tableCache.newIter, lookup)
	if err != nil {
		return nil, err
	}
	if stat != nil {
		d.maybeScheduleReadCompaction(v, stat)
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

// Put stores value under key. opts may be nil, which does not flush the WAL
// before returning.
func (d *DB) Put(key, value []byte, opts *WriteOptions) error {
	b := NewBatch()
	b.Put(key, value)
	return d.Apply(b, opts)
}

// Delete removes key. opts may be nil, which does not flush the WAL before
// returning.
func (d *DB) Delete(key []byte, opts *WriteOptions) error {
	b := NewBatch()
	b.Delete(key)
	return d.Apply(b, opts)
}

// Apply commits every operation staged in b atomically: the WAL record is
// appended, and the memtable insert happens, before the call returns. The
// WAL is only flushed to disk first if opts.Sync is set; otherwise a crash
// can still lose the write.
func (d *DB) Apply(b *Batch, opts *WriteOptions) error {
	if b.Len() == 0 {
		return nil
	}
	start := time.Now()
	defer func() { d.metrics.recordPut(time.Since(start).Nanoseconds()) }()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.closed {
		return ErrClosed
	}

	if err := d.makeRoomForWriteLocked(uint64(len(b.b.Entries)) * 64); err != nil {
		return err
	}

	seq := d.mu.versions.LastSequence() + 1
	encoded := b.b.Encode(seq)
	if _, err := d.mu.mem.log.WriteRecord(encoded); err != nil {
		return err
	}
	if opts.sync() {
		if err := d.mu.mem.log.Flush(); err != nil {
			return err
		}
	}

	for i, e := range b.b.Entries {
		ik := base.MakeInternalKey(e.Key, seq+base.SeqNum(i), e.Kind)
		d.mu.mem.mutable.Set(ik, e.Value)
	}
	d.mu.versions.SetLastSequence(seq + base.SeqNum(len(b.b.Entries)) - 1)
	return nil
}

// NewSnapshot pins the database's current sequence number.
func (d *DB) NewSnapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq := d.mu.versions.LastSequence()
	return &Snapshot{db: d, snap: d.mu.snapshots.New(seq)}
}

// Close releases the file lock and every open table handle. It does not
// flush pending work first; callers that need every prior write durable
// should have applied it with WriteOptions.Sync.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.closed {
		return nil
	}
	d.mu.closed = true

	var err error
	if d.mu.mem.logFile != nil {
		if cerr := d.mu.mem.logFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if cerr := d.tableCache.close(); cerr != nil && err == nil {
		err = cerr
	}
	if d.fileLock != nil {
		if cerr := d.fileLock.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (d *DB) nextJobID() int {
	d.mu.nextJobID++
	return d.mu.nextJobID
}
