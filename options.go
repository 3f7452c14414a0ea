// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/sstable"
)

// Default tunable values.
const (
	DefaultWriteBufferSize      = 4 << 20
	DefaultMaxFileSize          = 2 << 20
	DefaultBlockSize            = 4096
	DefaultBlockRestartInterval = 16
	DefaultMaxOpenFiles         = 1000
)

// numNonTableCacheFiles reserves file descriptors for the WAL, the
// manifest, and the LOCK/CURRENT/LOG files, so MaxOpenFiles - 10 is the
// actual table-cache capacity.
const numNonTableCacheFiles = 10

// Comparer pairs a user-key comparison function with the name persisted in
// the manifest; Recover refuses to open a database whose on-disk
// comparator name doesn't match.
type Comparer struct {
	Name    string
	Compare base.Compare
}

// DefaultComparer orders user keys as raw bytes.
var DefaultComparer = &Comparer{Name: "lsmdb.BytewiseComparator", Compare: base.DefaultCompare}

// CloudOptions configures the optional S3-backed remote objstorage.FS. A
// nil value (the default) keeps every file on local disk only.
type CloudOptions struct {
	Bucket     string
	FilePrefix string
	Region     string
}

// Options configures Open.
type Options struct {
	// CreateIfMissing creates the database directory and a fresh manifest
	// if none exists.
	CreateIfMissing bool
	// ErrorIfExists fails Open if the database already exists.
	ErrorIfExists bool

	// WriteBufferSize is the memtable rotation threshold.
	WriteBufferSize uint64
	// MaxFileSize is the target compaction output table size; it also
	// derives MaxGrandparentOverlapBytes (10x) and
	// ExpandedCompactionByteSizeLimit (25x).
	MaxFileSize uint64
	// BlockSize and BlockRestartInterval configure sstable.Options.
	BlockSize            int
	BlockRestartInterval int
	// Compression selects the sstable block compression codec.
	Compression sstable.Compression
	// MaxOpenFiles bounds the table cache's open file-descriptor budget.
	MaxOpenFiles int

	// ReuseLogs selects appending to the last WAL on recovery. Open does not
	// consult it: recovery always starts a new WAL.
	ReuseLogs bool
	// ReuseManifest selects appending to the recovered manifest. Open does
	// not consult it: the first LogAndApply after recovery always writes a
	// new manifest, whether or not anything was replayed.
	ReuseManifest bool

	// Comparer is the user-key comparator. Defaults to DefaultComparer.
	Comparer *Comparer

	// Logger receives the info log. Defaults to a stderr logger.
	Logger Logger
	// EventListener receives structured notifications of flush/compaction/
	// manifest activity.
	EventListener *EventListener

	// Cloud holds S3 settings for objstorage.RemoteFS. Open does not
	// consult it: it always uses the local objstorage.DefaultFS.
	Cloud *CloudOptions
}

// EnsureDefaults returns a copy of o (or a fresh Options if o is nil) with
// every zero-valued tunable filled in.
func (o *Options) EnsureDefaults() *Options {
	var n Options
	if o != nil {
		n = *o
	}
	if n.WriteBufferSize == 0 {
		n.WriteBufferSize = DefaultWriteBufferSize
	}
	if n.MaxFileSize == 0 {
		n.MaxFileSize = DefaultMaxFileSize
	}
	if n.BlockSize == 0 {
		n.BlockSize = DefaultBlockSize
	}
	if n.BlockRestartInterval == 0 {
		n.BlockRestartInterval = DefaultBlockRestartInterval
	}
	if n.MaxOpenFiles == 0 {
		n.MaxOpenFiles = DefaultMaxOpenFiles
	}
	if n.Comparer == nil {
		n.Comparer = DefaultComparer
	}
	if n.Logger == nil {
		n.Logger = stderrLogger{}
	}
	return &n
}

func (o *Options) sstableOptions() sstable.Options {
	return sstable.Options{
		BlockSize:            o.BlockSize,
		BlockRestartInterval: o.BlockRestartInterval,
		Compression:          o.Compression,
		Compare:              o.Comparer.Compare,
	}
}

// maxGrandparentOverlapBytes is MAX_GRANDPARENT_OVERLAP_BYTES, computed
// as 10x MaxFileSize, overriding manifest.MaxGrandparentOverlapBytes's flat
// 10MB placeholder.
func (o *Options) maxGrandparentOverlapBytes() uint64 {
	return 10 * o.MaxFileSize
}

// expandedCompactionByteSizeLimit bounds how far a compaction may grow its
// L-level inputs without affecting the L+1 file set.
func (o *Options) expandedCompactionByteSizeLimit() uint64 {
	return 25 * o.MaxFileSize
}

// WriteOptions controls a single Put/Delete/Apply call. A nil *WriteOptions
// behaves like the zero value: the WAL record is appended but not flushed to
// disk before the call returns.
type WriteOptions struct {
	// Sync flushes the WAL to stable storage before the call returns. Durable
	// across a process crash at the cost of the flush's latency; without it,
	// a crash can lose writes that were acknowledged but never synced.
	Sync bool
}

func (o *WriteOptions) sync() bool {
	return o != nil && o.Sync
}
