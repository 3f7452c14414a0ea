// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"sync"

	"github.com/lsmdb/lsmdb/internal/base"
)

// Snapshot pins a sequence number so reads through it observe the database
// as of that point, regardless of later writes or compactions. The zero
// value is not valid; use SnapshotList.New.
type Snapshot struct {
	seq base.SeqNum

	list       *SnapshotList
	prev, next *Snapshot
}

// SeqNum returns the sequence number this snapshot pins.
func (s *Snapshot) SeqNum() base.SeqNum { return s.seq }

// Close releases the snapshot, allowing compactions to drop entries that
// were being kept alive only for it.
func (s *Snapshot) Close() {
	if s.list == nil {
		return
	}
	s.list.mu.Lock()
	s.list.remove(s)
	s.list.mu.Unlock()
}

// SnapshotList is the doubly linked, mutex-protected list of live snapshots
// the DB tracks, mirroring VersionList's shape but ordered by sequence
// number (oldest at the front) rather than install time.
type SnapshotList struct {
	mu   sync.Mutex
	root Snapshot
}

// Init prepares an empty, circular list.
func (l *SnapshotList) Init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

// Empty reports whether any snapshot is currently pinned.
func (l *SnapshotList) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root.next == &l.root
}

// New pins seq and returns the Snapshot handle. Snapshots are inserted in
// sequence-number order so Oldest is always an O(1) lookup even though
// callers may Close snapshots out of creation order.
func (l *SnapshotList) New(seq base.SeqNum) *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &Snapshot{seq: seq}
	at := &l.root
	for at.next != &l.root && at.next.seq <= seq {
		at = at.next
	}
	s.prev = at
	s.next = at.next
	s.prev.next = s
	s.next.prev = s
	s.list = l
	return s
}

func (l *SnapshotList) remove(s *Snapshot) {
	if s == &l.root {
		panic("manifest: cannot remove snapshot list root node")
	}
	if s.list != l {
		return
	}
	s.prev.next = s.next
	s.next.prev = s.prev
	s.next = nil
	s.prev = nil
	s.list = nil
}

// Oldest returns the smallest pinned sequence number, or seq if no snapshot
// is live — compactions compare every tombstone and superseded value against
// this bound before dropping them, since a live snapshot may still need to
// see an entry a newer version has already superseded.
func (l *SnapshotList) Oldest(seq base.SeqNum) base.SeqNum {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root.next == &l.root {
		return seq
	}
	return l.root.next.seq
}

// Count returns the number of live snapshots, reported in metrics.
func (l *SnapshotList) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for s := l.root.next; s != &l.root; s = s.next {
		n++
	}
	return n
}
