// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import "github.com/lsmdb/lsmdb/internal/manifest"

// Snapshot provides a read-only, point-in-time view of the database: a Get
// through a Snapshot never observes writes sequenced after the snapshot was
// taken, and the compactor keeps alive any entry a live snapshot might still
// need.
type Snapshot struct {
	db   *DB
	snap *manifest.Snapshot
}

// Get looks up key as of the snapshot's sequence number.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	return s.db.getInternal(key, s.snap.SeqNum())
}

// Close releases the snapshot. Once closed, the compactor is free to drop
// entries it was pinning only on this snapshot's behalf.
func (s *Snapshot) Close() error {
	s.snap.Close()
	return nil
}
