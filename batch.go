// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import "github.com/lsmdb/lsmdb/internal/batch"

// Batch collects a group of Put/Delete operations that Apply commits
// atomically: every entry in the batch shares the contiguous run of
// sequence numbers assigned when it is appended to the write-ahead log.
type Batch struct {
	b batch.Batch
}

// NewBatch returns an empty Batch ready for Put/Delete.
func NewBatch() *Batch {
	return &Batch{}
}

// Put stages a key/value write.
func (b *Batch) Put(key, value []byte) {
	b.b.Put(key, value)
}

// Delete stages a tombstone for key.
func (b *Batch) Delete(key []byte) {
	b.b.Delete(key)
}

// Len returns the number of staged operations.
func (b *Batch) Len() int { return b.b.Count() }

// Reset discards every staged operation so the Batch can be reused.
func (b *Batch) Reset() {
	b.b.Entries = b.b.Entries[:0]
}
