// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package lsmdb is the core compaction and versioning engine of a
// single-writer, embedded log-structured merge-tree key-value store:
// ordered byte-string keys persisted to immutable sorted-string tables
// organized in levels, with point lookups, snapshot-isolated reads, and a
// write-ahead log for durability.
package lsmdb
