// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sstable is the on-disk table format: compaction reads and writes
// whole tables through this package without caring how a block is laid out.
// The restart-point block shape uses plain byte slices rather than
// unsafe.Pointer tricks.
package sstable

import (
	"github.com/DataDog/zstd"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
)

// Compression identifies the codec applied to a block before it is written,
// recorded as a trailing byte so Reader can pick the matching decompressor
// without external bookkeeping.
type Compression uint8

// The supported block compression codecs. All three are real third-party
// codecs; this is their only wiring point in this tree.
const (
	NoCompression Compression = iota
	SnappyCompression
	S2Compression
	ZstdCompression
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case S2Compression:
		return "s2"
	case ZstdCompression:
		return "zstd"
	default:
		return "unknown"
	}
}

// compress encodes block with the given codec.
func compress(c Compression, block []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return block, nil
	case SnappyCompression:
		return snappy.Encode(nil, block), nil
	case S2Compression:
		return s2.Encode(nil, block), nil
	case ZstdCompression:
		return zstd.Compress(nil, block)
	default:
		return nil, errors.Newf("sstable: unknown compression codec %d", c)
	}
}

// decompress reverses compress.
func decompress(c Compression, compressed []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return compressed, nil
	case SnappyCompression:
		return snappy.Decode(nil, compressed)
	case S2Compression:
		return s2.Decode(nil, compressed)
	case ZstdCompression:
		return zstd.Decompress(nil, compressed)
	default:
		return nil, errors.Newf("sstable: unknown compression codec %d", c)
	}
}

// Options configures a Writer. The zero value is usable: uncompressed,
// default block size and restart interval.
type Options struct {
	// BlockSize is the target uncompressed size of a data block before a new
	// one is started.
	BlockSize int

	// BlockRestartInterval is the number of entries between restart points.
	// Reader does not seek by restart point: SeekGE binary-searches the
	// index block, then scans the data block linearly.
	BlockRestartInterval int

	Compression Compression

	Compare func(a, b []byte) int
}

const (
	defaultBlockSize            = 4096
	defaultBlockRestartInterval = 16
)

func (o Options) ensureDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = defaultBlockSize
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = defaultBlockRestartInterval
	}
	if o.Compare == nil {
		o.Compare = func(a, b []byte) int {
			switch {
			case string(a) < string(b):
				return -1
			case string(a) > string(b):
				return 1
			default:
				return 0
			}
		}
	}
	return o
}
