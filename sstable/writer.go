// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/lsmdb/lsmdb/internal/base"
)

// blockTrailerLen is the per-block trailing metadata: 1-byte compression
// codec + 8-byte xxhash checksum of the compressed payload. Overwriting any
// byte inside a block, including this trailer, makes the checksum fail on
// read.
const blockTrailerLen = 1 + 8

// footerLen is the fixed-size trailer identifying the index block's location
// plus a magic number, so Reader can find the index without a second pass.
const footerLen = 8 + 8 + 8 // index offset, index length, magic

const magic = uint64(0xf09a9e3a4b2c1d7e)

// Writer assembles a sorted run of internal keys into an sstable: a sequence
// of data blocks, an index block mapping each data block's last key to its
// offset/length, and a fixed footer.
type Writer struct {
	w   io.Writer
	opt Options
	off int64

	buf          blockBuilder
	indexBuf     blockBuilder
	pendingIndex bool
	lastKey      base.InternalKey
	lastHandle   blockHandle

	Smallest, Largest           base.InternalKey
	haveSmallest                bool
	EntryCount                  int
}

type blockHandle struct {
	offset, length uint64
}

// NewWriter creates a Writer appending to w, which must be positioned at the
// start of a fresh file.
func NewWriter(w io.Writer, opt Options) *Writer {
	opt = opt.ensureDefaults()
	return &Writer{
		w:        w,
		opt:      opt,
		buf:      &defaultBlockBuilder{restartInterval: opt.BlockRestartInterval},
		indexBuf: &defaultBlockBuilder{restartInterval: opt.BlockRestartInterval},
	}
}

// Add appends an internal key/value pair. Keys must be supplied in
// ascending internal-key order.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.pendingIndex {
		if err := w.finishPendingIndexEntry(); err != nil {
			return err
		}
	}
	if !w.haveSmallest {
		w.Smallest = key.Clone()
		w.haveSmallest = true
	}
	w.Largest = key.Clone()
	w.EntryCount++

	w.buf.add(key, value)
	w.lastKey = key

	if w.buf.estimatedSize() >= w.opt.BlockSize {
		handle, err := w.finishBlock(w.buf)
		if err != nil {
			return err
		}
		w.lastHandle = handle
		w.pendingIndex = true
	}
	return nil
}

// EstimatedSize returns the number of bytes written so far plus the
// pending (unflushed) data block, used by the compactor to decide when an
// output file has grown past its target size.
func (w *Writer) EstimatedSize() int64 {
	return w.off + int64(w.buf.estimatedSize())
}

// finishPendingIndexEntry records an index entry for the most recently
// flushed data block, keyed by its last (largest) key — deferred one Add
// call so the index separator can be the smallest key of the next block
// if that is shorter, matching the real format's intent even though this
// simplified block format stores the full key either way.
func (w *Writer) finishPendingIndexEntry() error {
	var handleBuf [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(handleBuf[:], w.lastHandle.offset)
	n += binary.PutUvarint(handleBuf[n:], w.lastHandle.length)
	w.indexBuf.add(w.lastKey, append([]byte(nil), handleBuf[:n]...))
	w.pendingIndex = false
	return nil
}

// Close flushes any buffered data block, writes the index block, and writes
// the footer.
func (w *Writer) Close() error {
	if w.buf.entries() > 0 {
		handle, err := w.finishBlock(w.buf)
		if err != nil {
			return err
		}
		w.lastHandle = handle
		w.pendingIndex = true
	}
	if w.pendingIndex {
		if err := w.finishPendingIndexEntry(); err != nil {
			return err
		}
	}

	indexHandle, err := w.finishBlock(w.indexBuf)
	if err != nil {
		return err
	}

	var footer [footerLen]byte
	binary.LittleEndian.PutUint64(footer[0:8], indexHandle.offset)
	binary.LittleEndian.PutUint64(footer[8:16], indexHandle.length)
	binary.LittleEndian.PutUint64(footer[16:24], magic)
	return w.writeRaw(footer[:])
}

// finishBlock serializes b's buffered entries, compresses, checksums, and
// appends the block to the file, returning its location.
func (w *Writer) finishBlock(b blockBuilder) (blockHandle, error) {
	raw := b.finish()
	compressed, err := compress(w.opt.Compression, raw)
	if err != nil {
		return blockHandle{}, err
	}

	trailer := make([]byte, blockTrailerLen)
	trailer[0] = byte(w.opt.Compression)
	binary.LittleEndian.PutUint64(trailer[1:9], xxhash.Sum64(compressed))

	offset := uint64(w.off)
	if err := w.writeRaw(compressed); err != nil {
		return blockHandle{}, err
	}
	if err := w.writeRaw(trailer); err != nil {
		return blockHandle{}, err
	}
	b.reset()
	return blockHandle{offset: offset, length: uint64(len(compressed)) + blockTrailerLen}, nil
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.off += int64(n)
	if err != nil {
		return base.MarkIOError(err)
	}
	return nil
}

// blockBuilder accumulates internal-key/value entries for a single block,
// recording restart-point offsets every BlockRestartInterval entries, over
// plain byte slices rather than unsafe.Pointer. Reader skips the restart
// array and decodes entries sequentially.
type blockBuilder interface {
	add(key base.InternalKey, value []byte)
	estimatedSize() int
	entries() int
	finish() []byte
	reset()
}

type defaultBlockBuilder struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	count           int
}

func (b *defaultBlockBuilder) add(key base.InternalKey, value []byte) {
	if b.restartInterval <= 0 {
		b.restartInterval = defaultBlockRestartInterval
	}
	if b.count%b.restartInterval == 0 {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
	}

	var lenBuf [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(key.Size()))
	n += binary.PutUvarint(lenBuf[n:], uint64(len(value)))
	b.buf = append(b.buf, lenBuf[:n]...)

	keyBuf := make([]byte, key.Size())
	key.Encode(keyBuf)
	b.buf = append(b.buf, keyBuf...)
	b.buf = append(b.buf, value...)
	b.count++
}

func (b *defaultBlockBuilder) estimatedSize() int { return len(b.buf) }
func (b *defaultBlockBuilder) entries() int        { return b.count }

func (b *defaultBlockBuilder) finish() []byte {
	out := append([]byte(nil), b.buf...)
	for _, r := range b.restarts {
		var rb [4]byte
		binary.LittleEndian.PutUint32(rb[:], r)
		out = append(out, rb[:]...)
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(b.restarts)))
	out = append(out, countBuf[:]...)
	return out
}

func (b *defaultBlockBuilder) reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:0]
	b.count = 0
}
