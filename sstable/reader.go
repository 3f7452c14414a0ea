// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/lsmdb/lsmdb/internal/base"
)

// Reader opens a table written by Writer for point lookups and full scans;
// manifest.TableNewIter wraps NewIter to satisfy the Version.Get contract.
type Reader struct {
	r    io.ReaderAt
	size int64
	opt  Options

	indexOffset, indexLength uint64
}

// ErrCorruptTable marks a table whose footer, checksum, or block layout
// failed to validate: overwriting a byte can make every later block
// unreadable, since offsets are resolved through the footer and index.
var ErrCorruptTable = base.CorruptionErrorf("sstable: corrupt table")

// NewReader opens r, which has the given total size, validating the footer.
func NewReader(r io.ReaderAt, size int64, opt Options) (*Reader, error) {
	opt = opt.ensureDefaults()
	if size < footerLen {
		return nil, base.CorruptionErrorf("sstable: file too short to contain a footer")
	}

	footer := make([]byte, footerLen)
	if _, err := r.ReadAt(footer, size-footerLen); err != nil {
		return nil, base.MarkIOError(err)
	}
	if binary.LittleEndian.Uint64(footer[16:24]) != magic {
		return nil, base.CorruptionErrorf("sstable: invalid footer magic")
	}

	return &Reader{
		r:           r,
		size:        size,
		opt:         opt,
		indexOffset: binary.LittleEndian.Uint64(footer[0:8]),
		indexLength: binary.LittleEndian.Uint64(footer[8:16]),
	}, nil
}

// readBlock reads, checksums, and decompresses the block at handle.
func (r *Reader) readBlock(handle blockHandle) ([]byte, error) {
	compressed := make([]byte, handle.length-blockTrailerLen)
	if _, err := r.r.ReadAt(compressed, int64(handle.offset)); err != nil {
		return nil, base.MarkIOError(err)
	}
	trailer := make([]byte, blockTrailerLen)
	if _, err := r.r.ReadAt(trailer, int64(handle.offset)+int64(len(compressed))); err != nil {
		return nil, base.MarkIOError(err)
	}

	wantSum := binary.LittleEndian.Uint64(trailer[1:9])
	if xxhash.Sum64(compressed) != wantSum {
		return nil, base.MarkCorruption(nil, "sstable: block checksum mismatch at offset %d", handle.offset)
	}

	codec := Compression(trailer[0])
	raw, err := decompress(codec, compressed)
	if err != nil {
		return nil, base.MarkCorruption(err, "sstable: failed to decompress block at offset %d", handle.offset)
	}
	return raw, nil
}

// NewIter returns an iterator over every internal key/value pair in the
// table, in ascending internal-key order, satisfying
// manifest.InternalIterator.
func (r *Reader) NewIter() (*Iterator, error) {
	indexRaw, err := r.readBlock(blockHandle{offset: r.indexOffset, length: r.indexLength})
	if err != nil {
		return nil, err
	}
	indexEntries, err := decodeBlock(indexRaw)
	if err != nil {
		return nil, err
	}

	it := &Iterator{r: r, index: indexEntries, blockIdx: -1}
	return it, nil
}

// Get performs a point lookup for userKey as of lookup's sequence number,
// returning found=false if no live entry is present. Version.Get does not
// call it; it reads tables through TableNewIter iterators instead.
func (r *Reader) Get(cmp base.Compare, lookup base.InternalKey) (value []byte, found, isDeletion bool, err error) {
	it, err := r.NewIter()
	if err != nil {
		return nil, false, false, err
	}
	defer it.Close()

	for valid := it.SeekGE(cmp, lookup.UserKey); valid; valid = it.Next() {
		ik := it.Key()
		if cmp(ik.UserKey, lookup.UserKey) != 0 {
			break
		}
		if ik.SeqNum() > lookup.SeqNum() {
			continue
		}
		switch ik.Kind() {
		case base.InternalKeyKindDeletion:
			return nil, false, true, nil
		case base.InternalKeyKindValue:
			return append([]byte(nil), it.Value()...), true, false, nil
		}
	}
	return nil, false, false, nil
}

// blockEntry is one decoded (key, value) pair from a data or index block.
type blockEntry struct {
	key   base.InternalKey
	value []byte
}

// decodeBlock parses the entries out of a raw (decompressed) block,
// ignoring the trailing restart-point array (NewIter walks entries
// sequentially rather than seeking, so restarts are consumed only to locate
// where the entry stream ends).
func decodeBlock(raw []byte) ([]blockEntry, error) {
	if len(raw) < 4 {
		if len(raw) == 0 {
			return nil, nil
		}
		return nil, ErrCorruptTable
	}
	numRestarts := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	restartsLen := 4 * int(numRestarts)
	if len(raw) < 4+restartsLen {
		return nil, ErrCorruptTable
	}
	entryData := raw[:len(raw)-4-restartsLen]

	var entries []blockEntry
	pos := 0
	for pos < len(entryData) {
		keyLen, n := binary.Uvarint(entryData[pos:])
		if n <= 0 {
			return nil, ErrCorruptTable
		}
		pos += n
		valLen, n := binary.Uvarint(entryData[pos:])
		if n <= 0 {
			return nil, ErrCorruptTable
		}
		pos += n
		if pos+int(keyLen)+int(valLen) > len(entryData) {
			return nil, ErrCorruptTable
		}
		keyBuf := entryData[pos : pos+int(keyLen)]
		pos += int(keyLen)
		valBuf := entryData[pos : pos+int(valLen)]
		pos += int(valLen)

		entries = append(entries, blockEntry{
			key:   base.DecodeInternalKey(keyBuf),
			value: valBuf,
		})
	}
	return entries, nil
}

// Iterator walks a table's data blocks in order, lazily reading and
// decoding each one.
type Iterator struct {
	r     *Reader
	index []blockEntry

	blockIdx int
	entries  []blockEntry
	entryIdx int
	err      error
}

// First positions the iterator at the table's first entry.
func (it *Iterator) First() bool {
	it.blockIdx = 0
	return it.loadBlockAndSeekFirst()
}

func (it *Iterator) loadBlockAndSeekFirst() bool {
	for it.blockIdx < len(it.index) {
		handle, err := decodeHandle(it.index[it.blockIdx].value)
		if err != nil {
			it.err = err
			return false
		}
		raw, err := it.r.readBlock(handle)
		if err != nil {
			it.err = err
			return false
		}
		entries, err := decodeBlock(raw)
		if err != nil {
			it.err = err
			return false
		}
		if len(entries) > 0 {
			it.entries = entries
			it.entryIdx = 0
			return true
		}
		it.blockIdx++
	}
	it.entries = nil
	return false
}

// Next advances to the next entry, crossing a block boundary if needed.
func (it *Iterator) Next() bool {
	it.entryIdx++
	if it.entryIdx < len(it.entries) {
		return true
	}
	it.blockIdx++
	return it.loadBlockAndSeekFirst()
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.entries != nil && it.entryIdx >= 0 && it.entryIdx < len(it.entries)
}

// Key returns the current entry's internal key.
func (it *Iterator) Key() base.InternalKey { return it.entries[it.entryIdx].key }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.entries[it.entryIdx].value }

// Close releases the iterator, returning any error encountered while
// reading blocks.
func (it *Iterator) Close() error { return it.err }

func decodeHandle(buf []byte) (blockHandle, error) {
	offset, n := binary.Uvarint(buf)
	if n <= 0 {
		return blockHandle{}, ErrCorruptTable
	}
	length, n2 := binary.Uvarint(buf[n:])
	if n2 <= 0 {
		return blockHandle{}, ErrCorruptTable
	}
	return blockHandle{offset: offset, length: length}, nil
}

// SeekGE positions the iterator at the first entry with user key >= target,
// first binary-searching the index block to skip straight to the candidate
// data block.
func (it *Iterator) SeekGE(cmp base.Compare, target []byte) bool {
	idx := sort.Search(len(it.index), func(i int) bool {
		return cmp(it.index[i].key.UserKey, target) >= 0
	})
	if idx >= len(it.index) {
		it.entries = nil
		return false
	}
	it.blockIdx = idx
	if !it.loadBlockAndSeekFirst() {
		return false
	}
	for it.Valid() {
		if cmp(it.Key().UserKey, target) >= 0 {
			return true
		}
		if !it.Next() {
			return false
		}
	}
	return false
}
