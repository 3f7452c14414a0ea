// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package batch implements the WriteBatch wire format: the unit of atomicity
// appended to the write-ahead log.
package batch

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/lsmdb/lsmdb/internal/base"
)

// headerLen is sequence(8 LE) + count(4 LE), the WriteBatch body header. A
// record shorter than this cannot even carry a header.
const headerLen = 12

// Entry is one put or delete within a batch.
type Entry struct {
	Kind  base.InternalKeyKind
	Key   []byte
	Value []byte // empty/nil for Kind == Deletion
}

// Batch is a decoded WriteBatch: a contiguous run of sequence numbers
// starting at Seq, one per Entry.
type Batch struct {
	Seq     base.SeqNum
	Entries []Entry
}

// ErrTooShort marks a record too short to contain a WriteBatch header.
var ErrTooShort = errors.New("batch: record shorter than batch header")

// Count returns the number of entries encoded in this batch, i.e. the number
// of sequence numbers it consumes.
func (b *Batch) Count() int { return len(b.Entries) }

// Put appends a Value entry.
func (b *Batch) Put(key, value []byte) {
	b.Entries = append(b.Entries, Entry{Kind: base.InternalKeyKindValue, Key: key, Value: value})
}

// Delete appends a Deletion entry.
func (b *Batch) Delete(key []byte) {
	b.Entries = append(b.Entries, Entry{Kind: base.InternalKeyKindDeletion, Key: key})
}

// Encode serializes the batch as sequence(8 LE) ‖ count(4 LE) ‖ entries*,
// each entry kind(1) ‖ key(varlen) ‖ value(varlen if kind=Value).
func (b *Batch) Encode(seq base.SeqNum) []byte {
	size := headerLen
	for _, e := range b.Entries {
		size += 1 + uvarintLen(uint64(len(e.Key))) + len(e.Key)
		if e.Kind == base.InternalKeyKindValue {
			size += uvarintLen(uint64(len(e.Value))) + len(e.Value)
		}
	}
	buf := make([]byte, headerLen, size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(seq))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(b.Entries)))

	for _, e := range b.Entries {
		buf = append(buf, byte(e.Kind))
		buf = appendUvarintBytes(buf, e.Key)
		if e.Kind == base.InternalKeyKindValue {
			buf = appendUvarintBytes(buf, e.Value)
		}
	}
	return buf
}

// Decode parses the wire format produced by Encode.
func Decode(data []byte) (*Batch, error) {
	if len(data) < headerLen {
		return nil, ErrTooShort
	}
	seq := base.SeqNum(binary.LittleEndian.Uint64(data[0:8]))
	count := binary.LittleEndian.Uint32(data[8:12])

	b := &Batch{Seq: seq, Entries: make([]Entry, 0, count)}
	rest := data[headerLen:]
	for i := uint32(0); i < count; i++ {
		if len(rest) < 1 {
			return nil, base.MarkCorruption(nil, "batch: truncated entry header")
		}
		kind := base.InternalKeyKind(rest[0])
		rest = rest[1:]

		key, n, err := readUvarintBytes(rest)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]

		var value []byte
		if kind == base.InternalKeyKindValue {
			value, n, err = readUvarintBytes(rest)
			if err != nil {
				return nil, err
			}
			rest = rest[n:]
		}
		b.Entries = append(b.Entries, Entry{Kind: kind, Key: key, Value: value})
	}
	return b, nil
}

func uvarintLen(u uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], u)
}

func appendUvarintBytes(buf []byte, p []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(p)))
	buf = append(buf, lenBuf[:n]...)
	return append(buf, p...)
}

func readUvarintBytes(buf []byte) (p []byte, consumed int, err error) {
	n, nn := binary.Uvarint(buf)
	if nn <= 0 {
		return nil, 0, base.MarkCorruption(nil, "batch: invalid varint length prefix")
	}
	if uint64(len(buf)-nn) < n {
		return nil, 0, base.MarkCorruption(nil, "batch: truncated entry payload")
	}
	return buf[nn : nn+int(n)], nn + int(n), nil
}
