// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record frames the manifest log and write-ahead log: both are a
// sequence of length-prefixed, checksummed records. The payload each record
// carries is the caller's concern; framing is this package's.
package record

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/lsmdb/lsmdb/internal/base"
)

// headerSize is the per-record framing overhead: 4-byte length + 8-byte
// xxhash checksum of the payload.
const headerSize = 4 + 8

// Writer appends framed records to an underlying file, used for both the
// manifest log and the per-memtable write-ahead log.
type Writer struct {
	w   io.Writer
	off int64
}

// NewWriter wraps w, an append point already positioned at off bytes (0 for
// a fresh file, or the previous size for a reused log).
func NewWriter(w io.Writer, off int64) *Writer {
	return &Writer{w: w, off: off}
}

// WriteRecord frames and appends payload, returning the number of bytes
// written.
func (w *Writer) WriteRecord(payload []byte) (int, error) {
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint64(header[4:12], xxhash.Sum64(payload))

	n, err := w.w.Write(header[:])
	if err != nil {
		return n, base.MarkIOError(err)
	}
	m, err := w.w.Write(payload)
	total := n + m
	w.off += int64(total)
	if err != nil {
		return total, base.MarkIOError(err)
	}
	return total, nil
}

// Offset reports the writer's current append position, used to reuse a log
// file.
func (w *Writer) Offset() int64 { return w.off }

// Flush flushes the writer if the underlying io.Writer supports it.
func (w *Writer) Flush() error {
	if f, ok := w.w.(interface{ Sync() error }); ok {
		return base.MarkIOError(f.Sync())
	}
	return nil
}

// Reader reads framed records sequentially from r, tolerating the truncated
// trailing record a crash can leave: a record shorter than the 12-byte
// header is reported as ErrTruncatedRecord rather than returned as data.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader wraps r for sequential record reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ErrTruncatedRecord marks a record whose header or payload was not fully
// present, the documented "logged and skipped" condition during recovery.
var ErrTruncatedRecord = errors.New("record: truncated record")

// Next reads and validates the next record. io.EOF is returned (unwrapped)
// once the stream is exhausted cleanly between records.
func (r *Reader) Next() ([]byte, error) {
	var header [headerSize]byte
	n, err := io.ReadFull(r.r, header[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil || n < headerSize {
		return nil, ErrTruncatedRecord
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	wantSum := binary.LittleEndian.Uint64(header[4:12])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, ErrTruncatedRecord
	}
	if xxhash.Sum64(payload) != wantSum {
		return nil, base.MarkCorruption(nil, "record: checksum mismatch")
	}
	return payload, nil
}
