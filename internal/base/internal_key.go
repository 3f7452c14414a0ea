// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base holds the types shared by every layer of the engine: the
// internal key encoding, file numbering, and the error-kind vocabulary.
package base

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
)

// InternalKeyKind enumerates the kind of a value stored behind an internal
// key. MaxSeqNum reserves room for a handful of kinds; only Value and
// Deletion are meaningful to this engine.
type InternalKeyKind uint8

// Value classes. InternalKeyKindInvalid is never stored; it is the parse
// failure sentinel (sequence 0).
const (
	InternalKeyKindDeletion InternalKeyKind = 0
	InternalKeyKindValue    InternalKeyKind = 1
	InternalKeyKindInvalid  InternalKeyKind = 1<<8 - 1
	InternalKeyKindMax      InternalKeyKind = InternalKeyKindValue
)

func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDeletion:
		return "DEL"
	case InternalKeyKindValue:
		return "SET"
	default:
		return "INVALID"
	}
}

// SeqNum is the monotonic, 56-bit sequence number the DB assigns to every
// batch. 0 is reserved to mean "invalid".
type SeqNum uint64

// MaxSeqNum is the largest representable sequence number (56 bits).
const MaxSeqNum SeqNum = 1<<56 - 1

// InternalKeySeqNumMax is used by lookup keys to seek to the first entry at
// or before the supplied sequence, regardless of kind.
const InternalKeySeqNumMax = MaxSeqNum

// Compare orders two user keys. Implementations must be total orders;
// DefaultCompare orders raw bytes.
type Compare func(a, b []byte) int

// DefaultCompare is the default byte-lexicographic comparer used when no
// Options.Comparer is supplied.
func DefaultCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// InternalKey is a user key suffixed with a packed (sequence, kind) trailer:
// trailer = (seq<<8)|kind, little-endian 8 bytes.
type InternalKey struct {
	UserKey []byte
	Trailer uint64
}

// MakeInternalKey packs a user key, sequence number, and kind into an
// InternalKey.
func MakeInternalKey(userKey []byte, seqNum SeqNum, kind InternalKeyKind) InternalKey {
	return InternalKey{
		UserKey: userKey,
		Trailer: uint64(seqNum)<<8 | uint64(kind),
	}
}

// SeqNum extracts the sequence number from the trailer.
func (k InternalKey) SeqNum() SeqNum {
	return SeqNum(k.Trailer >> 8)
}

// Kind extracts the value kind from the trailer.
func (k InternalKey) Kind() InternalKeyKind {
	return InternalKeyKind(k.Trailer & 0xff)
}

// Clone returns a deep copy of the key, safe to retain past the lifetime of
// the buffer UserKey currently points into.
func (k InternalKey) Clone() InternalKey {
	if len(k.UserKey) == 0 {
		return InternalKey{Trailer: k.Trailer}
	}
	buf := make([]byte, len(k.UserKey))
	copy(buf, k.UserKey)
	return InternalKey{UserKey: buf, Trailer: k.Trailer}
}

// Size is the encoded size of the key: user key bytes plus an 8-byte trailer.
func (k InternalKey) Size() int {
	return len(k.UserKey) + 8
}

// EncodeTrailer returns the little-endian encoding of the packed trailer.
func (k InternalKey) EncodeTrailer() (buf [8]byte) {
	binary.LittleEndian.PutUint64(buf[:], k.Trailer)
	return buf
}

// Encode writes UserKey followed by the 8-byte trailer into buf, which must
// be at least k.Size() bytes.
func (k InternalKey) Encode(buf []byte) {
	n := copy(buf, k.UserKey)
	trailer := k.EncodeTrailer()
	copy(buf[n:], trailer[:])
}

// DecodeInternalKey decodes the result of Encode. It does not copy the user
// key; the returned InternalKey aliases buf.
func DecodeInternalKey(buf []byte) InternalKey {
	if len(buf) < 8 {
		// Parse failure: sequence 0 is the documented corruption sentinel.
		return InternalKey{Trailer: uint64(InternalKeyKindInvalid)}
	}
	n := len(buf) - 8
	return InternalKey{
		UserKey: buf[:n:n],
		Trailer: binary.LittleEndian.Uint64(buf[n:]),
	}
}

// String renders the key for debugging and log messages.
func (k InternalKey) String() string {
	return fmt.Sprintf("%s#%d,%s", k.UserKey, k.SeqNum(), k.Kind())
}

// IsExclusiveSentinel reports whether this key is an invalid/corrupt
// trailer, used by ingest-style key validation to reject external inputs.
func (k InternalKey) IsExclusiveSentinel() bool {
	return k.Kind() == InternalKeyKindInvalid
}

// InternalCompare orders internal keys: user key ascending per userCmp, then
// sequence descending, so that a lookup at sequence s positions at the first
// entry with user_key=K and sequence<=s.
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if c := userCmp(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	// Trailers pack (seq<<8)|kind; a larger trailer means a larger sequence
	// (kind ties broken the same way), and we want sequence descending, so
	// compare trailers in reverse.
	if a.Trailer > b.Trailer {
		return -1
	}
	if a.Trailer < b.Trailer {
		return 1
	}
	return 0
}

// LookupKey encodes (userKey, seqNum, KindMax) for seeking: the sentinel kind
// Value/Max produces the maximum packed trailer among valid kinds at a given
// sequence, satisfying the descending-sequence rule.
func LookupKey(userKey []byte, seqNum SeqNum) InternalKey {
	return MakeInternalKey(userKey, seqNum, InternalKeyKindMax)
}

// ErrCorruptInternalKey is returned when decoding an internal key with a
// sequence number of zero, the documented corruption signal.
var ErrCorruptInternalKey = errors.New("base: corrupt internal key (seqnum 0)")

// ParseInternalKey decodes buf and validates the sequence number is nonzero.
func ParseInternalKey(buf []byte) (InternalKey, error) {
	k := DecodeInternalKey(buf)
	if k.SeqNum() == 0 || k.Kind() == InternalKeyKindInvalid {
		return k, ErrCorruptInternalKey
	}
	return k, nil
}
