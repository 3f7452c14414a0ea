// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package batch

import (
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var b Batch
	b.Put([]byte("k1"), []byte("v1"))
	b.Delete([]byte("k2"))
	b.Put([]byte("k3"), []byte(""))

	buf := b.Encode(42)
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, base.SeqNum(42), got.Seq)
	require.Equal(t, 3, got.Count())

	require.Equal(t, base.InternalKeyKindValue, got.Entries[0].Kind)
	require.Equal(t, []byte("k1"), got.Entries[0].Key)
	require.Equal(t, []byte("v1"), got.Entries[0].Value)

	require.Equal(t, base.InternalKeyKindDeletion, got.Entries[1].Kind)
	require.Equal(t, []byte("k2"), got.Entries[1].Key)

	require.Equal(t, []byte("k3"), got.Entries[2].Key)
}

func TestDecodeRejectsShortRecord(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeRejectsTruncatedEntry(t *testing.T) {
	var b Batch
	b.Put([]byte("k"), []byte("v"))
	buf := b.Encode(1)

	_, err := Decode(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestEmptyBatchRoundTrips(t *testing.T) {
	var b Batch
	buf := b.Encode(7)
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, 0, got.Count())
	require.Equal(t, base.SeqNum(7), got.Seq)
}
