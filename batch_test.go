// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBatchIsEmpty(t *testing.T) {
	b := NewBatch()
	require.Equal(t, 0, b.Len())
}

func TestBatchPutIncrementsLen(t *testing.T) {
	b := NewBatch()
	b.Put([]byte("k1"), []byte("v1"))
	b.Put([]byte("k2"), []byte("v2"))
	require.Equal(t, 2, b.Len())
}

func TestBatchDeleteIncrementsLen(t *testing.T) {
	b := NewBatch()
	b.Delete([]byte("k1"))
	require.Equal(t, 1, b.Len())
}

func TestBatchResetClearsEntries(t *testing.T) {
	b := NewBatch()
	b.Put([]byte("k1"), []byte("v1"))
	b.Delete([]byte("k2"))
	require.Equal(t, 2, b.Len())

	b.Reset()
	require.Equal(t, 0, b.Len())
}

func TestBatchReusableAfterReset(t *testing.T) {
	b := NewBatch()
	b.Put([]byte("k1"), []byte("v1"))
	b.Reset()
	b.Put([]byte("k2"), []byte("v2"))
	require.Equal(t, 1, b.Len())
	require.Equal(t, "k2", string(b.b.Entries[0].Key))
}
