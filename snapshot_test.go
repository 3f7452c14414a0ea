// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotGetSeesStateAsOfCreation(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Put([]byte("k"), []byte("v1"), nil))
	snap := d.NewSnapshot()
	defer snap.Close()

	require.NoError(t, d.Put([]byte("k"), []byte("v2"), nil))

	v, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))

	v, err = d.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v))
}

func TestSnapshotGetMissingKeyReturnsNotFound(t *testing.T) {
	d := openTestDB(t)
	snap := d.NewSnapshot()
	defer snap.Close()

	_, err := snap.Get([]byte("absent"))
	require.True(t, IsNotFound(err))
}

func TestSnapshotCloseIsIdempotentAndReleasesPin(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.Put([]byte("k"), []byte("v1"), nil))

	snap := d.NewSnapshot()
	require.NoError(t, snap.Close())
	require.NoError(t, snap.Close(), "closing a snapshot twice must not panic or error")
	require.True(t, d.mu.snapshots.Empty(), "a closed snapshot must no longer be pinned")
}

func TestSnapshotDoesNotSeeWritesAfterItsCreation(t *testing.T) {
	d := openTestDB(t)

	snap := d.NewSnapshot()
	defer snap.Close()

	require.NoError(t, d.Put([]byte("new-key"), []byte("v"), nil))

	_, err := snap.Get([]byte("new-key"))
	require.True(t, IsNotFound(err), "a key written after the snapshot was taken must not be visible through it")
}
