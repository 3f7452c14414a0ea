// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package objstorage

import (
	"io"
	"testing"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/stretchr/testify/require"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := DefaultFS{}

	name := fs.PathJoin(dir, "000001.log")
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	rf, err := fs.Open(name)
	require.NoError(t, err)
	defer rf.Close()
	buf, err := io.ReadAll(rf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestOpenForAppendExtendsExistingFile(t *testing.T) {
	dir := t.TempDir()
	fs := DefaultFS{}
	name := fs.PathJoin(dir, "000002.log")

	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	af, err := fs.OpenForAppend(name)
	require.NoError(t, err)
	_, err = af.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, af.Close())

	rf, err := fs.Open(name)
	require.NoError(t, err)
	defer rf.Close()
	buf, err := io.ReadAll(rf)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(buf))
}

func TestRemoveDeletesFile(t *testing.T) {
	dir := t.TempDir()
	fs := DefaultFS{}
	name := fs.PathJoin(dir, "000003.log")

	_, err := fs.Create(name)
	require.NoError(t, err)
	require.NoError(t, fs.Remove(name))

	_, err = fs.Open(name)
	require.Error(t, err)
}

func TestRenameMovesFile(t *testing.T) {
	dir := t.TempDir()
	fs := DefaultFS{}
	oldName := fs.PathJoin(dir, "a.tmp")
	newName := fs.PathJoin(dir, "b.tmp")

	_, err := fs.Create(oldName)
	require.NoError(t, err)
	require.NoError(t, fs.Rename(oldName, newName))

	_, err = fs.Open(newName)
	require.NoError(t, err)
}

func TestListReturnsBasenames(t *testing.T) {
	dir := t.TempDir()
	fs := DefaultFS{}
	_, err := fs.Create(fs.PathJoin(dir, "x.log"))
	require.NoError(t, err)
	_, err = fs.Create(fs.PathJoin(dir, "y.log"))
	require.NoError(t, err)

	names, err := fs.List(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"x.log", "y.log"}, names)
}

func TestLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()
	fs := DefaultFS{}
	name := fs.PathJoin(dir, "LOCK")

	closer, err := fs.Lock(name)
	require.NoError(t, err)
	defer closer.Close()

	_, err = fs.Lock(name)
	require.Error(t, err)
	require.True(t, base.IsLockHeld(err))
}
