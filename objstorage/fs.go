// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package objstorage is the filesystem abstraction the engine depends on
// rather than calling os directly: file creation/rename/delete, directory
// listing, and the advisory database lock, so a test can swap in an
// in-memory or fault-injecting implementation.
package objstorage

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lsmdb/lsmdb/internal/base"
	"golang.org/x/sys/unix"
)

// File is an open file handle, the read/write/seek surface the engine needs
// from both table files and logs.
type File interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Closer
	Sync() error
	Stat() (os.FileInfo, error)
}

// FS abstracts the filesystem operations the engine needs: creating and
// opening files for read/append/write, renaming, removing, listing a
// directory's contents, stat, and acquiring the database's advisory lock.
type FS interface {
	Create(name string) (File, error)
	OpenForAppend(name string) (File, error)
	Open(name string) (File, error)
	Remove(name string) error
	Rename(oldname, newname string) error
	MkdirAll(dir string) error
	List(dir string) ([]string, error)
	Stat(name string) (os.FileInfo, error)
	PathJoin(elem ...string) string

	// Lock acquires an advisory exclusive lock on name, returning a Closer
	// that releases it. It returns a base.KindLockError-marked error if the
	// lock is already held by another process or an earlier Open in this one.
	Lock(name string) (io.Closer, error)
}

// Now is the wall-clock hook, factored out so it can be swapped in tests.
var Now = func() time.Time { return time.Now() }

// DefaultFS is a local-disk FS implementation.
type DefaultFS struct{}

// Create creates name for writing, truncating any existing file.
func (DefaultFS) Create(name string) (File, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	return wrapErr(f, err)
}

// OpenForAppend opens name for appending, as recovery does to reuse a WAL.
func (DefaultFS) OpenForAppend(name string) (File, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_APPEND, 0644)
	return wrapErr(f, err)
}

// Open opens name for reading.
func (DefaultFS) Open(name string) (File, error) {
	f, err := os.OpenFile(name, os.O_RDONLY, 0)
	return wrapErr(f, err)
}

func wrapErr(f *os.File, err error) (File, error) {
	if err != nil {
		return nil, base.MarkIOError(err)
	}
	return f, nil
}

// Remove deletes name; obsolete-file sweeps swallow the resulting error
// rather than fail the whole sweep over one already-gone file.
func (DefaultFS) Remove(name string) error {
	return base.MarkIOError(os.Remove(name))
}

// Rename implements the write-then-rename pattern CURRENT updates rely on.
func (DefaultFS) Rename(oldname, newname string) error {
	return base.MarkIOError(os.Rename(oldname, newname))
}

// MkdirAll creates dir and any missing parents.
func (DefaultFS) MkdirAll(dir string) error {
	return base.MarkIOError(os.MkdirAll(dir, 0755))
}

// List returns the basenames of dir's contents.
func (DefaultFS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, base.MarkIOError(err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Stat returns file info for name.
func (DefaultFS) Stat(name string) (os.FileInfo, error) {
	fi, err := os.Stat(name)
	return fi, base.MarkIOError(err)
}

// PathJoin joins path elements using the OS path separator.
func (DefaultFS) PathJoin(elem ...string) string { return filepath.Join(elem...) }

// flockCloser releases an advisory lock acquired with flock(2) on Close.
type flockCloser struct {
	f *os.File
}

func (c *flockCloser) Close() error {
	defer c.f.Close()
	return unix.Flock(int(c.f.Fd()), unix.LOCK_UN)
}

// Lock acquires an exclusive, non-blocking advisory lock on name using
// golang.org/x/sys/unix.Flock, returning base.KindLockError if another
// process (or an earlier Open in this process) already holds it.
func (DefaultFS) Lock(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, base.MarkIOError(err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Mark(base.ErrLockHeld, base.KindLockError)
	}
	return &flockCloser{f: f}, nil
}
