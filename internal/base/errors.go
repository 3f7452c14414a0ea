// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
)

// Kind marks identify the engine's outcome classes. They are errors in
// their own right (so errors.Is(err, KindCorruption) works directly) and are
// also used as errors.Mark targets to classify lower-level failures.
var (
	// KindNotFound marks a point lookup that found no live entry.
	KindNotFound = errors.New("lsmdb: not found")
	// KindCorruption marks on-disk data that failed to parse or verify.
	KindCorruption = errors.New("lsmdb: corruption")
	// KindInvalidArgument marks a caller error (bad option, mismatched
	// comparator, DB already exists, ...).
	KindInvalidArgument = errors.New("lsmdb: invalid argument")
	// KindIOError marks a failure from the Env/filesystem layer.
	KindIOError = errors.New("lsmdb: I/O error")
	// KindLockError marks failure to acquire the advisory LOCK file.
	KindLockError = errors.New("lsmdb: lock error")
	// KindNotSupported marks a requested feature the engine does not
	// implement.
	KindNotSupported = errors.New("lsmdb: not supported")
)

// MarkCorruption wraps err (or constructs one from format/args if err is
// nil) and marks it as a Corruption-kind error.
func MarkCorruption(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.Newf(format, args...)
	} else {
		err = errors.Wrapf(err, format, args...)
	}
	return errors.Mark(err, KindCorruption)
}

// CorruptionErrorf constructs a new Corruption-kind error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), KindCorruption)
}

// MarkIOError wraps err and marks it as an IOError-kind error.
func MarkIOError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, KindIOError)
}

// IsCorrupted reports whether err (or any error it wraps) is Corruption-kind.
func IsCorrupted(err error) bool {
	return errors.Is(err, KindCorruption)
}

// IsNotFound reports whether err (or any error it wraps) is NotFound-kind.
func IsNotFound(err error) bool {
	return errors.Is(err, KindNotFound)
}

// IsLockHeld reports whether err (or any error it wraps) is LockError-kind.
func IsLockHeld(err error) bool {
	return errors.Is(err, KindLockError)
}
