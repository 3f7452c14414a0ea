// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"github.com/cockroachdb/errors"
	"github.com/lsmdb/lsmdb/internal/base"
)

// Outcome kinds a caller can test for with errors.Is, mirroring the
// vocabulary every layer below marks its errors with.
var (
	ErrNotFound        = base.KindNotFound
	ErrCorruption      = base.KindCorruption
	ErrInvalidArgument = base.KindInvalidArgument
	ErrLockHeld        = base.KindLockError
	ErrNotSupported    = base.KindNotSupported

	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("lsmdb: closed database")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return base.IsNotFound(err) }

// IsCorruption reports whether err is (or wraps) ErrCorruption.
func IsCorruption(err error) bool { return base.IsCorrupted(err) }

// IsLockHeld reports whether err is (or wraps) ErrLockHeld.
func IsLockHeld(err error) bool { return base.IsLockHeld(err) }
