// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNotFoundMatchesErrNotFoundAndWrappers(t *testing.T) {
	require.True(t, IsNotFound(ErrNotFound))
	require.True(t, IsNotFound(fmt.Errorf("get: %w", ErrNotFound)))
	require.False(t, IsNotFound(ErrClosed))
}

func TestIsCorruptionMatchesErrCorruptionAndWrappers(t *testing.T) {
	require.True(t, IsCorruption(ErrCorruption))
	require.True(t, IsCorruption(fmt.Errorf("decode: %w", ErrCorruption)))
	require.False(t, IsCorruption(ErrNotFound))
}

func TestIsLockHeldMatchesErrLockHeldAndWrappers(t *testing.T) {
	require.True(t, IsLockHeld(ErrLockHeld))
	require.True(t, IsLockHeld(fmt.Errorf("lock dirname: %w", ErrLockHeld)))
	require.False(t, IsLockHeld(ErrNotFound))
}
