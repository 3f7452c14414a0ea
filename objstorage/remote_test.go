// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package objstorage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// skipRemoteUpload is the only part of this file testable without a live S3
// endpoint or mocked SDK client; the upload/delete paths are exercised by
// readthrough during an actual remote-backed run.
func TestSkipRemoteUploadSkipsLogAndTempFiles(t *testing.T) {
	require.True(t, skipRemoteUpload("000123.log"))
	require.True(t, skipRemoteUpload("MANIFEST-000001.dbtmp"))
	require.False(t, skipRemoteUpload("000123.ldb"))
	require.False(t, skipRemoteUpload("MANIFEST-000001"))
	require.False(t, skipRemoteUpload("CURRENT"))
}
