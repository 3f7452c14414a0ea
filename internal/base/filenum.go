// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// FileNum is a file number. Log, manifest, and table files share a single
// monotonic counter across the database's lifetime.
type FileNum uint64

// String renders the file number zero-padded to 6 digits.
func (fn FileNum) String() string {
	return fmt.Sprintf("%06d", uint64(fn))
}

// FileType identifies the role of a file recognized in the DB directory.
type FileType int

// The file types recognized under the DB directory.
const (
	FileTypeLog FileType = iota
	FileTypeManifest
	FileTypeTable
	FileTypeCurrent
	FileTypeLock
	FileTypeInfoLog
	FileTypeTemp
)

// MakeFilename formats the on-disk name for the given file type and number.
func MakeFilename(fileType FileType, fileNum FileNum) string {
	switch fileType {
	case FileTypeLog:
		return fmt.Sprintf("%s.log", fileNum)
	case FileTypeManifest:
		return fmt.Sprintf("MANIFEST-%s", fileNum)
	case FileTypeTable:
		return fmt.Sprintf("%s.ldb", fileNum)
	case FileTypeTemp:
		return fmt.Sprintf("%s.dbtmp", fileNum)
	case FileTypeCurrent:
		return "CURRENT"
	case FileTypeLock:
		return "LOCK"
	case FileTypeInfoLog:
		return "LOG"
	default:
		panic("base: unknown file type")
	}
}

// ParseFilename parses a basename produced by MakeFilename (or CURRENT/LOCK/
// LOG which carry no file number).
func ParseFilename(name string) (fileType FileType, fileNum FileNum, ok bool) {
	switch name {
	case "CURRENT":
		return FileTypeCurrent, 0, true
	case "LOCK":
		return FileTypeLock, 0, true
	case "LOG", "LOG.old":
		return FileTypeInfoLog, 0, true
	}
	if strings.HasPrefix(name, "MANIFEST-") {
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "MANIFEST-"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeManifest, FileNum(n), true
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return 0, 0, false
	}
	num, ext := name[:i], name[i+1:]
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	switch ext {
	case "log":
		return FileTypeLog, FileNum(n), true
	case "ldb", "sst":
		return FileTypeTable, FileNum(n), true
	case "dbtmp":
		return FileTypeTemp, FileNum(n), true
	default:
		return 0, 0, false
	}
}

// ErrLockHeld is the sentinel error surfaced when the advisory LOCK file is
// already held by another process.
var ErrLockHeld = errors.New("database lock is held by another instance")
