// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"os"

	"github.com/cockroachdb/redact"
	"github.com/lsmdb/lsmdb/internal/base"
)

// Logger is the info-log sink, matching the shape real pebble exposes
// through Options.Logger.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// stderrLogger is the default Logger, used when Options.Logger is nil.
type stderrLogger struct{}

func (stderrLogger) Infof(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[lsmdb] "+format+"\n", args...)
}
func (stderrLogger) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[lsmdb] ERROR: "+format+"\n", args...)
}
func (stderrLogger) Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[lsmdb] FATAL: "+format+"\n", args...)
	os.Exit(1)
}

// redactKey renders a user key for a log message through
// github.com/cockroachdb/redact, so a redacted copy of the info log never
// discloses key bytes even though the live log is plain text.
func redactKey(key []byte) redact.RedactableString {
	return redact.Sprint(key)
}

// FlushInfo describes a completed (or failed) memtable flush.
type FlushInfo struct {
	JobID  int
	Output base.FileNum
	Err    error
}

// CompactionInfo describes a completed (or failed) compaction.
type CompactionInfo struct {
	JobID     int
	FromLevel int
	ToLevel   int
	Input     int
	Output    int
	Err       error
}

// ManifestCreateInfo describes a newly created manifest file.
type ManifestCreateInfo struct {
	JobID   int
	Path    string
	FileNum base.FileNum
}

// WALCreateInfo describes a newly created write-ahead log.
type WALCreateInfo struct {
	JobID   int
	Path    string
	FileNum base.FileNum
}

// EventListener receives notifications of engine activity. Every field is
// optional; a nil hook is simply not invoked.
type EventListener struct {
	FlushBegin      func(FlushInfo)
	FlushEnd        func(FlushInfo)
	CompactionBegin func(CompactionInfo)
	CompactionEnd   func(CompactionInfo)
	ManifestCreated func(ManifestCreateInfo)
	WALCreated      func(WALCreateInfo)
}

func (e *EventListener) flushBegin(info FlushInfo) {
	if e != nil && e.FlushBegin != nil {
		e.FlushBegin(info)
	}
}
func (e *EventListener) flushEnd(info FlushInfo) {
	if e != nil && e.FlushEnd != nil {
		e.FlushEnd(info)
	}
}
func (e *EventListener) compactionBegin(info CompactionInfo) {
	if e != nil && e.CompactionBegin != nil {
		e.CompactionBegin(info)
	}
}
func (e *EventListener) compactionEnd(info CompactionInfo) {
	if e != nil && e.CompactionEnd != nil {
		e.CompactionEnd(info)
	}
}
func (e *EventListener) manifestCreated(info ManifestCreateInfo) {
	if e != nil && e.ManifestCreated != nil {
		e.ManifestCreated(info)
	}
}
func (e *EventListener) walCreated(info WALCreateInfo) {
	if e != nil && e.WALCreated != nil {
		e.WALCreated(info)
	}
}
