// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/record"
	"github.com/lsmdb/lsmdb/objstorage"
)

// L0CompactionTrigger is the default number of L0 files that makes L0's
// compaction score reach 1.0.
const L0CompactionTrigger = 4

// baseLevelMaxBytes is the default max_bytes_for_level(1), 10MB, multiplied
// by 10 per level for L>=2.
const baseLevelMaxBytes = 10 << 20

// MaxBytesForLevel returns the compaction-scoring byte budget for level.
func MaxBytesForLevel(level int) uint64 {
	bytes := uint64(baseLevelMaxBytes)
	for l := 1; l < level; l++ {
		bytes *= 10
	}
	return bytes
}

// VersionSet owns the chain of Versions, the manifest log, and the
// allocation of file numbers, log numbers, and the last sequence number.
type VersionSet struct {
	mu sync.Mutex

	dirname string
	fs      objstorage.FS
	cmp     base.Compare
	cmpName string

	versions VersionList
	current  *Version

	nextFileNum    FileNum
	logNumber      FileNum
	prevLogNumber  uint64
	manifestNumber FileNum
	lastSequence   base.SeqNum

	compactPointer [NumLevels]base.InternalKey

	manifestFile   objstorage.File
	manifestWriter *record.Writer

	// pendingOutputs tracks file numbers allocated for in-flight compaction
	// outputs, kept alive across obsolete-file sweeps even before they are
	// referenced by any installed Version.
	pendingOutputs map[FileNum]struct{}
}

// New creates a VersionSet bound to dirname on fs, comparing user keys with
// cmp (named cmpName for the manifest's comparator-name field).
func New(dirname string, fs objstorage.FS, cmp base.Compare, cmpName string) *VersionSet {
	vs := &VersionSet{
		dirname:        dirname,
		fs:             fs,
		cmp:            cmp,
		cmpName:        cmpName,
		nextFileNum:    1,
		pendingOutputs: map[FileNum]struct{}{},
	}
	vs.versions.Init()
	vs.current = &Version{}
	vs.current.Ref()
	vs.versions.PushBack(vs.current)
	return vs
}

// Current returns the head (most recent) Version. Callers that retain it
// across I/O must Ref it first.
func (vs *VersionSet) Current() *Version {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.current
}

// NextFileNum allocates and returns the next file number.
func (vs *VersionSet) NextFileNum() FileNum {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	n := vs.nextFileNum
	vs.nextFileNum++
	return n
}

// ReuseFileNum gives back a file number that was allocated but never used,
// as happens when an empty memtable flush reuses its number.
func (vs *VersionSet) ReuseFileNum(num FileNum) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.nextFileNum == num+1 {
		vs.nextFileNum = num
	}
}

// MarkFileNumUsed ensures future allocations stay above num, used when
// replaying a log file discovered on disk during recovery.
func (vs *VersionSet) MarkFileNumUsed(num FileNum) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if num >= vs.nextFileNum {
		vs.nextFileNum = num + 1
	}
}

// LastSequence returns the last assigned sequence number.
func (vs *VersionSet) LastSequence() base.SeqNum {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.lastSequence
}

// SetLastSequence records the DB's last-assigned sequence number.
func (vs *VersionSet) SetLastSequence(seq base.SeqNum) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if seq > vs.lastSequence {
		vs.lastSequence = seq
	}
}

// LogNumber returns the smallest WAL number whose mutations are not yet
// flushed.
func (vs *VersionSet) LogNumber() FileNum {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.logNumber
}

// ManifestNumber returns the file number of the active manifest.
func (vs *VersionSet) ManifestNumber() FileNum {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.manifestNumber
}

// AddPendingOutput records fileNum as a compaction output in flight, kept
// live across obsolete-file sweeps.
func (vs *VersionSet) AddPendingOutput(fileNum FileNum) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.pendingOutputs[fileNum] = struct{}{}
}

// RemovePendingOutput clears a pending output once it's installed (or the
// compaction that created it aborted).
func (vs *VersionSet) RemovePendingOutput(fileNum FileNum) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	delete(vs.pendingOutputs, fileNum)
}

// LiveFiles returns the union of file numbers referenced by every Version
// still reachable in the chain plus all pending compaction outputs.
func (vs *VersionSet) LiveFiles() map[FileNum]struct{} {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	live := map[FileNum]struct{}{}
	for num := range vs.pendingOutputs {
		live[num] = struct{}{}
	}
	vs.versions.mu.Lock()
	for v := vs.versions.root.next; v != &vs.versions.root; v = v.next {
		for _, files := range v.Files {
			for _, f := range files {
				live[f.FileNum] = struct{}{}
			}
		}
	}
	vs.versions.mu.Unlock()
	return live
}

// Cmp returns the user-key comparator this VersionSet was created with.
func (vs *VersionSet) Cmp() base.Compare {
	return vs.cmp
}

// CompactPointer returns the recorded round-robin pointer for level (the
// zero value if none has been recorded yet).
func (vs *VersionSet) CompactPointer(level int) base.InternalKey {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.compactPointer[level]
}

// buildVersion folds a BulkVersionEdit on top of the current Version to
// produce the successor's file lists and computes its compaction score.
func (vs *VersionSet) buildVersion(bve *BulkVersionEdit) *Version {
	v := &Version{Files: bve.Apply(vs.current, vs.cmp)}
	vs.computeCompactionScore(v)
	return v
}

// computeCompactionScore fills in v.compactionScore/compactionLevel: L0's
// score is files(0)/L0CompactionTrigger; L>=1's score is
// total_bytes(L)/max_bytes_for_level(L). The level with the largest score
// wins.
func (vs *VersionSet) computeCompactionScore(v *Version) {
	var bestLevel int
	var bestScore float64
	for level := 0; level < NumLevels-1; level++ {
		var score float64
		if level == 0 {
			score = float64(len(v.Files[0])) / float64(L0CompactionTrigger)
		} else {
			score = float64(TotalSize(v.Files[level])) / float64(MaxBytesForLevel(level))
		}
		if score > bestScore {
			bestScore = score
			bestLevel = level
		}
	}
	v.compactionScore = bestScore
	v.compactionLevel = bestLevel
}

// LogAndApply fills in missing bookkeeping fields on edit from current
// state, computes and installs the successor Version, and durably appends
// the edit to the manifest before making it visible.
//
// On any write/fsync failure after creating a new manifest, the partial
// manifest is deleted and CURRENT is left unchanged.
func (vs *VersionSet) LogAndApply(edit *VersionEdit) (err error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if !edit.HasLogNumber {
		edit.LogNumber = vs.logNumber
		edit.HasLogNumber = true
	}
	if !edit.HasNextFileNumber {
		edit.NextFileNumber = vs.nextFileNum
		edit.HasNextFileNumber = true
	}
	if !edit.HasLastSequence {
		edit.LastSequence = vs.lastSequence
		edit.HasLastSequence = true
	}

	var bve BulkVersionEdit
	if err := bve.Accumulate(edit); err != nil {
		return err
	}
	newVersion := vs.buildVersion(&bve)

	createdManifest := false
	if vs.manifestWriter == nil {
		if err := vs.createManifestLocked(); err != nil {
			return err
		}
		createdManifest = true
	}
	defer func() {
		if err != nil && createdManifest {
			vs.manifestFile.Close()
			vs.manifestWriter = nil
			vs.fs.Remove(manifestFileName(vs.dirname, vs.fs, vs.manifestNumber))
			vs.manifestFile = nil
		}
	}()

	var buf bytesBuffer
	if err := edit.Encode(&buf); err != nil {
		return errors.Wrap(err, "manifest: encoding version edit")
	}
	if _, err := vs.manifestWriter.WriteRecord(buf.Bytes()); err != nil {
		return errors.Wrap(err, "manifest: appending version edit")
	}
	if err := vs.manifestFile.Sync(); err != nil {
		return base.MarkIOError(err)
	}

	if createdManifest {
		if err := setCurrentFile(vs.dirname, vs.fs, vs.manifestNumber); err != nil {
			return err
		}
	}

	for level, key := range edit.CompactPointers {
		vs.compactPointer[level] = key
	}
	if edit.HasLogNumber {
		vs.logNumber = edit.LogNumber
	}
	if edit.HasLastSequence && edit.LastSequence > vs.lastSequence {
		vs.lastSequence = edit.LastSequence
	}
	if edit.HasNextFileNumber && edit.NextFileNumber > vs.nextFileNum {
		vs.nextFileNum = edit.NextFileNumber
	}

	newVersion.Ref()
	vs.versions.PushBack(newVersion)
	vs.current.Unref()
	vs.current = newVersion
	return nil
}

// createManifestLocked opens a brand new manifest file, writes a snapshot
// VersionEdit capturing the entire current state, and leaves
// vs.manifestWriter ready to append. vs.mu must be held.
func (vs *VersionSet) createManifestLocked() error {
	vs.manifestNumber = vs.nextFileNum
	vs.nextFileNum++

	name := manifestFileName(vs.dirname, vs.fs, vs.manifestNumber)
	f, err := vs.fs.Create(name)
	if err != nil {
		return err
	}
	vs.manifestFile = f
	vs.manifestWriter = record.NewWriter(f, 0)

	snapshot := &VersionEdit{
		ComparatorName:    vs.cmpName,
		LogNumber:         vs.logNumber,
		HasLogNumber:      true,
		NextFileNumber:    vs.nextFileNum,
		HasNextFileNumber: true,
		LastSequence:      vs.lastSequence,
		HasLastSequence:   true,
	}
	for level, key := range vs.compactPointer {
		if key.UserKey != nil {
			if snapshot.CompactPointers == nil {
				snapshot.CompactPointers = map[int]base.InternalKey{}
			}
			snapshot.CompactPointers[level] = key
		}
	}
	for level, files := range vs.current.Files {
		for _, f := range files {
			snapshot.NewFiles = append(snapshot.NewFiles, NewFileEntry{Level: level, Meta: f})
		}
	}

	var buf bytesBuffer
	if err := snapshot.Encode(&buf); err != nil {
		return errors.Wrap(err, "manifest: encoding snapshot")
	}
	if _, err := vs.manifestWriter.WriteRecord(buf.Bytes()); err != nil {
		return errors.Wrap(err, "manifest: writing snapshot")
	}
	return nil
}

// Recover reads CURRENT -> manifest -> replays the edit chain, reconstructing
// the final Version. It verifies the persisted comparator name matches
// cmpName and that every table the reconstructed Version references still
// exists on disk.
func (vs *VersionSet) Recover() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	manifestName, err := readCurrentFile(vs.dirname, vs.fs)
	if err != nil {
		return err
	}
	f, err := vs.fs.Open(vs.fs.PathJoin(vs.dirname, manifestName))
	if err != nil {
		return err
	}
	defer f.Close()

	_, manifestNum, ok := base.ParseFilename(manifestName)
	if !ok {
		return base.CorruptionErrorf("manifest: cannot parse CURRENT contents %q", manifestName)
	}
	vs.manifestNumber = manifestNum

	var bve BulkVersionEdit
	var sawComparator bool
	reader := record.NewReader(f)
	for {
		payload, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		var edit VersionEdit
		if err := edit.Decode(bytesReaderOf(payload)); err != nil {
			return base.MarkCorruption(err, "manifest: decoding version edit")
		}
		if edit.ComparatorName != "" {
			if sawComparator && edit.ComparatorName != vs.cmpName {
				return errors.Mark(
					errors.Newf("manifest: comparator mismatch: on-disk %q, configured %q",
						edit.ComparatorName, vs.cmpName),
					base.KindInvalidArgument)
			}
			if edit.ComparatorName != vs.cmpName {
				return errors.Mark(
					errors.Newf("manifest: comparator mismatch: on-disk %q, configured %q",
						edit.ComparatorName, vs.cmpName),
					base.KindInvalidArgument)
			}
			sawComparator = true
		}
		if err := bve.Accumulate(&edit); err != nil {
			return err
		}
		if edit.HasLogNumber {
			vs.logNumber = edit.LogNumber
		}
		if edit.HasNextFileNumber && edit.NextFileNumber > vs.nextFileNum {
			vs.nextFileNum = edit.NextFileNumber
		}
		if edit.HasLastSequence && edit.LastSequence > vs.lastSequence {
			vs.lastSequence = edit.LastSequence
		}
		if edit.PrevLogNumber != 0 {
			vs.prevLogNumber = edit.PrevLogNumber
		}
		for level, key := range edit.CompactPointers {
			vs.compactPointer[level] = key
		}
	}

	newVersion := vs.buildVersion(&bve)
	if err := newVersion.CheckOrdering(vs.cmp); err != nil {
		return err
	}
	if err := checkLiveFilesPresent(vs.dirname, vs.fs, newVersion); err != nil {
		return err
	}
	newVersion.Ref()
	vs.versions.PushBack(newVersion)
	vs.current.Unref()
	vs.current = newVersion

	// Recovery always reopens the manifest writer lazily on the next
	// LogAndApply; leave vs.manifestWriter nil so the first post-recovery
	// edit writes a fresh manifest rather than appending to the old one.
	return nil
}

// checkLiveFilesPresent verifies every table file the recovered version
// references still exists in dirname, catching the case where a table was
// deleted (or never survived a crash) out from under a live manifest entry.
func checkLiveFilesPresent(dirname string, fs objstorage.FS, v *Version) error {
	names, err := fs.List(dirname)
	if err != nil {
		return err
	}
	onDisk := make(map[FileNum]struct{}, len(names))
	for _, name := range names {
		if fileType, fileNum, ok := base.ParseFilename(name); ok && fileType == base.FileTypeTable {
			onDisk[fileNum] = struct{}{}
		}
	}

	var missing []FileNum
	for _, files := range v.Files {
		for _, f := range files {
			if _, ok := onDisk[f.FileNum]; !ok {
				missing = append(missing, f.FileNum)
			}
		}
	}
	if len(missing) > 0 {
		return base.CorruptionErrorf("manifest: missing live table file(s) %v", missing)
	}
	return nil
}

// bytesBuffer is a tiny indirection so this file doesn't need to import
// bytes solely for a *bytes.Buffer parameter type; VersionEdit.Encode/Decode
// accept io.Writer/io.Reader.
type bytesBuffer struct {
	data []byte
}

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
func (b *bytesBuffer) Bytes() []byte { return b.data }

func bytesReaderOf(p []byte) io.Reader {
	return &byteSliceReader{data: p}
}

type byteSliceReader struct {
	data []byte
	pos  int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *byteSliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// manifestFileName and friends below implement the on-disk filesystem
// layout contract (CURRENT, MANIFEST-NNNNNN).

func manifestFileName(dirname string, fs objstorage.FS, num FileNum) string {
	return fs.PathJoin(dirname, base.MakeFilename(base.FileTypeManifest, num))
}

func currentFileName(dirname string, fs objstorage.FS) string {
	return fs.PathJoin(dirname, base.MakeFilename(base.FileTypeCurrent, 0))
}

// setCurrentFile atomically points CURRENT at the given manifest number
// using the write-then-rename pattern.
func setCurrentFile(dirname string, fs objstorage.FS, manifestNum FileNum) error {
	tmpName := fmt.Sprintf("%s.dbtmp", currentFileName(dirname, fs))
	f, err := fs.Create(tmpName)
	if err != nil {
		return err
	}
	basename := base.MakeFilename(base.FileTypeManifest, manifestNum)
	if _, err := f.Write([]byte(basename + "\n")); err != nil {
		f.Close()
		fs.Remove(tmpName)
		return base.MarkIOError(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fs.Remove(tmpName)
		return base.MarkIOError(err)
	}
	if err := f.Close(); err != nil {
		fs.Remove(tmpName)
		return base.MarkIOError(err)
	}
	return fs.Rename(tmpName, currentFileName(dirname, fs))
}

// readCurrentFile reads CURRENT's one line: the basename of the active
// manifest.
func readCurrentFile(dirname string, fs objstorage.FS) (string, error) {
	f, err := fs.Open(currentFileName(dirname, fs))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf []byte
	chunk := make([]byte, 256)
	for {
		n, err := f.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", base.MarkIOError(err)
		}
	}
	s := string(buf)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	if s == "" {
		return "", base.CorruptionErrorf("manifest: CURRENT file is empty")
	}
	return s, nil
}

// CreateFresh initializes a brand new database: a VersionEdit with the
// configured comparator name, log_number=0, next_file=2, last_seq=0, written
// to MANIFEST-000001, with CURRENT pointed at it.
func (vs *VersionSet) CreateFresh() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	const manifestFileNum = FileNum(1)
	vs.manifestNumber = manifestFileNum
	vs.nextFileNum = manifestFileNum + 1

	name := manifestFileName(vs.dirname, vs.fs, manifestFileNum)
	f, err := vs.fs.Create(name)
	if err != nil {
		return err
	}
	writer := record.NewWriter(f, 0)

	edit := &VersionEdit{
		ComparatorName:    vs.cmpName,
		NextFileNumber:    vs.nextFileNum,
		HasNextFileNumber: true,
		LastSequence:      0,
		HasLastSequence:   true,
		LogNumber:         0,
		HasLogNumber:      true,
	}
	var buf bytesBuffer
	if err := edit.Encode(&buf); err != nil {
		f.Close()
		vs.fs.Remove(name)
		return errors.Wrap(err, "manifest: encoding fresh-db snapshot")
	}
	if _, err := writer.WriteRecord(buf.Bytes()); err != nil {
		f.Close()
		vs.fs.Remove(name)
		return errors.Wrap(err, "manifest: writing fresh-db snapshot")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		vs.fs.Remove(name)
		return base.MarkIOError(err)
	}
	f.Close()

	return setCurrentFile(vs.dirname, vs.fs, manifestFileNum)
}
