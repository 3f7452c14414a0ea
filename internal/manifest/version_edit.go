// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/lsmdb/lsmdb/internal/base"
)

// Tags for the VersionEdit disk format.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagCompactPointer = 5
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagPrevLogNumber  = 9
)

var errCorruptManifest = base.CorruptionErrorf("manifest: corrupt version edit record")

type byteReader interface {
	io.ByteReader
	io.Reader
}

// DeletedFileEntry identifies a file removed from a level. The file number
// might still be referenced by another level in the same edit (a trivial
// move deletes from L and adds to L+1 in the same VersionEdit).
type DeletedFileEntry struct {
	Level   int
	FileNum FileNum
}

// NewFileEntry is a file added to a level, either freshly built or moved
// (unchanged) from a different level.
type NewFileEntry struct {
	Level int
	Meta  *FileMetadata
}

// VersionEdit is an encodable delta against a Version: added and deleted
// files per level, and the bookkeeping fields the VersionSet carries forward
// (log number, next file number, comparator name, last sequence).
type VersionEdit struct {
	ComparatorName string

	// LogNumber is the smallest WAL number whose mutations have not yet been
	// flushed; WALs below it are obsolete.
	LogNumber FileNum
	// HasLogNumber reports whether LogNumber was set explicitly in this
	// edit, distinguishing "log number 0" from "not present."
	HasLogNumber bool

	// PrevLogNumber is kept for on-disk compatibility only; the engine
	// itself never needs it, a LevelDB-historic artifact carried by
	// tagPrevLogNumber.
	PrevLogNumber uint64

	NextFileNumber FileNum
	HasNextFileNumber bool

	LastSequence base.SeqNum
	HasLastSequence bool

	// CompactPointers records the per-level round-robin position used by
	// size-triggered compaction picking.
	CompactPointers map[int]base.InternalKey

	DeletedFiles map[DeletedFileEntry]bool
	NewFiles     []NewFileEntry
}

// Accumulate folds an incremental edit into a *builder* edit that began life
// as a complete snapshot, used by VersionSet to build the successor Version.
func (v *VersionEdit) Accumulate(incoming *VersionEdit) {
	if incoming.ComparatorName != "" {
		v.ComparatorName = incoming.ComparatorName
	}
	if incoming.HasLogNumber {
		v.LogNumber = incoming.LogNumber
		v.HasLogNumber = true
	}
	if incoming.HasNextFileNumber {
		v.NextFileNumber = incoming.NextFileNumber
		v.HasNextFileNumber = true
	}
	if incoming.HasLastSequence {
		v.LastSequence = incoming.LastSequence
		v.HasLastSequence = true
	}
	for level, key := range incoming.CompactPointers {
		if v.CompactPointers == nil {
			v.CompactPointers = map[int]base.InternalKey{}
		}
		v.CompactPointers[level] = key
	}
	for entry := range incoming.DeletedFiles {
		if v.DeletedFiles == nil {
			v.DeletedFiles = map[DeletedFileEntry]bool{}
		}
		v.DeletedFiles[entry] = true
	}
	v.NewFiles = append(v.NewFiles, incoming.NewFiles...)
}

// Decode decodes a single VersionEdit record from r.
func (v *VersionEdit) Decode(r io.Reader) error {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	d := versionEditDecoder{br}
	for {
		tag, err := binary.ReadUvarint(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch tag {
		case tagComparator:
			s, err := d.readBytes()
			if err != nil {
				return err
			}
			v.ComparatorName = string(s)

		case tagLogNumber:
			n, err := d.readFileNum()
			if err != nil {
				return err
			}
			v.LogNumber = n
			v.HasLogNumber = true

		case tagNextFileNumber:
			n, err := d.readFileNum()
			if err != nil {
				return err
			}
			v.NextFileNumber = n
			v.HasNextFileNumber = true

		case tagLastSequence:
			n, err := d.readUvarint()
			if err != nil {
				return err
			}
			v.LastSequence = base.SeqNum(n)
			v.HasLastSequence = true

		case tagCompactPointer:
			level, err := d.readLevel()
			if err != nil {
				return err
			}
			key, err := d.readBytes()
			if err != nil {
				return err
			}
			if v.CompactPointers == nil {
				v.CompactPointers = map[int]base.InternalKey{}
			}
			v.CompactPointers[level] = base.DecodeInternalKey(key)

		case tagDeletedFile:
			level, err := d.readLevel()
			if err != nil {
				return err
			}
			fileNum, err := d.readFileNum()
			if err != nil {
				return err
			}
			if v.DeletedFiles == nil {
				v.DeletedFiles = map[DeletedFileEntry]bool{}
			}
			v.DeletedFiles[DeletedFileEntry{level, fileNum}] = true

		case tagNewFile:
			level, err := d.readLevel()
			if err != nil {
				return err
			}
			fileNum, err := d.readFileNum()
			if err != nil {
				return err
			}
			size, err := d.readUvarint()
			if err != nil {
				return err
			}
			smallest, err := d.readBytes()
			if err != nil {
				return err
			}
			largest, err := d.readBytes()
			if err != nil {
				return err
			}
			v.NewFiles = append(v.NewFiles, NewFileEntry{
				Level: level,
				Meta: &FileMetadata{
					FileNum:  fileNum,
					Size:     size,
					Smallest: base.DecodeInternalKey(smallest),
					Largest:  base.DecodeInternalKey(largest),
				},
			})

		case tagPrevLogNumber:
			n, err := d.readUvarint()
			if err != nil {
				return err
			}
			v.PrevLogNumber = n

		default:
			return errCorruptManifest
		}
	}
	return nil
}

// Encode encodes the edit to w. Strings are length-prefixed with varints.
func (v *VersionEdit) Encode(w io.Writer) error {
	e := versionEditEncoder{new(bytes.Buffer)}

	if v.ComparatorName != "" {
		e.writeUvarint(tagComparator)
		e.writeString(v.ComparatorName)
	}
	if v.HasLogNumber {
		e.writeUvarint(tagLogNumber)
		e.writeUvarint(uint64(v.LogNumber))
	}
	if v.PrevLogNumber != 0 {
		e.writeUvarint(tagPrevLogNumber)
		e.writeUvarint(v.PrevLogNumber)
	}
	if v.HasNextFileNumber {
		e.writeUvarint(tagNextFileNumber)
		e.writeUvarint(uint64(v.NextFileNumber))
	}
	// The first record in a manifest must encode LastSequence even when it
	// is zero, so a reader can distinguish "not yet set" from "zero" by the
	// presence of the comparator tag in that same record.
	if v.HasLastSequence || v.ComparatorName != "" {
		e.writeUvarint(tagLastSequence)
		e.writeUvarint(uint64(v.LastSequence))
	}
	for level, key := range v.CompactPointers {
		e.writeUvarint(tagCompactPointer)
		e.writeUvarint(uint64(level))
		e.writeKeyBytes(key)
	}
	for entry := range v.DeletedFiles {
		e.writeUvarint(tagDeletedFile)
		e.writeUvarint(uint64(entry.Level))
		e.writeUvarint(uint64(entry.FileNum))
	}
	for _, nf := range v.NewFiles {
		e.writeUvarint(tagNewFile)
		e.writeUvarint(uint64(nf.Level))
		e.writeUvarint(uint64(nf.Meta.FileNum))
		e.writeUvarint(nf.Meta.Size)
		e.writeKey(nf.Meta.Smallest)
		e.writeKey(nf.Meta.Largest)
	}
	_, err := w.Write(e.Bytes())
	return err
}

type versionEditDecoder struct {
	byteReader
}

func (d versionEditDecoder) readBytes() ([]byte, error) {
	n, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(d, s); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errCorruptManifest
		}
		return nil, err
	}
	return s, nil
}

func (d versionEditDecoder) readLevel() (int, error) {
	u, err := d.readUvarint()
	if err != nil {
		return 0, err
	}
	if u >= NumLevels {
		return 0, errCorruptManifest
	}
	return int(u), nil
}

func (d versionEditDecoder) readFileNum() (FileNum, error) {
	u, err := d.readUvarint()
	if err != nil {
		return 0, err
	}
	return FileNum(u), nil
}

func (d versionEditDecoder) readUvarint() (uint64, error) {
	u, err := binary.ReadUvarint(d)
	if err != nil {
		if err == io.EOF {
			return 0, errCorruptManifest
		}
		return 0, err
	}
	return u, nil
}

type versionEditEncoder struct {
	*bytes.Buffer
}

func (e versionEditEncoder) writeBytes(p []byte) {
	e.writeUvarint(uint64(len(p)))
	e.Write(p)
}

func (e versionEditEncoder) writeKey(k base.InternalKey) {
	e.writeUvarint(uint64(k.Size()))
	e.Write(k.UserKey)
	trailer := k.EncodeTrailer()
	e.Write(trailer[:])
}

// writeKeyBytes encodes a raw internal key already captured as base.InternalKey
// for the CompactPointer tag (which the original format stores as a plain
// length-prefixed string rather than a split user-key/trailer pair).
func (e versionEditEncoder) writeKeyBytes(k base.InternalKey) {
	buf := make([]byte, k.Size())
	k.Encode(buf)
	e.writeBytes(buf)
}

func (e versionEditEncoder) writeString(s string) {
	e.writeUvarint(uint64(len(s)))
	e.WriteString(s)
}

func (e versionEditEncoder) writeUvarint(u uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], u)
	e.Write(buf[:n])
}

// BulkVersionEdit summarizes the files added and deleted across a sequence
// of version edits (used by VersionSet.buildVersion when replaying the
// manifest or applying a new edit).
type BulkVersionEdit struct {
	Added   [NumLevels]map[FileNum]*FileMetadata
	Deleted [NumLevels]map[FileNum]bool
}

// Accumulate folds ve's additions/deletions into b.
func (b *BulkVersionEdit) Accumulate(ve *VersionEdit) error {
	for df := range ve.DeletedFiles {
		if b.Deleted[df.Level] == nil {
			b.Deleted[df.Level] = map[FileNum]bool{}
		}
		b.Deleted[df.Level][df.FileNum] = true
		if b.Added[df.Level] != nil {
			delete(b.Added[df.Level], df.FileNum)
		}
	}
	for _, nf := range ve.NewFiles {
		if nf.Level < 0 || nf.Level >= NumLevels {
			return errors.Newf("manifest: invalid level %d in new-file entry", nf.Level)
		}
		if b.Added[nf.Level] == nil {
			b.Added[nf.Level] = map[FileNum]*FileMetadata{}
		}
		b.Added[nf.Level][nf.Meta.FileNum] = nf.Meta
	}
	return nil
}

// Apply produces the file lists for each level of the successor Version,
// starting from baseVersion (which may be nil for a from-scratch manifest
// replay).
func (b *BulkVersionEdit) Apply(baseVersion *Version, cmp base.Compare) [NumLevels][]*FileMetadata {
	var files [NumLevels][]*FileMetadata
	for level := 0; level < NumLevels; level++ {
		var existing []*FileMetadata
		if baseVersion != nil {
			existing = baseVersion.Files[level]
		}
		out := make([]*FileMetadata, 0, len(existing)+len(b.Added[level]))
		for _, f := range existing {
			if b.Deleted[level][f.FileNum] {
				continue
			}
			if _, readded := b.Added[level][f.FileNum]; readded {
				continue
			}
			out = append(out, f)
		}
		for _, f := range b.Added[level] {
			out = append(out, f)
		}
		if level == 0 {
			sort.Sort(ByFileNum(out))
		} else {
			SortBySmallest(out, cmp)
		}
		files[level] = out
	}
	return files
}
