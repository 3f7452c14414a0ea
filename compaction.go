// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
)

// compaction describes a merge of the files at c.level and c.level+1 into a
// new set of c.level+1 files, plus the c.level+2 files ("grandparents") the
// output must not overlap too much of.
type compaction struct {
	level int

	// inputs[0] is the level being compacted, inputs[1] is level+1, and
	// inputs[2] is the grandparent files at level+2 consulted only to
	// bound output file size.
	inputs [3][]*manifest.FileMetadata
}

// pickCompaction picks the best compaction for the current version, or nil
// if none is due. A score >= 1 triggers size-based compaction; seek-based
// compaction (a file that has been read from too many times without being
// compacted) is tried second. opts supplies the grandparent-overlap and
// expanded-size thresholds (10x and 25x MaxFileSize, the same at every
// level), which override manifest.MaxGrandparentOverlapBytes's placeholder.
func pickCompaction(vs *manifest.VersionSet, opts *Options) *compaction {
	v := vs.Current()

	var c *compaction
	if v.CompactionScore() >= 1 {
		level := v.CompactionLevel()
		files := v.Files[level]
		if len(files) == 0 {
			return nil
		}
		start := pickStartFile(vs, v, level, files)
		c = &compaction{level: level}
		c.inputs[0] = []*manifest.FileMetadata{start}
	} else if f, level := v.FileToCompact(); f != nil {
		c = &compaction{level: level}
		c.inputs[0] = []*manifest.FileMetadata{f}
	} else {
		return nil
	}

	if c.level == 0 {
		smallest, largest := manifest.KeyRange(vs.Cmp(), c.inputs[0], nil)
		c.inputs[0] = v.Overlaps(0, vs.Cmp(), smallest.UserKey, largest.UserKey)
		if len(c.inputs[0]) == 0 {
			return nil
		}
	}

	c.setupOtherInputs(vs, v, opts)
	return c
}

// pickStartFile chooses the first file at level that sorts after the
// round-robin compaction pointer recorded for that level, wrapping back to
// the first file otherwise.
func pickStartFile(vs *manifest.VersionSet, v *manifest.Version, level int, files []*manifest.FileMetadata) *manifest.FileMetadata {
	ptr := vs.CompactPointer(level)
	if ptr.UserKey == nil {
		return files[0]
	}
	for _, f := range files {
		if base.InternalCompare(vs.Cmp(), f.Largest, ptr) > 0 {
			return f
		}
	}
	return files[0]
}

// setupOtherInputs fills in inputs[1] (the overlapping level+1 files) and
// inputs[2] (the grandparent files), growing inputs[0] first if doing so
// doesn't pull in any additional level+1 file.
func (c *compaction) setupOtherInputs(vs *manifest.VersionSet, v *manifest.Version, opts *Options) {
	smallest0, largest0 := manifest.KeyRange(vs.Cmp(), c.inputs[0], nil)
	c.inputs[1] = v.Overlaps(c.level+1, vs.Cmp(), smallest0.UserKey, largest0.UserKey)

	smallest01, largest01 := manifest.KeyRange(vs.Cmp(), c.inputs[0], c.inputs[1])
	if c.grow(vs, v, smallest01, largest01, opts) {
		smallest01, largest01 = manifest.KeyRange(vs.Cmp(), c.inputs[0], c.inputs[1])
	}

	if c.level+2 < manifest.NumLevels {
		c.inputs[2] = v.Overlaps(c.level+2, vs.Cmp(), smallest01.UserKey, largest01.UserKey)
	}
}

// grow widens inputs[0] to every level-c.level file overlapping [sm, la]
// without changing the set of level+1 files the compaction already picked,
// so long as doing so doesn't blow past expandedCompactionByteSizeLimit.
func (c *compaction) grow(vs *manifest.VersionSet, v *manifest.Version, sm, la base.InternalKey, opts *Options) bool {
	if len(c.inputs[1]) == 0 {
		return false
	}
	grow0 := v.Overlaps(c.level, vs.Cmp(), sm.UserKey, la.UserKey)
	if len(grow0) <= len(c.inputs[0]) {
		return false
	}
	if manifest.TotalSize(grow0)+manifest.TotalSize(c.inputs[1]) >= opts.expandedCompactionByteSizeLimit() {
		return false
	}
	sm1, la1 := manifest.KeyRange(vs.Cmp(), grow0, nil)
	grow1 := v.Overlaps(c.level+1, vs.Cmp(), sm1.UserKey, la1.UserKey)
	if len(grow1) != len(c.inputs[1]) {
		return false
	}
	c.inputs[0] = grow0
	c.inputs[1] = grow1
	return true
}

// isTrivialMove reports whether this compaction can be satisfied by simply
// reassigning a single file from c.level to c.level+1 without rewriting any
// bytes: exactly one input file, no level+1 overlap, and not too much
// grandparent overlap.
func (c *compaction) isTrivialMove(opts *Options) bool {
	return len(c.inputs[0]) == 1 && len(c.inputs[1]) == 0 &&
		manifest.TotalSize(c.inputs[2]) <= opts.maxGrandparentOverlapBytes()
}

// isBaseLevelForKey reports whether no file at c.level+2 or deeper can
// contain userKey, meaning a tombstone for it at c.level+1 is provably
// obsolete and may be dropped.
func (c *compaction) isBaseLevelForKey(v *manifest.Version, cmp base.Compare, userKey []byte) bool {
	for level := c.level + 2; level < manifest.NumLevels; level++ {
		for _, f := range v.Files[level] {
			if cmp(userKey, f.Largest.UserKey) <= 0 {
				if cmp(userKey, f.Smallest.UserKey) >= 0 {
					return false
				}
				break
			}
		}
	}
	return true
}

// shouldStopBefore reports whether the current output file has accumulated
// enough grandparent overlap that a new output file should be started
// before adding key, resetting the running overlap total when it does.
type grandparentTracker struct {
	grandparents    []*manifest.FileMetadata
	cmp             base.Compare
	maxOverlapBytes uint64

	idx          int
	seenKey      bool
	overlapBytes uint64
}

func newGrandparentTracker(cmp base.Compare, grandparents []*manifest.FileMetadata, maxOverlapBytes uint64) *grandparentTracker {
	return &grandparentTracker{cmp: cmp, grandparents: grandparents, maxOverlapBytes: maxOverlapBytes}
}

func (g *grandparentTracker) shouldStopBefore(key base.InternalKey) bool {
	for g.idx < len(g.grandparents) && g.cmp(key.UserKey, g.grandparents[g.idx].Largest.UserKey) > 0 {
		g.overlapBytes += g.grandparents[g.idx].Size
		g.idx++
	}
	g.seenKey = true
	if g.overlapBytes > g.maxOverlapBytes {
		g.overlapBytes = 0
		return true
	}
	return false
}
