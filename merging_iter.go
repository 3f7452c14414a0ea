// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"container/heap"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
)

// levelIter concatenates the per-file iterators of a sorted, non-overlapping
// run of tables at a single level >= 1 into one forward iterator.
type levelIter struct {
	newIter manifest.TableNewIter
	files   []*manifest.FileMetadata
	index   int
	iter    manifest.InternalIterator
	err     error
}

func newLevelIter(newIter manifest.TableNewIter, files []*manifest.FileMetadata) *levelIter {
	return &levelIter{newIter: newIter, files: files, index: -1}
}

func (l *levelIter) First() bool {
	l.index = 0
	return l.loadFile() && l.iter.First()
}

func (l *levelIter) Next() bool {
	if l.iter == nil {
		return false
	}
	if l.iter.Next() {
		return true
	}
	if l.iter.Close(); l.err == nil {
		l.err = nil
	}
	l.index++
	return l.loadFile() && l.iter.First()
}

func (l *levelIter) loadFile() bool {
	for l.index < len(l.files) {
		iter, err := l.newIter(l.files[l.index])
		if err != nil {
			l.err = err
			return false
		}
		l.iter = iter
		return true
	}
	l.iter = nil
	return false
}

func (l *levelIter) Valid() bool {
	return l.iter != nil && l.iter.Valid()
}

func (l *levelIter) Key() base.InternalKey { return l.iter.Key() }
func (l *levelIter) Value() []byte         { return l.iter.Value() }

func (l *levelIter) Close() error {
	if l.iter != nil {
		if err := l.iter.Close(); err != nil && l.err == nil {
			l.err = err
		}
		l.iter = nil
	}
	return l.err
}

// mergingIter is an N-way merge of internal iterators, ordered by internal
// key (user key ascending, sequence number descending).
type mergingIter struct {
	cmp   base.Compare
	items []mergingIterItem
}

type mergingIterItem struct {
	iter  manifest.InternalIterator
	valid bool
}

func newMergingIter(cmp base.Compare, iters ...manifest.InternalIterator) *mergingIter {
	m := &mergingIter{cmp: cmp}
	for _, it := range iters {
		m.items = append(m.items, mergingIterItem{iter: it})
	}
	return m
}

func (m *mergingIter) First() bool {
	for i := range m.items {
		m.items[i].valid = m.items[i].iter.First()
	}
	heap.Init((*mergingIterHeap)(m))
	return m.Valid()
}

func (m *mergingIter) Next() bool {
	if len(m.items) == 0 {
		return false
	}
	top := &m.items[0]
	top.valid = top.iter.Next()
	heap.Fix((*mergingIterHeap)(m), 0)
	return m.Valid()
}

func (m *mergingIter) Valid() bool {
	return len(m.items) > 0 && m.items[0].valid
}

func (m *mergingIter) Key() base.InternalKey { return m.items[0].iter.Key() }
func (m *mergingIter) Value() []byte         { return m.items[0].iter.Value() }

func (m *mergingIter) Close() error {
	var err error
	for _, it := range m.items {
		if cerr := it.iter.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// mergingIterHeap adapts mergingIter to container/heap: invalid items sort
// last so the root is always either the smallest valid key or an invalid
// item once everything is exhausted.
type mergingIterHeap mergingIter

func (h *mergingIterHeap) Len() int { return len(h.items) }

func (h *mergingIterHeap) Less(i, j int) bool {
	a, b := &h.items[i], &h.items[j]
	if !a.valid {
		return false
	}
	if !b.valid {
		return true
	}
	return base.InternalCompare(h.cmp, a.iter.Key(), b.iter.Key()) < 0
}

func (h *mergingIterHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergingIterHeap) Push(x interface{}) { h.items = append(h.items, x.(mergingIterItem)) }

func (h *mergingIterHeap) Pop() interface{} {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}
