// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"sync"

	"github.com/lsmdb/lsmdb/internal/base"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/objstorage"
	"github.com/lsmdb/lsmdb/sstable"
	"golang.org/x/sync/singleflight"
)

// tableCache bounds the number of concurrently open sstable file
// descriptors to Options.MaxOpenFiles (minus the handful reserved for the
// WAL/manifest/LOCK/LOG, numNonTableCacheFiles), backing manifest.TableNewIter
// so Version never opens storage directly. Concurrent opens of the same file
// number are deduped with singleflight, the way real pebble's tableCache
// avoids redundant sstable.NewReader calls under load.
type tableCache struct {
	dirname string
	fs      objstorage.FS
	opts    *Options

	group singleflight.Group

	mu    sync.Mutex
	cap   int
	lru   []base.FileNum // most-recently-used at the end
	nodes map[base.FileNum]*tableCacheNode
}

type tableCacheNode struct {
	file   objstorage.File
	reader *sstable.Reader
}

func newTableCache(dirname string, fs objstorage.FS, opts *Options) *tableCache {
	cap := opts.MaxOpenFiles - numNonTableCacheFiles
	if cap < 1 {
		cap = 1
	}
	return &tableCache{
		dirname: dirname,
		fs:      fs,
		opts:    opts,
		cap:     cap,
		nodes:   make(map[base.FileNum]*tableCacheNode),
	}
}

// newIter satisfies manifest.TableNewIter.
func (c *tableCache) newIter(meta *manifest.FileMetadata) (manifest.InternalIterator, error) {
	n, err := c.get(meta.FileNum)
	if err != nil {
		return nil, err
	}
	it, err := n.reader.NewIter()
	if err != nil {
		return nil, err
	}
	return it, nil
}

// get returns the cached reader for fileNum, opening it (deduping
// concurrent opens of the same file) if it isn't already resident.
func (c *tableCache) get(fileNum base.FileNum) (*tableCacheNode, error) {
	c.mu.Lock()
	if n, ok := c.nodes[fileNum]; ok {
		c.touch(fileNum)
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(fileNum.String(), func() (interface{}, error) {
		c.mu.Lock()
		if n, ok := c.nodes[fileNum]; ok {
			c.mu.Unlock()
			return n, nil
		}
		c.mu.Unlock()

		name := c.fs.PathJoin(c.dirname, base.MakeFilename(base.FileTypeTable, fileNum))
		f, err := c.fs.Open(name)
		if err != nil {
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		r, err := sstable.NewReader(f, info.Size(), c.opts.sstableOptions())
		if err != nil {
			f.Close()
			return nil, err
		}
		n := &tableCacheNode{file: f, reader: r}

		c.mu.Lock()
		c.nodes[fileNum] = n
		c.touch(fileNum)
		c.mu.Unlock()
		c.evictIfOverCap()
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tableCacheNode), nil
}

// touch must be called with c.mu held.
func (c *tableCache) touch(fileNum base.FileNum) {
	for i, fn := range c.lru {
		if fn == fileNum {
			c.lru = append(c.lru[:i], c.lru[i+1:]...)
			break
		}
	}
	c.lru = append(c.lru, fileNum)
}

func (c *tableCache) evictIfOverCap() {
	c.mu.Lock()
	var toClose []*tableCacheNode
	for len(c.lru) > c.cap {
		fileNum := c.lru[0]
		c.lru = c.lru[1:]
		if n, ok := c.nodes[fileNum]; ok {
			delete(c.nodes, fileNum)
			toClose = append(toClose, n)
		}
	}
	c.mu.Unlock()
	for _, n := range toClose {
		n.file.Close()
	}
}

// evict drops fileNum from the cache immediately, used when a compaction
// deletes the underlying table file.
func (c *tableCache) evict(fileNum base.FileNum) {
	c.mu.Lock()
	n, ok := c.nodes[fileNum]
	if ok {
		delete(c.nodes, fileNum)
		for i, fn := range c.lru {
			if fn == fileNum {
				c.lru = append(c.lru[:i], c.lru[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if ok {
		n.file.Close()
	}
}

// close releases every open file descriptor the cache holds.
func (c *tableCache) close() error {
	c.mu.Lock()
	nodes := c.nodes
	c.nodes = make(map[base.FileNum]*tableCacheNode)
	c.lru = nil
	c.mu.Unlock()

	var err error
	for _, n := range nodes {
		if cerr := n.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
