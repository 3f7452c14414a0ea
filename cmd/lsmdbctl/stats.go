// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"
	"github.com/lsmdb/lsmdb"
	"github.com/lsmdb/lsmdb/internal/manifest"
	"github.com/lsmdb/lsmdb/objstorage"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <dirname>",
		Short: "Plot each level's compaction score, read directly off the recovered manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}

// runStats recovers dirname's manifest read-only (no WAL replay, no writer
// lock) and plots the per-level compaction score as a sparkline, the same
// files(L0)/trigger and bytes(L)/max_bytes_for_level(L) formula
// computeCompactionScore uses internally.
func runStats(dirname string, w io.Writer) error {
	fs := objstorage.DefaultFS{}
	opts := (&lsmdb.Options{}).EnsureDefaults()

	vs := manifest.New(dirname, fs, opts.Comparer.Compare, opts.Comparer.Name)
	if err := vs.Recover(); err != nil {
		return fmt.Errorf("recovering manifest: %w", err)
	}
	v := vs.Current()

	scores := make([]float64, manifest.NumLevels-1)
	for level := range scores {
		if level == 0 {
			scores[level] = float64(len(v.Files[0])) / float64(manifest.L0CompactionTrigger)
		} else {
			scores[level] = float64(manifest.TotalSize(v.Files[level])) / float64(manifest.MaxBytesForLevel(level))
		}
	}

	graph := asciigraph.Plot(scores,
		asciigraph.Height(10),
		asciigraph.Caption(fmt.Sprintf("compaction score by level (0..%d), worst=L%d score=%.2f",
			len(scores)-1, v.CompactionLevel(), v.CompactionScore())))
	fmt.Fprintln(w, graph)
	return nil
}
