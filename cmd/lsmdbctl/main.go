// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command lsmdbctl inspects an lsmdb database directory offline: dumping the
// manifest's edit history and plotting per-level compaction pressure,
// without opening the database for reads or writes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "lsmdbctl",
		Short:         "Inspect an lsmdb database directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newManifestCmd())
	root.AddCommand(newStatsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lsmdbctl:", err)
		os.Exit(1)
	}
}
