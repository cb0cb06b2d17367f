// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/openttd/crash-analyzer/pkg/analyzer"
	"github.com/openttd/crash-analyzer/pkg/log"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Print findings for crash report files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			a, closeFetcher, err := setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFetcher()
			failed := 0
			for _, file := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "== %v\n", file)
				src := analyzer.FileSource{Path: file}
				if err := a.Run(cmd.Context(), src, printSink(cmd.OutOrStdout())); err != nil {
					log.Errorf("%v: %v", file, err)
					failed++
				}
			}
			if failed != 0 {
				return fmt.Errorf("failed to analyze %v out of %v reports", failed, len(args))
			}
			return nil
		},
	}
}

// printSink prints findings as "key: value", continuation lines of
// multi-line values are indented.
func printSink(w io.Writer) analyzer.Sink {
	return analyzer.SinkFunc(func(key, value string) {
		fmt.Fprintf(w, "%v: %v\n", key, strings.ReplaceAll(value, "\n", "\n\t"))
	})
}
