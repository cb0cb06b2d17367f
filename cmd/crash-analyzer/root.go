// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/openttd/crash-analyzer/pkg/analyzer"
	"github.com/openttd/crash-analyzer/pkg/config"
	"github.com/openttd/crash-analyzer/pkg/log"
	"github.com/openttd/crash-analyzer/pkg/symbols"
	"github.com/openttd/crash-analyzer/pkg/tool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	config       string
	verbosity    int
	symbolRoot   string
	concurrency  int
	anonymousGCS bool
	logJSON      bool
	cpuprofile   string
	memprofile   string

	stopProfiling func()
}

func newRootCmd() *cobra.Command {
	opts := new(options)
	cmd := &cobra.Command{
		Use:   "crash-analyzer",
		Short: "Analyze OpenTTD crash reports",
		Long: `Analyze OpenTTD crash reports.

Minidumps (.dmp) are symbolized with Breakpad symbol files from the symbol
archive; JSON crash logs (.json, .json.log) are decoded directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.stopProfiling = tool.InstallProfiling(opts.cpuprofile, opts.memprofile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.stopProfiling()
		},
	}
	opts.addFlags(cmd.PersistentFlags())
	cmd.AddCommand(newAnalyzeCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

func (opts *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&opts.config, "config", "c", "", "config file (JSON, or YAML with .yaml/.yml extension)")
	fs.IntVarP(&opts.verbosity, "verbosity", "v", 0, "log verbosity")
	fs.StringVar(&opts.symbolRoot, "symbol-root", "", "symbol archive URL (https://, http:// or gs://)")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "number of symbol files fetched in parallel (0: all)")
	fs.BoolVar(&opts.anonymousGCS, "anonymous-gcs", false, "access gs:// symbol archives without credentials")
	fs.BoolVar(&opts.logJSON, "log-json", false, "write log as JSON lines")
	fs.StringVar(&opts.cpuprofile, "cpuprofile", "", "write CPU profile to this file")
	fs.StringVar(&opts.memprofile, "memprofile", "", "write memory profile to this file")
}

// loadConfig reads the config file and applies flags that were set explicitly.
func (opts *options) loadConfig(fs *pflag.FlagSet) (*config.Analyzer, error) {
	cfg, err := config.LoadAnalyzer(opts.config)
	if err != nil {
		return nil, err
	}
	if fs.Changed("verbosity") {
		cfg.Verbosity = opts.verbosity
	}
	if fs.Changed("symbol-root") {
		cfg.SymbolRoot = opts.symbolRoot
	}
	if fs.Changed("concurrency") {
		cfg.Concurrency = opts.concurrency
	}
	if fs.Changed("anonymous-gcs") {
		cfg.AnonymousGCS = opts.anonymousGCS
	}
	if fs.Changed("log-json") {
		cfg.LogJSON = opts.logJSON
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup initializes logging and creates the analyzer.
// The returned function releases the symbol fetcher.
func setup(ctx context.Context, cfg *config.Analyzer) (*analyzer.Analyzer, func() error, error) {
	log.Init(log.Config{Verbosity: cfg.Verbosity, JSON: cfg.LogJSON})
	fetcher, closeFetcher, err := symbols.NewFetcher(ctx, cfg.SymbolRoot,
		cfg.FetchTimeout.Duration(), cfg.AnonymousGCS)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create symbol fetcher: %w", err)
	}
	log.Logf(1, "symbols from %v, %v fetches in parallel", cfg.SymbolRoot, cfg.Concurrency)
	supplier := symbols.NewSupplier(cfg.SymbolRoot, fetcher)
	return analyzer.New(supplier, cfg.Concurrency), closeFetcher, nil
}
