// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/openttd/crash-analyzer/pkg/log"
	"github.com/openttd/crash-analyzer/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface for uploading crash reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTP = addr
			}
			log.EnableLogCaching(1000, 1<<20)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, closeFetcher, err := setup(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFetcher()
			serv := &server.HTTPServer{
				Cfg:       cfg,
				Analyzer:  a,
				StartTime: time.Now(),
			}
			return serv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address (overrides the config)")
	return cmd
}
