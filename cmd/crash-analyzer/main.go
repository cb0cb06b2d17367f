// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// crash-analyzer extracts the crash reason, the environment and the symbolized
// stack trace from OpenTTD crash reports (minidumps and JSON crash logs).
//
// Usage:
//
//	crash-analyzer analyze crash.dmp crash.json.log
//	crash-analyzer serve --config analyzer.cfg
package main

import (
	"github.com/openttd/crash-analyzer/pkg/tool"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		tool.Fail(err)
	}
}
