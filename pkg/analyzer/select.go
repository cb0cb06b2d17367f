// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package analyzer

import (
	"fmt"
	"strings"

	"github.com/openttd/crash-analyzer/pkg/symbolizer"
)

// CrashEntrySentinel is the game function that writes crash reports.
// The thread executing it is the one that crashed. Platforms do not agree on
// the requested thread of a dump (macOS does not set it properly), so this name
// is the only reliable marker. Renaming the function in the game silently
// disables stack trace reporting.
const CrashEntrySentinel = "CrashLog::MakeCrashLog()"

// SelectCrashingThread returns the first thread that has a frame in
// CrashEntrySentinel, or nil.
func SelectCrashingThread(state *symbolizer.ProcessState) *symbolizer.Thread {
	for _, t := range state.Threads {
		for _, frame := range t.Frames {
			if frame.Func == CrashEntrySentinel {
				return t
			}
		}
	}
	return nil
}

// FormatStack renders frames innermost first, one per line.
func FormatStack(frames []symbolizer.Frame) string {
	lines := make([]string, len(frames))
	for i, frame := range frames {
		lines[i] = fmt.Sprintf("%v!%v  %v:%v", frame.Module, frame.Func, frame.File, frame.Line)
	}
	return strings.Join(lines, "\n")
}
