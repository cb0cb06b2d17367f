// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package analyzer

import (
	"testing"

	"github.com/openttd/crash-analyzer/pkg/symbolizer"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
	}{
		{"report.json", KindCrashLog},
		{"report.json.log", KindCrashLog},
		{"crash.dmp", KindMinidump},
		{"dir.json/crash.dmp", KindMinidump},
		{"dump.bin", KindUnknown},
		{"crash.DMP", KindUnknown},
		{"report.log", KindUnknown},
		{"report.json.gz", KindUnknown},
		{"", KindUnknown},
	}
	for _, test := range tests {
		if got := Classify(test.name); got != test.kind {
			t.Errorf("Classify(%q) = %v, want %v", test.name, got, test.kind)
		}
	}
}

func frame(module, fn string) symbolizer.Frame {
	return symbolizer.Frame{Module: module, Func: fn, File: "src/x.cpp", Line: 1}
}

func TestSelectCrashingThread(t *testing.T) {
	a := &symbolizer.Thread{ID: 1, Frames: []symbolizer.Frame{frame("app.exe", "main")}}
	b := &symbolizer.Thread{ID: 2, Frames: []symbolizer.Frame{
		frame("ntdll.dll", "NtWaitForSingleObject"),
		frame("app.exe", CrashEntrySentinel),
	}}
	c := &symbolizer.Thread{ID: 3, Frames: []symbolizer.Frame{frame("app.exe", CrashEntrySentinel)}}
	state := &symbolizer.ProcessState{Threads: []*symbolizer.Thread{a, b, c}, RequestedThread: 0}
	if got := SelectCrashingThread(state); got != b {
		t.Fatalf("selected thread %+v, want thread 2", got)
	}
	state.Threads = []*symbolizer.Thread{a}
	if got := SelectCrashingThread(state); got != nil {
		t.Fatalf("selected thread %+v, want none", got)
	}
	// Substrings and decorated names do not count.
	d := &symbolizer.Thread{ID: 4, Frames: []symbolizer.Frame{frame("app.exe", "CrashLog::MakeCrashLog")}}
	state.Threads = []*symbolizer.Thread{d}
	if got := SelectCrashingThread(state); got != nil {
		t.Fatalf("selected thread %+v, want none", got)
	}
}

func TestFormatStack(t *testing.T) {
	frames := []symbolizer.Frame{
		{Module: "app.exe", Func: "CrashLog::MakeCrashLog()", File: "src/crashlog.cpp", Line: 42},
		{Module: symbolizer.UnknownModule, Func: symbolizer.UnknownFunc, File: symbolizer.UnknownFile},
	}
	want := "app.exe!CrashLog::MakeCrashLog()  src/crashlog.cpp:42\nunknown!??  ??:0"
	if got := FormatStack(frames); got != want {
		t.Fatalf("got:\n%v\nwant:\n%v", got, want)
	}
	if got := FormatStack(nil); got != "" {
		t.Fatalf("got %q for empty stack", got)
	}
}
