// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package analyzer turns crash reports (minidumps and JSON crash logs) into findings.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/openttd/crash-analyzer/pkg/crashlog"
	"github.com/openttd/crash-analyzer/pkg/log"
	"github.com/openttd/crash-analyzer/pkg/minidump"
	"github.com/openttd/crash-analyzer/pkg/oneshot"
	"github.com/openttd/crash-analyzer/pkg/stat"
	"github.com/openttd/crash-analyzer/pkg/symbolizer"
)

type Finding struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Sink receives findings in the order they are produced.
type Sink interface {
	Emit(key, value string)
}

type SinkFunc func(key, value string)

func (f SinkFunc) Emit(key, value string) {
	f(key, value)
}

// Collector is a Sink that keeps all findings.
type Collector struct {
	Findings []Finding
}

func (c *Collector) Emit(key, value string) {
	c.Findings = append(c.Findings, Finding{Key: key, Value: value})
}

const (
	KeyCrashReason = "Crash reason"
	KeyOS          = "OS"
	KeyStacktrace  = "Stacktrace"
)

var (
	statReports  = stat.New("reports", "Crash reports analyzed", stat.Prometheus("reports"))
	statFailed   = stat.New("failed reports", "Reports that could not be analyzed", stat.Prometheus("failed_reports"))
	statNoStack  = stat.New("reports without stack", "Minidumps without a crashing thread", stat.Prometheus("reports_without_stack"))
	statDumpSize = stat.New("dump size", "Size of analyzed reports", stat.Distribution{}, stat.FormatKB)
	analyzeTime  stat.AverageValue[time.Duration]
	_            = stat.New("analyze time", "Average report analysis time (ms)",
		func() int { return int(analyzeTime.Value().Milliseconds()) })
)

type Analyzer struct {
	supplier    symbolizer.Supplier
	concurrency int
}

// New creates an analyzer that resolves minidump symbols through supplier,
// fetching symbols for at most concurrency modules at a time (0 means no limit).
func New(supplier symbolizer.Supplier, concurrency int) *Analyzer {
	return &Analyzer{
		supplier:    supplier,
		concurrency: concurrency,
	}
}

// Read waits for the contents of the source.
func (a *Analyzer) Read(ctx context.Context, src ByteSource) ([]byte, error) {
	res := oneshot.New[[]byte]()
	src.Read(res.Send)
	data, err := res.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading %v: %w", src.Name(), err)
	}
	return data, nil
}

// Run reads the source and analyzes it.
func (a *Analyzer) Run(ctx context.Context, src ByteSource, sink Sink) error {
	data, err := a.Read(ctx, src)
	if err != nil {
		return err
	}
	return a.Analyze(ctx, src.Name(), data, sink)
}

// Analyze decodes the report according to its name and emits findings into sink.
// A report that fails to decode emits nothing. Missing or corrupt symbols
// are not errors, affected frames are rendered with placeholders.
func (a *Analyzer) Analyze(ctx context.Context, name string, data []byte, sink Sink) error {
	statReports.Add(1)
	statDumpSize.Add(len(data))
	start := time.Now()
	defer func() { analyzeTime.Save(time.Since(start)) }()

	kind := Classify(name)
	log.Logf(1, "analyzing %v (%v, %v bytes)", name, kind, len(data))
	var err error
	switch kind {
	case KindCrashLog:
		err = a.analyzeCrashLog(data, sink)
	case KindMinidump:
		err = a.analyzeMinidump(ctx, data, sink)
	default:
		err = fmt.Errorf("%v: %w", name, ErrUnhandled)
	}
	if err != nil {
		statFailed.Add(1)
		return err
	}
	return nil
}

func (a *Analyzer) analyzeCrashLog(data []byte, sink Sink) error {
	cl, err := crashlog.Decode(data)
	if err != nil {
		return err
	}
	for _, f := range cl.Findings() {
		sink.Emit(f[0], f[1])
	}
	return nil
}

func (a *Analyzer) analyzeMinidump(ctx context.Context, data []byte, sink Sink) error {
	dump, err := minidump.Read(data)
	if err != nil {
		return err
	}
	state := symbolizer.Symbolize(ctx, dump, a.supplier, a.concurrency)
	for _, f := range dumpFindings(state) {
		sink.Emit(f.Key, f.Value)
	}
	return nil
}

func dumpFindings(state *symbolizer.ProcessState) []Finding {
	var res []Finding
	dump := state.Dump
	platform := minidump.PlatformWindows
	if dump.System != nil {
		platform = dump.System.Platform
	}
	if exc := dump.Exception; exc != nil {
		res = append(res, Finding{KeyCrashReason, fmt.Sprintf("%v at 0x%x", exc.Reason(platform), exc.Address)})
	}
	if sys := dump.System; sys != nil {
		res = append(res, Finding{KeyOS, fmt.Sprintf("%v, %v, %v threads", sys.Describe(), sys.Arch, sys.CPUs)})
	}
	thread := SelectCrashingThread(state)
	if thread == nil {
		statNoStack.Add(1)
		log.Logf(1, "no thread runs %v, %v threads, requested thread %v",
			CrashEntrySentinel, len(state.Threads), state.RequestedThread)
		return res
	}
	res = append(res, Finding{KeyStacktrace, FormatStack(thread.Frames)})
	return res
}
