// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"context"
	"errors"

	"github.com/openttd/crash-analyzer/pkg/log"
	"github.com/openttd/crash-analyzer/pkg/minidump"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound means the symbol archive has nothing for the module.
	ErrNotFound = errors.New("symbols not found")
	// ErrCorrupt is matched by errors for symbol files that were fetched but are unusable.
	ErrCorrupt = errors.New("corrupt symbols")
)

func (r Resolution) Missing() bool {
	return errors.Is(r.Err, ErrNotFound)
}

// Corrupt reports a symbol file that was fetched but does not decompress or parse.
// Lookups that were cancelled or timed out are neither missing nor corrupt.
func (r Resolution) Corrupt() bool {
	return errors.Is(r.Err, ErrCorrupt)
}

// Symbolize looks up symbols for every module of the dump, at most concurrency
// at a time (0 means no limit), and symbolizes the stacks of all threads.
// A module without usable symbols only degrades its own frames to placeholders.
func Symbolize(ctx context.Context, dump *minidump.Dump, supplier Supplier, concurrency int) *ProcessState {
	res := make([]Resolution, len(dump.Modules))
	var eg errgroup.Group
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}
	for i, m := range dump.Modules {
		i, m := i, m
		eg.Go(func() error {
			table, err := supplier.LocateSymbols(ctx, m)
			res[i] = Resolution{Module: m, Table: table, Err: err}
			return nil
		})
	}
	eg.Wait()

	tables := make(map[*minidump.Module]*SymbolTable)
	for _, r := range res {
		switch {
		case r.Err == nil:
			tables[r.Module] = r.Table
			log.Logf(1, "symbols for %v: %v funcs, %v publics",
				r.Module.Name(), len(r.Table.Funcs), len(r.Table.Publics))
		case r.Missing():
			log.Logf(1, "no symbols for %v (%v/%v)", r.Module.Name(), r.Module.DebugFile, r.Module.DebugID)
		case r.Corrupt():
			log.Errorf("bad symbols for %v: %v", r.Module.Name(), r.Err)
		default:
			log.Logf(0, "symbol lookup for %v failed: %v", r.Module.Name(), r.Err)
		}
	}

	state := &ProcessState{
		RequestedThread: dump.RequestedThread(),
		Resolutions:     res,
		Dump:            dump,
	}
	for _, t := range dump.Threads {
		thread := &Thread{ID: t.ID}
		for _, raw := range walkStack(dump, tables, t) {
			frame := symbolizeFrame(dump, tables, raw)
			thread.Frames = append(thread.Frames, frame)
			if log.V(3) {
				log.Logf(3, "thread %v: 0x%x %v!%v (%v)", t.ID, frame.PC, frame.Module, frame.Func, frame.Trust)
			}
		}
		state.Threads = append(state.Threads, thread)
	}
	return state
}

func symbolizeFrame(dump *minidump.Dump, tables map[*minidump.Module]*SymbolTable, raw *rawFrame) Frame {
	frame := Frame{
		PC:     raw.pc,
		Module: UnknownModule,
		Func:   UnknownFunc,
		File:   UnknownFile,
		Trust:  raw.trust,
	}
	m := dump.ModuleAt(raw.pc)
	if m == nil {
		return frame
	}
	if name := m.Name(); name != "" {
		frame.Module = name
	}
	table := tables[m]
	if table == nil {
		return frame
	}
	addr := raw.pc - m.Base
	if raw.trust != TrustContext && addr != 0 {
		// Return addresses point past the call instruction.
		addr--
	}
	loc, ok := table.Lookup(addr)
	if !ok {
		return frame
	}
	if loc.Func != "" {
		frame.Func = loc.Func
	}
	if loc.File != "" {
		frame.File = loc.File
		frame.Line = loc.Line
	}
	return frame
}
