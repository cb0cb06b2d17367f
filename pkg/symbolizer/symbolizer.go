// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package symbolizer turns the raw stacks of a minidump into symbolized frames
// using Breakpad symbol files.
package symbolizer

import (
	"context"

	"github.com/openttd/crash-analyzer/pkg/minidump"
)

// Placeholders for frames that could not be resolved.
const (
	UnknownModule = "unknown"
	UnknownFunc   = "??"
	UnknownFile   = "??"
)

type Frame struct {
	PC     uint64
	Module string
	Func   string
	File   string
	Line   int
	Trust  Trust
}

type Thread struct {
	ID     uint32
	Frames []Frame
}

// Resolution is the outcome of the symbol lookup for one module.
// Err distinguishes missing symbols from corrupt ones, see the supplier.
type Resolution struct {
	Module *minidump.Module
	Table  *SymbolTable
	Err    error
}

type ProcessState struct {
	Threads []*Thread
	// RequestedThread is the index of the thread the dump claims crashed, or -1.
	RequestedThread int
	Resolutions     []Resolution
	Dump            *minidump.Dump
}

// Supplier finds the symbol table for a module.
type Supplier interface {
	LocateSymbols(ctx context.Context, module *minidump.Module) (*SymbolTable, error)
}
