// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"maps"
	"strconv"
	"strings"

	"github.com/openttd/crash-analyzer/pkg/minidump"
)

// Trust says how a frame was recovered, from least to most reliable.
type Trust int

const (
	TrustNone Trust = iota
	TrustScan
	TrustFramePointer
	TrustCFI
	TrustContext
)

func (t Trust) String() string {
	switch t {
	case TrustContext:
		return "context"
	case TrustCFI:
		return "call frame info"
	case TrustFramePointer:
		return "frame pointer"
	case TrustScan:
		return "stack scan"
	}
	return "none"
}

const (
	maxFrames = 128
	// Words searched for a return address above a frame. The context frame
	// may be deep inside a function with a large frame, so it gets more.
	scanWords        = 64
	scanWordsContext = 256
)

type rawFrame struct {
	pc    uint64
	regs  map[string]uint64
	trust Trust
}

type walker struct {
	dump   *minidump.Dump
	thread *minidump.Thread
	tables map[*minidump.Module]*SymbolTable
	arch   minidump.Arch
	names  minidump.RegNames
	word   uint64
}

// walkStack unwinds thread t, innermost frame first. Frame 0 comes from the thread
// context (the exception context for the faulting thread). Every caller is recovered
// from STACK CFI rules when the callee's module has them, then by following the frame
// pointer, then by scanning the stack for a word that returns into a known function.
func walkStack(dump *minidump.Dump, tables map[*minidump.Module]*SymbolTable, t *minidump.Thread) []*rawFrame {
	ctx := t.Context
	if e := dump.Exception; e != nil && e.ThreadID == t.ID && e.Context != nil {
		ctx = e.Context
	}
	if ctx == nil {
		return nil
	}
	frame := &rawFrame{pc: ctx.IP, regs: maps.Clone(ctx.Regs), trust: TrustContext}
	frames := []*rawFrame{frame}
	names, ok := minidump.Registers(ctx.Arch)
	if !ok {
		return frames
	}
	w := &walker{
		dump:   dump,
		thread: t,
		tables: tables,
		arch:   ctx.Arch,
		names:  names,
		word:   uint64(ctx.Arch.PointerSize()),
	}
	for len(frames) < maxFrames {
		caller := w.unwind(frame)
		if caller == nil {
			break
		}
		frames = append(frames, caller)
		frame = caller
	}
	return frames
}

func (w *walker) unwind(callee *rawFrame) *rawFrame {
	for _, step := range []func(*rawFrame) *rawFrame{w.callerByCFI, w.callerByFramePointer, w.callerByScan} {
		caller := step(callee)
		if caller == nil {
			continue
		}
		if caller.pc == 0 && caller.trust == TrustCFI {
			// CFI says this is the outermost frame.
			return nil
		}
		// Stacks grow down, a caller's frame is above its callee's. A leaf function
		// on ARM may not touch sp at all, it returns through the link register.
		callerSP, calleeSP := caller.regs[w.names.SP], callee.regs[w.names.SP]
		leaf := w.names.LR != "" && callee.trust == TrustContext && callerSP == calleeSP
		if callerSP <= calleeSP && !leaf {
			continue
		}
		return caller
	}
	return nil
}

func (w *walker) callerByCFI(callee *rawFrame) *rawFrame {
	m := w.dump.ModuleAt(callee.pc)
	table := w.tables[m]
	if table == nil || len(table.CFI) == 0 {
		return nil
	}
	addr := callee.pc - m.Base
	if callee.trust != TrustContext && addr != 0 {
		addr--
	}
	rules, ok := table.CFIRules(addr)
	if !ok {
		return nil
	}
	env := maps.Clone(callee.regs)
	cfa, ok := w.eval(rules[".cfa"], env)
	if !ok {
		return nil
	}
	env[".cfa"] = cfa
	ra, ok := w.eval(rules[".ra"], env)
	if !ok {
		return nil
	}
	caller := w.newCaller(callee, ra, TrustCFI)
	for name, expr := range rules {
		if strings.HasPrefix(name, ".") {
			continue
		}
		if v, ok := w.eval(expr, env); ok {
			caller.regs[name] = v
		} else {
			delete(caller.regs, name)
		}
	}
	caller.regs[w.names.SP] = cfa
	if ra != 0 && !w.returnsIntoModule(ra) {
		return nil
	}
	return caller
}

// callerByFramePointer follows the frame record [saved fp, return address] at fp.
func (w *walker) callerByFramePointer(callee *rawFrame) *rawFrame {
	fp, ok := callee.regs[w.names.FP]
	if !ok || fp == 0 || fp%w.word != 0 {
		return nil
	}
	callerFP, ok1 := w.read(fp)
	ra, ok2 := w.read(fp + w.word)
	if !ok1 || !ok2 || !w.returnsIntoModule(ra) {
		return nil
	}
	caller := w.newCaller(callee, ra, TrustFramePointer)
	caller.regs[w.names.FP] = callerFP
	caller.regs[w.names.SP] = fp + 2*w.word
	return caller
}

// callerByScan takes the first stack word above sp that returns into a function
// of a module with symbols. Pointers to data and to modules without symbols are skipped.
func (w *walker) callerByScan(callee *rawFrame) *rawFrame {
	sp, ok := callee.regs[w.names.SP]
	if !ok {
		return nil
	}
	limit := scanWords
	if callee.trust == TrustContext {
		limit = scanWordsContext
	}
	for i := 0; i < limit; i++ {
		addr := sp + uint64(i)*w.word
		v, ok := w.read(addr)
		if !ok {
			return nil
		}
		if !w.returnsIntoFunction(v) {
			continue
		}
		caller := w.newCaller(callee, v, TrustScan)
		caller.regs[w.names.SP] = addr + w.word
		// A frame pointer pushed by the callee's prologue sits right below the return address.
		if fp, ok := callee.regs[w.names.FP]; ok && fp == addr-w.word {
			if saved, ok := w.read(fp); ok {
				caller.regs[w.names.FP] = saved
			}
		}
		return caller
	}
	return nil
}

// newCaller starts a caller frame with the registers the callee had to preserve.
func (w *walker) newCaller(callee *rawFrame, pc uint64, trust Trust) *rawFrame {
	caller := &rawFrame{
		pc:    pc,
		regs:  make(map[string]uint64),
		trust: trust,
	}
	for _, name := range w.names.CalleeSaved {
		if v, ok := callee.regs[name]; ok {
			caller.regs[name] = v
		}
	}
	caller.regs[w.names.IP] = pc
	return caller
}

// returnsIntoModule accepts pc if it lies in a module and, when the module has
// FUNC records, the call site lies inside one of them.
func (w *walker) returnsIntoModule(pc uint64) bool {
	m := w.dump.ModuleAt(pc)
	if m == nil {
		return false
	}
	table := w.tables[m]
	return table == nil || len(table.Funcs) == 0 || pc > m.Base && table.InFunction(pc-m.Base-1)
}

// returnsIntoFunction is the stricter check for scanned words: the module must have symbols.
func (w *walker) returnsIntoFunction(pc uint64) bool {
	m := w.dump.ModuleAt(pc)
	if m == nil || pc == m.Base {
		return false
	}
	table := w.tables[m]
	return table != nil && table.InFunction(pc-m.Base-1)
}

func (w *walker) read(addr uint64) (uint64, bool) {
	return w.dump.ReadWord(w.thread, w.arch, addr)
}

func (w *walker) truncate(v uint64) uint64 {
	if w.word == 4 {
		return v & 0xffffffff
	}
	return v
}

// eval computes a Breakpad postfix expression such as ".cfa -8 + ^".
// Operators are + - * / % and @ (align down), ^ dereferences the top of the stack.
func (w *walker) eval(expr string, regs map[string]uint64) (uint64, bool) {
	var stack []uint64
	for _, tok := range strings.Fields(expr) {
		switch tok {
		case "+", "-", "*", "/", "%", "@":
			if len(stack) < 2 {
				return 0, false
			}
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-2]
			var v uint64
			switch tok {
			case "+":
				v = a + b
			case "-":
				v = a - b
			case "*":
				v = a * b
			case "/", "%":
				if b == 0 {
					return 0, false
				}
				if tok == "/" {
					v = a / b
				} else {
					v = a % b
				}
			case "@":
				if b == 0 || b&(b-1) != 0 {
					return 0, false
				}
				v = a &^ (b - 1)
			}
			stack = append(stack, w.truncate(v))
		case "^":
			if len(stack) == 0 {
				return 0, false
			}
			v, ok := w.read(stack[len(stack)-1])
			if !ok {
				return 0, false
			}
			stack[len(stack)-1] = v
		default:
			if n, err := strconv.ParseInt(tok, 0, 64); err == nil {
				stack = append(stack, w.truncate(uint64(n)))
				continue
			}
			v, ok := regs[strings.TrimPrefix(tok, "$")]
			if !ok {
				return 0, false
			}
			stack = append(stack, v)
		}
	}
	if len(stack) != 1 {
		return 0, false
	}
	return stack[0], true
}
