// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package minidump

import (
	"encoding/binary"
	"strconv"
)

// Context holds the registers of a thread at the time of the dump.
// Regs is keyed by the register names used in Breakpad CFI rules ("rbp", "x29", "sp").
// LR is set only on ARM targets.
type Context struct {
	Arch Arch
	IP   uint64
	SP   uint64
	FP   uint64
	LR   uint64
	Regs map[string]uint64
}

const (
	contextFlagX86   = 0x00010000
	contextFlagARM   = 0x40000000
	contextFlagAMD64 = 0x00100000
	contextFlagARM64 = 0x00400000
)

// RegNames names the stack pointer, frame pointer and instruction pointer of an arch,
// plus the registers a callee must preserve.
type RegNames struct {
	IP, SP, FP, LR string
	CalleeSaved    []string
}

type contextLayout struct {
	size  int
	word  int
	names RegNames
	regs  map[string]int
}

var contextLayouts = map[Arch]*contextLayout{
	ArchX86: {
		size: 0xc8,
		word: 4,
		names: RegNames{
			IP: "eip", SP: "esp", FP: "ebp",
			CalleeSaved: []string{"ebx", "esi", "edi", "ebp"},
		},
		regs: map[string]int{
			"edi": 0x9c, "esi": 0xa0, "ebx": 0xa4, "edx": 0xa8, "ecx": 0xac,
			"eax": 0xb0, "ebp": 0xb4, "eip": 0xb8, "esp": 0xc4,
		},
	},
	ArchAMD64: {
		size: 0x100,
		word: 8,
		names: RegNames{
			IP: "rip", SP: "rsp", FP: "rbp",
			CalleeSaved: []string{"rbx", "rbp", "rsi", "rdi", "r12", "r13", "r14", "r15"},
		},
		regs: seqRegs(map[string]int{
			"rax": 0x78, "rcx": 0x80, "rdx": 0x88, "rbx": 0x90, "rsp": 0x98,
			"rbp": 0xa0, "rsi": 0xa8, "rdi": 0xb0, "rip": 0xf8,
		}, "r", 8, 15, 0xb8, 8),
	},
	ArchARM: {
		size: 0x44,
		word: 4,
		names: RegNames{
			IP: "pc", SP: "sp", FP: "r11", LR: "lr",
			CalleeSaved: []string{"r4", "r5", "r6", "r7", "r8", "r9", "r10", "r11"},
		},
		regs: seqRegs(map[string]int{"sp": 0x38, "lr": 0x3c, "pc": 0x40}, "r", 0, 12, 0x04, 4),
	},
	ArchARM64: arm64Layout,
	// Old Breakpad arm64 dumps share the Windows layout for the registers we read.
	ArchARM64Old: arm64Layout,
}

var arm64Layout = &contextLayout{
	size: 0x110,
	word: 8,
	names: RegNames{
		IP: "pc", SP: "sp", FP: "x29", LR: "x30",
		CalleeSaved: []string{"x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28", "x29"},
	},
	regs: seqRegs(map[string]int{"sp": 0x100, "pc": 0x108}, "x", 0, 30, 0x08, 8),
}

// seqRegs adds registers prefix<from>..prefix<to> stored back to back from off.
func seqRegs(regs map[string]int, prefix string, from, to, off, word int) map[string]int {
	for i := from; i <= to; i++ {
		regs[prefix+strconv.Itoa(i)] = off + (i-from)*word
	}
	return regs
}

// Registers returns the register names for arch, or false if the arch is not supported.
func Registers(arch Arch) (RegNames, bool) {
	layout, ok := contextLayouts[arch]
	if !ok {
		return RegNames{}, false
	}
	return layout.names, true
}

func readContext(r *reader, loc location, arch Arch) *Context {
	if loc.Size == 0 {
		return nil
	}
	data := r.slice(loc)
	if data == nil {
		return nil
	}
	if arch == ArchUnknown {
		arch = guessContextArch(data)
	}
	layout, ok := contextLayouts[arch]
	if !ok {
		// Unknown CPU: keep the thread, it just won't have frames.
		return nil
	}
	if len(data) < layout.size {
		r.fail(uint64(loc.RVA), "%v context is too short: %v bytes", arch, len(data))
		return nil
	}
	ctx := &Context{
		Arch: arch,
		Regs: make(map[string]uint64, len(layout.regs)),
	}
	for name, off := range layout.regs {
		if layout.word == 4 {
			ctx.Regs[name] = uint64(binary.LittleEndian.Uint32(data[off:]))
		} else {
			ctx.Regs[name] = binary.LittleEndian.Uint64(data[off:])
		}
	}
	ctx.IP = ctx.Regs[layout.names.IP]
	ctx.SP = ctx.Regs[layout.names.SP]
	ctx.FP = ctx.Regs[layout.names.FP]
	if layout.names.LR != "" {
		ctx.LR = ctx.Regs[layout.names.LR]
	}
	return ctx
}

// guessContextArch looks at the context flags for dumps without system info.
func guessContextArch(data []byte) Arch {
	if len(data) >= 4 {
		flags := binary.LittleEndian.Uint32(data)
		switch {
		case flags&contextFlagARM64 != 0:
			return ArchARM64
		case flags&contextFlagARM != 0:
			return ArchARM
		case flags&contextFlagX86 != 0:
			return ArchX86
		}
	}
	// On amd64 the flags live after the six home registers.
	if len(data) >= 0x34 && binary.LittleEndian.Uint32(data[0x30:])&contextFlagAMD64 != 0 {
		return ArchAMD64
	}
	return ArchUnknown
}
