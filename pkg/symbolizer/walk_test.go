// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"testing"

	"github.com/openttd/crash-analyzer/pkg/minidump"
	"github.com/openttd/crash-analyzer/pkg/minidump/minidumptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walkSymbols = `MODULE windows x86_64 00000000000000000000000000000000A app.pdb
FILE 0 src/crashlog.cpp
FILE 1 src/main.cpp
FUNC 1000 100 0 CrashLog::MakeCrashLog()
1000 100 42 0
FUNC 2000 100 0 main
2000 100 7 1
`

const walkCFI = `STACK CFI INIT 1000 100 .cfa: $rsp 8 + .ra: .cfa -8 + ^
STACK CFI 1001 .cfa: $rsp 16 + $rbx: .cfa -16 + ^
`

type walkResult struct {
	pc    uint64
	trust Trust
}

func walk(t *testing.T, b *minidumptest.Builder, symbols map[string]string) []*rawFrame {
	d, err := minidump.Read(b.Build())
	require.NoError(t, err)
	tables := make(map[*minidump.Module]*SymbolTable)
	for _, m := range d.Modules {
		if data, ok := symbols[m.Name()]; ok {
			st, err := Parse([]byte(data))
			require.NoError(t, err)
			tables[m] = st
		}
	}
	return walkStack(d, tables, d.Threads[0])
}

func summarize(frames []*rawFrame) []walkResult {
	var res []walkResult
	for _, f := range frames {
		res = append(res, walkResult{f.pc, f.trust})
	}
	return res
}

func walkBuilder(arch minidump.Arch, th minidumptest.Thread) *minidumptest.Builder {
	return &minidumptest.Builder{
		Arch:     arch,
		Platform: minidump.PlatformWindows,
		Modules: []minidumptest.Module{
			{Base: 0x400000, Size: 0x10000, CodeFile: `C:\app\app.exe`},
			{Base: 0x800000, Size: 0x10000, CodeFile: `C:\Windows\System32\kernel32.dll`},
		},
		Threads: []minidumptest.Thread{th},
	}
}

func TestWalkSkipsDataPointers(t *testing.T) {
	// Only 0x402100 is a return address. The other words point at data
	// in app.exe and into kernel32.dll, which has no symbols.
	b := walkBuilder(minidump.ArchAMD64, minidumptest.Thread{
		ID:        1,
		IP:        0x401010,
		SP:        0x1000,
		StackBase: 0x1000,
		Stack:     []uint64{0x408000, 0x40c123, 0x800010, 0x402100, 0x408010},
	})
	frames := walk(t, b, map[string]string{"app.exe": walkSymbols})
	assert.Equal(t, []walkResult{
		{0x401010, TrustContext},
		{0x402100, TrustScan},
	}, summarize(frames))
	assert.Equal(t, uint64(0x1020), frames[1].regs["rsp"])
}

func TestWalkScanPublics(t *testing.T) {
	b := walkBuilder(minidump.ArchAMD64, minidumptest.Thread{
		ID:        1,
		IP:        0x401010,
		SP:        0x1000,
		StackBase: 0x1000,
		Stack:     []uint64{0x800500, 0x801100},
	})
	frames := walk(t, b, map[string]string{
		"app.exe":      walkSymbols,
		"kernel32.dll": "MODULE windows x86_64 1 kernel32.pdb\nPUBLIC 1000 0 RaiseException\n",
	})
	assert.Equal(t, []walkResult{
		{0x401010, TrustContext},
		{0x801100, TrustScan},
	}, summarize(frames))
}

func TestWalkFramePointers(t *testing.T) {
	b := walkBuilder(minidump.ArchAMD64, minidumptest.Thread{
		ID:        1,
		IP:        0x800010,
		SP:        0x2000,
		FP:        0x2010,
		StackBase: 0x2000,
		Stack: []uint64{
			0x408000, 0x401080,
			0x2030, 0x401020,
			0x408000, 0x7,
			0, 0x402100,
		},
	})
	frames := walk(t, b, map[string]string{"app.exe": walkSymbols})
	// 0x401080 looks like a return address, the frame chain skips it.
	assert.Equal(t, []walkResult{
		{0x800010, TrustContext},
		{0x401020, TrustFramePointer},
		{0x402100, TrustFramePointer},
	}, summarize(frames))
	assert.Equal(t, uint64(0x2030), frames[1].regs["rbp"])
	assert.Equal(t, uint64(0x2020), frames[1].regs["rsp"])
}

func TestWalkFramePointerLoop(t *testing.T) {
	b := walkBuilder(minidump.ArchAMD64, minidumptest.Thread{
		ID:        1,
		IP:        0x401010,
		SP:        0x2000,
		FP:        0x2000,
		StackBase: 0x2000,
		Stack:     []uint64{0x2000, 0x402100},
	})
	frames := walk(t, b, map[string]string{"app.exe": walkSymbols})
	assert.Equal(t, []walkResult{
		{0x401010, TrustContext},
		{0x402100, TrustFramePointer},
	}, summarize(frames))
}

func TestWalkFramePointerX86(t *testing.T) {
	b := walkBuilder(minidump.ArchX86, minidumptest.Thread{
		ID:        1,
		IP:        0x401010,
		SP:        0x2000,
		FP:        0x2008,
		StackBase: 0x2000,
		Stack:     []uint64{0x408000, 0x7, 0, 0x402100, 0x401050},
	})
	frames := walk(t, b, map[string]string{"app.exe": walkSymbols})
	assert.Equal(t, []walkResult{
		{0x401010, TrustContext},
		{0x402100, TrustFramePointer},
		// The chain ends at a zero frame pointer, the rest is found by scanning.
		{0x401050, TrustScan},
	}, summarize(frames))
	assert.Equal(t, uint64(0x2010), frames[1].regs["esp"])
}

func TestWalkCFI(t *testing.T) {
	// The saved rbx also looks like a return address into MakeCrashLog,
	// CFI knows it is not one.
	b := walkBuilder(minidump.ArchAMD64, minidumptest.Thread{
		ID:        1,
		IP:        0x401010,
		SP:        0x3000,
		StackBase: 0x3000,
		Stack:     []uint64{0x401080, 0x402100, 0x408000},
	})
	frames := walk(t, b, map[string]string{"app.exe": walkSymbols + walkCFI})
	assert.Equal(t, []walkResult{
		{0x401010, TrustContext},
		{0x402100, TrustCFI},
	}, summarize(frames))
	assert.Equal(t, uint64(0x401080), frames[1].regs["rbx"])
	assert.Equal(t, uint64(0x3010), frames[1].regs["rsp"])
}

func TestWalkCFIARM64(t *testing.T) {
	const symbols = `MODULE linux arm64 00000000000000000000000000000000A app
FUNC 1000 100 0 leaf
FUNC 2000 100 0 main
STACK CFI INIT 1000 100 .cfa: sp 0 + .ra: x30
`
	b := walkBuilder(minidump.ArchARM64, minidumptest.Thread{
		ID:        1,
		IP:        0x401010,
		LR:        0x402010,
		SP:        0x3000,
		StackBase: 0x3000,
		Stack:     []uint64{0x408000},
	})
	frames := walk(t, b, map[string]string{"app.exe": symbols})
	// The leaf keeps its return address in x30 and leaves sp alone.
	assert.Equal(t, []walkResult{
		{0x401010, TrustContext},
		{0x402010, TrustCFI},
	}, summarize(frames))
	assert.Equal(t, uint64(0x3000), frames[1].regs["sp"])
}

func TestWalkNoContext(t *testing.T) {
	d, err := minidump.Read((&minidumptest.Builder{Arch: minidump.ArchAMD64}).Build())
	require.NoError(t, err)
	assert.Nil(t, walkStack(d, nil, &minidump.Thread{ID: 1}))
}

func TestEval(t *testing.T) {
	d, err := minidump.Read(walkBuilder(minidump.ArchAMD64, minidumptest.Thread{
		ID:        1,
		SP:        0x1000,
		StackBase: 0x1000,
		Stack:     []uint64{0x1111, 0x2222},
	}).Build())
	require.NoError(t, err)
	names, _ := minidump.Registers(minidump.ArchAMD64)
	w := &walker{dump: d, thread: d.Threads[0], arch: minidump.ArchAMD64, names: names, word: 8}
	regs := map[string]uint64{"rsp": 0x1000, ".cfa": 0x1010}
	tests := []struct {
		expr string
		want uint64
		ok   bool
	}{
		{"$rsp 8 +", 0x1008, true},
		{".cfa -8 + ^", 0x2222, true},
		{"$rsp ^", 0x1111, true},
		{"$rsp 0x17 + 16 @", 0x1010, true},
		{"$rsp 16 - 2 / 3 %", 0x7f8 % 3, true},
		{"$rsp 3 @", 0, false},
		{"1 0 /", 0, false},
		{"$rbx", 0, false},
		{"1 2", 0, false},
		{"+", 0, false},
		{"0x8000 ^", 0, false},
		{"", 0, false},
	}
	for _, test := range tests {
		got, ok := w.eval(test.expr, regs)
		if ok != test.ok || got != test.want {
			t.Errorf("eval(%q) = 0x%x, %v; want 0x%x, %v", test.expr, got, ok, test.want, test.ok)
		}
	}
}
