// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package minidump

import (
	"fmt"
)

type Arch uint16

const (
	ArchX86      Arch = 0
	ArchARM      Arch = 5
	ArchAMD64    Arch = 9
	ArchARM64    Arch = 12
	ArchARM64Old Arch = 0x8003
	ArchUnknown  Arch = 0xffff
)

func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchARM:
		return "arm"
	case ArchAMD64:
		return "amd64"
	case ArchARM64, ArchARM64Old:
		return "arm64"
	}
	return fmt.Sprintf("arch 0x%x", uint16(a))
}

func (a Arch) PointerSize() int {
	switch a {
	case ArchX86, ArchARM:
		return 4
	}
	return 8
}

type Platform uint32

const (
	PlatformWindows Platform = 2
	PlatformMacOS   Platform = 0x8101
	PlatformIOS     Platform = 0x8102
	PlatformLinux   Platform = 0x8201
	PlatformSolaris Platform = 0x8202
	PlatformAndroid Platform = 0x8203
	PlatformNaCl    Platform = 0x8205
	PlatformFuchsia Platform = 0x8206
)

var platformNames = map[Platform]string{
	PlatformWindows: "Windows NT",
	PlatformMacOS:   "Mac OS X",
	PlatformIOS:     "iOS",
	PlatformLinux:   "Linux",
	PlatformSolaris: "Solaris",
	PlatformAndroid: "Android",
	PlatformNaCl:    "NaCl",
	PlatformFuchsia: "Fuchsia",
}

func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return fmt.Sprintf("platform 0x%x", uint32(p))
}

var windowsExceptions = map[uint32]string{
	0x80000003: "EXCEPTION_BREAKPOINT",
	0xc0000005: "EXCEPTION_ACCESS_VIOLATION",
	0xc0000006: "EXCEPTION_IN_PAGE_ERROR",
	0xc000001d: "EXCEPTION_ILLEGAL_INSTRUCTION",
	0xc0000094: "EXCEPTION_INT_DIVIDE_BY_ZERO",
	0xc0000095: "EXCEPTION_INT_OVERFLOW",
	0xc00000fd: "EXCEPTION_STACK_OVERFLOW",
	0xc0000374: "EXCEPTION_HEAP_CORRUPTION",
	0xc0000409: "EXCEPTION_STACK_BUFFER_OVERRUN",
	0xc0000417: "EXCEPTION_INVALID_CRUNTIME_PARAMETER",
	0xe06d7363: "EXCEPTION_CPP_EXCEPTION",
	0x40000015: "STATUS_FATAL_APP_EXIT",
}

var linuxSignals = map[uint32]string{
	4:  "SIGILL",
	5:  "SIGTRAP",
	6:  "SIGABRT",
	7:  "SIGBUS",
	8:  "SIGFPE",
	11: "SIGSEGV",
}

var machExceptions = map[uint32]string{
	1:  "EXC_BAD_ACCESS",
	2:  "EXC_BAD_INSTRUCTION",
	3:  "EXC_ARITHMETIC",
	6:  "EXC_BREAKPOINT",
	10: "EXC_CRASH",
	11: "EXC_RESOURCE",
	12: "EXC_GUARD",
}

// Reason describes the exception the way the OS names it,
// e.g. "EXCEPTION_ACCESS_VIOLATION_WRITE" or "SIGSEGV".
func (e *Exception) Reason(platform Platform) string {
	var table map[uint32]string
	switch platform {
	case PlatformLinux, PlatformAndroid, PlatformSolaris:
		table = linuxSignals
	case PlatformMacOS, PlatformIOS:
		table = machExceptions
	default:
		table = windowsExceptions
	}
	name, ok := table[e.Code]
	if !ok {
		return fmt.Sprintf("0x%08x", e.Code)
	}
	if e.Code == 0xc0000005 && len(e.Params) > 0 {
		switch e.Params[0] {
		case 0:
			name += "_READ"
		case 1:
			name += "_WRITE"
		case 8:
			name += "_EXEC"
		}
	}
	return name
}

// Describe renders the OS version the way it would appear in a bug report.
func (si *SystemInfo) Describe() string {
	res := fmt.Sprintf("%v %v.%v.%v", si.Platform, si.Major, si.Minor, si.Build)
	if si.CSDVersion != "" {
		res += " " + si.CSDVersion
	}
	return res
}
