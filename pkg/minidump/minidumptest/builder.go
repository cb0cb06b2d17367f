// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package minidumptest synthesizes minidump files for tests.
package minidumptest

import (
	"bytes"
	"encoding/binary"
	"sort"
	"unicode/utf16"

	"github.com/openttd/crash-analyzer/pkg/minidump"
)

type Builder struct {
	Arch      minidump.Arch
	Platform  minidump.Platform
	CPUs      int
	Modules   []Module
	Threads   []Thread
	Exception *Exception
	Breakpad  *minidump.BreakpadInfo
	// Memory is written as a Memory64List stream.
	Memory []Region
	// Streams are written verbatim after the others.
	Streams map[uint32][]byte
}

type Region struct {
	Base  uint64
	Words []uint64
}

type Module struct {
	Base     uint64
	Size     uint32
	CodeFile string
	// CodeView is the raw CodeView record, see PDB70 and ELF.
	CodeView []byte
}

type Thread struct {
	ID        uint32
	IP        uint64
	SP        uint64
	FP        uint64
	LR        uint64
	StackBase uint64
	// Stack is stored as pointer-sized little-endian words starting at StackBase.
	Stack []uint64
}

type Exception struct {
	ThreadID uint32
	Code     uint32
	Address  uint64
	Params   []uint64
}

// PDB70 returns an "RSDS" CodeView record.
func PDB70(guid [16]byte, age uint32, pdb string) []byte {
	b := new(bytes.Buffer)
	binary.Write(b, binary.LittleEndian, uint32(0x53445352))
	b.Write(guid[:])
	binary.Write(b, binary.LittleEndian, age)
	b.WriteString(pdb)
	b.WriteByte(0)
	return b.Bytes()
}

// ELF returns a Breakpad "BpEL" CodeView record carrying a GNU build id.
func ELF(buildID []byte) []byte {
	b := new(bytes.Buffer)
	binary.Write(b, binary.LittleEndian, uint32(0x4270454c))
	b.Write(buildID)
	return b.Bytes()
}

type location struct {
	size, rva uint32
}

type image struct {
	bytes.Buffer
}

func (img *image) add(data []byte) location {
	for img.Len()%8 != 0 {
		img.WriteByte(0)
	}
	loc := location{uint32(len(data)), uint32(img.Len())}
	img.Write(data)
	return loc
}

func (img *image) addString(s string) uint32 {
	units := utf16.Encode([]rune(s))
	b := new(bytes.Buffer)
	binary.Write(b, binary.LittleEndian, uint32(2*len(units)))
	binary.Write(b, binary.LittleEndian, units)
	return img.add(b.Bytes()).rva
}

func le(data ...interface{}) []byte {
	b := new(bytes.Buffer)
	for _, v := range data {
		binary.Write(b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

// Build serializes the dump.
func (bld *Builder) Build() []byte {
	img := new(image)
	img.Write(make([]byte, 32))
	type stream struct {
		typ uint32
		loc location
	}
	var streams []stream

	si := le(uint16(bld.Arch), uint16(6), uint16(0), uint8(bld.CPUs), uint8(1),
		uint32(10), uint32(0), uint32(19041), uint32(bld.Platform), uint32(0))
	si = append(si, make([]byte, 56-len(si))...)
	streams = append(streams, stream{minidump.StreamSystemInfo, img.add(si)})

	var mods [][]byte
	for _, m := range bld.Modules {
		name := img.addString(m.CodeFile)
		var cv location
		if len(m.CodeView) != 0 {
			cv = img.add(m.CodeView)
		}
		rec := le(m.Base, m.Size, uint32(0), uint32(0x5f000000), name)
		rec = append(rec, make([]byte, 52)...)
		rec = append(rec, le(cv.size, cv.rva, uint32(0), uint32(0), uint64(0), uint64(0))...)
		mods = append(mods, rec)
	}
	modList := le(uint32(len(mods)))
	for _, rec := range mods {
		modList = append(modList, rec...)
	}
	streams = append(streams, stream{minidump.StreamModuleList, img.add(modList)})

	var threads [][]byte
	for _, t := range bld.Threads {
		stack := img.add(bld.words(t.Stack))
		ctx := img.add(bld.context(t))
		rec := le(t.ID, uint32(0), uint32(0), uint32(0), uint64(0),
			t.StackBase, stack.size, stack.rva, ctx.size, ctx.rva)
		threads = append(threads, rec)
	}
	threadList := le(uint32(len(threads)))
	for _, rec := range threads {
		threadList = append(threadList, rec...)
	}
	streams = append(streams, stream{minidump.StreamThreadList, img.add(threadList)})

	if e := bld.Exception; e != nil {
		params := make([]uint64, 15)
		copy(params, e.Params)
		rec := le(e.ThreadID, uint32(0), e.Code, uint32(0), uint64(0), e.Address,
			uint32(len(e.Params)), uint32(0), params, uint32(0), uint32(0))
		streams = append(streams, stream{minidump.StreamException, img.add(rec)})
	}
	if bp := bld.Breakpad; bp != nil {
		valid := uint32(0)
		if bp.HasRequestingThread {
			valid |= 2
		}
		rec := le(valid, uint32(0), bp.RequestingThreadID)
		streams = append(streams, stream{minidump.StreamBreakpadInfo, img.add(rec)})
	}
	if len(bld.Memory) != 0 {
		var data []byte
		for _, mr := range bld.Memory {
			data = append(data, bld.words(mr.Words)...)
		}
		dataLoc := img.add(data)
		list := le(uint64(len(bld.Memory)), uint64(dataLoc.rva))
		for _, mr := range bld.Memory {
			list = append(list, le(mr.Base, uint64(len(bld.words(mr.Words))))...)
		}
		streams = append(streams, stream{minidump.StreamMemory64List, img.add(list)})
	}
	var extra []uint32
	for typ := range bld.Streams {
		extra = append(extra, typ)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, typ := range extra {
		streams = append(streams, stream{typ, img.add(bld.Streams[typ])})
	}

	var dir []byte
	for _, s := range streams {
		dir = append(dir, le(s.typ, s.loc.size, s.loc.rva)...)
	}
	dirLoc := img.add(dir)
	data := img.Bytes()
	copy(data, le(uint32(minidump.Signature), uint32(minidump.Version), uint32(len(streams)),
		dirLoc.rva, uint32(0), uint32(0x5f000000), uint64(0)))
	return data
}

func (bld *Builder) words(vals []uint64) []byte {
	b := new(bytes.Buffer)
	for _, v := range vals {
		if bld.Arch.PointerSize() == 4 {
			binary.Write(b, binary.LittleEndian, uint32(v))
		} else {
			binary.Write(b, binary.LittleEndian, v)
		}
	}
	return b.Bytes()
}

func (bld *Builder) context(t Thread) []byte {
	put32 := func(b []byte, off int, v uint64) { binary.LittleEndian.PutUint32(b[off:], uint32(v)) }
	put64 := func(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }
	switch bld.Arch {
	case minidump.ArchX86:
		b := make([]byte, 0x2cc)
		put32(b, 0, 0x10007)
		put32(b, 0xb4, t.FP)
		put32(b, 0xb8, t.IP)
		put32(b, 0xc4, t.SP)
		return b
	case minidump.ArchARM64:
		b := make([]byte, 0x390)
		put32(b, 0, 0x400003)
		put64(b, 0xf0, t.FP)
		put64(b, 0xf8, t.LR)
		put64(b, 0x100, t.SP)
		put64(b, 0x108, t.IP)
		return b
	default:
		b := make([]byte, 0x4d0)
		put32(b, 0x30, 0x10000b)
		put64(b, 0x98, t.SP)
		put64(b, 0xa0, t.FP)
		put64(b, 0xf8, t.IP)
		return b
	}
}
