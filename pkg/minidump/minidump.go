// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package minidump decodes Windows/Breakpad/Crashpad minidump files:
// the module list with debug identities, threads with their stacks and
// CPU contexts, the exception record and system information.
package minidump

import (
	"encoding/binary"
	"sort"
	"time"
)

const (
	Signature = 0x504d444d // "MDMP"
	Version   = 0xa793

	headerSize   = 32
	dirEntrySize = 12
)

// Stream types.
const (
	StreamThreadList   = 3
	StreamModuleList   = 4
	StreamMemoryList   = 5
	StreamException    = 6
	StreamSystemInfo   = 7
	StreamMemory64List = 9
	StreamBreakpadInfo = 0x47670001
)

type Dump struct {
	Timestamp time.Time
	Modules   []*Module
	Threads   []*Thread
	Exception *Exception
	System    *SystemInfo
	Breakpad  *BreakpadInfo
	// Memory holds the regions of the memory lists. Broken lists are dropped.
	Memory []MemoryRegion
}

// Module is a loaded binary. DebugFile and DebugID are empty when the dump
// does not carry a CodeView record for it.
type Module struct {
	Base      uint64
	Size      uint32
	Timestamp uint32
	CodeFile  string
	CodeID    string
	DebugFile string
	DebugID   string
}

func (m *Module) End() uint64 {
	return m.Base + uint64(m.Size)
}

func (m *Module) Contains(addr uint64) bool {
	return addr >= m.Base && addr < m.End()
}

type Thread struct {
	ID      uint32
	Stack   MemoryRegion
	Context *Context
}

type MemoryRegion struct {
	Base uint64
	Data []byte
}

func (mr MemoryRegion) Contains(addr uint64) bool {
	return addr >= mr.Base && addr-mr.Base < uint64(len(mr.Data))
}

func (mr MemoryRegion) Read(addr, size uint64) ([]byte, bool) {
	if !mr.Contains(addr) || uint64(len(mr.Data))-(addr-mr.Base) < size {
		return nil, false
	}
	off := addr - mr.Base
	return mr.Data[off : off+size], true
}

type Exception struct {
	ThreadID uint32
	Code     uint32
	Flags    uint32
	Address  uint64
	Params   []uint64
	Context  *Context
}

type SystemInfo struct {
	Arch       Arch
	CPUs       int
	Platform   Platform
	Major      uint32
	Minor      uint32
	Build      uint32
	CSDVersion string
}

// BreakpadInfo identifies the thread that asked for the dump.
// RequestingThreadID is only meaningful when HasRequestingThread is set.
type BreakpadInfo struct {
	HasRequestingThread bool
	RequestingThreadID  uint32
}

// Read decodes a minidump. The returned Dump references data.
func Read(data []byte) (*Dump, error) {
	r := &reader{data: data}
	if len(data) < headerSize {
		return nil, &FormatError{Msg: "file is shorter than the header"}
	}
	if sig := r.u32(0); sig != Signature {
		return nil, &FormatError{Msg: "bad signature"}
	}
	if ver := r.u32(4); ver&0xffff != Version {
		return nil, &FormatError{Off: 4, Msg: "unsupported version"}
	}
	numStreams := uint64(r.u32(8))
	dirRVA := uint64(r.u32(12))
	d := &Dump{
		Timestamp: time.Unix(int64(r.u32(20)), 0).UTC(),
	}
	if r.bytes(dirRVA, numStreams*dirEntrySize); r.err != nil {
		return nil, r.err
	}
	streams := make(map[uint32]location)
	for i := uint64(0); i < numStreams; i++ {
		off := dirRVA + i*dirEntrySize
		typ := r.u32(off)
		if _, ok := streams[typ]; ok || typ == 0 {
			// Unused entries and duplicates: the first one wins.
			continue
		}
		streams[typ] = r.location(off + 4)
	}
	// System info goes first, thread contexts depend on the CPU type.
	if loc, ok := streams[StreamSystemInfo]; ok {
		d.System = readSystemInfo(r, loc)
	}
	if loc, ok := streams[StreamBreakpadInfo]; ok {
		d.Breakpad = readBreakpadInfo(r, loc)
	}
	if loc, ok := streams[StreamMemoryList]; ok {
		d.Memory = append(d.Memory, readOptional(r, loc, readMemoryList)...)
	}
	if loc, ok := streams[StreamMemory64List]; ok {
		d.Memory = append(d.Memory, readOptional(r, loc, readMemory64List)...)
	}
	if loc, ok := streams[StreamModuleList]; ok {
		d.Modules = readModuleList(r, loc)
	}
	if loc, ok := streams[StreamThreadList]; ok {
		d.Threads = readThreadList(r, loc, d.arch())
	}
	if loc, ok := streams[StreamException]; ok {
		d.Exception = readException(r, loc, d.arch())
	}
	if r.err != nil {
		return nil, r.err
	}
	d.fillStacks()
	sort.Slice(d.Modules, func(i, j int) bool {
		return d.Modules[i].Base < d.Modules[j].Base
	})
	return d, nil
}

func (d *Dump) arch() Arch {
	if d.System == nil {
		return ArchUnknown
	}
	return d.System.Arch
}

// ModuleAt returns the module that covers addr, or nil.
func (d *Dump) ModuleAt(addr uint64) *Module {
	idx := sort.Search(len(d.Modules), func(i int) bool {
		return d.Modules[i].End() > addr
	})
	if idx < len(d.Modules) && d.Modules[idx].Contains(addr) {
		return d.Modules[idx]
	}
	return nil
}

// ReadMemory returns size bytes at addr from the stack of t or from the memory lists.
func (d *Dump) ReadMemory(t *Thread, addr, size uint64) ([]byte, bool) {
	if data, ok := t.Stack.Read(addr, size); ok {
		return data, true
	}
	for _, mr := range d.Memory {
		if data, ok := mr.Read(addr, size); ok {
			return data, true
		}
	}
	return nil, false
}

// ReadWord reads a pointer-sized value at addr.
func (d *Dump) ReadWord(t *Thread, arch Arch, addr uint64) (uint64, bool) {
	word := uint64(arch.PointerSize())
	data, ok := d.ReadMemory(t, addr, word)
	if !ok {
		return 0, false
	}
	if word == 4 {
		return uint64(binary.LittleEndian.Uint32(data)), true
	}
	return binary.LittleEndian.Uint64(data), true
}

// fillStacks takes stack bytes from the memory lists for threads whose stack
// descriptor is empty, as full-memory dumps write them.
func (d *Dump) fillStacks() {
	for _, t := range d.Threads {
		if len(t.Stack.Data) != 0 {
			continue
		}
		base := t.Stack.Base
		if base == 0 && t.Context != nil {
			base = t.Context.SP
		}
		for _, mr := range d.Memory {
			if mr.Contains(base) {
				t.Stack = MemoryRegion{Base: base, Data: mr.Data[base-mr.Base:]}
				break
			}
		}
	}
}

// RequestedThread returns the index of the thread the dump was taken for,
// or -1 if the dump does not say. Some platforms get this wrong.
func (d *Dump) RequestedThread() int {
	id, ok := uint32(0), false
	switch {
	case d.Exception != nil:
		id, ok = d.Exception.ThreadID, true
	case d.Breakpad != nil && d.Breakpad.HasRequestingThread:
		id, ok = d.Breakpad.RequestingThreadID, true
	}
	if !ok {
		return -1
	}
	for i, t := range d.Threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func readThreadList(r *reader, loc location, arch Arch) []*Thread {
	const threadSize = 48
	base := uint64(loc.RVA)
	n := uint64(r.u32(base))
	r.bytes(base+4, n*threadSize)
	if r.err != nil {
		return nil
	}
	var threads []*Thread
	for i := uint64(0); i < n; i++ {
		off := base + 4 + i*threadSize
		t := &Thread{
			ID: r.u32(off),
			Stack: MemoryRegion{
				Base: r.u64(off + 24),
				Data: r.slice(r.location(off + 32)),
			},
		}
		t.Context = readContext(r, r.location(off+40), arch)
		if r.err != nil {
			return nil
		}
		threads = append(threads, t)
	}
	return threads
}

func readException(r *reader, loc location, arch Arch) *Exception {
	base := uint64(loc.RVA)
	e := &Exception{
		ThreadID: r.u32(base),
		Code:     r.u32(base + 8),
		Flags:    r.u32(base + 12),
		Address:  r.u64(base + 24),
	}
	const maxParams = 15
	n := min(uint64(r.u32(base+32)), maxParams)
	for i := uint64(0); i < n; i++ {
		e.Params = append(e.Params, r.u64(base+40+8*i))
	}
	if ctx := r.location(base + 160); ctx.Size != 0 {
		e.Context = readContext(r, ctx, arch)
	}
	return e
}

func readSystemInfo(r *reader, loc location) *SystemInfo {
	base := uint64(loc.RVA)
	si := &SystemInfo{
		Arch:     Arch(r.u16(base)),
		CPUs:     int(r.u8(base + 6)),
		Major:    r.u32(base + 8),
		Minor:    r.u32(base + 12),
		Build:    r.u32(base + 16),
		Platform: Platform(r.u32(base + 20)),
	}
	if rva := r.u32(base + 24); rva != 0 {
		si.CSDVersion = r.str(rva)
	}
	return si
}

func readBreakpadInfo(r *reader, loc location) *BreakpadInfo {
	const requestingThreadValid = 1 << 1
	base := uint64(loc.RVA)
	valid := r.u32(base)
	return &BreakpadInfo{
		HasRequestingThread: valid&requestingThreadValid != 0,
		RequestingThreadID:  r.u32(base + 8),
	}
}

// readOptional runs read for a stream the dump can do without.
// A failure is forgotten and the stream yields nothing.
func readOptional(r *reader, loc location, read func(*reader, location) []MemoryRegion) []MemoryRegion {
	if r.err != nil {
		return nil
	}
	res := read(r, loc)
	if r.err != nil {
		r.err = nil
		return nil
	}
	return res
}

func readMemoryList(r *reader, loc location) []MemoryRegion {
	base := uint64(loc.RVA)
	n := uint64(r.u32(base))
	r.bytes(base+4, n*16)
	var res []MemoryRegion
	for i := uint64(0); i < n && r.err == nil; i++ {
		off := base + 4 + i*16
		res = append(res, MemoryRegion{
			Base: r.u64(off),
			Data: r.slice(r.location(off + 8)),
		})
	}
	return res
}

func readMemory64List(r *reader, loc location) []MemoryRegion {
	base := uint64(loc.RVA)
	n := r.u64(base)
	dataRVA := r.u64(base + 8)
	if n > uint64(len(r.data))/16 {
		r.fail(base, "too many memory ranges: %v", n)
		return nil
	}
	r.bytes(base+16, n*16)
	var res []MemoryRegion
	for i := uint64(0); i < n && r.err == nil; i++ {
		off := base + 16 + i*16
		start, size := r.u64(off), r.u64(off+8)
		res = append(res, MemoryRegion{
			Base: start,
			Data: r.bytes(dataRVA, size),
		})
		dataRVA += size
	}
	return res
}
