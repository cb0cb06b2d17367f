// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package minidump

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// FormatError is returned for dumps that cannot be decoded.
// Nothing is salvaged from such dumps.
type FormatError struct {
	Off uint64
	Msg string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed minidump at offset 0x%x: %v", e.Off, e.Msg)
}

// reader reads little-endian values at absolute offsets.
// The first failure sticks in err and all further reads return zeroes,
// so callers check err once per record instead of after every field.
type reader struct {
	data []byte
	err  error
}

func (r *reader) fail(off uint64, msg string, args ...interface{}) {
	if r.err == nil {
		r.err = &FormatError{Off: off, Msg: fmt.Sprintf(msg, args...)}
	}
}

func (r *reader) bytes(off, size uint64) []byte {
	if r.err != nil {
		return nil
	}
	if off > uint64(len(r.data)) || size > uint64(len(r.data))-off {
		r.fail(off, "%v bytes past end of file (size 0x%x)", size, len(r.data))
		return nil
	}
	return r.data[off : off+size]
}

func (r *reader) u8(off uint64) uint8 {
	b := r.bytes(off, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16(off uint64) uint16 {
	b := r.bytes(off, 2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32(off uint64) uint32 {
	b := r.bytes(off, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64(off uint64) uint64 {
	b := r.bytes(off, 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// location reads a MINIDUMP_LOCATION_DESCRIPTOR.
func (r *reader) location(off uint64) location {
	return location{Size: r.u32(off), RVA: r.u32(off + 4)}
}

// str reads a MINIDUMP_STRING: a byte length followed by UTF-16LE code units.
func (r *reader) str(rva uint32) string {
	n := r.u32(uint64(rva))
	if n%2 != 0 {
		r.fail(uint64(rva), "odd string length %v", n)
		return ""
	}
	b := r.bytes(uint64(rva)+4, uint64(n))
	if b == nil {
		return ""
	}
	units := make([]uint16, n/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

type location struct {
	Size uint32
	RVA  uint32
}

func (r *reader) slice(loc location) []byte {
	return r.bytes(uint64(loc.RVA), uint64(loc.Size))
}
