// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package minidump

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	moduleSize = 108

	cvSignaturePDB70 = 0x53445352 // "RSDS"
	cvSignaturePDB20 = 0x3031424e // "NB10"
	cvSignatureELF   = 0x4270454c // "BpEL"
)

func readModuleList(r *reader, loc location) []*Module {
	base := uint64(loc.RVA)
	n := uint64(r.u32(base))
	if r.bytes(base+4, n*moduleSize); r.err != nil {
		return nil
	}
	var mods []*Module
	for i := uint64(0); i < n; i++ {
		off := base + 4 + i*moduleSize
		m := &Module{
			Base:      r.u64(off),
			Size:      r.u32(off + 8),
			Timestamp: r.u32(off + 16),
			CodeFile:  r.str(r.u32(off + 20)),
		}
		if cv := r.location(off + 76); cv.Size != 0 {
			parseCodeView(m, r.slice(cv))
		}
		if r.err != nil {
			return nil
		}
		if m.CodeID == "" && m.Timestamp != 0 {
			// PE modules are identified by their link timestamp and image size.
			m.CodeID = fmt.Sprintf("%08X%x", m.Timestamp, m.Size)
		}
		mods = append(mods, m)
	}
	return mods
}

// parseCodeView fills in the debug identity from a CodeView record.
// Unknown or truncated records leave the module without one.
func parseCodeView(m *Module, cv []byte) {
	if len(cv) < 4 {
		return
	}
	switch binary.LittleEndian.Uint32(cv) {
	case cvSignaturePDB70:
		if len(cv) < 24 {
			return
		}
		age := binary.LittleEndian.Uint32(cv[20:])
		m.DebugID = formatGUID(cv[4:20]) + fmt.Sprintf("%X", age)
		m.DebugFile = cString(cv[24:])
	case cvSignaturePDB20:
		if len(cv) < 16 {
			return
		}
		sig := binary.LittleEndian.Uint32(cv[8:])
		age := binary.LittleEndian.Uint32(cv[12:])
		m.DebugID = fmt.Sprintf("%08X%X", sig, age)
		m.DebugFile = cString(cv[16:])
	case cvSignatureELF:
		buildID := cv[4:]
		if len(buildID) == 0 {
			return
		}
		m.CodeID = hex.EncodeToString(buildID)
		// The identifier is the first 16 bytes of the build id read as a GUID, age 0.
		var guid [16]byte
		copy(guid[:], buildID)
		m.DebugID = formatGUID(guid[:]) + "0"
		m.DebugFile = m.CodeFile
	}
}

// formatGUID prints a GUID in the Breakpad form: uppercase hex, no dashes,
// the first three fields in little-endian order.
func formatGUID(b []byte) string {
	return fmt.Sprintf("%08X%04X%04X%s",
		binary.LittleEndian.Uint32(b[0:]),
		binary.LittleEndian.Uint16(b[4:]),
		binary.LittleEndian.Uint16(b[6:]),
		strings.ToUpper(hex.EncodeToString(b[8:16])))
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i != -1 {
		b = b[:i]
	}
	return string(b)
}

// Basename returns the last element of a Windows or Unix path.
func Basename(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i != -1 {
		return path[i+1:]
	}
	return path
}

// Name is the file name of the module without directories.
func (m *Module) Name() string {
	return Basename(m.CodeFile)
}
