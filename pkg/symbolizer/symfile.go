// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// SymbolTable is a parsed Breakpad text symbol file.
// Addresses are relative to the module base.
type SymbolTable struct {
	OS      string
	Arch    string
	ID      string
	Name    string
	CodeID  string
	Files   map[uint64]string
	Funcs   []Func
	Publics []Public
	CFI     []CFI
}

type Func struct {
	Addr      uint64
	Size      uint64
	ParamSize uint64
	Name      string
	Lines     []LineRecord
}

type LineRecord struct {
	Addr uint64
	Size uint64
	Line int
	File uint64
}

type Public struct {
	Addr      uint64
	ParamSize uint64
	Name      string
}

// CFI is a STACK CFI INIT record together with the delta records that follow it.
// Rules are kept as text and parsed on lookup, most ranges are never unwound through.
type CFI struct {
	Addr   uint64
	Size   uint64
	Rules  string
	Deltas []CFIDelta
}

type CFIDelta struct {
	Addr  uint64
	Rules string
}

// SyntaxError describes the first malformed line of a symbol file.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %v: %v", e.Line, e.Msg)
}

// Parse parses a symbol file. The MODULE record must come first.
// STACK WIN and INLINE records are accepted and skipped.
func Parse(data []byte) (*SymbolTable, error) {
	st := &SymbolTable{Files: make(map[uint64]string)}
	p := &parser{st: st, cfi: -1}
	seenModule := false
	for s := data; len(s) != 0; {
		line := s
		if i := bytes.IndexByte(s, '\n'); i != -1 {
			line, s = s[:i], s[i+1:]
		} else {
			s = nil
		}
		p.line++
		text := strings.TrimRight(string(line), "\r")
		if text == "" {
			continue
		}
		if !seenModule {
			if err := p.module(text); err != nil {
				return nil, err
			}
			seenModule = true
			continue
		}
		if err := p.record(text); err != nil {
			return nil, err
		}
	}
	if !seenModule {
		return nil, &SyntaxError{Line: 0, Msg: "no MODULE record"}
	}
	sort.Slice(st.Funcs, func(i, j int) bool {
		return st.Funcs[i].Addr < st.Funcs[j].Addr
	})
	for i := range st.Funcs {
		lines := st.Funcs[i].Lines
		sort.Slice(lines, func(i, j int) bool {
			return lines[i].Addr < lines[j].Addr
		})
	}
	sort.Slice(st.Publics, func(i, j int) bool {
		return st.Publics[i].Addr < st.Publics[j].Addr
	})
	sort.Slice(st.CFI, func(i, j int) bool {
		return st.CFI[i].Addr < st.CFI[j].Addr
	})
	for i := range st.CFI {
		deltas := st.CFI[i].Deltas
		sort.Slice(deltas, func(i, j int) bool {
			return deltas[i].Addr < deltas[j].Addr
		})
	}
	return st, nil
}

type parser struct {
	st     *SymbolTable
	line   int
	fn     *Func
	cfi    int // index of the last STACK CFI INIT, -1 if none
	intern Interner
}

func (p *parser) errorf(msg string, args ...interface{}) error {
	return &SyntaxError{Line: p.line, Msg: fmt.Sprintf(msg, args...)}
}

func (p *parser) module(text string) error {
	fields := strings.SplitN(text, " ", 5)
	if len(fields) != 5 || fields[0] != "MODULE" {
		return p.errorf("expected MODULE record, got %q", truncate(text))
	}
	p.st.OS, p.st.Arch, p.st.ID, p.st.Name = fields[1], fields[2], fields[3], fields[4]
	return nil
}

func (p *parser) record(text string) error {
	keyword, rest, _ := strings.Cut(text, " ")
	switch keyword {
	case "FILE":
		return p.file(rest)
	case "FUNC":
		return p.function(rest)
	case "PUBLIC":
		p.fn = nil
		return p.public(rest)
	case "INFO":
		if fields := strings.Fields(rest); len(fields) >= 2 && fields[0] == "CODE_ID" {
			p.st.CodeID = fields[1]
		}
		return nil
	case "STACK":
		if cfi, ok := strings.CutPrefix(rest, "CFI "); ok {
			return p.stackCFI(cfi)
		}
		return nil
	case "INLINE", "INLINE_ORIGIN":
		return nil
	}
	if isHex(keyword) {
		return p.lineRecord(text)
	}
	return p.errorf("unknown record %q", truncate(text))
}

func (p *parser) file(rest string) error {
	num, name, ok := strings.Cut(rest, " ")
	if !ok {
		return p.errorf("bad FILE record")
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return p.errorf("bad FILE number %q", num)
	}
	p.st.Files[n] = p.intern.Do(name)
	return nil
}

func (p *parser) function(rest string) error {
	rest = strings.TrimPrefix(rest, "m ")
	fields := strings.SplitN(rest, " ", 4)
	if len(fields) != 4 {
		return p.errorf("bad FUNC record")
	}
	nums, err := parseHex(fields[:3])
	if err != nil {
		return p.errorf("bad FUNC record: %v", err)
	}
	p.st.Funcs = append(p.st.Funcs, Func{
		Addr:      nums[0],
		Size:      nums[1],
		ParamSize: nums[2],
		Name:      p.intern.Do(demangle.Filter(fields[3])),
	})
	p.fn = &p.st.Funcs[len(p.st.Funcs)-1]
	return nil
}

func (p *parser) public(rest string) error {
	rest = strings.TrimPrefix(rest, "m ")
	fields := strings.SplitN(rest, " ", 3)
	if len(fields) != 3 {
		return p.errorf("bad PUBLIC record")
	}
	nums, err := parseHex(fields[:2])
	if err != nil {
		return p.errorf("bad PUBLIC record: %v", err)
	}
	p.st.Publics = append(p.st.Publics, Public{
		Addr:      nums[0],
		ParamSize: nums[1],
		Name:      p.intern.Do(demangle.Filter(fields[2])),
	})
	return nil
}

func (p *parser) stackCFI(rest string) error {
	if init, ok := strings.CutPrefix(rest, "INIT "); ok {
		fields := strings.SplitN(init, " ", 3)
		if len(fields) != 3 {
			return p.errorf("bad STACK CFI INIT record")
		}
		nums, err := parseHex(fields[:2])
		if err != nil {
			return p.errorf("bad STACK CFI INIT record: %v", err)
		}
		if !validRules(fields[2]) {
			return p.errorf("bad CFI rules %q", truncate(fields[2]))
		}
		p.st.CFI = append(p.st.CFI, CFI{Addr: nums[0], Size: nums[1], Rules: fields[2]})
		p.cfi = len(p.st.CFI) - 1
		return nil
	}
	addr, rules, ok := strings.Cut(rest, " ")
	if !ok {
		return p.errorf("bad STACK CFI record")
	}
	nums, err := parseHex([]string{addr})
	if err != nil {
		return p.errorf("bad STACK CFI record: %v", err)
	}
	if !validRules(rules) {
		return p.errorf("bad CFI rules %q", truncate(rules))
	}
	if p.cfi < 0 {
		return p.errorf("STACK CFI record before STACK CFI INIT")
	}
	init := &p.st.CFI[p.cfi]
	init.Deltas = append(init.Deltas, CFIDelta{Addr: nums[0], Rules: rules})
	return nil
}

func (p *parser) lineRecord(text string) error {
	if p.fn == nil {
		return p.errorf("line record outside of FUNC")
	}
	fields := strings.Fields(text)
	if len(fields) != 4 {
		return p.errorf("bad line record")
	}
	nums, err := parseHex(fields[:2])
	if err != nil {
		return p.errorf("bad line record: %v", err)
	}
	line, err := strconv.Atoi(fields[2])
	if err != nil {
		return p.errorf("bad line number %q", fields[2])
	}
	file, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return p.errorf("bad file number %q", fields[3])
	}
	// Appending to Funcs may reallocate it, p.fn always points into the current array.
	p.fn.Lines = append(p.fn.Lines, LineRecord{
		Addr: nums[0],
		Size: nums[1],
		Line: line,
		File: file,
	})
	return nil
}

// Location is what a symbol table knows about an address.
// File is empty and Line is 0 when only a PUBLIC symbol covers the address.
type Location struct {
	Func string
	File string
	Line int
}

// Lookup resolves a module-relative address.
func (st *SymbolTable) Lookup(addr uint64) (Location, bool) {
	idx := sort.Search(len(st.Funcs), func(i int) bool {
		return st.Funcs[i].Addr > addr
	}) - 1
	if idx >= 0 && addr-st.Funcs[idx].Addr < st.Funcs[idx].Size {
		fn := &st.Funcs[idx]
		loc := Location{Func: fn.Name}
		li := sort.Search(len(fn.Lines), func(i int) bool {
			return fn.Lines[i].Addr > addr
		}) - 1
		if li >= 0 && addr-fn.Lines[li].Addr < fn.Lines[li].Size {
			loc.File = st.Files[fn.Lines[li].File]
			loc.Line = fn.Lines[li].Line
		}
		return loc, true
	}
	idx = sort.Search(len(st.Publics), func(i int) bool {
		return st.Publics[i].Addr > addr
	}) - 1
	if idx >= 0 {
		return Location{Func: st.Publics[idx].Name}, true
	}
	return Location{}, false
}

// InFunction reports whether a module-relative address lies inside a FUNC record,
// or after the first PUBLIC symbol if the table has no FUNC records.
func (st *SymbolTable) InFunction(addr uint64) bool {
	if len(st.Funcs) != 0 {
		idx := sort.Search(len(st.Funcs), func(i int) bool {
			return st.Funcs[i].Addr > addr
		}) - 1
		return idx >= 0 && addr-st.Funcs[idx].Addr < st.Funcs[idx].Size
	}
	return len(st.Publics) != 0 && addr >= st.Publics[0].Addr
}

// CFIRules returns the unwind rules in effect at a module-relative address,
// keyed by register name (".cfa", ".ra", "rbp") without the '$' prefix.
func (st *SymbolTable) CFIRules(addr uint64) (map[string]string, bool) {
	idx := sort.Search(len(st.CFI), func(i int) bool {
		return st.CFI[i].Addr > addr
	}) - 1
	if idx < 0 || addr-st.CFI[idx].Addr >= st.CFI[idx].Size {
		return nil, false
	}
	cfi := &st.CFI[idx]
	rules := make(map[string]string)
	parseRules(cfi.Rules, rules)
	for _, delta := range cfi.Deltas {
		if delta.Addr > addr {
			break
		}
		parseRules(delta.Rules, rules)
	}
	return rules, true
}

// parseRules splits "name: expr name: expr" into rules.
func parseRules(text string, rules map[string]string) {
	name := ""
	var expr []string
	flush := func() {
		if name != "" {
			rules[name] = strings.Join(expr, " ")
		}
		expr = expr[:0]
	}
	for _, tok := range strings.Fields(text) {
		if reg, ok := strings.CutSuffix(tok, ":"); ok {
			flush()
			name = strings.TrimPrefix(reg, "$")
			continue
		}
		expr = append(expr, tok)
	}
	flush()
}

func validRules(text string) bool {
	fields := strings.Fields(text)
	return len(fields) >= 2 && strings.HasSuffix(fields[0], ":")
}

func parseHex(fields []string) ([]uint64, error) {
	res := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad hex number %q", f)
		}
		res[i] = v
	}
	return res, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func truncate(s string) string {
	const maxLen = 64
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
