// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbols

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/openttd/crash-analyzer/pkg/log"
	"github.com/openttd/crash-analyzer/pkg/minidump"
	"github.com/openttd/crash-analyzer/pkg/oneshot"
	"github.com/openttd/crash-analyzer/pkg/stat"
	"github.com/openttd/crash-analyzer/pkg/symbolizer"
	"github.com/ulikunitz/xz"
)

// ErrNotFound is returned when the archive has no symbols for a module.
var ErrNotFound = symbolizer.ErrNotFound

// ParseError means the archive returned a symbol file that is unusable.
// It matches symbolizer.ErrCorrupt and never ErrNotFound.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse symbols from %v: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == symbolizer.ErrCorrupt
}

// SymbolFetcher downloads files from the symbol archive.
// Fetch must call done exactly once. Errors and missing files are reported
// as an empty payload.
type SymbolFetcher interface {
	Fetch(ctx context.Context, url string, done func(data []byte))
}

type FileKind int

const (
	FileKindBinary FileKind = iota
	FileKindExtraDebugInfo
)

var (
	statFetches  = stat.New("symbol fetches", "Symbol files requested from the archive", stat.Prometheus("symbol_fetches"))
	statNotFound = stat.New("symbols missing", "Modules without symbols in the archive", stat.Prometheus("symbols_missing"))
	statCorrupt  = stat.New("symbols corrupt", "Symbol files that failed to parse", stat.Prometheus("symbols_corrupt"))
	statSize     = stat.New("symbol size", "Size of downloaded symbol files", stat.Distribution{}, stat.FormatKB)
	fetchTime    stat.AverageValue[time.Duration]
	_            = stat.New("symbol fetch time", "Average symbol download time (ms)",
		func() int { return int(fetchTime.Value().Milliseconds()) })
)

// Supplier fetches and parses symbol files. It does no caching: every call
// performs exactly one fetch, or none for modules without a debug identity.
type Supplier struct {
	root    string
	fetcher SymbolFetcher
}

func NewSupplier(root string, fetcher SymbolFetcher) *Supplier {
	if root == "" {
		root = DefaultRoot
	}
	return &Supplier{root: root, fetcher: fetcher}
}

func (s *Supplier) LocateSymbols(ctx context.Context, m *minidump.Module) (*symbolizer.SymbolTable, error) {
	path, ok := Derive(s.root, m)
	if !ok {
		return nil, fmt.Errorf("%v has no debug identifier: %w", m.Name(), ErrNotFound)
	}
	url := path.String()
	statFetches.Add(1)
	start := time.Now()
	result := oneshot.New[[]byte]()
	s.fetcher.Fetch(ctx, url, result.Send)
	data, err := result.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %v: %w", url, err)
	}
	fetchTime.Save(time.Since(start))
	if len(data) == 0 {
		statNotFound.Add(1)
		return nil, fmt.Errorf("%v: %w", url, ErrNotFound)
	}
	statSize.Add(len(data))
	log.Logf(2, "fetched %v (%v bytes)", url, len(data))
	table, err := parse(data)
	if err != nil {
		statCorrupt.Add(1)
		return nil, &ParseError{URL: url, Err: err}
	}
	return table, nil
}

// LocateFile never finds anything: only remote symbol files are supported,
// binaries and other debug files are not looked up.
func (s *Supplier) LocateFile(m *minidump.Module, kind FileKind) (string, error) {
	return "", ErrNotFound
}

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

func parse(data []byte) (*symbolizer.SymbolTable, error) {
	if bytes.HasPrefix(data, xzMagic) {
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("bad xz stream: %w", err)
		}
		if data, err = readLimited(r, maxSymbolSize); err != nil {
			return nil, fmt.Errorf("bad xz stream: %w", err)
		}
	}
	return symbolizer.Parse(data)
}
