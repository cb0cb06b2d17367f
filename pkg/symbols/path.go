// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package symbols locates Breakpad symbol files for minidump modules in a remote
// symbol archive. The archive uses the standard Breakpad layout:
//
//	{root}/{debug file}/{debug identifier}/{debug file without .pdb}.sym
package symbols

import (
	"strings"

	"github.com/openttd/crash-analyzer/pkg/minidump"
)

// DefaultRoot is the public OpenTTD symbol server.
const DefaultRoot = "https://symbols.openttd.org"

// RemotePath is the location of one symbol file.
type RemotePath struct {
	Root string
	Rel  string
}

func (p RemotePath) String() string {
	return strings.TrimRight(p.Root, "/") + "/" + p.Rel
}

// Leafname returns the last path element; both / and \ separate elements.
func Leafname(path string) string {
	return minidump.Basename(path)
}

// SwapExtension replaces a case-insensitive from extension with to,
// or appends to if name has a different extension or none.
func SwapExtension(name, from, to string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && strings.EqualFold(parts[len(parts)-1], from) {
		parts = parts[:len(parts)-1]
	}
	parts = append(parts, to)
	return strings.Join(parts, ".")
}

// Lookup returns the archive-relative path of the module's symbol file.
// Modules without a debug file or debug identifier have none.
func Lookup(m *minidump.Module) (string, bool) {
	if m.DebugFile == "" || m.DebugID == "" {
		return "", false
	}
	leaf := Leafname(m.DebugFile)
	return strings.Join([]string{leaf, m.DebugID, SwapExtension(leaf, "pdb", "sym")}, "/"), true
}

func Derive(root string, m *minidump.Module) (RemotePath, bool) {
	rel, ok := Lookup(m)
	if !ok {
		return RemotePath{}, false
	}
	return RemotePath{Root: root, Rel: rel}, true
}
