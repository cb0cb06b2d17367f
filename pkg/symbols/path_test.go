// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbols

import (
	"testing"

	"github.com/openttd/crash-analyzer/pkg/minidump"
)

func TestLeafname(t *testing.T) {
	tests := []struct{ path, want string }{
		{"/a/b/c.pdb", "c.pdb"},
		{"c.pdb", "c.pdb"},
		{`C:\build\openttd.pdb`, "openttd.pdb"},
		{`C:\build/mixed\app.pdb`, "app.pdb"},
		{"dir/", ""},
		{"", ""},
	}
	for _, test := range tests {
		if got := Leafname(test.path); got != test.want {
			t.Errorf("Leafname(%q) = %q, want %q", test.path, got, test.want)
		}
	}
}

func TestSwapExtension(t *testing.T) {
	tests := []struct{ name, want string }{
		{"app.pdb", "app.sym"},
		{"APP.PDB", "APP.sym"},
		{"app.Pdb", "app.sym"},
		{"app", "app.sym"},
		{"libfoo.so", "libfoo.so.sym"},
		{"app.test.pdb", "app.test.sym"},
		{"pdb", "pdb.sym"},
	}
	for _, test := range tests {
		if got := SwapExtension(test.name, "pdb", "sym"); got != test.want {
			t.Errorf("SwapExtension(%q) = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		module minidump.Module
		rel    string
		ok     bool
	}{
		{minidump.Module{DebugFile: "app.pdb", DebugID: "ABCDEF0123"}, "app.pdb/ABCDEF0123/app.sym", true},
		{minidump.Module{DebugFile: `D:\build\openttd.pdb`, DebugID: "0FA1"}, "openttd.pdb/0FA1/openttd.sym", true},
		{minidump.Module{DebugFile: "/usr/games/openttd", DebugID: "77AB0"}, "openttd/77AB0/openttd.sym", true},
		{minidump.Module{DebugFile: "app.pdb"}, "", false},
		{minidump.Module{DebugID: "ABCDEF0123"}, "", false},
	}
	for _, test := range tests {
		rel, ok := Lookup(&test.module)
		if rel != test.rel || ok != test.ok {
			t.Errorf("Lookup(%+v) = %q, %v; want %q, %v", test.module, rel, ok, test.rel, test.ok)
		}
	}
}

func TestDeriveIsPure(t *testing.T) {
	m := &minidump.Module{DebugFile: "app.pdb", DebugID: "ABCDEF0123"}
	p1, _ := Derive(DefaultRoot, m)
	p2, _ := Derive(DefaultRoot+"/", m)
	const want = "https://symbols.openttd.org/app.pdb/ABCDEF0123/app.sym"
	if p1.String() != want || p2.String() != want {
		t.Fatalf("got %q and %q, want %q", p1, p2, want)
	}
}
