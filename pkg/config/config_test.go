// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	type Nested struct {
		Aaa int
		Bbb string
	}
	type Config struct {
		Foo int
		Bar string
		Baz string `json:"-"`
		Qux []string
		Box Nested
		Boq *Nested
	}

	tests := []struct {
		input  string
		output Config
		err    string
	}{
		{
			`{"foo": 42}`,
			Config{
				Foo: 42,
			},
			"",
		},
		{
			`{"BAR": "Baz", "foo": 42}`,
			Config{
				Foo: 42,
				Bar: "Baz",
			},
			"",
		},
		{
			`{"foobar": 42}`,
			Config{},
			`failed to parse config file: json: unknown field "foobar"`,
		},
		{
			`{"foo": 1, "box": {"aaa": 12, "bbb": "bbb"}}`,
			Config{
				Foo: 1,
				Box: Nested{
					Aaa: 12,
					Bbb: "bbb",
				},
			},
			"",
		},
		{
			`{"qux": ["aaa", "bbb"]}`,
			Config{
				Qux: []string{"aaa", "bbb"},
			},
			"",
		},
		{
			`{"foo": 1, "boq": {"aaa": 12, "bbb": "bbb"}}`,
			Config{
				Foo: 1,
				Boq: &Nested{
					Aaa: 12,
					Bbb: "bbb",
				},
			},
			"",
		},
		{
			"# comment\n{\n\t# another comment\n\t\"foo\": 7\n}",
			Config{
				Foo: 7,
			},
			"",
		},
		{
			`{"foo": null, "qux": null}`,
			Config{},
			"",
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			var cfg Config
			err := LoadData([]byte(test.input), &cfg)
			errStr := ""
			if err != nil {
				errStr = err.Error()
			}
			if test.err != errStr {
				t.Fatalf("bad err: want '%v', got '%v'", test.err, errStr)
			}
			if test.err == "" && !reflect.DeepEqual(test.output, cfg) {
				t.Fatalf("bad output: want:\n%#v\n, got:\n%#v", test.output, cfg)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	type Config struct {
		Foo int      `json:"foo"`
		Qux []string `json:"qux"`
	}
	var cfg Config
	if err := LoadYAML([]byte("foo: 3\nqux:\n  - a\n  - b\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if want := (Config{Foo: 3, Qux: []string{"a", "b"}}); !reflect.DeepEqual(want, cfg) {
		t.Fatalf("want %+v, got %+v", want, cfg)
	}
	if err := LoadYAML([]byte("bar: 1\n"), &cfg); err == nil {
		t.Fatal("unknown field is accepted")
	}
}

func TestSaveLoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cfg.json")
	cfg := DefaultAnalyzer()
	cfg.Concurrency = 3
	if err := SaveFile(file, cfg); err != nil {
		t.Fatal(err)
	}
	got := new(Analyzer)
	if err := LoadFile(file, got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, got) {
		t.Fatalf("want %+v, got %+v", cfg, got)
	}
	if err := LoadFile("", got); err == nil {
		t.Fatal("loaded config without file name")
	}
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.json"), got); err == nil {
		t.Fatal("loaded missing config file")
	}
	if _, err := os.Stat(file); err != nil {
		t.Fatal(err)
	}
}
