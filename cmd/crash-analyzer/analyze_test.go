// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crashLog = `{
  "crash": {"reason": "Assertion failed"},
  "date": "2024-03-02 11:04:31",
  "game": {"gamelog": [], "settings_changed": {}, "timers": {"calendar": "1950-01-01", "seconds": 0, "ticks": 0}},
  "info": {
    "configuration": {"blitter": "", "graphics_set": "", "music_driver": "", "music_set": "", "network": "",
      "sound_driver": "", "sound_set": "", "video_driver": "", "video_info": ""},
    "openttd": {"bits": 64, "build_date": "", "dedicated_build": "no", "endian": "little",
      "version": {"content": "", "hash": "", "modified": 0, "newgrf": "", "revision": "", "tagged": 0}},
    "os": {"hardware_concurrency": 8, "memory": "16GB", "os": "Windows", "release": "10"}
  },
  "stacktrace": []
}`

func run(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyzeCmd(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "report.json.log")
	require.NoError(t, os.WriteFile(report, []byte(crashLog), 0644))
	out, err := run(t, "analyze", report)
	require.NoError(t, err)
	assert.Equal(t, "== "+report+"\nCrash reason: Assertion failed\nOS: Windows (10), 16GB RAM, 8 threads\n", out)
}

func TestAnalyzeCmdUnhandled(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(report, []byte(crashLog), 0644))
	other := filepath.Join(dir, "dump.bin")
	require.NoError(t, os.WriteFile(other, []byte(crashLog), 0644))
	out, err := run(t, "analyze", report, other)
	assert.EqualError(t, err, "failed to analyze 1 out of 2 reports")
	assert.Contains(t, out, "Crash reason: Assertion failed")
}

func TestAnalyzeCmdBadConfig(t *testing.T) {
	_, err := run(t, "analyze", "--symbol-root", "ftp://example.com", "crash.dmp")
	assert.Error(t, err)
	_, err = run(t, "analyze")
	assert.Error(t, err)
}

func TestPrintSink(t *testing.T) {
	buf := new(bytes.Buffer)
	sink := printSink(buf)
	sink.Emit("Stacktrace", "a!b  c:1\nd!e  f:2")
	assert.Equal(t, "Stacktrace: a!b  c:1\n\td!e  f:2\n", buf.String())
}
