// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides leveled logging on top of zerolog:
//   - verbosity levels shared by all packages (Logf(v, ...) prints if v <= verbosity)
//   - console or JSON output
//   - ability to cache recent output in memory (served by the analysis server)
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu           sync.Mutex
	verbosity    int
	logger       = newLogger(os.Stderr, false)
	cacheMem     int
	cacheMaxMem  int
	cachePos     int
	cacheEntries []string
	prependTime  = true // for testing
)

// Config controls where and how log output is written.
type Config struct {
	Verbosity int
	// JSON switches from the human-readable console writer to JSON lines.
	JSON   bool
	Output io.Writer
}

func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	mu.Lock()
	defer mu.Unlock()
	verbosity = cfg.Verbosity
	logger = newLogger(out, cfg.JSON)
}

func newLogger(out io.Writer, json bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if !json {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006/01/02 15:04:05"}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// V reports whether messages at verbosity v are printed.
func V(v int) bool {
	mu.Lock()
	defer mu.Unlock()
	return v <= verbosity
}

// EnableLogCaching enables in memory caching of log output.
// Caches up to maxLines, but no more than maxMem bytes.
// Cached output can later be queried with CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cacheEntries != nil {
		panic("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cacheMaxMem = maxMem
	cacheEntries = make([]string, maxLines)
}

// CachedLogOutput returns the cached lines, oldest first.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	buf := new(bytes.Buffer)
	for i := range cacheEntries {
		pos := (cachePos + i) % len(cacheEntries)
		if cacheEntries[pos] == "" {
			continue
		}
		buf.WriteString(cacheEntries[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

func Logf(v int, msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	mu.Lock()
	doLog := v <= verbosity
	if v <= 1 {
		cache(text)
	}
	l := logger
	mu.Unlock()

	if doLog {
		l.Info().Int("v", v).Msg(text)
	}
}

// Errorf logs an error regardless of verbosity.
func Errorf(msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	mu.Lock()
	cache(text)
	l := logger
	mu.Unlock()
	l.Error().Msg(text)
}

func cache(text string) {
	if cacheEntries == nil {
		return
	}
	cacheMem -= len(cacheEntries[cachePos])
	if cacheMem < 0 {
		panic("log cache size underflow")
	}
	if prependTime {
		text = time.Now().Format("2006/01/02 15:04:05 ") + text
	}
	cacheEntries[cachePos] = text
	cacheMem += len(text)
	cachePos++
	if cachePos == len(cacheEntries) {
		cachePos = 0
	}
	for i := 0; i < len(cacheEntries)-1 && cacheMem > cacheMaxMem; i++ {
		pos := (cachePos + i) % len(cacheEntries)
		cacheMem -= len(cacheEntries[pos])
		cacheEntries[pos] = ""
	}
	if cacheMem < 0 {
		panic("log cache size underflow")
	}
}
