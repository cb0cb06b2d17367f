// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package analyzer

import (
	"os"
	"path/filepath"

	"github.com/openttd/crash-analyzer/pkg/log"
)

// ByteSource is a report handed over by the host.
// Read must call done exactly once with the whole contents.
// A source that fails to read reports an empty buffer.
type ByteSource interface {
	Name() string
	Read(done func(data []byte))
}

// FileSource reads a report from the local file system.
type FileSource struct {
	Path string
}

func (fs FileSource) Name() string {
	return filepath.Base(fs.Path)
}

func (fs FileSource) Read(done func([]byte)) {
	go func() {
		data, err := os.ReadFile(fs.Path)
		if err != nil {
			// Indistinguishable from an empty report for the caller.
			log.Logf(0, "failed to read %v: %v", fs.Path, err)
			data = nil
		}
		done(data)
	}()
}

// BytesSource is a report already held in memory, e.g. an HTTP upload.
type BytesSource struct {
	File string
	Data []byte
}

func (bs BytesSource) Name() string {
	return bs.File
}

func (bs BytesSource) Read(done func([]byte)) {
	done(bs.Data)
}
