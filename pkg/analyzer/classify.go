// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package analyzer

import (
	"errors"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindCrashLog
	KindMinidump
)

func (k Kind) String() string {
	switch k {
	case KindCrashLog:
		return "crash log"
	case KindMinidump:
		return "minidump"
	}
	return "unknown"
}

// ErrUnhandled is returned for reports whose name has no known suffix.
var ErrUnhandled = errors.New("unhandled report type")

// Classify picks the decoder by the report file name. Matching is case-sensitive.
func Classify(name string) Kind {
	switch {
	case strings.HasSuffix(name, ".json"), strings.HasSuffix(name, ".json.log"):
		return KindCrashLog
	case strings.HasSuffix(name, ".dmp"):
		return KindMinidump
	}
	return KindUnknown
}
