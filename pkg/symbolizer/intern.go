// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"strings"
)

// Interner allows to intern/deduplicate strings.
// Interner.Do semantically returns the same string, but physically it will point
// to an existing string with the same contents (if there was one passed to Do in the past).
// Interned strings are also "cloned", so a table parsed from a large payload
// does not keep the whole payload alive.
// The type is not thread-safe.
type Interner struct {
	m map[string]string
}

func (in *Interner) Do(s string) string {
	if interned, ok := in.m[s]; ok {
		return interned
	}
	if in.m == nil {
		in.m = make(map[string]string)
	}
	s = strings.Clone(s)
	in.m[s] = s
	return s
}
