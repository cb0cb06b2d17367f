// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	s := newSet()
	v := s.New("fetches", "symbol fetches")
	v.Add(1)
	v.Add(2)
	assert.Equal(t, 3, v.Val())
	assert.Equal(t, []UI{{Name: "fetches", Desc: "symbol fetches", Value: "3", V: 3}}, s.Collect())
}

func TestDistribution(t *testing.T) {
	s := newSet()
	v := s.New("size", "payload size", Distribution{}, FormatKB)
	assert.Equal(t, 0, v.Val())
	for _, x := range []int{1024, 2048, 3072} {
		v.Add(x)
	}
	assert.Equal(t, 2048, v.Val())
	assert.Equal(t, "2 KB", s.Collect()[0].Value)
}

func TestExternal(t *testing.T) {
	s := newSet()
	x := 5
	v := s.New("ext", "external value", func() int { return x })
	x = 7
	assert.Equal(t, 7, v.Val())
	assert.Panics(t, func() { v.Add(1) })
	assert.Panics(t, func() { s.New("bad", "bad option", 42) })
}

func TestAverage(t *testing.T) {
	var avg AverageValue[time.Duration]
	avg.Save(time.Second)
	avg.Save(3 * time.Second)
	assert.Equal(t, 2*time.Second, avg.Value())
}
