// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package oneshot bridges callback-style host capabilities into blocking calls.
// A Chan carries exactly one value from the callback to the waiting caller.
package oneshot

import (
	"context"
	"sync/atomic"
)

type Chan[T any] struct {
	fired atomic.Bool
	ch    chan T
}

func New[T any]() *Chan[T] {
	return &Chan[T]{ch: make(chan T, 1)}
}

// Send delivers the result. Calling it twice means the producing capability
// broke its contract, and there is nothing sensible to recover to.
func (c *Chan[T]) Send(v T) {
	if !c.fired.CompareAndSwap(false, true) {
		panic("multiple fires on same channel")
	}
	c.ch <- v
}

// Recv waits for the value. With a context that is never done an abandoned
// producer leaves the caller pending forever.
func (c *Chan[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v := <-c.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
