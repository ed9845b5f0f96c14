// Copyright 2022 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ctxsync

import (
	"context"
	"sync"
)

// Cond is a context-aware condition variable, analogous to sync.Cond but
// with a Wait that can be interrupted by context cancellation.
//
// As with sync.Cond, L is held by the caller before calling Wait, Signal, or
// Broadcast.
type Cond struct {
	L sync.Locker

	mu     sync.Mutex
	notify chan struct{}
}

// NewCond returns a new Cond with Locker l.
func NewCond(l sync.Locker) *Cond {
	return &Cond{L: l, notify: make(chan struct{})}
}

// Wait releases L and suspends the calling goroutine until woken by Signal
// or Broadcast, or until ctx is done. L is reacquired before Wait returns,
// regardless of outcome. As with sync.Cond, the caller must re-check its
// condition in a loop, since Wait may wake spuriously with respect to it.
func (c *Cond) Wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.notify
	c.mu.Unlock()

	c.L.Unlock()
	defer c.L.Lock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signal wakes one waiter, if any is currently blocked in Wait.
//
// The channel-based implementation here cannot cheaply distinguish "wake
// one" from "wake all" the way a futex-backed sync.Cond can, so Signal wakes
// every waiter blocked at the time of the call; each must re-check its
// condition under L, same as a spurious Broadcast wakeup would require.
func (c *Cond) Signal() {
	c.broadcast()
}

// Broadcast wakes all waiters currently blocked in Wait.
func (c *Cond) Broadcast() {
	c.broadcast()
}

func (c *Cond) broadcast() {
	c.mu.Lock()
	close(c.notify)
	c.notify = make(chan struct{})
	c.mu.Unlock()
}
