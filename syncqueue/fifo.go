// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package syncqueue

import (
	"sync"
)

// FIFO implements a first-in, first-out producer-consumer queue. Thread safe.
type FIFO struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []interface{}
	closed bool
}

// NewFIFO creates an empty FIFO queue.
func NewFIFO() *FIFO {
	q := &FIFO{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put adds the object in the queue.
func (q *FIFO) Put(v interface{}) {
	q.mu.Lock()
	q.queue = append(q.queue, v)
	q.cond.Signal()
	q.mu.Unlock()
}

// Close informs the queue that no more objects will be added via Put().
func (q *FIFO) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Get removes the oldest object added to the queue. It blocks the caller if
// the queue is empty and not yet closed.
func (q *FIFO) Get() (interface{}, bool) {
	q.mu.Lock()
	for !q.closed && len(q.queue) == 0 {
		q.cond.Wait()
	}
	var v interface{}
	var ok bool
	if n := len(q.queue); n > 0 {
		v = q.queue[0]
		q.queue = q.queue[1:]
		ok = true
	}
	q.mu.Unlock()
	return v, ok
}

// Len returns the number of objects currently queued.
func (q *FIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
