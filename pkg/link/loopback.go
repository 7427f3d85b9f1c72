// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"
	"time"
)

// DefaultLoopbackWait is how long a Loopback Read waits for data
const DefaultLoopbackWait = 10 * time.Millisecond

// queue is an unbounded byte FIFO with a wakeup channel
type queue struct {
	mu     sync.Mutex
	buf    []byte
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(p []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, p...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) pop(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n
}

// Loopback is an in-memory link. A link from NewLoopback reads back what it
// writes; the two ends from Pipe read what the other end writes.
type Loopback struct {
	rx, tx *queue
	wait   time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// NewLoopback creates a link whose writes become its reads. Read waits up to
// wait for data and then returns (0, nil).
func NewLoopback(wait time.Duration) *Loopback {
	q := newQueue()
	return newLoopback(q, q, wait)
}

// Pipe creates two connected links
func Pipe(wait time.Duration) (*Loopback, *Loopback) {
	a, b := newQueue(), newQueue()
	return newLoopback(a, b, wait), newLoopback(b, a, wait)
}

func newLoopback(rx, tx *queue, wait time.Duration) *Loopback {
	if wait <= 0 {
		wait = DefaultLoopbackWait
	}
	return &Loopback{rx: rx, tx: tx, wait: wait, closed: make(chan struct{})}
}

func (l *Loopback) Read(p []byte) (int, error) {
	if l.isClosed() {
		return 0, ErrConnectionClosed
	}
	if n := l.rx.pop(p); n > 0 {
		return n, nil
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case <-l.rx.notify:
	case <-timer.C:
	case <-l.closed:
		return 0, ErrConnectionClosed
	}
	return l.rx.pop(p), nil
}

func (l *Loopback) Write(p []byte) (int, error) {
	if l.isClosed() {
		return 0, ErrConnectionClosed
	}
	l.tx.push(p)
	return len(p), nil
}

// Close is idempotent
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *Loopback) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}
