//go:build linux
// +build linux

// File: reactor/eventloopthreadpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "log"

// EventLoopThreadPool owns the worker loops of a multi-reactor server and
// hands them out round-robin. With zero workers every caller gets the base
// loop, collapsing the server to single-reactor mode. The pool size is
// fixed once started.
type EventLoopThreadPool struct {
	baseLoop   *EventLoop
	started    bool
	numThreads int
	next       int
	threads    []*EventLoopThread
	loops      []*EventLoop
}

// NewEventLoopThreadPool builds an empty pool around the base (acceptor)
// loop.
func NewEventLoopThreadPool(baseLoop *EventLoop) *EventLoopThreadPool {
	return &EventLoopThreadPool{baseLoop: baseLoop}
}

// SetThreadNum fixes the worker count; call before Start.
func (p *EventLoopThreadPool) SetThreadNum(n int) {
	p.numThreads = n
}

// Start spins up the workers, invoking cb on each worker thread before its
// loop serves. With zero workers cb runs once on the base loop's thread.
func (p *EventLoopThreadPool) Start(cb ThreadInitCallback) {
	if p.started {
		log.Fatalf("[EventLoopThreadPool] started twice")
	}
	p.baseLoop.AssertInLoopThread()
	p.started = true

	for i := 0; i < p.numThreads; i++ {
		t := NewEventLoopThread(cb)
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, t.StartLoop())
	}
	if p.numThreads == 0 && cb != nil {
		cb(p.baseLoop)
	}
}

// Stop quits every worker loop and joins the threads. The base loop is left
// to its owner.
func (p *EventLoopThreadPool) Stop() {
	for _, t := range p.threads {
		t.Stop()
	}
}

// GetNextLoop returns the next worker loop round-robin, or the base loop
// when the pool is empty. Must be called on the base loop's thread.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	p.baseLoop.AssertInLoopThread()
	if !p.started {
		log.Fatalf("[EventLoopThreadPool] not started")
	}
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// Started reports whether Start has run.
func (p *EventLoopThreadPool) Started() bool { return p.started }
