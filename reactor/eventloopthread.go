//go:build linux
// +build linux

// File: reactor/eventloopthread.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

// ThreadInitCallback runs on a freshly pinned worker thread before its loop
// starts serving.
type ThreadInitCallback func(*EventLoop)

// EventLoopThread owns one worker: a pinned goroutine constructing and
// running its own EventLoop.
type EventLoopThread struct {
	loop         *EventLoop
	initCallback ThreadInitCallback
	loopReady    chan *EventLoop
	done         chan struct{}
}

// NewEventLoopThread prepares a worker; cb may be nil.
func NewEventLoopThread(cb ThreadInitCallback) *EventLoopThread {
	return &EventLoopThread{
		initCallback: cb,
		loopReady:    make(chan *EventLoop, 1),
		done:         make(chan struct{}),
	}
}

// StartLoop launches the worker goroutine and blocks until its loop exists.
// The returned loop is owned by the worker thread; use only its thread-safe
// entry points from here.
func (t *EventLoopThread) StartLoop() *EventLoop {
	go t.run()
	t.loop = <-t.loopReady
	return t.loop
}

// Stop quits the worker's loop and waits for the goroutine to finish.
func (t *EventLoopThread) Stop() {
	if t.loop == nil {
		return
	}
	t.loop.Quit()
	<-t.done
}

func (t *EventLoopThread) run() {
	loop := NewEventLoop()
	if t.initCallback != nil {
		t.initCallback(loop)
	}
	t.loopReady <- loop
	loop.Loop()
	loop.Close()
	close(t.done)
}
