//go:build linux
// +build linux

// File: reactor/eventloop_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/internal/concurrency"
)

// startLoop runs a loop on a dedicated pinned goroutine and returns it with
// a stopper that quits and joins.
func startLoop(t *testing.T) (*EventLoop, func()) {
	t.Helper()
	loopCh := make(chan *EventLoop, 1)
	done := make(chan struct{})
	go func() {
		loop := NewEventLoop()
		loopCh <- loop
		loop.Loop()
		loop.Close()
		close(done)
	}()
	loop := <-loopCh
	return loop, func() {
		loop.Quit()
		<-done
	}
}

func TestRunInLoopFromForeignThreadRunsOnOwner(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	ran := make(chan int, 1)
	loop.RunInLoop(func() {
		ran <- concurrency.CurrentTid()
	})

	select {
	case tid := <-ran:
		if tid != loop.tid {
			t.Fatalf("task ran on thread %d, loop owner is %d", tid, loop.tid)
		}
		if tid == concurrency.CurrentTid() {
			t.Fatalf("task ran on the caller's thread")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task never ran")
	}
}

func TestRunInLoopInlineOnOwnerThread(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	inline := make(chan bool, 1)
	loop.RunInLoop(func() {
		// Now on the owner thread; a nested RunInLoop must execute
		// immediately, not after this functor returns.
		var ranInline bool
		loop.RunInLoop(func() { ranInline = true })
		inline <- ranInline
	})
	if !<-inline {
		t.Fatalf("nested RunInLoop on owner thread was deferred")
	}
}

func TestQueueInLoopPreservesOrder(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	const n = 100
	got := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		loop.QueueInLoop(func() { got <- i })
	}
	for want := 0; want < n; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("task %d ran out of order (want %d)", v, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d tasks ran", want, n)
		}
	}
}

func TestTaskEnqueuedDuringDrainRunsNextIteration(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	// A later poll wake means the inner task ran in a later drain.
	second := make(chan bool, 1)
	loop.QueueInLoop(func() {
		outer := loop.PollReturnTime()
		loop.QueueInLoop(func() { second <- loop.PollReturnTime().After(outer) })
	})
	select {
	case later := <-second:
		if !later {
			t.Fatalf("task enqueued during drain ran in the same drain")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task enqueued during drain never ran")
	}
}

func TestQuitFromForeignThread(t *testing.T) {
	loop, _ := startLoop(t)
	stopped := make(chan struct{})
	go func() {
		loop.Quit()
		close(stopped)
	}()
	<-stopped
	// The loop wakes from its poll promptly instead of waiting out the
	// 10 s poll timeout.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("loop did not exit after Quit")
		default:
		}
		if concurrency.LoopOf(loop.tid) == nil {
			return // Close ran, loop exited
		}
		time.Sleep(time.Millisecond)
	}
}

func TestChannelReadDispatch(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[1])

	got := make(chan []byte, 1)
	var ch *Channel
	loop.RunInLoop(func() {
		ch = NewChannel(loop, fds[0])
		ch.SetReadCallback(func(time.Time) {
			buf := make([]byte, 16)
			n, _ := unix.Read(fds[0], buf)
			got <- buf[:n]
		})
		ch.EnableReading()
	})

	if _, err := unix.Write(fds[1], []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case data := <-got:
		if string(data) != "ping" {
			t.Fatalf("read %q, want %q", data, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read callback never fired")
	}

	cleanup := make(chan struct{})
	loop.RunInLoop(func() {
		ch.DisableAll()
		ch.Remove()
		unix.Close(fds[0])
		close(cleanup)
	})
	<-cleanup
}

func TestPollReturnTimeAdvances(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	var first, second atomic.Int64
	loop.RunAfter(10*time.Millisecond, func() {
		first.Store(loop.PollReturnTime().UnixNano())
	})
	loop.RunAfter(50*time.Millisecond, func() {
		second.Store(loop.PollReturnTime().UnixNano())
	})
	time.Sleep(150 * time.Millisecond)
	if first.Load() == 0 || second.Load() == 0 {
		t.Fatalf("timers did not fire")
	}
	if second.Load() <= first.Load() {
		t.Fatalf("poll return time did not advance")
	}
}
