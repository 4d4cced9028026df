//go:build linux
// +build linux

// File: reactor/timerqueue_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimersFireInScheduleOrder(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	var mu sync.Mutex
	var order []string
	record := func(tag string) func() {
		return func() {
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
		}
	}

	now := time.Now()
	loop.RunAt(now.Add(40*time.Millisecond), record("B"))
	loop.RunAt(now.Add(20*time.Millisecond), record("A"))

	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("fire order = %v, want [A B]", order)
	}
}

func TestCancelBeforeExpiry(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	var fired atomic.Int32
	id := loop.RunAfter(50*time.Millisecond, func() { fired.Add(1) })
	loop.CancelTimer(id)

	time.Sleep(120 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired %d times", fired.Load())
	}
}

func TestOneShotFiresExactlyOnce(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	var fired atomic.Int32
	loop.RunAfter(10*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("one-shot fired %d times, want 1", got)
	}
}

func TestPeriodicCancelledFromPeerCallbackInSameBatch(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	var bFired atomic.Int32
	ready := make(chan TimerID, 1)

	// Schedule both timers from the loop thread so B's id exists before A
	// runs. A expires alongside B's first fire and cancels it; B must not
	// re-arm even though it was already extracted into the expiry batch.
	loop.RunInLoop(func() {
		now := time.Now()
		idB := loop.timerQueue.AddTimer(func() { bFired.Add(1) },
			now.Add(10*time.Millisecond), 5*time.Millisecond)
		loop.timerQueue.AddTimer(func() { loop.CancelTimer(idB) },
			now.Add(10*time.Millisecond), 0)
		ready <- idB
	})
	<-ready

	time.Sleep(100 * time.Millisecond)
	if got := bFired.Load(); got > 1 {
		t.Fatalf("cancelled periodic fired %d times, want at most 1", got)
	}
}

func TestPeriodicStopsAfterCancel(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	var fired atomic.Int32
	id := loop.RunEvery(10*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if fired.Load() < 2 {
		t.Fatalf("periodic fired only %d times", fired.Load())
	}

	cancelled := make(chan struct{})
	loop.RunInLoop(func() {
		loop.CancelTimer(id)
		close(cancelled)
	})
	<-cancelled
	snapshot := fired.Load()

	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != snapshot {
		t.Fatalf("periodic fired %d more times after cancel", got-snapshot)
	}
}

func TestEarlierTimerReschedulesTimerfd(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	var t1, t2 atomic.Int32
	loop.RunAfter(1*time.Second, func() { t1.Add(1) })
	loop.RunAfter(100*time.Millisecond, func() { t2.Add(1) })

	time.Sleep(150 * time.Millisecond)
	if t2.Load() != 1 {
		t.Fatalf("T2 did not fire within 150ms")
	}
	if t1.Load() != 0 {
		t.Fatalf("T1 fired early")
	}

	time.Sleep(1 * time.Second)
	if t1.Load() != 1 {
		t.Fatalf("T1 did not fire by 1.15s")
	}
}

func TestAddTimerFromForeignThread(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	fired := make(chan int, 1)
	loop.RunAfter(10*time.Millisecond, func() {
		fired <- 1
	})
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer scheduled off-loop never fired")
	}
}
