//go:build linux
// +build linux

// File: reactor/timerqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer queue driven by one timerfd per loop. Timers live in a heap ordered
// by (expiration, sequence) for earliest-first extraction, plus an identity
// set for O(log n) cancellation. A "canceling" set closes the race where a
// periodic timer is cancelled from inside its own or a peer's callback
// while the expiry batch is running: such a timer is not re-armed.

package reactor

import (
	"container/heap"
	"log"
	"time"

	"golang.org/x/sys/unix"
)

// timerHeap orders timers by expiration, ties broken by sequence.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].expiration.Equal(h[j].expiration) {
		return h[i].expiration.Before(h[j].expiration)
	}
	return h[i].sequence < h[j].sequence
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

// TimerQueue owns every timer scheduled on one loop. All mutation happens
// on the loop thread; the public entry points funnel through RunInLoop.
type TimerQueue struct {
	loop           *EventLoop
	timerfd        int
	timerfdChannel *Channel

	timers       timerHeap
	activeTimers map[*Timer]struct{}

	callingExpiredTimers bool
	cancelingTimers      map[TimerID]struct{}
}

func newTimerQueue(loop *EventLoop) *TimerQueue {
	timerfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		log.Fatalf("[TimerQueue] timerfd create: %v", err)
	}
	q := &TimerQueue{
		loop:            loop,
		timerfd:         timerfd,
		timerfdChannel:  NewChannel(loop, timerfd),
		activeTimers:    make(map[*Timer]struct{}),
		cancelingTimers: make(map[TimerID]struct{}),
	}
	q.timerfdChannel.SetReadCallback(q.handleRead)
	q.timerfdChannel.EnableReading()
	return q
}

// AddTimer schedules cb at when, repeating every interval when interval is
// positive. Safe to call from any thread.
func (q *TimerQueue) AddTimer(cb TimerCallback, when time.Time, interval time.Duration) TimerID {
	timer := newTimer(cb, when, interval)
	q.loop.RunInLoop(func() { q.addTimerInLoop(timer) })
	return TimerID{timer: timer, sequence: timer.sequence}
}

// Cancel stops the timer behind id. Safe to call from any thread, including
// from inside a timer callback of the same queue; a periodic timer
// cancelled while its batch runs is not re-armed.
func (q *TimerQueue) Cancel(id TimerID) {
	q.loop.RunInLoop(func() { q.cancelInLoop(id) })
}

func (q *TimerQueue) addTimerInLoop(timer *Timer) {
	q.loop.AssertInLoopThread()
	if q.insert(timer) {
		q.resetTimerfd(timer.expiration)
	}
}

func (q *TimerQueue) cancelInLoop(id TimerID) {
	q.loop.AssertInLoopThread()
	if _, ok := q.activeTimers[id.timer]; ok && id.timer.sequence == id.sequence {
		heap.Remove(&q.timers, id.timer.heapIndex)
		delete(q.activeTimers, id.timer)
	} else if q.callingExpiredTimers {
		q.cancelingTimers[id] = struct{}{}
	}
}

// handleRead fires when the timerfd expires.
func (q *TimerQueue) handleRead(time.Time) {
	q.loop.AssertInLoopThread()
	now := time.Now()
	q.readTimerfd()

	expired := q.getExpired(now)

	q.callingExpiredTimers = true
	q.cancelingTimers = make(map[TimerID]struct{})
	for _, t := range expired {
		t.run()
	}
	q.callingExpiredTimers = false

	q.reset(expired, now)
}

// getExpired extracts every timer with expiry <= now, earliest first.
func (q *TimerQueue) getExpired(now time.Time) []*Timer {
	var expired []*Timer
	for len(q.timers) > 0 && !q.timers[0].expiration.After(now) {
		t := heap.Pop(&q.timers).(*Timer)
		delete(q.activeTimers, t)
		expired = append(expired, t)
	}
	return expired
}

// reset re-arms surviving periodic timers and programs the timerfd for the
// new earliest expiry.
func (q *TimerQueue) reset(expired []*Timer, now time.Time) {
	for _, t := range expired {
		id := TimerID{timer: t, sequence: t.sequence}
		if _, cancelled := q.cancelingTimers[id]; t.repeat && !cancelled {
			t.restart(now)
			q.insert(t)
		}
		// One-shots and cancelled periodics fall out of the queue here.
	}
	if len(q.timers) > 0 {
		q.resetTimerfd(q.timers[0].expiration)
	}
}

// insert adds the timer to both views and reports whether it became the
// earliest.
func (q *TimerQueue) insert(timer *Timer) bool {
	earliestChanged := len(q.timers) == 0 || timer.expiration.Before(q.timers[0].expiration)
	heap.Push(&q.timers, timer)
	q.activeTimers[timer] = struct{}{}
	return earliestChanged
}

// resetTimerfd programs the fd to fire at when. A zero relative itimerspec
// disarms the fd, so the delay is clamped to at least 100us in the future.
func (q *TimerQueue) resetTimerfd(when time.Time) {
	delay := time.Until(when)
	if delay < 100*time.Microsecond {
		delay = 100 * time.Microsecond
	}
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(delay.Nanoseconds())}
	if err := unix.TimerfdSettime(q.timerfd, 0, &spec, nil); err != nil {
		log.Printf("[TimerQueue] timerfd settime: %v", err)
	}
}

// readTimerfd clears readiness by consuming the 64-bit fire count.
func (q *TimerQueue) readTimerfd() {
	var count [8]byte
	n, err := unix.Read(q.timerfd, count[:])
	if err != nil || n != 8 {
		log.Printf("[TimerQueue] timerfd read %d bytes: %v", n, err)
	}
}

// close tears the queue down on the loop thread after the loop has stopped.
func (q *TimerQueue) close() {
	q.timerfdChannel.DisableAll()
	q.timerfdChannel.Remove()
	unix.Close(q.timerfd)
}
