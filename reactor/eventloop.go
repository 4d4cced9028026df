//go:build linux
// +build linux

// File: reactor/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One EventLoop per reactor thread. The constructing goroutine is pinned to
// its OS thread and becomes the loop's owner; channels and timers are only
// ever mutated there. Other threads reach the loop through the pending
// queue plus an eventfd wakeup.

package reactor

import (
	"encoding/binary"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/internal/concurrency"
)

// pollTimeMs bounds one multiplexer wait; quit and cross-thread posts cut
// it short via the wakeup fd.
const pollTimeMs = 10000

// Functor is a deferred task executed on the loop thread.
type Functor func()

// EventLoop runs the reactor cycle: wait for readiness, dispatch channel
// events, drain pending tasks. Construct it on the goroutine that will call
// Loop; construction pins that goroutine to its OS thread.
type EventLoop struct {
	tid        int
	poller     Poller
	timerQueue *TimerQueue

	wakeupFd      int
	wakeupChannel *Channel

	looping                bool
	quit                   atomic.Bool
	eventHandling          bool
	callingPendingFunctors atomic.Bool

	activeChannels       []*Channel
	currentActiveChannel *Channel
	pollReturnTime       time.Time

	mu              sync.Mutex
	pendingFunctors *queue.Queue
}

// NewEventLoop creates a loop owned by the calling goroutine's thread.
// A second loop on the same thread is a fatal configuration error.
func NewEventLoop() *EventLoop {
	tid := concurrency.PinCurrentGoroutine()
	l := &EventLoop{
		tid:             tid,
		pendingFunctors: queue.New(),
	}
	if !concurrency.RegisterLoop(tid, l) {
		log.Fatalf("[EventLoop] thread %d already owns a loop", tid)
	}

	poller, err := NewDefaultPoller(l)
	if err != nil {
		log.Fatalf("[EventLoop] poller: %v", err)
	}
	l.poller = poller
	l.timerQueue = newTimerQueue(l)

	wakeupFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		log.Fatalf("[EventLoop] eventfd: %v", err)
	}
	l.wakeupFd = wakeupFd
	l.wakeupChannel = NewChannel(l, wakeupFd)
	l.wakeupChannel.SetReadCallback(l.handleWakeup)
	l.wakeupChannel.EnableReading()
	return l
}

// CurrentThreadLoop returns the loop owning the calling thread, or nil.
// Only meaningful from a goroutine pinned by NewEventLoop.
func CurrentThreadLoop() *EventLoop {
	l, _ := concurrency.LoopOf(concurrency.CurrentTid()).(*EventLoop)
	return l
}

// Loop runs the reactor cycle until Quit. Must be called on the owning
// thread.
func (l *EventLoop) Loop() {
	l.AssertInLoopThread()
	l.looping = true
	log.Printf("[EventLoop] loop on thread %d starts", l.tid)

	for !l.quit.Load() {
		l.activeChannels = l.activeChannels[:0]
		l.pollReturnTime = l.poller.Poll(pollTimeMs, &l.activeChannels)

		l.eventHandling = true
		for _, ch := range l.activeChannels {
			l.currentActiveChannel = ch
			ch.HandleEvent(l.pollReturnTime)
		}
		l.currentActiveChannel = nil
		l.eventHandling = false

		l.doPendingFunctors()
	}

	log.Printf("[EventLoop] loop on thread %d stops", l.tid)
	l.looping = false
}

// Quit asks the loop to exit after the current iteration. Callbacks in
// flight are not interrupted. Safe from any thread.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsInLoopThread() {
		l.wakeup()
	}
}

// Close releases the loop's descriptors and its thread slot. Call it on the
// owning goroutine after Loop has returned.
func (l *EventLoop) Close() {
	l.AssertInLoopThread()
	l.timerQueue.close()
	l.wakeupChannel.DisableAll()
	l.wakeupChannel.Remove()
	unix.Close(l.wakeupFd)
	l.poller.Close()
	concurrency.UnregisterLoop(l.tid)
}

// RunInLoop executes f inline when called on the owning thread, otherwise
// enqueues it for the loop's next drain.
func (l *EventLoop) RunInLoop(f Functor) {
	if l.IsInLoopThread() {
		f()
	} else {
		l.QueueInLoop(f)
	}
}

// QueueInLoop always defers f to the loop's task drain, even from the
// owning thread.
func (l *EventLoop) QueueInLoop(f Functor) {
	l.mu.Lock()
	l.pendingFunctors.Add(f)
	l.mu.Unlock()

	if !l.IsInLoopThread() || l.callingPendingFunctors.Load() {
		l.wakeup()
	}
}

// QueueSize returns the number of tasks waiting for the next drain.
func (l *EventLoop) QueueSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingFunctors.Length()
}

// RunAt schedules cb once at when. Safe from any thread.
func (l *EventLoop) RunAt(when time.Time, cb TimerCallback) TimerID {
	return l.timerQueue.AddTimer(cb, when, 0)
}

// RunAfter schedules cb once after delay. Safe from any thread.
func (l *EventLoop) RunAfter(delay time.Duration, cb TimerCallback) TimerID {
	return l.RunAt(time.Now().Add(delay), cb)
}

// RunEvery schedules cb every interval, first firing one interval from now.
// Safe from any thread.
func (l *EventLoop) RunEvery(interval time.Duration, cb TimerCallback) TimerID {
	return l.timerQueue.AddTimer(cb, time.Now().Add(interval), interval)
}

// CancelTimer stops the timer behind id. Safe from any thread.
func (l *EventLoop) CancelTimer(id TimerID) {
	l.timerQueue.Cancel(id)
}

// PollReturnTime returns the timestamp of the last multiplexer wake.
func (l *EventLoop) PollReturnTime() time.Time { return l.pollReturnTime }

// IsInLoopThread reports whether the caller runs on the owning thread.
func (l *EventLoop) IsInLoopThread() bool {
	return concurrency.CurrentTid() == l.tid
}

// AssertInLoopThread aborts when called off the owning thread.
func (l *EventLoop) AssertInLoopThread() {
	if !l.IsInLoopThread() {
		log.Fatalf("[EventLoop] loop owned by thread %d used from thread %d",
			l.tid, concurrency.CurrentTid())
	}
}

func (l *EventLoop) updateChannel(ch *Channel) {
	if ch.OwnerLoop() != l {
		log.Fatalf("[EventLoop] channel fd %d belongs to another loop", ch.Fd())
	}
	l.AssertInLoopThread()
	l.poller.UpdateChannel(ch)
}

func (l *EventLoop) removeChannel(ch *Channel) {
	if ch.OwnerLoop() != l {
		log.Fatalf("[EventLoop] channel fd %d belongs to another loop", ch.Fd())
	}
	l.AssertInLoopThread()
	if l.eventHandling && ch != l.currentActiveChannel {
		for _, active := range l.activeChannels {
			if active == ch {
				log.Fatalf("[EventLoop] channel fd %d removed while still in the active batch", ch.Fd())
			}
		}
	}
	l.poller.RemoveChannel(ch)
}

// HasChannel reports whether ch is registered with this loop's multiplexer.
func (l *EventLoop) HasChannel(ch *Channel) bool {
	l.AssertInLoopThread()
	return l.poller.HasChannel(ch)
}

// wakeup writes one tick into the eventfd to unblock the poller.
func (l *EventLoop) wakeup() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if n, err := unix.Write(l.wakeupFd, one[:]); n != 8 {
		log.Printf("[EventLoop] wakeup wrote %d bytes: %v", n, err)
	}
}

// handleWakeup clears the eventfd counter; the value itself is discarded.
func (l *EventLoop) handleWakeup(time.Time) {
	var counter [8]byte
	if n, err := unix.Read(l.wakeupFd, counter[:]); n != 8 {
		log.Printf("[EventLoop] wakeup read %d bytes: %v", n, err)
	}
}

// doPendingFunctors swaps the queue out under the lock and runs the
// snapshot, so a task that enqueues further tasks neither deadlocks nor
// starves I/O: late arrivals run in the next iteration's drain.
func (l *EventLoop) doPendingFunctors() {
	l.callingPendingFunctors.Store(true)

	l.mu.Lock()
	n := l.pendingFunctors.Length()
	functors := make([]Functor, 0, n)
	for i := 0; i < n; i++ {
		functors = append(functors, l.pendingFunctors.Remove().(Functor))
	}
	l.mu.Unlock()

	for _, f := range functors {
		f()
	}
	l.callingPendingFunctors.Store(false)
}
