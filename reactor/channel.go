//go:build linux
// +build linux

// File: reactor/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"log"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// Event interest and readiness bits. epoll and poll(2) agree on these
// values, so one mask type serves both backends.
const (
	NoneEvent  uint32 = 0
	ReadEvent  uint32 = unix.EPOLLIN | unix.EPOLLPRI
	WriteEvent uint32 = unix.EPOLLOUT
)

// pollNval only ever arrives from the poll(2) backend; epoll has no
// equivalent bit.
const pollNval = uint32(unix.POLLNVAL)

// ReadCallback receives the timestamp taken right after the poll returned.
type ReadCallback func(receiveTime time.Time)

// EventCallback is the signature for write, close and error dispatch.
type EventCallback func()

// Channel binds one file descriptor to an interest mask and a set of typed
// callbacks on one loop. A Channel never owns its fd; the owner (a
// connection, an acceptor, a timer queue) closes it. The owner must call
// DisableAll followed by Remove before discarding a channel.
//
// All methods must be called on the owning loop's thread.
type Channel struct {
	loop    *EventLoop
	fd      int
	events  uint32
	revents uint32
	index   int // backend bookkeeping slot, see poller states
	logHup  bool

	tied  bool
	owner any

	eventHandling bool
	addedToLoop   bool

	readCallback  ReadCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback
}

// NewChannel creates a channel for fd on loop with no interest set.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:   loop,
		fd:     fd,
		index:  pollerStateNew,
		logHup: true,
	}
}

// SetReadCallback installs the readable-event handler.
func (c *Channel) SetReadCallback(cb ReadCallback) { c.readCallback = cb }

// SetWriteCallback installs the writable-event handler.
func (c *Channel) SetWriteCallback(cb EventCallback) { c.writeCallback = cb }

// SetCloseCallback installs the hangup handler.
func (c *Channel) SetCloseCallback(cb EventCallback) { c.closeCallback = cb }

// SetErrorCallback installs the error handler.
func (c *Channel) SetErrorCallback(cb EventCallback) { c.errorCallback = cb }

// Tie pins owner for the duration of every dispatch, so an owner released
// elsewhere mid-dispatch cannot be collected while its callbacks still run.
func (c *Channel) Tie(owner any) {
	c.owner = owner
	c.tied = true
}

// Fd returns the bound descriptor.
func (c *Channel) Fd() int { return c.fd }

// Events returns the current interest mask.
func (c *Channel) Events() uint32 { return c.events }

func (c *Channel) setRevents(revents uint32) { c.revents = revents }

// IsNoneEvent reports whether the channel has no interest registered.
func (c *Channel) IsNoneEvent() bool { return c.events == NoneEvent }

// IsWriting reports write interest.
func (c *Channel) IsWriting() bool { return c.events&WriteEvent != 0 }

// IsReading reports read interest.
func (c *Channel) IsReading() bool { return c.events&ReadEvent != 0 }

// EnableReading adds read interest and syncs the multiplexer registration.
func (c *Channel) EnableReading() {
	c.events |= ReadEvent
	c.update()
}

// DisableReading drops read interest.
func (c *Channel) DisableReading() {
	c.events &^= ReadEvent
	c.update()
}

// EnableWriting adds write interest.
func (c *Channel) EnableWriting() {
	c.events |= WriteEvent
	c.update()
}

// DisableWriting drops write interest.
func (c *Channel) DisableWriting() {
	c.events &^= WriteEvent
	c.update()
}

// DisableAll clears the interest mask. Together with Remove this is the
// prescribed destruction preamble.
func (c *Channel) DisableAll() {
	c.events = NoneEvent
	c.update()
}

// Index returns the backend bookkeeping slot.
func (c *Channel) Index() int { return c.index }

// SetIndex stores the backend bookkeeping slot.
func (c *Channel) SetIndex(idx int) { c.index = idx }

// OwnerLoop returns the loop this channel belongs to.
func (c *Channel) OwnerLoop() *EventLoop { return c.loop }

func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.updateChannel(c)
}

// Remove detaches the channel from the multiplexer. Interest must already
// be empty.
func (c *Channel) Remove() {
	if !c.IsNoneEvent() {
		log.Fatalf("[Channel] fd %d removed with live interest 0x%x", c.fd, c.events)
	}
	c.addedToLoop = false
	c.loop.removeChannel(c)
}

// HandleEvent dispatches the readiness mask delivered by the multiplexer.
// When tied, the owner reference is held across the dispatch.
func (c *Channel) HandleEvent(receiveTime time.Time) {
	if c.tied {
		owner := c.owner
		if owner == nil {
			return
		}
		c.handleEventWithGuard(receiveTime)
		runtime.KeepAlive(owner)
		return
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime time.Time) {
	c.eventHandling = true
	if c.revents&unix.EPOLLHUP != 0 && c.revents&unix.EPOLLIN == 0 {
		if c.logHup {
			log.Printf("[Channel] fd %d: hangup", c.fd)
		}
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.revents&pollNval != 0 {
		log.Printf("[Channel] fd %d: invalid descriptor", c.fd)
	}
	if c.revents&(unix.EPOLLERR|pollNval) != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if c.revents&unix.EPOLLOUT != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
	c.eventHandling = false
}
