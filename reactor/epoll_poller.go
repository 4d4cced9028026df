//go:build linux
// +build linux

// File: reactor/epoll_poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Level-triggered epoll backend. The kernel set holds every channel with a
// non-empty interest mask; channels whose interest drops to empty stay in
// the fd map as "deleted" so re-arming is a single EPOLL_CTL_ADD away.

package reactor

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/sys/unix"
)

const initialEventListSize = 16

// EpollPoller is the default multiplexer backend.
type EpollPoller struct {
	ownerLoop *EventLoop
	epfd      int
	events    []unix.EpollEvent
	channels  map[int]*Channel
}

// NewEpollPoller creates the backend with a CLOEXEC epoll handle.
func NewEpollPoller(loop *EventLoop) (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &EpollPoller{
		ownerLoop: loop,
		epfd:      epfd,
		events:    make([]unix.EpollEvent, initialEventListSize),
		channels:  make(map[int]*Channel),
	}, nil
}

// Poll implements Poller.
func (p *EpollPoller) Poll(timeoutMs int, activeChannels *[]*Channel) time.Time {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err != unix.EINTR {
			log.Printf("[EpollPoller] wait: %v", err)
		}
		return now
	}
	if n > 0 {
		p.fillActiveChannels(n, activeChannels)
		if n == len(p.events) {
			// The ready list filled completely; double it so a burst is
			// reported in one wait next time.
			p.events = make([]unix.EpollEvent, 2*len(p.events))
		}
	}
	return now
}

func (p *EpollPoller) fillActiveChannels(numEvents int, activeChannels *[]*Channel) {
	for i := 0; i < numEvents; i++ {
		ch, ok := p.channels[int(p.events[i].Fd)]
		if !ok {
			log.Printf("[EpollPoller] ready fd %d has no channel", p.events[i].Fd)
			continue
		}
		ch.setRevents(p.events[i].Events)
		*activeChannels = append(*activeChannels, ch)
	}
}

// UpdateChannel implements Poller.
func (p *EpollPoller) UpdateChannel(ch *Channel) {
	p.ownerLoop.AssertInLoopThread()
	switch ch.Index() {
	case pollerStateNew, pollerStateDeleted:
		if ch.Index() == pollerStateNew {
			p.channels[ch.Fd()] = ch
		}
		ch.SetIndex(pollerStateAdded)
		p.ctl(unix.EPOLL_CTL_ADD, ch)
	case pollerStateAdded:
		if ch.IsNoneEvent() {
			p.ctl(unix.EPOLL_CTL_DEL, ch)
			ch.SetIndex(pollerStateDeleted)
		} else {
			p.ctl(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

// RemoveChannel implements Poller.
func (p *EpollPoller) RemoveChannel(ch *Channel) {
	p.ownerLoop.AssertInLoopThread()
	if !ch.IsNoneEvent() {
		log.Fatalf("[EpollPoller] removing fd %d with live interest", ch.Fd())
	}
	delete(p.channels, ch.Fd())
	if ch.Index() == pollerStateAdded {
		p.ctl(unix.EPOLL_CTL_DEL, ch)
	}
	ch.SetIndex(pollerStateNew)
}

// HasChannel implements Poller.
func (p *EpollPoller) HasChannel(ch *Channel) bool {
	p.ownerLoop.AssertInLoopThread()
	found, ok := p.channels[ch.Fd()]
	return ok && found == ch
}

// Close implements Poller.
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}

func (p *EpollPoller) ctl(op int, ch *Channel) {
	ev := unix.EpollEvent{Events: ch.Events(), Fd: int32(ch.Fd())}
	if err := unix.EpollCtl(p.epfd, op, ch.Fd(), &ev); err != nil {
		if op == unix.EPOLL_CTL_DEL {
			log.Printf("[EpollPoller] ctl del fd %d: %v", ch.Fd(), err)
		} else {
			log.Fatalf("[EpollPoller] ctl op %d fd %d: %v", op, ch.Fd(), err)
		}
	}
}
