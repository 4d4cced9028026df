//go:build linux
// +build linux

// File: reactor/poll_poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable poll(2) backend, selected with the HIOLOAD_USE_POLL environment
// variable. Channels index directly into the pollfd slice; a channel with
// empty interest keeps its slot with a negated fd so the kernel ignores it
// until re-armed.

package reactor

import (
	"log"
	"time"

	"golang.org/x/sys/unix"
)

// PollPoller is the poll(2)-based multiplexer backend.
type PollPoller struct {
	ownerLoop *EventLoop
	pollfds   []unix.PollFd
	channels  map[int]*Channel
}

// NewPollPoller creates the portable backend.
func NewPollPoller(loop *EventLoop) *PollPoller {
	return &PollPoller{
		ownerLoop: loop,
		channels:  make(map[int]*Channel),
	}
}

// Poll implements Poller.
func (p *PollPoller) Poll(timeoutMs int, activeChannels *[]*Channel) time.Time {
	n, err := unix.Poll(p.pollfds, timeoutMs)
	now := time.Now()
	if err != nil {
		if err != unix.EINTR {
			log.Printf("[PollPoller] wait: %v", err)
		}
		return now
	}
	if n > 0 {
		p.fillActiveChannels(n, activeChannels)
	}
	return now
}

func (p *PollPoller) fillActiveChannels(numEvents int, activeChannels *[]*Channel) {
	for i := range p.pollfds {
		if numEvents == 0 {
			break
		}
		pfd := &p.pollfds[i]
		if pfd.Revents == 0 {
			continue
		}
		numEvents--
		ch, ok := p.channels[int(pfd.Fd)]
		if !ok {
			log.Printf("[PollPoller] ready fd %d has no channel", pfd.Fd)
			continue
		}
		ch.setRevents(uint32(uint16(pfd.Revents)))
		*activeChannels = append(*activeChannels, ch)
	}
}

// UpdateChannel implements Poller.
func (p *PollPoller) UpdateChannel(ch *Channel) {
	p.ownerLoop.AssertInLoopThread()
	if ch.Index() < 0 {
		p.pollfds = append(p.pollfds, unix.PollFd{
			Fd:     int32(ch.Fd()),
			Events: int16(ch.Events()),
		})
		ch.SetIndex(len(p.pollfds) - 1)
		p.channels[ch.Fd()] = ch
		return
	}
	pfd := &p.pollfds[ch.Index()]
	pfd.Events = int16(ch.Events())
	pfd.Revents = 0
	if ch.IsNoneEvent() {
		// Park the slot so poll skips it without losing the position.
		pfd.Fd = int32(-ch.Fd() - 1)
	} else {
		pfd.Fd = int32(ch.Fd())
	}
}

// RemoveChannel implements Poller.
func (p *PollPoller) RemoveChannel(ch *Channel) {
	p.ownerLoop.AssertInLoopThread()
	if !ch.IsNoneEvent() {
		log.Fatalf("[PollPoller] removing fd %d with live interest", ch.Fd())
	}
	idx := ch.Index()
	if idx < 0 || idx >= len(p.pollfds) {
		log.Fatalf("[PollPoller] removing fd %d with bad slot %d", ch.Fd(), idx)
	}
	delete(p.channels, ch.Fd())
	last := len(p.pollfds) - 1
	if idx != last {
		movedFd := int(p.pollfds[last].Fd)
		if movedFd < 0 {
			movedFd = -movedFd - 1
		}
		p.pollfds[idx] = p.pollfds[last]
		p.channels[movedFd].SetIndex(idx)
	}
	p.pollfds = p.pollfds[:last]
	ch.SetIndex(pollerStateNew)
}

// HasChannel implements Poller.
func (p *PollPoller) HasChannel(ch *Channel) bool {
	p.ownerLoop.AssertInLoopThread()
	found, ok := p.channels[ch.Fd()]
	return ok && found == ch
}

// Close implements Poller.
func (p *PollPoller) Close() error { return nil }
