//go:build linux
// +build linux

// File: reactor/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"os"
	"time"
)

// Channel bookkeeping states shared by the poller backends. A channel the
// backend has never seen starts at pollerStateNew; while registered in the
// kernel set it is pollerStateAdded; a channel detached from the kernel set
// but still known to the backend (for fast re-arming) is
// pollerStateDeleted.
const (
	pollerStateNew     = -1
	pollerStateAdded   = 1
	pollerStateDeleted = 2
)

// UsePollEnv selects the portable poll(2) backend when set in the
// environment at loop construction.
const UsePollEnv = "HIOLOAD_USE_POLL"

// Poller is the readiness-wait capability a loop drives. Implementations
// are level-triggered: a still-ready descriptor is reported again on the
// next wait, so handlers must consume readiness or disable the interest
// bit.
//
// All methods run on the owning loop's thread.
type Poller interface {
	// Poll blocks up to timeoutMs, appends every ready channel to
	// activeChannels with its readiness mask filled in, and returns the
	// timestamp taken right after the wait ended.
	Poll(timeoutMs int, activeChannels *[]*Channel) time.Time

	// UpdateChannel syncs the channel's interest mask into the backend.
	UpdateChannel(ch *Channel)

	// RemoveChannel forgets the channel entirely; interest must be empty.
	RemoveChannel(ch *Channel)

	// HasChannel reports whether the backend knows this channel.
	HasChannel(ch *Channel) bool

	// Close releases the backend's kernel handle.
	Close() error
}

// NewDefaultPoller picks the backend for a new loop: epoll unless
// UsePollEnv requests the portable one.
func NewDefaultPoller(loop *EventLoop) (Poller, error) {
	if os.Getenv(UsePollEnv) != "" {
		return NewPollPoller(loop), nil
	}
	return NewEpollPoller(loop)
}
