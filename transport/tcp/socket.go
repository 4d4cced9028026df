//go:build linux
// +build linux

// File: transport/tcp/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"log"

	"golang.org/x/sys/unix"
)

// Socket owns one socket descriptor for its lifetime; Close is the only way
// the fd goes away.
type Socket struct {
	sockfd int
}

// NewSocket wraps an existing descriptor.
func NewSocket(fd int) *Socket { return &Socket{sockfd: fd} }

// Fd returns the wrapped descriptor.
func (s *Socket) Fd() int { return s.sockfd }

// BindAddress binds the socket or aborts; a busy listen address is a
// configuration error.
func (s *Socket) BindAddress(addr InetAddress) {
	bindOrDie(s.sockfd, addr)
}

// Listen starts accepting with the maximum backlog or aborts.
func (s *Socket) Listen() {
	listenOrDie(s.sockfd)
}

// ShutdownWrite closes the write half, leaving the read half open.
func (s *Socket) ShutdownWrite() {
	if err := unix.Shutdown(s.sockfd, unix.SHUT_WR); err != nil {
		log.Printf("[Socket] shutdown write fd %d: %v", s.sockfd, err)
	}
}

// SetTCPNoDelay toggles Nagle's algorithm.
func (s *Socket) SetTCPNoDelay(on bool) {
	s.setIntOption(unix.IPPROTO_TCP, unix.TCP_NODELAY, on)
}

// SetReuseAddr toggles SO_REUSEADDR.
func (s *Socket) SetReuseAddr(on bool) {
	s.setIntOption(unix.SOL_SOCKET, unix.SO_REUSEADDR, on)
}

// SetReusePort toggles SO_REUSEPORT.
func (s *Socket) SetReusePort(on bool) {
	s.setIntOption(unix.SOL_SOCKET, unix.SO_REUSEPORT, on)
}

// SetKeepAlive toggles TCP keep-alive probes.
func (s *Socket) SetKeepAlive(on bool) {
	s.setIntOption(unix.SOL_SOCKET, unix.SO_KEEPALIVE, on)
}

// Close releases the descriptor.
func (s *Socket) Close() {
	if err := unix.Close(s.sockfd); err != nil {
		log.Printf("[Socket] close fd %d: %v", s.sockfd, err)
	}
}

func (s *Socket) setIntOption(level, opt int, on bool) {
	v := 0
	if on {
		v = 1
	}
	if err := unix.SetsockoptInt(s.sockfd, level, opt, v); err != nil {
		log.Printf("[Socket] setsockopt fd %d level %d opt %d: %v", s.sockfd, level, opt, err)
	}
}
