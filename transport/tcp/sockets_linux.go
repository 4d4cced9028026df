//go:build linux
// +build linux

// File: transport/tcp/sockets_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin shim over the socket syscalls. Creation failures are configuration
// errors and abort; per-connection failures surface to the caller.

package tcp

import (
	"log"

	"golang.org/x/sys/unix"
)

// createNonblockingOrDie returns a non-blocking CLOEXEC TCP socket.
func createNonblockingOrDie() int {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		log.Fatalf("[Socket] create: %v", err)
	}
	return fd
}

func bindOrDie(fd int, addr InetAddress) {
	sa := addr.sockaddr()
	if err := unix.Bind(fd, &sa); err != nil {
		log.Fatalf("[Socket] bind fd %d to %s: %v", fd, addr.String(), err)
	}
}

func listenOrDie(fd int) {
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		log.Fatalf("[Socket] listen fd %d: %v", fd, err)
	}
}

// localAddressOf reads back the bound address of fd, which is how an
// ephemeral port chosen by the kernel becomes visible.
func localAddressOf(fd int) InetAddress {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		log.Printf("[Socket] getsockname fd %d: %v", fd, err)
		return InetAddress{}
	}
	return inetAddressFromSockaddr(sa)
}

// socketError reads and clears the pending SO_ERROR of fd.
func socketError(fd int) error {
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr == 0 {
		return nil
	}
	return unix.Errno(soErr)
}
