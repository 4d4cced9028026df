//go:build linux
// +build linux

// File: transport/tcp/addr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// InetAddress is an IPv4 endpoint in the form the socket layer wants it.
// The zero value is 0.0.0.0:0.
type InetAddress struct {
	addr unix.SockaddrInet4
}

// NewInetAddress parses ip (empty means any) and port into an address.
func NewInetAddress(ip string, port int) InetAddress {
	a := InetAddress{}
	a.addr.Port = port
	if ip != "" {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			panic(fmt.Sprintf("tcp: bad IPv4 address %q", ip))
		}
		copy(a.addr.Addr[:], parsed.To4())
	}
	return a
}

// NewInetAddressAny binds every local interface on port.
func NewInetAddressAny(port int) InetAddress {
	return NewInetAddress("", port)
}

// IP returns the dotted-quad form.
func (a InetAddress) IP() string {
	return net.IP(a.addr.Addr[:]).String()
}

// Port returns the port number.
func (a InetAddress) Port() int { return a.addr.Port }

// String renders "ip:port".
func (a InetAddress) String() string {
	return fmt.Sprintf("%s:%d", a.IP(), a.Port())
}

func (a InetAddress) sockaddr() unix.SockaddrInet4 { return a.addr }

func inetAddressFromSockaddr(sa unix.Sockaddr) InetAddress {
	a := InetAddress{}
	if v4, ok := sa.(*unix.SockaddrInet4); ok {
		a.addr = *v4
	}
	return a
}
