//go:build linux
// +build linux

// File: transport/tcp/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"log"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/reactor"
)

// NewConnectionCallback hands an accepted descriptor and its peer address
// to the server.
type NewConnectionCallback func(sockfd int, peerAddr InetAddress)

// Acceptor owns a listening socket on the acceptor loop. One fd is kept
// open to /dev/null in reserve: under EMFILE the reserve is closed, the
// pending connection accepted and dropped, and the reserve reopened, so a
// level-triggered wakeup does not spin on a connection that can never be
// accepted.
type Acceptor struct {
	loop          *reactor.EventLoop
	acceptSocket  *Socket
	acceptChannel *reactor.Channel
	newConnection NewConnectionCallback
	listening     bool
	idleFd        int
}

// NewAcceptor binds listenAddr immediately; listening starts with Listen.
// Failure to open the reserve fd or to bind is fatal.
func NewAcceptor(loop *reactor.EventLoop, listenAddr InetAddress, reusePort bool) *Acceptor {
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		log.Fatalf("[Acceptor] reserve fd: %v", err)
	}

	sock := NewSocket(createNonblockingOrDie())
	sock.SetReuseAddr(true)
	if reusePort {
		sock.SetReusePort(true)
	}
	sock.BindAddress(listenAddr)

	a := &Acceptor{
		loop:          loop,
		acceptSocket:  sock,
		acceptChannel: reactor.NewChannel(loop, sock.Fd()),
		idleFd:        idleFd,
	}
	a.acceptChannel.SetReadCallback(a.handleRead)
	return a
}

// SetNewConnectionCallback installs the server's accept handler.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.newConnection = cb
}

// Listening reports whether Listen has run.
func (a *Acceptor) Listening() bool { return a.listening }

// LocalAddr returns the bound address, including a kernel-chosen port.
func (a *Acceptor) LocalAddr() InetAddress {
	return localAddressOf(a.acceptSocket.Fd())
}

// Listen starts accepting. Must run on the acceptor loop.
func (a *Acceptor) Listen() {
	a.loop.AssertInLoopThread()
	a.listening = true
	a.acceptSocket.Listen()
	a.acceptChannel.EnableReading()
}

// Close tears the acceptor down on its loop.
func (a *Acceptor) Close() {
	a.loop.AssertInLoopThread()
	a.acceptChannel.DisableAll()
	a.acceptChannel.Remove()
	a.acceptSocket.Close()
	unix.Close(a.idleFd)
}

func (a *Acceptor) handleRead(time.Time) {
	a.loop.AssertInLoopThread()
	connfd, sa, err := unix.Accept4(a.acceptSocket.Fd(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == nil {
		peer := inetAddressFromSockaddr(sa)
		if a.newConnection != nil {
			a.newConnection(connfd, peer)
		} else {
			unix.Close(connfd)
		}
		return
	}

	switch err {
	case unix.EAGAIN, unix.EINTR, unix.ECONNABORTED, unix.EPROTO, unix.EPERM:
		// Transient; the next wakeup retries.
	case unix.EMFILE:
		log.Printf("[Acceptor] fd table exhausted, shedding one connection")
		unix.Close(a.idleFd)
		if shed, _, aerr := unix.Accept(a.acceptSocket.Fd()); aerr == nil {
			unix.Close(shed)
		}
		a.idleFd, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	default:
		log.Printf("[Acceptor] accept: %v", err)
	}
}
