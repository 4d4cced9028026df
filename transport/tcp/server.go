//go:build linux
// +build linux

// File: transport/tcp/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-reactor server: the acceptor loop takes connections and deals them
// round-robin onto a pool of worker loops. The connection table lives on
// the acceptor loop; a connection's teardown runs on its worker loop.

package tcp

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/momentics/hioload-tcp/reactor"
)

type serverOptions struct {
	reusePort bool
	threads   int
}

// ServerOption customizes server construction.
type ServerOption func(*serverOptions)

// WithReusePort enables SO_REUSEPORT on the listening socket.
func WithReusePort() ServerOption {
	return func(o *serverOptions) { o.reusePort = true }
}

// WithThreads sets the number of worker I/O loops; zero keeps every
// connection on the acceptor loop.
func WithThreads(n int) ServerOption {
	return func(o *serverOptions) { o.threads = n }
}

// TcpServer wires an Acceptor, a worker-loop pool and the connection
// lifecycle into one serving entity.
type TcpServer struct {
	loop   *reactor.EventLoop
	ipPort string
	name   string

	acceptor   *Acceptor
	threadPool *reactor.EventLoopThreadPool

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	threadInitCallback    reactor.ThreadInitCallback

	started    atomic.Int32
	nextConnID int
	// connections is keyed by connection name and only touched on the
	// acceptor loop.
	connections map[string]*TcpConnection
}

// NewTcpServer builds a server listening on listenAddr once started. loop
// becomes the acceptor loop and must be the caller's loop.
func NewTcpServer(loop *reactor.EventLoop, listenAddr InetAddress, name string, opts ...ServerOption) *TcpServer {
	if loop == nil {
		log.Fatalf("[TcpServer] nil acceptor loop")
	}
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &TcpServer{
		loop:               loop,
		ipPort:             listenAddr.String(),
		name:               name,
		acceptor:           NewAcceptor(loop, listenAddr, o.reusePort),
		threadPool:         reactor.NewEventLoopThreadPool(loop),
		connectionCallback: defaultConnectionCallback,
		messageCallback:    defaultMessageCallback,
		nextConnID:         1,
		connections:        make(map[string]*TcpConnection),
	}
	s.threadPool.SetThreadNum(o.threads)
	s.acceptor.SetNewConnectionCallback(s.newConnection)
	return s
}

// Name returns the server name used in connection names.
func (s *TcpServer) Name() string { return s.name }

// HostPort returns the configured listen address string.
func (s *TcpServer) HostPort() string { return s.ipPort }

// ListenAddr returns the actually bound address; useful with port 0.
func (s *TcpServer) ListenAddr() InetAddress { return s.acceptor.LocalAddr() }

// Loop returns the acceptor loop.
func (s *TcpServer) Loop() *reactor.EventLoop { return s.loop }

// SetThreadNum fixes the worker-loop count before Start.
func (s *TcpServer) SetThreadNum(n int) { s.threadPool.SetThreadNum(n) }

// SetThreadInitCallback runs cb on each worker thread before it serves.
func (s *TcpServer) SetThreadInitCallback(cb reactor.ThreadInitCallback) {
	s.threadInitCallback = cb
}

// SetConnectionCallback installs the up/down observer for every connection.
func (s *TcpServer) SetConnectionCallback(cb ConnectionCallback) { s.connectionCallback = cb }

// SetMessageCallback installs the inbound-data consumer for every
// connection.
func (s *TcpServer) SetMessageCallback(cb MessageCallback) { s.messageCallback = cb }

// SetWriteCompleteCallback installs the drain observer for every
// connection.
func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	s.writeCompleteCallback = cb
}

// Start brings the pool up and begins listening. Idempotent; must be
// called on the acceptor loop's thread.
func (s *TcpServer) Start() {
	if s.started.CompareAndSwap(0, 1) {
		s.threadPool.Start(s.threadInitCallback)
		s.loop.RunInLoop(s.acceptor.Listen)
	}
}

// Stop evicts every connection and shuts the acceptor down. The worker
// loops are left running; the server does not stop its pool.
func (s *TcpServer) Stop() {
	s.loop.RunInLoop(func() {
		for name, conn := range s.connections {
			delete(s.connections, name)
			conn.Loop().RunInLoop(conn.ConnectDestroyed)
		}
		if s.acceptor.Listening() {
			s.acceptor.Close()
		}
	})
}

// ConnectionCount returns the table size; must be read on the acceptor
// loop (use RunInLoop from elsewhere).
func (s *TcpServer) ConnectionCount() int {
	s.loop.AssertInLoopThread()
	return len(s.connections)
}

// newConnection runs on the acceptor loop for every accepted descriptor.
func (s *TcpServer) newConnection(sockfd int, peerAddr InetAddress) {
	s.loop.AssertInLoopThread()
	ioLoop := s.threadPool.GetNextLoop()
	connName := fmt.Sprintf("%s:%s#%d", s.name, s.ipPort, s.nextConnID)
	s.nextConnID++

	localAddr := localAddressOf(sockfd)
	log.Printf("[TcpServer] %s: new connection %s from %s", s.name, connName, peerAddr.String())

	conn := NewTcpConnection(ioLoop, connName, sockfd, localAddr, peerAddr)
	s.connections[connName] = conn
	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.setCloseCallback(s.removeConnection)
	ioLoop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection arrives on the worker loop as the connection's close
// handler and bounces table maintenance to the acceptor loop.
func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *TcpServer) removeConnectionInLoop(conn *TcpConnection) {
	s.loop.AssertInLoopThread()
	log.Printf("[TcpServer] %s: remove connection %s", s.name, conn.Name())
	delete(s.connections, conn.Name())
	conn.Loop().QueueInLoop(conn.ConnectDestroyed)
}
