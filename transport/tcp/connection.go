//go:build linux
// +build linux

// File: transport/tcp/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection state machine:
//
//	Connecting -> Connected -> Disconnecting -> Disconnected
//
// Everything but the thread-safe entry points (Send, Shutdown, ForceClose)
// runs on the connection's owning worker loop, so user code observes strict
// serial order per connection.

package tcp

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/gobwas/pool/pbytes"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/core/buffer"
	"github.com/momentics/hioload-tcp/reactor"
)

type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateDisconnecting
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "Disconnected"
	case stateConnecting:
		return "Connecting"
	case stateConnected:
		return "Connected"
	case stateDisconnecting:
		return "Disconnecting"
	}
	return "Unknown"
}

// defaultHighWaterMark is the output-buffer threshold above which the
// backpressure callback fires.
const defaultHighWaterMark = 64 * 1024 * 1024

// TcpConnection is one established connection, shared between the server's
// table and any task in flight that still references it. Its final teardown
// always runs on the owning worker loop.
type TcpConnection struct {
	loop *reactor.EventLoop
	name string

	state   atomic.Int32
	socket  *Socket
	channel *reactor.Channel

	localAddr InetAddress
	peerAddr  InetAddress

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback
	highWaterMark         int

	inputBuffer  *buffer.Buffer
	outputBuffer *buffer.Buffer

	context any
}

// NewTcpConnection wraps an already-connected descriptor. The caller
// (TcpServer) registers callbacks and then posts ConnectEstablished to the
// owning loop.
func NewTcpConnection(loop *reactor.EventLoop, name string, sockfd int, localAddr, peerAddr InetAddress) *TcpConnection {
	c := &TcpConnection{
		loop:          loop,
		name:          name,
		socket:        NewSocket(sockfd),
		channel:       reactor.NewChannel(loop, sockfd),
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		highWaterMark: defaultHighWaterMark,
		inputBuffer:   buffer.New(),
		outputBuffer:  buffer.New(),
	}
	c.state.Store(int32(stateConnecting))
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	c.socket.SetKeepAlive(true)
	return c
}

// Loop returns the owning worker loop.
func (c *TcpConnection) Loop() *reactor.EventLoop { return c.loop }

// Name returns the server-assigned connection name.
func (c *TcpConnection) Name() string { return c.name }

// LocalAddr returns the local endpoint.
func (c *TcpConnection) LocalAddr() InetAddress { return c.localAddr }

// PeerAddr returns the remote endpoint.
func (c *TcpConnection) PeerAddr() InetAddress { return c.peerAddr }

// Connected reports the Connected state.
func (c *TcpConnection) Connected() bool { return c.currentState() == stateConnected }

// Disconnected reports the Disconnected state.
func (c *TcpConnection) Disconnected() bool { return c.currentState() == stateDisconnected }

// Context returns the opaque per-connection slot.
func (c *TcpConnection) Context() any { return c.context }

// SetContext stores an opaque value, e.g. a protocol parser.
func (c *TcpConnection) SetContext(ctx any) { c.context = ctx }

// InputBuffer exposes the read side; touch it only on the owning loop.
func (c *TcpConnection) InputBuffer() *buffer.Buffer { return c.inputBuffer }

// OutputBuffer exposes the write side; touch it only on the owning loop.
func (c *TcpConnection) OutputBuffer() *buffer.Buffer { return c.outputBuffer }

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket.
func (c *TcpConnection) SetTCPNoDelay(on bool) { c.socket.SetTCPNoDelay(on) }

// SetConnectionCallback installs the up/down observer.
func (c *TcpConnection) SetConnectionCallback(cb ConnectionCallback) { c.connectionCallback = cb }

// SetMessageCallback installs the inbound-data consumer.
func (c *TcpConnection) SetMessageCallback(cb MessageCallback) { c.messageCallback = cb }

// SetWriteCompleteCallback installs the output-drained observer.
func (c *TcpConnection) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	c.writeCompleteCallback = cb
}

// SetHighWaterMarkCallback installs the backpressure observer with its
// threshold.
func (c *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}

func (c *TcpConnection) setCloseCallback(cb CloseCallback) { c.closeCallback = cb }

func (c *TcpConnection) currentState() connState { return connState(c.state.Load()) }

func (c *TcpConnection) setState(s connState) { c.state.Store(int32(s)) }

// Send queues data for delivery. Safe from any thread: off-loop callers
// hand a pooled copy of the payload to the owning loop.
func (c *TcpConnection) Send(data []byte) {
	if c.currentState() != stateConnected {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	cp := pbytes.GetLen(len(data))
	copy(cp, data)
	c.loop.QueueInLoop(func() {
		c.sendInLoop(cp)
		pbytes.Put(cp)
	})
}

// SendString queues a string payload.
func (c *TcpConnection) SendString(s string) {
	if c.currentState() != stateConnected {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop([]byte(s))
		return
	}
	cp := pbytes.GetLen(len(s))
	copy(cp, s)
	c.loop.QueueInLoop(func() {
		c.sendInLoop(cp)
		pbytes.Put(cp)
	})
}

// SendBuffer queues and consumes the readable window of buf.
func (c *TcpConnection) SendBuffer(buf *buffer.Buffer) {
	if c.currentState() != stateConnected {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(buf.Peek())
		buf.RetrieveAll()
		return
	}
	cp := pbytes.GetLen(buf.ReadableBytes())
	copy(cp, buf.Peek())
	buf.RetrieveAll()
	c.loop.QueueInLoop(func() {
		c.sendInLoop(cp)
		pbytes.Put(cp)
	})
}

// sendInLoop writes directly while the pipe is idle and buffers the rest,
// enabling write interest until the backlog drains.
func (c *TcpConnection) sendInLoop(data []byte) {
	c.loop.AssertInLoopThread()
	if c.currentState() == stateDisconnected {
		log.Printf("[TcpConnection] %s: disconnected, give up writing", c.name)
		return
	}

	var nwrote int
	remaining := len(data)
	faultError := false

	// Try a direct write only when nothing is queued ahead of this payload.
	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.channel.Fd(), data)
		if err == nil {
			nwrote = n
			remaining = len(data) - n
			if remaining == 0 && c.writeCompleteCallback != nil {
				cb := c.writeCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
		} else {
			nwrote = 0
			if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
				log.Printf("[TcpConnection] %s: write: %v", c.name, err)
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faultError = true
				}
			}
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
			cb := c.highWaterMarkCallback
			queued := oldLen + remaining
			c.loop.QueueInLoop(func() { cb(c, queued) })
		}
		c.outputBuffer.Append(data[nwrote:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// Shutdown closes the write half once the output buffer has drained,
// entering the half-close state. Safe from any thread.
func (c *TcpConnection) Shutdown() {
	if c.state.CompareAndSwap(int32(stateConnected), int32(stateDisconnecting)) {
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *TcpConnection) shutdownInLoop() {
	c.loop.AssertInLoopThread()
	if !c.channel.IsWriting() {
		c.socket.ShutdownWrite()
	}
	// Otherwise handleWrite finishes the shutdown when the buffer empties.
}

// ForceClose drops the connection without waiting for the output buffer.
// Safe from any thread.
func (c *TcpConnection) ForceClose() {
	s := c.currentState()
	if s == stateConnected || s == stateDisconnecting {
		c.setState(stateDisconnecting)
		c.loop.QueueInLoop(c.forceCloseInLoop)
	}
}

// ForceCloseWithDelay schedules a ForceClose, giving the peer a grace
// period to finish.
func (c *TcpConnection) ForceCloseWithDelay(d time.Duration) {
	s := c.currentState()
	if s == stateConnected || s == stateDisconnecting {
		c.setState(stateDisconnecting)
		c.loop.RunAfter(d, c.ForceClose)
	}
}

func (c *TcpConnection) forceCloseInLoop() {
	c.loop.AssertInLoopThread()
	s := c.currentState()
	if s == stateConnected || s == stateDisconnecting {
		c.handleClose()
	}
}

// ConnectEstablished completes the handshake with the reactor: runs once on
// the owning loop right after the server registered the connection.
func (c *TcpConnection) ConnectEstablished() {
	c.loop.AssertInLoopThread()
	if c.currentState() != stateConnecting {
		log.Fatalf("[TcpConnection] %s: ConnectEstablished in state %v", c.name, c.currentState())
	}
	c.setState(stateConnected)
	c.channel.Tie(c)
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// ConnectDestroyed is the idempotent final teardown, always on the owning
// loop. It survives being the last reference holder of the connection.
func (c *TcpConnection) ConnectDestroyed() {
	c.loop.AssertInLoopThread()
	if !c.loop.HasChannel(c.channel) {
		// Already torn down: the channel is detached and the fd closed.
		return
	}
	if c.currentState() == stateConnected {
		c.setState(stateDisconnected)
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.channel.Remove()
	c.socket.Close()
}

func (c *TcpConnection) handleRead(receiveTime time.Time) {
	c.loop.AssertInLoopThread()
	n, err := c.inputBuffer.ReadFd(c.channel.Fd())
	switch {
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0:
		c.handleClose()
	default:
		log.Printf("[TcpConnection] %s: read: %v", c.name, err)
		c.handleError()
	}
}

func (c *TcpConnection) handleWrite() {
	c.loop.AssertInLoopThread()
	if !c.channel.IsWriting() {
		log.Printf("[TcpConnection] fd %d is down, no more writing", c.channel.Fd())
		return
	}
	n, err := unix.Write(c.channel.Fd(), c.outputBuffer.Peek())
	if err != nil {
		log.Printf("[TcpConnection] %s: write: %v", c.name, err)
		return
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		// Drop write interest or a level-triggered poller busy-loops.
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			cb := c.writeCompleteCallback
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if c.currentState() == stateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *TcpConnection) handleClose() {
	c.loop.AssertInLoopThread()
	log.Printf("[TcpConnection] %s: fd %d closing in state %v", c.name, c.channel.Fd(), c.currentState())
	c.setState(stateDisconnected)
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *TcpConnection) handleError() {
	if err := socketError(c.channel.Fd()); err != nil {
		log.Printf("[TcpConnection] %s: SO_ERROR: %v", c.name, err)
	}
}
