//go:build linux
// +build linux

// File: transport/tcp/callbacks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"log"
	"time"

	"github.com/momentics/hioload-tcp/core/buffer"
)

// ConnectionCallback observes connection up/down transitions.
type ConnectionCallback func(conn *TcpConnection)

// MessageCallback consumes freshly arrived bytes from the input buffer.
type MessageCallback func(conn *TcpConnection, buf *buffer.Buffer, receiveTime time.Time)

// WriteCompleteCallback fires when the output buffer fully drains.
type WriteCompleteCallback func(conn *TcpConnection)

// HighWaterMarkCallback fires when the output buffer first crosses the
// configured threshold; length is the buffered size at the crossing.
type HighWaterMarkCallback func(conn *TcpConnection, length int)

// CloseCallback is the internal hook the server uses to unlink a closed
// connection from its table.
type CloseCallback func(conn *TcpConnection)

func defaultConnectionCallback(conn *TcpConnection) {
	state := "DOWN"
	if conn.Connected() {
		state = "UP"
	}
	log.Printf("[TcpConnection] %s -> %s is %s", conn.LocalAddr().String(), conn.PeerAddr().String(), state)
}

func defaultMessageCallback(_ *TcpConnection, buf *buffer.Buffer, _ time.Time) {
	buf.RetrieveAll()
}
