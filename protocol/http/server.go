//go:build linux
// +build linux

// File: protocol/http/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http

import (
	"log"
	"time"

	"github.com/momentics/hioload-tcp/core/buffer"
	"github.com/momentics/hioload-tcp/reactor"
	"github.com/momentics/hioload-tcp/transport/tcp"
)

const badRequestResponse = "HTTP/1.1 400 Bad Request\r\n\r\n"

// Callback produces the response for one parsed request.
type Callback func(req *Request, resp *Response)

// Server serves HTTP/1.x over a TcpServer. Each connection carries its own
// parser Context; requests on one connection are handled strictly in
// order on that connection's worker loop.
type Server struct {
	server       *tcp.TcpServer
	httpCallback Callback
}

// NewServer builds an HTTP server listening on listenAddr once started.
func NewServer(loop *reactor.EventLoop, listenAddr tcp.InetAddress, name string, opts ...tcp.ServerOption) *Server {
	s := &Server{
		server:       tcp.NewTcpServer(loop, listenAddr, name, opts...),
		httpCallback: defaultCallback,
	}
	s.server.SetConnectionCallback(s.onConnection)
	s.server.SetMessageCallback(s.onMessage)
	return s
}

// SetHTTPCallback installs the request handler.
func (s *Server) SetHTTPCallback(cb Callback) { s.httpCallback = cb }

// ListenAddr returns the actually bound address.
func (s *Server) ListenAddr() tcp.InetAddress { return s.server.ListenAddr() }

// Start begins serving; idempotent, call on the acceptor loop's thread.
func (s *Server) Start() {
	log.Printf("[HttpServer] %s starts listening on %s", s.server.Name(), s.server.HostPort())
	s.server.Start()
}

// Stop evicts all connections and stops listening.
func (s *Server) Stop() { s.server.Stop() }

func defaultCallback(_ *Request, resp *Response) {
	resp.SetStatusCode(StatusNotFound)
	resp.SetStatusMessage("Not Found")
	resp.SetCloseConnection(true)
}

func (s *Server) onConnection(conn *tcp.TcpConnection) {
	if conn.Connected() {
		conn.SetContext(NewContext())
	}
}

func (s *Server) onMessage(conn *tcp.TcpConnection, buf *buffer.Buffer, receiveTime time.Time) {
	ctx := conn.Context().(*Context)
	// Pipelined requests can share one read; keep parsing until the buffer
	// runs dry or a request is left incomplete.
	for {
		if !ctx.ParseRequest(buf, receiveTime) {
			conn.SendString(badRequestResponse)
			conn.Shutdown()
			return
		}
		if !ctx.GotAll() {
			return
		}
		s.onRequest(conn, ctx.Request())
		ctx.Reset()
	}
}

func (s *Server) onRequest(conn *tcp.TcpConnection, req *Request) {
	connection := req.Header("Connection")
	shouldClose := connection == "close" ||
		(req.Version() == Version10 && connection != "Keep-Alive")

	resp := NewResponse(shouldClose)
	s.httpCallback(req, resp)

	out := buffer.New()
	resp.AppendToBuffer(out)
	conn.SendBuffer(out)
	if resp.CloseConnection() {
		conn.Shutdown()
	}
}
