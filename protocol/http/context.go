// File: protocol/http/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http

import (
	"bytes"
	"time"

	"github.com/gobwas/httphead"

	"github.com/momentics/hioload-tcp/core/buffer"
)

type parseState int

const (
	expectRequestLine parseState = iota
	expectHeaders
	expectBody
	gotAll
)

// Context is the per-connection parser state machine, stored in the
// connection's opaque context slot.
type Context struct {
	state   parseState
	request *Request
}

// NewContext starts a parser expecting a request line.
func NewContext() *Context {
	return &Context{state: expectRequestLine, request: NewRequest()}
}

// GotAll reports a completely parsed request.
func (c *Context) GotAll() bool { return c.state == gotAll }

// Request returns the request being assembled.
func (c *Context) Request() *Request { return c.request }

// Reset rearms the parser for the next request on a kept-alive connection.
func (c *Context) Reset() {
	c.state = expectRequestLine
	c.request = NewRequest()
}

// ParseRequest consumes parseable bytes from buf. It returns false on a
// malformed request; incomplete input just leaves the state machine parked
// until more bytes arrive.
func (c *Context) ParseRequest(buf *buffer.Buffer, receiveTime time.Time) bool {
	for {
		switch c.state {
		case expectRequestLine:
			crlf := buf.FindCRLF()
			if crlf < 0 {
				return true
			}
			if !c.processRequestLine(buf.Peek()[:crlf]) {
				return false
			}
			c.request.SetReceiveTime(receiveTime)
			buf.RetrieveUntil(crlf + 2)
			c.state = expectHeaders

		case expectHeaders:
			crlf := buf.FindCRLF()
			if crlf < 0 {
				return true
			}
			line := buf.Peek()[:crlf]
			if len(line) == 0 {
				// Empty line ends the headers; body bytes, if any, stay in
				// buf for the user callback.
				buf.RetrieveUntil(crlf + 2)
				c.state = gotAll
				return true
			}
			name, value, ok := httphead.ParseHeaderLine(line)
			if !ok {
				return false
			}
			c.request.AddHeader(string(name), string(value))
			buf.RetrieveUntil(crlf + 2)

		case expectBody, gotAll:
			return true
		}
	}
}

// processRequestLine parses "METHOD SP PATH SP HTTP/1.x".
func (c *Context) processRequestLine(line []byte) bool {
	firstSpace := bytes.IndexByte(line, ' ')
	if firstSpace < 0 {
		return false
	}
	if !c.request.SetMethod(string(line[:firstSpace])) {
		return false
	}
	rest := line[firstSpace+1:]
	secondSpace := bytes.IndexByte(rest, ' ')
	if secondSpace < 0 {
		return false
	}
	c.request.SetPath(string(rest[:secondSpace]))

	versionPart := rest[secondSpace+1:]
	if len(versionPart) != 8 || !bytes.HasPrefix(versionPart, []byte("HTTP/1.")) {
		return false
	}
	switch versionPart[7] {
	case '1':
		c.request.SetVersion(Version11)
	case '0':
		c.request.SetVersion(Version10)
	default:
		return false
	}
	return true
}
