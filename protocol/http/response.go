// File: protocol/http/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http

import (
	"fmt"

	"github.com/momentics/hioload-tcp/core/buffer"
)

// StatusCode is the response status line code.
type StatusCode int

// The status codes this layer emits itself; handlers may set any value.
const (
	StatusUnknown          StatusCode = 0
	StatusOK               StatusCode = 200
	StatusMovedPermanently StatusCode = 301
	StatusBadRequest       StatusCode = 400
	StatusNotFound         StatusCode = 404
)

// Response accumulates the handler's answer before encoding.
type Response struct {
	statusCode      StatusCode
	statusMessage   string
	closeConnection bool
	headers         map[string]string
	body            string
}

// NewResponse returns an empty response; closeConnection records whether
// the connection drops after this exchange.
func NewResponse(closeConnection bool) *Response {
	return &Response{
		closeConnection: closeConnection,
		headers:         make(map[string]string),
	}
}

// SetStatusCode sets the numeric status.
func (r *Response) SetStatusCode(code StatusCode) { r.statusCode = code }

// SetStatusMessage sets the reason phrase.
func (r *Response) SetStatusMessage(msg string) { r.statusMessage = msg }

// SetCloseConnection overrides the keep-alive decision.
func (r *Response) SetCloseConnection(on bool) { r.closeConnection = on }

// CloseConnection reports whether the connection drops after the response.
func (r *Response) CloseConnection() bool { return r.closeConnection }

// SetContentType sets the Content-Type header.
func (r *Response) SetContentType(contentType string) {
	r.AddHeader("Content-Type", contentType)
}

// AddHeader sets one response header.
func (r *Response) AddHeader(name, value string) { r.headers[name] = value }

// SetBody stores the body, appended verbatim after the blank line.
func (r *Response) SetBody(body string) { r.body = body }

// AppendToBuffer encodes the response into out: status line, then
// Content-Length or Connection: close, then user headers, a blank line and
// the body.
func (r *Response) AppendToBuffer(out *buffer.Buffer) {
	out.AppendString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", int(r.statusCode), r.statusMessage))
	if r.closeConnection {
		// No Content-Length: the peer reads until we close.
		out.AppendString("Connection: close\r\n")
	} else {
		out.AppendString(fmt.Sprintf("Content-Length: %d\r\n", len(r.body)))
	}
	for name, value := range r.headers {
		out.AppendString(name)
		out.AppendString(": ")
		out.AppendString(value)
		out.AppendString("\r\n")
	}
	out.AppendString("\r\n")
	out.AppendString(r.body)
}
