// File: protocol/http/context_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http

import (
	"testing"
	"time"

	"github.com/momentics/hioload-tcp/core/buffer"
)

func feed(t *testing.T, ctx *Context, b *buffer.Buffer, data string) bool {
	t.Helper()
	b.AppendString(data)
	return ctx.ParseRequest(b, time.Now())
}

func TestParseFullRequest(t *testing.T) {
	ctx := NewContext()
	b := buffer.New()
	ok := feed(t, ctx, b, "GET /hello?who=world HTTP/1.1\r\nHost: x\r\nAccept: */*\r\n\r\n")
	if !ok {
		t.Fatalf("parse failed")
	}
	if !ctx.GotAll() {
		t.Fatalf("parser did not reach completion")
	}
	req := ctx.Request()
	if req.Method() != MethodGet {
		t.Errorf("method = %v", req.Method())
	}
	if req.Path() != "/hello" {
		t.Errorf("path = %q", req.Path())
	}
	if req.Query() != "who=world" {
		t.Errorf("query = %q", req.Query())
	}
	if req.Version() != Version11 {
		t.Errorf("version = %v", req.Version())
	}
	if req.Header("Host") != "x" {
		t.Errorf("Host = %q", req.Header("Host"))
	}
	if req.Header("Accept") != "*/*" {
		t.Errorf("Accept = %q", req.Header("Accept"))
	}
}

func TestParseAcrossChunks(t *testing.T) {
	ctx := NewContext()
	b := buffer.New()
	if !feed(t, ctx, b, "POST /submit HT") {
		t.Fatalf("partial request line rejected")
	}
	if ctx.GotAll() {
		t.Fatalf("completed on a partial request line")
	}
	if !feed(t, ctx, b, "TP/1.0\r\nHost: y\r") {
		t.Fatalf("partial header rejected")
	}
	if ctx.GotAll() {
		t.Fatalf("completed on a partial header")
	}
	if !feed(t, ctx, b, "\n\r\n") {
		t.Fatalf("final chunk rejected")
	}
	if !ctx.GotAll() {
		t.Fatalf("parser did not complete")
	}
	req := ctx.Request()
	if req.Method() != MethodPost || req.Path() != "/submit" || req.Version() != Version10 {
		t.Fatalf("parsed %v %q %v", req.Method(), req.Path(), req.Version())
	}
	if req.Header("Host") != "y" {
		t.Fatalf("Host = %q", req.Header("Host"))
	}
}

func TestParseHeaderValueOWSTrimmed(t *testing.T) {
	ctx := NewContext()
	b := buffer.New()
	if !feed(t, ctx, b, "GET / HTTP/1.1\r\nUser-Agent:   curl/8.0   \r\n\r\n") {
		t.Fatalf("parse failed")
	}
	if got := ctx.Request().Header("User-Agent"); got != "curl/8.0" {
		t.Fatalf("User-Agent = %q, want OWS trimmed", got)
	}
}

func TestParseRejectsMalformedRequestLine(t *testing.T) {
	cases := []string{
		"GET\r\n\r\n",
		"GET /\r\n\r\n",
		"FETCH / HTTP/1.1\r\n\r\n",
		"GET / HTTP/2.0\r\n\r\n",
		"GET / HTTP/1.x\r\n\r\n",
	}
	for _, raw := range cases {
		ctx := NewContext()
		b := buffer.New()
		if feed(t, ctx, b, raw) {
			t.Errorf("accepted malformed request %q", raw)
		}
	}
}

func TestResetRearmsForKeepAlive(t *testing.T) {
	ctx := NewContext()
	b := buffer.New()
	if !feed(t, ctx, b, "GET /a HTTP/1.1\r\n\r\n") || !ctx.GotAll() {
		t.Fatalf("first request did not parse")
	}
	ctx.Reset()
	if ctx.GotAll() {
		t.Fatalf("reset did not rearm the state machine")
	}
	if !feed(t, ctx, b, "GET /b HTTP/1.1\r\n\r\n") || !ctx.GotAll() {
		t.Fatalf("second request did not parse")
	}
	if got := ctx.Request().Path(); got != "/b" {
		t.Fatalf("second path = %q", got)
	}
}

func TestBodyBytesStayInBuffer(t *testing.T) {
	ctx := NewContext()
	b := buffer.New()
	if !feed(t, ctx, b, "POST /u HTTP/1.1\r\nContent-Length: 4\r\n\r\nbody") {
		t.Fatalf("parse failed")
	}
	if !ctx.GotAll() {
		t.Fatalf("headers not completed")
	}
	// The parser stops at the blank line; the body is the caller's to read.
	if got := b.RetrieveAllAsString(); got != "body" {
		t.Fatalf("buffer remainder = %q, want %q", got, "body")
	}
	if ctx.Request().Header("Content-Length") != "4" {
		t.Fatalf("Content-Length header lost")
	}
}
