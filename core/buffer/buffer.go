// File: core/buffer/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package buffer implements the growable byte buffer used on both sides of
// a connection. The storage is one contiguous region split into three
// windows:
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0      <=      readerIndex   <=   writerIndex    <=     size
//
// Writers append at writerIndex, readers consume at readerIndex. When the
// readable window empties both indices snap back to the prepend boundary,
// so steady-state traffic reuses the same storage without growth.
package buffer

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// CheapPrepend is the reserved zone in front of readerIndex, large
	// enough to prepend a length field without moving payload bytes.
	CheapPrepend = 8
	// InitialSize is the writable capacity of a fresh buffer.
	InitialSize = 1024
)

var crlf = []byte("\r\n")

// Buffer is not safe for concurrent use; each connection touches its
// buffers only on the owning loop.
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// New returns a buffer with the default initial capacity.
func New() *Buffer {
	return NewWithSize(InitialSize)
}

// NewWithSize returns a buffer whose writable window starts at size bytes.
func NewWithSize(size int) *Buffer {
	return &Buffer{
		buf:         make([]byte, CheapPrepend+size),
		readerIndex: CheapPrepend,
		writerIndex: CheapPrepend,
	}
}

// ReadableBytes returns the length of the readable window.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns the length of the writable suffix.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }

// PrependableBytes returns the room in front of the readable window.
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek exposes the readable window without consuming it. The slice aliases
// the buffer and is invalidated by any mutating call.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIndex:b.writerIndex] }

// FindCRLF returns the offset of the first CRLF in the readable window
// relative to Peek, or -1.
func (b *Buffer) FindCRLF() int { return bytes.Index(b.Peek(), crlf) }

// Retrieve consumes n readable bytes; consuming everything resets both
// indices to the prepend boundary.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveUntil consumes the readable window up to offset end (relative to
// Peek).
func (b *Buffer) RetrieveUntil(end int) { b.Retrieve(end) }

// RetrieveAll drops the whole readable window.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = CheapPrepend
	b.writerIndex = CheapPrepend
}

// RetrieveAsString consumes n readable bytes and returns them as a string.
func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.Peek()[:n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes and returns the whole readable window.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// Append copies data into the writable window, growing it as needed.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritableBytes(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.writerIndex += len(data)
}

// AppendString copies s into the writable window.
func (b *Buffer) AppendString(s string) {
	b.EnsureWritableBytes(len(s))
	copy(b.buf[b.writerIndex:], s)
	b.writerIndex += len(s)
}

// EnsureWritableBytes grows the writable window to at least n bytes, either
// by sliding readable data back onto the prepend zone or by resizing the
// storage.
func (b *Buffer) EnsureWritableBytes(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+CheapPrepend {
		grown := make([]byte, b.writerIndex+n)
		copy(grown, b.buf[:b.writerIndex])
		b.buf = grown
		return
	}
	// Compact: move readable data to the front, reclaiming consumed space.
	readable := b.ReadableBytes()
	copy(b.buf[CheapPrepend:], b.buf[b.readerIndex:b.writerIndex])
	b.readerIndex = CheapPrepend
	b.writerIndex = CheapPrepend + readable
}

// Prepend copies data into the prepend zone, immediately before the
// readable window. Exceeding the zone is a programming error.
func (b *Buffer) Prepend(data []byte) {
	if len(data) > b.PrependableBytes() {
		panic(fmt.Sprintf("buffer: prepend %d exceeds prependable %d", len(data), b.PrependableBytes()))
	}
	b.readerIndex -= len(data)
	copy(b.buf[b.readerIndex:], data)
}

func (b *Buffer) mustReadable(n int) {
	if b.ReadableBytes() < n {
		panic(fmt.Sprintf("buffer: need %d readable bytes, have %d", n, b.ReadableBytes()))
	}
}

// AppendInt64 appends v in network byte order.
func (b *Buffer) AppendInt64(v int64) {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], uint64(v))
	b.Append(be[:])
}

// AppendInt32 appends v in network byte order.
func (b *Buffer) AppendInt32(v int32) {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], uint32(v))
	b.Append(be[:])
}

// AppendInt16 appends v in network byte order.
func (b *Buffer) AppendInt16(v int16) {
	var be [2]byte
	binary.BigEndian.PutUint16(be[:], uint16(v))
	b.Append(be[:])
}

// AppendInt8 appends a single byte.
func (b *Buffer) AppendInt8(v int8) {
	b.Append([]byte{byte(v)})
}

// PeekInt64 reads a network-order int64 without consuming it.
func (b *Buffer) PeekInt64() int64 {
	b.mustReadable(8)
	return int64(binary.BigEndian.Uint64(b.Peek()))
}

// PeekInt32 reads a network-order int32 without consuming it.
func (b *Buffer) PeekInt32() int32 {
	b.mustReadable(4)
	return int32(binary.BigEndian.Uint32(b.Peek()))
}

// PeekInt16 reads a network-order int16 without consuming it.
func (b *Buffer) PeekInt16() int16 {
	b.mustReadable(2)
	return int16(binary.BigEndian.Uint16(b.Peek()))
}

// PeekInt8 reads one byte without consuming it.
func (b *Buffer) PeekInt8() int8 {
	b.mustReadable(1)
	return int8(b.Peek()[0])
}

// ReadInt64 consumes and returns a network-order int64.
func (b *Buffer) ReadInt64() int64 {
	v := b.PeekInt64()
	b.Retrieve(8)
	return v
}

// ReadInt32 consumes and returns a network-order int32.
func (b *Buffer) ReadInt32() int32 {
	v := b.PeekInt32()
	b.Retrieve(4)
	return v
}

// ReadInt16 consumes and returns a network-order int16.
func (b *Buffer) ReadInt16() int16 {
	v := b.PeekInt16()
	b.Retrieve(2)
	return v
}

// ReadInt8 consumes and returns one byte.
func (b *Buffer) ReadInt8() int8 {
	v := b.PeekInt8()
	b.Retrieve(1)
	return v
}

// PrependInt32 places v in network byte order in front of the readable
// window.
func (b *Buffer) PrependInt32(v int32) {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], uint32(v))
	b.Prepend(be[:])
}

// PrependInt16 places v in network byte order in front of the readable
// window.
func (b *Buffer) PrependInt16(v int16) {
	var be [2]byte
	binary.BigEndian.PutUint16(be[:], uint16(v))
	b.Prepend(be[:])
}

// PrependInt8 places one byte in front of the readable window.
func (b *Buffer) PrependInt8(v int8) {
	b.Prepend([]byte{byte(v)})
}

// Cap returns the total storage size, mostly for tests.
func (b *Buffer) Cap() int { return len(b.buf) }
