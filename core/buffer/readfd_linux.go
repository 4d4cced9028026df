//go:build linux
// +build linux

// File: core/buffer/readfd_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package buffer

import "golang.org/x/sys/unix"

// ReadFd drains fd into the buffer with one scatter read. The first
// destination is the buffer's writable tail, the second a 64 KiB
// stack-resident overflow, so a single syscall covers the common
// within-capacity case yet still absorbs pathological bursts without a
// preparatory FIONREAD. Returns the byte count from readv; 0 means the peer
// closed its write half.
func (b *Buffer) ReadFd(fd int) (int, error) {
	var extrabuf [65536]byte
	writable := b.WritableBytes()
	iovs := [2][]byte{b.buf[b.writerIndex:], extrabuf[:]}

	var n int
	var err error
	if writable < len(extrabuf) {
		n, err = unix.Readv(fd, iovs[:])
	} else {
		// The tail alone dwarfs the overflow; one region is enough.
		n, err = unix.Readv(fd, iovs[:1])
	}
	if err != nil {
		return -1, err
	}
	if n <= writable {
		b.writerIndex += n
	} else {
		b.writerIndex = len(b.buf)
		b.Append(extrabuf[:n-writable])
	}
	return n, nil
}
