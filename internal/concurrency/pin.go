//go:build linux
// +build linux

// File: internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// OS-thread pinning for reactor goroutines. An event loop treats the kernel
// thread id of its pinned goroutine as a stable owner identity, so every
// loop-affinity check reduces to a gettid comparison.

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentGoroutine wires the calling goroutine to its current OS thread
// and returns the kernel thread id. The goroutine stays pinned until it
// exits.
func PinCurrentGoroutine() int {
	runtime.LockOSThread()
	return unix.Gettid()
}

// CurrentTid returns the kernel thread id executing the caller.
func CurrentTid() int {
	return unix.Gettid()
}
