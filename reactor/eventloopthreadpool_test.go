//go:build linux
// +build linux

// File: reactor/eventloopthreadpool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync/atomic"
	"testing"
)

func TestPoolRoundRobin(t *testing.T) {
	baseLoop := NewEventLoop()
	defer baseLoop.Close()

	pool := NewEventLoopThreadPool(baseLoop)
	pool.SetThreadNum(3)

	var inits atomic.Int32
	pool.Start(func(*EventLoop) { inits.Add(1) })
	defer pool.Stop()

	if got := inits.Load(); got != 3 {
		t.Fatalf("thread-init ran %d times, want 3", got)
	}

	first := []*EventLoop{pool.GetNextLoop(), pool.GetNextLoop(), pool.GetNextLoop()}
	seen := map[*EventLoop]bool{}
	for _, l := range first {
		if l == baseLoop {
			t.Fatalf("worker selection returned the base loop")
		}
		if seen[l] {
			t.Fatalf("round robin repeated a loop within one cycle")
		}
		seen[l] = true
	}
	if got := pool.GetNextLoop(); got != first[0] {
		t.Fatalf("round robin did not wrap to the first worker")
	}
}

func TestPoolWithoutWorkersUsesBaseLoop(t *testing.T) {
	baseLoop := NewEventLoop()
	defer baseLoop.Close()

	pool := NewEventLoopThreadPool(baseLoop)
	var inits atomic.Int32
	pool.Start(func(*EventLoop) { inits.Add(1) })

	if got := inits.Load(); got != 1 {
		t.Fatalf("thread-init ran %d times, want 1 (on base loop)", got)
	}
	if got := pool.GetNextLoop(); got != baseLoop {
		t.Fatalf("empty pool did not fall back to the base loop")
	}
}
