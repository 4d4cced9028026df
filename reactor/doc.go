// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the per-thread event loop at the heart of the
// library: a readiness multiplexer (epoll by default, poll(2) as a portable
// fallback), fd-to-callback channels, a timerfd-backed timer queue, and the
// worker-loop pool used by multi-reactor servers. Each loop is pinned to
// one OS thread; everything a loop owns is mutated only on that thread, and
// other threads hand it work through a wakeup-fd task queue.
package reactor
