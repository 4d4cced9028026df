// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp builds the connection-oriented transport on top of the
// reactor: a non-blocking socket shim, the accepting side with EMFILE
// recovery, the buffered per-connection state machine, and the
// multi-reactor TcpServer that spreads connections over a worker-loop pool.
package tcp
