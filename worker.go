// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracedoctor

// Worker is the interface every analysis strategy implements. The
// Engine calls Tick once per token, in cycle order, always from the
// same goroutine (one per worker, or one shared round-robin by a
// TraceThreads group); a Worker never needs its own locking for state
// shared across Tick calls.
type Worker interface {
	// Name identifies the worker in logs and error messages.
	Name() string

	// Tick processes one token. An error is treated as a fatal
	// internal assertion failure: it unwinds the whole Engine.
	Tick(t Token) error

	// Flush writes out any output accumulated so far. Workers call
	// it themselves from Tick on their own flush cadence; the Engine
	// calls it once at shutdown.
	Flush() error

	// Close releases resources (typically output files) held by
	// the worker. It's called once, after the final Flush.
	Close() error
}
