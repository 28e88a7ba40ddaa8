// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracedoctor

// Bridge is the contract the Engine requires of whatever sits on the
// other side of the trace stream, whether that's a live MMIO-backed
// hardware bridge, a memory-mapped capture replay, or a synthetic
// generator used in tests. The Engine treats it purely as a source
// of token bytes; everything about the bridge's own transport is
// hidden behind this interface.
type Bridge interface {
	// Init signals the bridge that the ingest side is ready to
	// receive tokens (the initDone MMIO register on real hardware).
	Init() error

	// TraceEnable reports whether the bridge is currently gated
	// open. The Engine stops pulling while it's false.
	TraceEnable() (bool, error)

	// TriggerSelector reports the opaque trigger-source id
	// currently configured on the bridge. The Engine does not
	// interpret it; it's surfaced for workers and logging.
	TriggerSelector() (uint32, error)

	// Pull reads up to maxTokens tokens into buf, which must be at
	// least maxTokens*TokenSize bytes, and reports how many tokens
	// were actually read. A short read (tokensRead < maxTokens) is
	// not an error; it means the bridge has no more data right now.
	// Pull returns io.EOF once the bridge is permanently drained.
	Pull(buf []byte, maxTokens int) (tokensRead int, err error)
}
