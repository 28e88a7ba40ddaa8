// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package replay implements a tracedoctor.Bridge backed by a
// memory-mapped capture file, so a token stream pulled from real
// hardware once can be replayed through the same ingest pipeline any
// number of times without re-running the FPGA.
package replay

import (
	"fmt"
	"io"

	"github.com/tracedoctor/host"

	"golang.org/x/exp/mmap"
)

// Bridge serves a fixed token-size capture file through the
// tracedoctor.Bridge contract. It's always enabled and always
// trigger-selector 0; those MMIO-register concepts don't exist once
// the trace is already captured.
type Bridge struct {
	r      *mmap.ReaderAt
	off    int64
	closer io.Closer
}

// Open memory-maps path and returns a Bridge that serves it. path
// must contain a whole number of tracedoctor.TokenSize-byte records;
// a short trailing remainder is an error, since it can't be a valid
// token.
func Open(path string) (*Bridge, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}
	if r.Len()%tracedoctor.TokenSize != 0 {
		r.Close()
		return nil, fmt.Errorf("replay: %s: length %d is not a multiple of token size %d", path, r.Len(), tracedoctor.TokenSize)
	}
	return &Bridge{r: r, closer: r}, nil
}

func (b *Bridge) Init() error { return nil }

func (b *Bridge) TraceEnable() (bool, error) { return true, nil }

func (b *Bridge) TriggerSelector() (uint32, error) { return 0, nil }

// Pull copies up to maxTokens tokens starting at the bridge's current
// read offset into buf, and reports io.EOF once the capture is fully
// drained, matching the live-bridge contract a real FPGA harness
// would present at end of trace.
func (b *Bridge) Pull(buf []byte, maxTokens int) (int, error) {
	remaining := int64(b.r.Len()) - b.off
	if remaining <= 0 {
		return 0, io.EOF
	}
	want := int64(maxTokens) * tracedoctor.TokenSize
	if want > remaining {
		want = remaining
	}
	if want > int64(len(buf)) {
		want = int64(len(buf)) - int64(len(buf))%tracedoctor.TokenSize
	}
	n, err := b.r.ReadAt(buf[:want], b.off)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("replay: read at %d: %w", b.off, err)
	}
	tokens := n / tracedoctor.TokenSize
	n = tokens * tracedoctor.TokenSize
	b.off += int64(n)
	return tokens, nil
}

// Close releases the underlying memory mapping.
func (b *Bridge) Close() error { return b.closer.Close() }
