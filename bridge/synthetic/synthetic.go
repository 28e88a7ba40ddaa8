// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synthetic implements an in-memory tracedoctor.Bridge for
// scripting exact token sequences in tests, without needing a capture
// file on disk or a live FPGA.
package synthetic

import (
	"io"
	"sync"

	"github.com/tracedoctor/host"
)

// Bridge serves a fixed, caller-provided sequence of tokens. Enabled
// gates whether TraceEnable reports the trace as flowing; a script
// that wants to exercise the engine's "disabled" spin can toggle it
// concurrently with Run.
type Bridge struct {
	mu      sync.Mutex
	tokens  []tracedoctor.Token
	off     int
	enabled bool
	trigger uint32
}

// New returns a Bridge that replays tokens in order, then reports
// io.EOF. It starts enabled.
func New(tokens []tracedoctor.Token) *Bridge {
	return &Bridge{tokens: tokens, enabled: true}
}

// SetEnabled toggles whether the bridge reports itself as gated open.
func (b *Bridge) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// SetTriggerSelector sets the value TriggerSelector reports.
func (b *Bridge) SetTriggerSelector(trigger uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trigger = trigger
}

func (b *Bridge) Init() error { return nil }

func (b *Bridge) TraceEnable() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled, nil
}

func (b *Bridge) TriggerSelector() (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trigger, nil
}

// Pull encodes up to maxTokens scripted tokens into buf.
func (b *Bridge) Pull(buf []byte, maxTokens int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.off >= len(b.tokens) {
		return 0, io.EOF
	}
	n := len(b.tokens) - b.off
	if n > maxTokens {
		n = maxTokens
	}
	if max := len(buf) / tracedoctor.TokenSize; n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		enc := tracedoctor.EncodeToken(b.tokens[b.off+i])
		copy(buf[i*tracedoctor.TokenSize:], enc[:])
	}
	b.off += n
	return n, nil
}
