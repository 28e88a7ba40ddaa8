// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand"

	"github.com/tracedoctor/host"
)

// Base carries the sampling-period arithmetic and flush cadence
// shared by every analysis worker: a random-start offset so
// concurrent sampler instances don't phase-lock to each other, a
// per-period dither, and catch-up-without-sampling semantics across
// long ROB-empty gaps.
type Base struct {
	Config SamplingConfig
	rng    *mrand.Rand

	firstToken      bool
	lastFlushPeriod uint64

	lastPeriod      uint64
	nextPeriodStart uint64
	nextPeriod      uint64
}

// NewBase constructs a Base seeded from the system RNG, so that
// multiple worker instances in the same process don't share a
// sampling phase.
func NewBase(cfg SamplingConfig) *Base {
	return &Base{Config: cfg, rng: mrand.New(mrand.NewSource(seed())), firstToken: true}
}

func seed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return int64(binary.LittleEndian.Uint64(b[:]) &^ (1 << 63))
}

func (b *Base) uniform(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)+1))
	if err != nil {
		return b.rng.Uint64() % (n + 1)
	}
	return v.Uint64()
}

// restartSampling re-anchors the sampling window at cycle c, drawing
// a fresh random start offset.
func (b *Base) restartSampling(c uint64) {
	start := b.uniform(b.Config.RandomStartOffset)
	b.lastPeriod = c + start
	b.nextPeriodStart = c + b.Config.SamplingPeriod + start
	b.nextPeriod = b.nextPeriodStart
}

// ReachedSamplingPeriod reports whether cycle c has reached or
// passed the next scheduled sample point.
func (b *Base) ReachedSamplingPeriod(c uint64) bool {
	return b.Config.SamplingPeriod > 0 && b.nextPeriod <= c
}

// NextPeriod reports the cycle the currently scheduled sample point
// falls on. Samplers latch this as their sampling cycle before
// calling AdvanceSamplingPeriod, which mutates it.
func (b *Base) NextPeriod() uint64 { return b.nextPeriod }

// AdvanceSamplingPeriod moves the sampling window forward past cycle
// c, bulk-skipping any periods that elapsed entirely within a
// ROB-empty gap (they count as passed but are never sampled), then
// stepping one dithered period at a time until the window is back
// ahead of c. It returns the number of cycles the window moved by,
// summed as nextPeriod-lastPeriod over each step; a bulk-skipped span
// is part of the first step's difference.
func (b *Base) AdvanceSamplingPeriod(c uint64) uint64 {
	if b.Config.SamplingPeriod == 0 {
		return 0
	}
	var passed uint64
	if c > b.nextPeriodStart {
		passedPeriodCount := c - b.nextPeriodStart
		if passedPeriodCount >= b.Config.SamplingPeriod {
			missed := passedPeriodCount / b.Config.SamplingPeriod
			b.nextPeriod += missed * b.Config.SamplingPeriod
			b.nextPeriodStart += missed * b.Config.SamplingPeriod
		}
	}
	for b.nextPeriod <= c {
		passed += b.nextPeriod - b.lastPeriod
		b.lastPeriod = b.nextPeriod
		b.nextPeriod += b.Config.SamplingPeriod
		b.nextPeriod -= b.uniform(b.Config.RandomOffset)
		b.nextPeriodStart += b.Config.SamplingPeriod
	}
	return passed
}

// TriggerDetection performs the once-per-session reset on the first
// token seen, and reports whether the caller should flush its
// accumulated output this tick.
func (b *Base) TriggerDetection(t tracedoctor.Token) (first, flushDue bool) {
	if b.firstToken {
		b.firstToken = false
		b.lastFlushPeriod = t.Cycle
		b.restartSampling(t.Cycle)
		return true, false
	}
	if b.Config.FlushAfter > 0 && t.Cycle-b.lastFlushPeriod >= b.Config.FlushAfter {
		b.lastFlushPeriod = t.Cycle
		return false, true
	}
	return false, false
}

// Signature is a convenience wrapper around tracedoctor.Signature
// using this Base's configured miss-latency thresholds.
func (b *Base) Signature(lastFlags, flags uint16, memlat uint16) uint32 {
	return tracedoctor.Signature(lastFlags, flags, memlat, b.Config.L2MissLatency, b.Config.L3MissLatency)
}
