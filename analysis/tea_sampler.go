// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tracedoctor/host"
)

// teaSamplerState is the tea_sampler arming state machine. A sample
// point that falls in a ROB-empty gap ending in a populated token is
// emitted at once against the previous instruction if that one was an
// offending instruction, and otherwise carried to the next commit
// (deferred); a point missed without a populated token, or landing on
// a populated-only token, is carried to the next commit as stalled; a
// point landing squarely on a commit/exception is sampled there
// (armed). Each point is emitted at most once.
type teaSamplerState uint

const (
	teaSamplerOff teaSamplerState = iota
	teaSamplerDeferred
	teaSamplerStalled
	teaSamplerArmed
)

type teaSamplerRegister struct {
	address      uint64
	flags        uint16
	isslat       uint16
	memlat       uint16
	prevFlags    uint16
	stallLatency uint64
}

// teaSamplerWorker samples one in-flight instruction per sampling
// period, attributing the sample to whichever instruction happened to
// be retiring (or stalling the pipeline) when the period elapsed.
type teaSamplerWorker struct {
	base *Base

	register          teaSamplerRegister
	lastProgressCycle uint64
	samplingCycle     uint64
	state             teaSamplerState

	w *bufio.Writer
	c io.Closer
}

func newTeaSampler(args []string, out OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "tea_sampler", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("tea_sampler", margs)
	if err != nil {
		return nil, err
	}
	if cfg.SamplingPeriod == 0 {
		return nil, &ConfigError{Worker: "tea_sampler", Key: "samplingPeriod", Err: fmt.Errorf("sampling period missing or too low")}
	}
	f, err := out.Create("")
	if err != nil {
		return nil, fmt.Errorf("analysis: tea_sampler: %w", err)
	}
	w := &teaSamplerWorker{base: NewBase(cfg), w: bufio.NewWriter(f), c: f}
	fmt.Fprintln(w.w, sampleHeader())
	return w, nil
}

func (w *teaSamplerWorker) Name() string { return "tea_sampler" }

func (w *teaSamplerWorker) Tick(t tracedoctor.Token) error {
	first, flushDue := w.base.TriggerDetection(t)
	if first {
		w.register = teaSamplerRegister{}
		w.lastProgressCycle = t.Cycle
		return nil
	}

	if t.ROB&(tracedoctor.ROBCommitting|tracedoctor.ROBException|tracedoctor.ROBPopulated) != 0 {
		if t.Populated() && w.register.flags&tracedoctor.InstrOIR != 0 {
			w.lastProgressCycle = t.Cycle - 1
		}

		if w.base.ReachedSamplingPeriod(t.Cycle) {
			exactHit := w.base.NextPeriod() == t.Cycle
			thisPopulated := t.Populated()
			thisOnlyPopulated := thisPopulated && !(t.Committing() || t.Exception())

			w.samplingCycle = w.base.NextPeriod()
			w.base.AdvanceSamplingPeriod(t.Cycle)
			w.state = teaSamplerArmed

			switch {
			case !exactHit && thisPopulated:
				if w.register.flags&tracedoctor.InstrOIR != 0 {
					teaflags := teaFlagValid0 | teaFlagOIR
					sig := w.base.Signature(w.register.prevFlags, w.register.flags, w.register.memlat)
					if err := writeSampleRow(w.w, w.samplingCycle, w.register.stallLatency, teaflags,
						[4]uint64{w.register.address, 0, 0, 0},
						[4]uint16{w.register.isslat, 0, 0, 0},
						[4]uint16{w.register.memlat, 0, 0, 0},
						[4]uint32{sig, 0, 0, 0}); err != nil {
						return err
					}
					w.state = teaSamplerOff
				} else {
					w.state = teaSamplerDeferred
				}
			case !exactHit || thisOnlyPopulated:
				w.state = teaSamplerStalled
			}
		}

		if w.state != teaSamplerOff && (t.Committing() || t.Exception()) {
			stallLatency := t.Cycle - w.lastProgressCycle - 1
			var teaflags uint16
			if w.state == teaSamplerStalled {
				teaflags |= teaFlagStalled
			}
			if w.state == teaSamplerDeferred {
				teaflags |= teaFlagDeferred
			}
			var addrs [4]uint64
			var isslats, memlats [4]uint16
			var sigs [4]uint32

			if t.Exception() {
				addr, _ := t.FirstValid()
				addrs[0] = addr.Address
				sigs[0] = w.base.Signature(w.register.flags, tracedoctor.InstrExcpt, 0)
				teaflags = teaFlagValid0
			} else {
				flags := w.register.flags
				idx := 0
				for _, s := range t.Slots {
					if s.Flags&tracedoctor.InstrCommits == 0 {
						continue
					}
					addrs[idx] = s.Address
					isslats[idx] = s.IssLat
					memlats[idx] = s.MemLat
					sigs[idx] = w.base.Signature(flags, s.Flags, s.MemLat)
					teaflags |= 1 << uint(idx)
					flags = s.Flags
					idx++
				}
			}
			if err := writeSampleRow(w.w, w.samplingCycle, stallLatency, teaflags, addrs, isslats, memlats, sigs); err != nil {
				return err
			}
			w.state = teaSamplerOff
		}

		if t.Committing() || t.Exception() {
			stallLatency := t.Cycle - w.lastProgressCycle - 1
			if t.Exception() {
				addr, _ := t.FirstValid()
				w.register = teaSamplerRegister{
					address:      addr.Address,
					prevFlags:    w.register.flags,
					flags:        tracedoctor.InstrValid | tracedoctor.InstrExcpt,
					stallLatency: stallLatency,
				}
			} else {
				for _, s := range t.Slots {
					if s.Flags&tracedoctor.InstrCommits == 0 {
						continue
					}
					w.register = teaSamplerRegister{
						address:      s.Address,
						prevFlags:    w.register.flags,
						flags:        s.Flags,
						isslat:       s.IssLat,
						memlat:       s.MemLat,
						stallLatency: stallLatency,
					}
					stallLatency = 0
				}
			}
			w.lastProgressCycle = t.Cycle
		}
	}

	if flushDue {
		return w.Flush()
	}
	return nil
}

func (w *teaSamplerWorker) Flush() error { return w.w.Flush() }

func (w *teaSamplerWorker) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.c.Close()
}
