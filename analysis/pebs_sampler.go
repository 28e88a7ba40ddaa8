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

type pebsSamplerState uint

const (
	pebsIdle pebsSamplerState = iota
	pebsArmed
)

// pebsSamplerWorker is the simplest sampler: arm on a sampling tick,
// then emit the first committing slot of the very next commit as the
// sample, Intel-PEBS style (no tagging, no eviction tracking).
type pebsSamplerWorker struct {
	base *Base

	lastFlags         uint16
	lastProgressCycle uint64
	samplingCycle     uint64
	state             pebsSamplerState

	w *bufio.Writer
	c io.Closer
}

func newPEBSSampler(args []string, out OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "pebs_sampler", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("pebs_sampler", margs)
	if err != nil {
		return nil, err
	}
	if cfg.SamplingPeriod == 0 {
		return nil, &ConfigError{Worker: "pebs_sampler", Key: "samplingPeriod", Err: fmt.Errorf("sampling period missing or too low")}
	}
	f, err := out.Create("")
	if err != nil {
		return nil, fmt.Errorf("analysis: pebs_sampler: %w", err)
	}
	w := &pebsSamplerWorker{base: NewBase(cfg), w: bufio.NewWriter(f), c: f}
	fmt.Fprintln(w.w, sampleHeader())
	return w, nil
}

func (w *pebsSamplerWorker) Name() string { return "pebs_sampler" }

func (w *pebsSamplerWorker) Tick(t tracedoctor.Token) error {
	first, flushDue := w.base.TriggerDetection(t)
	if first {
		w.lastFlags = 0
		w.lastProgressCycle = t.Cycle
		return nil
	}

	if t.Populated() && w.lastFlags&tracedoctor.InstrOIR != 0 {
		w.lastProgressCycle = t.Cycle - 1
	}

	if w.base.ReachedSamplingPeriod(t.Cycle) {
		w.samplingCycle = w.base.NextPeriod()
		w.base.AdvanceSamplingPeriod(t.Cycle)
		w.state = pebsArmed
	}

	if w.state == pebsArmed && t.Committing() {
		stallLatency := t.Cycle - w.lastProgressCycle - 1
		slot, _ := t.FirstCommitting()
		sig := w.base.Signature(w.lastFlags, slot.Flags, slot.MemLat)
		if err := writeSampleRow(w.w, w.samplingCycle, stallLatency, teaFlagValid0,
			[4]uint64{slot.Address, 0, 0, 0},
			[4]uint16{slot.IssLat, 0, 0, 0},
			[4]uint16{slot.MemLat, 0, 0, 0},
			[4]uint32{sig, 0, 0, 0}); err != nil {
			return err
		}
		w.state = pebsIdle
	}

	if t.Committing() || t.Exception() {
		if t.Exception() {
			w.lastFlags = tracedoctor.InstrValid | tracedoctor.InstrExcpt
		} else if last, ok := t.LastCommitting(); ok {
			w.lastFlags = last.Flags
		}
		w.lastProgressCycle = t.Cycle
	}

	if flushDue {
		return w.Flush()
	}
	return nil
}

func (w *pebsSamplerWorker) Flush() error { return w.w.Flush() }

func (w *pebsSamplerWorker) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.c.Close()
}
