// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bufio"
	"fmt"
	"io"
	"log"

	"github.com/tracedoctor/host"
)

type ibsSamplerState uint

const (
	ibsIdle ibsSamplerState = iota
	ibsTagging
	ibsArmed
)

// ibsSamplerWorker emulates AMD IBS-style tagged-instruction sampling:
// at each period it tags the instruction about to be dispatched, then
// tracks it through the ROB by slot position until it either commits
// or is evicted by the ROB wrapping around underneath it.
type ibsSamplerWorker struct {
	base *Base

	coreWidth uint64

	lastFlags         uint16
	lastProgressCycle uint64
	samplingCycle     uint64
	tag               uint8
	state             ibsSamplerState
	evicted           uint64

	name string
	w    *bufio.Writer
	c    io.Closer
}

func newIBSSampler(args []string, out OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "ibs_sampler", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("ibs_sampler", margs)
	if err != nil {
		return nil, err
	}
	if cfg.SamplingPeriod == 0 {
		return nil, &ConfigError{Worker: "ibs_sampler", Key: "samplingPeriod", Err: fmt.Errorf("sampling period missing or too low")}
	}
	coreWidth, err := uintArg(margs, "coreWidth", 4)
	if err != nil {
		return nil, &ConfigError{Worker: "ibs_sampler", Key: "coreWidth", Err: err}
	}
	f, err := out.Create("")
	if err != nil {
		return nil, fmt.Errorf("analysis: ibs_sampler: %w", err)
	}
	w := &ibsSamplerWorker{base: NewBase(cfg), coreWidth: coreWidth, name: "IBSSampler", w: bufio.NewWriter(f), c: f}
	log.Printf("%s: coreWidth(%d)", w.name, w.coreWidth)
	fmt.Fprintln(w.w, sampleHeader())
	return w, nil
}

func (w *ibsSamplerWorker) Name() string { return "ibs_sampler" }

func (w *ibsSamplerWorker) Tick(t tracedoctor.Token) error {
	first, flushDue := w.base.TriggerDetection(t)
	if first {
		w.lastFlags = 0
		w.lastProgressCycle = t.Cycle
		return nil
	}

	if t.Populated() && w.lastFlags&tracedoctor.InstrOIR != 0 {
		w.lastProgressCycle = t.Cycle - 1
	}

	if w.state == ibsArmed {
		tail := uint16(t.ROBTail)
		head := uint16(t.ROBHead) - uint16(t.ROBHead)%uint16(w.coreWidth)
		tag := uint16(w.tag)

		var instrValid bool
		for _, s := range t.Slots {
			if s.Flags&tracedoctor.InstrValid != 0 {
				instrValid = true
				break
			}
		}

		evict1 := tail > head && tag >= tail
		evict2 := tail > head && tag < head
		evict3 := tail < head && tag >= tail && tag < head
		evict4 := tail == head && !instrValid

		switch {
		case evict1 || evict2 || evict3 || evict4:
			w.evicted++
			w.state = ibsIdle
		case t.Committing() && tag >= head && tag < head+uint16(w.coreWidth):
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
			w.state = ibsIdle
		}
	}

	if w.base.ReachedSamplingPeriod(t.Cycle) {
		w.samplingCycle = w.base.NextPeriod()
		w.base.AdvanceSamplingPeriod(t.Cycle)
		w.state = ibsTagging
	}

	if w.state == ibsTagging && t.Dispatching() {
		w.tag = t.ROBTail
		w.state = ibsArmed
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

func (w *ibsSamplerWorker) Flush() error { return w.w.Flush() }

func (w *ibsSamplerWorker) Close() error {
	log.Printf("%s: evicted(%d)", w.name, w.evicted)
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.c.Close()
}
