// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/tracedoctor/host"
	"github.com/tracedoctor/host/histogram"
)

// latencyHistWorker is the simplest analysis strategy: a per-address
// histogram of the memory latency observed on every committed slot.
type latencyHistWorker struct {
	base *Base
	hist map[uint64]*histogram.Uint64
	w    *bufio.Writer
	c    io.Closer
}

func newLatencyHist(args []string, out OutputSet) (tracedoctor.Worker, error) {
	margs, err := ParseArgs(args)
	if err != nil {
		return nil, &ConfigError{Worker: "latency_hist", Key: "args", Err: err}
	}
	cfg, err := NewSamplingConfig("latency_hist", margs)
	if err != nil {
		return nil, err
	}
	f, err := out.Create("")
	if err != nil {
		return nil, fmt.Errorf("analysis: latency_hist: %w", err)
	}
	return &latencyHistWorker{
		base: NewBase(cfg),
		hist: make(map[uint64]*histogram.Uint64),
		w:    bufio.NewWriter(f),
		c:    f,
	}, nil
}

func (w *latencyHistWorker) Name() string { return "latency_hist" }

func (w *latencyHistWorker) Tick(t tracedoctor.Token) error {
	_, flushDue := w.base.TriggerDetection(t)
	if flushDue {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if t.Committing() {
		for _, s := range t.Slots {
			if s.Flags&tracedoctor.InstrCommits == 0 {
				continue
			}
			h, ok := w.hist[s.Address]
			if !ok {
				h = &histogram.Uint64{}
				w.hist[s.Address] = h
			}
			h.Add(uint64(s.MemLat))
		}
	}
	return nil
}

func (w *latencyHistWorker) Flush() error {
	addrs := make([]uint64, 0, len(w.hist))
	for a := range w.hist {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		fmt.Fprintf(w.w, "0x%x;", a)
		if err := w.hist[a].WriteRow(w.w); err != nil {
			return err
		}
		fmt.Fprintln(w.w)
	}
	return w.w.Flush()
}

func (w *latencyHistWorker) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.c.Close()
}
